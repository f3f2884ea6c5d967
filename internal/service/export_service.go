package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"companion-go/internal/model"
	"companion-go/internal/repository"
	"companion-go/pkg/tasks"

	"github.com/google/uuid"
)

const downloadURLExpiry = time.Hour

// TaskProducer 投递导出任务，由 Kafka 生产者实现。
type TaskProducer interface {
	ProduceExportTask(ctx context.Context, task tasks.TranscriptExportTask) error
}

// URLSigner 为导出文件生成临时下载地址，由 MinIO 实现。
type URLSigner interface {
	PresignedURL(ctx context.Context, objectName string, expiry time.Duration) (string, error)
}

// ExportStatusResponse 是导出任务查询的返回，完成时带下载地址。
type ExportStatusResponse struct {
	model.ExportStatus
	DownloadURL string `json:"downloadUrl,omitempty"`
}

// ExportService 异步导出用户的聊天记录。
type ExportService interface {
	RequestExport(ctx context.Context, userID uint) (*model.ExportStatus, error)
	Status(ctx context.Context, userID uint, taskID string) (*ExportStatusResponse, error)
}

type exportService struct {
	producer   TaskProducer
	signer     URLSigner
	statusRepo repository.ExportStatusRepository
}

// NewExportService 创建 ExportService。producer 或 signer 为 nil 时导出功能关闭。
func NewExportService(producer TaskProducer, signer URLSigner, statusRepo repository.ExportStatusRepository) ExportService {
	return &exportService{producer: producer, signer: signer, statusRepo: statusRepo}
}

func (s *exportService) enabled() bool {
	return s.producer != nil && s.signer != nil
}

// RequestExport 记录一个 PENDING 状态并把任务投递到队列。
func (s *exportService) RequestExport(ctx context.Context, userID uint) (*model.ExportStatus, error) {
	if !s.enabled() {
		return nil, ErrFeatureDisabled
	}
	task := tasks.TranscriptExportTask{TaskID: uuid.NewString(), UserID: userID, RequestedAt: time.Now()}
	status := model.ExportStatus{
		TaskID:    task.TaskID,
		UserID:    userID,
		Status:    model.ExportPending,
		UpdatedAt: task.RequestedAt,
	}
	if err := s.statusRepo.Set(ctx, status); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if err := s.producer.ProduceExportTask(ctx, task); err != nil {
		return nil, fmt.Errorf("投递导出任务失败: %w", err)
	}
	return &status, nil
}

// Status 查询导出任务，只能查询自己的任务。
func (s *exportService) Status(ctx context.Context, userID uint, taskID string) (*ExportStatusResponse, error) {
	if !s.enabled() {
		return nil, ErrFeatureDisabled
	}
	status, err := s.statusRepo.Get(ctx, taskID)
	if errors.Is(err, repository.ErrExportNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if status.UserID != userID {
		return nil, ErrNotFound
	}

	resp := &ExportStatusResponse{ExportStatus: *status}
	if status.Status == model.ExportDone {
		url, err := s.signer.PresignedURL(ctx, status.ObjectName, downloadURLExpiry)
		if err != nil {
			return nil, err
		}
		resp.DownloadURL = url
	}
	return resp, nil
}
