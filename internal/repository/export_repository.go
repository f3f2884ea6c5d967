package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"companion-go/internal/model"

	"github.com/go-redis/redis/v8"
)

const exportStatusTTL = 24 * time.Hour

// ErrExportNotFound 表示导出任务不存在或已过期。
var ErrExportNotFound = errors.New("export task not found")

// ExportStatusRepository 记录聊天记录导出任务的状态。
type ExportStatusRepository interface {
	Set(ctx context.Context, status model.ExportStatus) error
	Get(ctx context.Context, taskID string) (*model.ExportStatus, error)
}

type redisExportStatusRepository struct {
	redisClient *redis.Client
}

// NewExportStatusRepository 创建一个基于 Redis 的 ExportStatusRepository。
func NewExportStatusRepository(redisClient *redis.Client) ExportStatusRepository {
	return &redisExportStatusRepository{redisClient: redisClient}
}

func exportKey(taskID string) string {
	return fmt.Sprintf("companion:export:%s", taskID)
}

func (r *redisExportStatusRepository) Set(ctx context.Context, status model.ExportStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal export status: %w", err)
	}
	return r.redisClient.Set(ctx, exportKey(status.TaskID), data, exportStatusTTL).Err()
}

func (r *redisExportStatusRepository) Get(ctx context.Context, taskID string) (*model.ExportStatus, error) {
	data, err := r.redisClient.Get(ctx, exportKey(taskID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrExportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get export status: %w", err)
	}
	var status model.ExportStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal export status: %w", err)
	}
	return &status, nil
}
