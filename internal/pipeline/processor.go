// Package pipeline 定义了聊天记录导出的处理流程。
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"companion-go/internal/model"
	"companion-go/internal/repository"
	"companion-go/pkg/log"
	"companion-go/pkg/tasks"
)

// ObjectWriter 是导出文件的落地位置。
type ObjectWriter interface {
	Put(ctx context.Context, objectName string, data []byte, contentType string) error
}

// ExportDocument 是导出文件的内容。
type ExportDocument struct {
	UserID     uint                `json:"userId"`
	ExportedAt time.Time           `json:"exportedAt"`
	Messages   []model.ChatMessage `json:"messages"`
}

// Processor 封装了导出处理的所有依赖和逻辑。
type Processor struct {
	messageRepo repository.ChatMessageRepository
	statusRepo  repository.ExportStatusRepository
	objects     ObjectWriter
	now         func() time.Time
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(messageRepo repository.ChatMessageRepository, statusRepo repository.ExportStatusRepository, objects ObjectWriter) *Processor {
	return &Processor{
		messageRepo: messageRepo,
		statusRepo:  statusRepo,
		objects:     objects,
		now:         time.Now,
	}
}

// ObjectName 返回导出文件在对象存储中的路径。
func ObjectName(userID uint, taskID string) string {
	return fmt.Sprintf("exports/%d/%s.json", userID, taskID)
}

// Process 读取用户的全部聊天记录，写成 JSON 上传，并更新任务状态。
func (p *Processor) Process(ctx context.Context, task tasks.TranscriptExportTask) error {
	log.Infof("[Processor] 开始导出聊天记录, TaskID: %s, UserID: %d", task.TaskID, task.UserID)

	if err := p.run(ctx, task); err != nil {
		status := model.ExportStatus{
			TaskID:    task.TaskID,
			UserID:    task.UserID,
			Status:    model.ExportFailed,
			Error:     err.Error(),
			UpdatedAt: p.now(),
		}
		if setErr := p.statusRepo.Set(ctx, status); setErr != nil {
			log.Errorf("[Processor] 写入失败状态出错, TaskID: %s, Error: %v", task.TaskID, setErr)
		}
		return err
	}
	return nil
}

func (p *Processor) run(ctx context.Context, task tasks.TranscriptExportTask) error {
	messages, err := p.messageRepo.ListByUser(ctx, task.UserID, 0)
	if err != nil {
		return fmt.Errorf("读取聊天记录失败: %w", err)
	}
	log.Infof("[Processor] 读取到 %d 条聊天记录", len(messages))

	data, err := json.Marshal(ExportDocument{UserID: task.UserID, ExportedAt: p.now(), Messages: messages})
	if err != nil {
		return fmt.Errorf("序列化聊天记录失败: %w", err)
	}

	objectName := ObjectName(task.UserID, task.TaskID)
	if err := p.objects.Put(ctx, objectName, data, "application/json"); err != nil {
		return fmt.Errorf("上传导出文件失败: %w", err)
	}

	status := model.ExportStatus{
		TaskID:     task.TaskID,
		UserID:     task.UserID,
		Status:     model.ExportDone,
		ObjectName: objectName,
		UpdatedAt:  p.now(),
	}
	if err := p.statusRepo.Set(ctx, status); err != nil {
		return fmt.Errorf("更新导出状态失败: %w", err)
	}
	log.Infof("[Processor] 导出完成, Object: %s", objectName)
	return nil
}
