package model

import "time"

const (
	ExportPending = "PENDING"
	ExportDone    = "DONE"
	ExportFailed  = "FAILED"
)

// ExportStatus 描述一次聊天记录导出任务的进度。
type ExportStatus struct {
	TaskID     string    `json:"taskId"`
	UserID     uint      `json:"userId"`
	Status     string    `json:"status"`
	ObjectName string    `json:"objectName,omitempty"`
	Error      string    `json:"error,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt"`
}
