// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

import "time"

// TranscriptExportTask 是一次聊天记录导出请求。
type TranscriptExportTask struct {
	TaskID      string    `json:"task_id"`
	UserID      uint      `json:"user_id"`
	RequestedAt time.Time `json:"requested_at"`
}
