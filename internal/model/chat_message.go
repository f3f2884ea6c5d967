package model

import "time"

const (
	SenderUser = "user"
	SenderAI   = "ai"
)

// ChatMessage 是用户聊天记录中的一条，只追加、不修改。
type ChatMessage struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"index:idx_chat_user_ts,priority:1;not null" json:"-"`
	Sender    string    `gorm:"type:varchar(10);not null" json:"sender"`
	Message   string    `gorm:"type:text;not null" json:"message"`
	Timestamp time.Time `gorm:"index:idx_chat_user_ts,priority:2;not null" json:"timestamp"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (ChatMessage) TableName() string {
	return "chat_messages"
}

// TranscriptDocument 是写入 Elasticsearch 的聊天记录文档。
type TranscriptDocument struct {
	MessageID uint      `json:"message_id"`
	UserID    uint      `json:"user_id"`
	Sender    string    `json:"sender"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// SearchHit 是聊天记录检索返回给前端的结构。
type SearchHit struct {
	MessageID uint      `json:"messageId"`
	Sender    string    `json:"sender"`
	Message   string    `json:"message"`
	Timestamp LocalTime `json:"timestamp"`
	Score     float64   `json:"score"`
}
