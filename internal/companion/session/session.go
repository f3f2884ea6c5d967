// Package session 管理每个会话的生成上下文：初始指令加上逐轮的对话历史。
package session

import (
	"context"
	"errors"
	"time"
)

const (
	RoleUser  = "user"
	RoleModel = "model"
)

// ErrNotFound 表示存储中没有该会话（从未创建或已被淘汰）。
var ErrNotFound = errors.New("session not found")

// Turn 是会话上下文中的一轮。
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Session 是一个会话的生成上下文。Turns 的前两轮固定为指令和确认回合。
type Session struct {
	Key         string    `json:"key"`
	Instruction string    `json:"instruction"`
	Turns       []Turn    `json:"turns"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`

	// epoch 是 Manager 交出该会话时的重置代数，不持久化。
	epoch uint64
}

// Append 追加一轮对话。
func (s *Session) Append(role, text string) {
	s.Turns = append(s.Turns, Turn{Role: role, Text: text})
}

// Store 是会话上下文的存储。实现需要自行负责淘汰策略。
type Store interface {
	Load(ctx context.Context, key string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, key string) error
	// DeletePrefix 删除所有以 prefix 开头的会话。
	DeletePrefix(ctx context.Context, prefix string) error
}
