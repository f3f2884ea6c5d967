package repository

import (
	"context"
	"errors"
	"time"

	"companion-go/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ChatMessageRepository 是聊天记录（Transcript Store）的持久化接口。
type ChatMessageRepository interface {
	Append(ctx context.Context, msg *model.ChatMessage) error
	ListByUser(ctx context.Context, userID uint, limit int) ([]model.ChatMessage, error)
	CountByUser(ctx context.Context, userID uint) (int64, error)
}

type chatMessageRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewChatMessageRepository 创建一个新的 ChatMessageRepository 实例。
func NewChatMessageRepository(db *gorm.DB) ChatMessageRepository {
	return &chatMessageRepository{db: db, now: time.Now}
}

// Append 追加一条消息。同一用户的写入通过锁定用户行串行化，
// 时间戳不早于该用户已有的最新一条。
func (r *chatMessageRepository) Append(ctx context.Context, msg *model.ChatMessage) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var owner model.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").First(&owner, msg.UserID).Error; err != nil {
			return err
		}

		var last model.ChatMessage
		err := tx.Where("user_id = ?", msg.UserID).
			Order("timestamp desc, id desc").
			Limit(1).Take(&last).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if msg.Timestamp.IsZero() {
			msg.Timestamp = r.now()
		}
		if err == nil && msg.Timestamp.Before(last.Timestamp) {
			msg.Timestamp = last.Timestamp
		}
		return tx.Create(msg).Error
	})
}

// ListByUser 按时间升序返回用户的聊天记录，时间相同则按插入顺序。
// limit > 0 时只返回最近的 limit 条（仍为升序）。
func (r *chatMessageRepository) ListByUser(ctx context.Context, userID uint, limit int) ([]model.ChatMessage, error) {
	var messages []model.ChatMessage
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if limit <= 0 {
		err := q.Order("timestamp asc, id asc").Find(&messages).Error
		return messages, err
	}

	if err := q.Order("timestamp desc, id desc").Limit(limit).Find(&messages).Error; err != nil {
		return nil, err
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// CountByUser 返回用户的消息总数。
func (r *chatMessageRepository) CountByUser(ctx context.Context, userID uint) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&model.ChatMessage{}).Where("user_id = ?", userID).Count(&total).Error
	return total, err
}
