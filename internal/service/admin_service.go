package service

import (
	"context"
	"errors"
	"fmt"

	"companion-go/internal/companion/session"
	"companion-go/internal/model"
	"companion-go/internal/repository"
	"companion-go/pkg/log"

	"gorm.io/gorm"
)

// UserListResponse 定义了用户列表 API 的响应结构。
type UserListResponse struct {
	Content       []UserDetailResponse `json:"content"`
	TotalElements int64                `json:"totalElements"`
	TotalPages    int                  `json:"totalPages"`
	Size          int                  `json:"size"`
	Number        int                  `json:"number"`
}

// UserDetailResponse 定义了用户列表项的详细结构。
type UserDetailResponse struct {
	UserID       uint            `json:"userId"`
	Email        string          `json:"email"`
	Role         string          `json:"role"`
	MessageCount int64           `json:"messageCount"`
	CreatedAt    model.LocalTime `json:"createdAt"`
}

// AdminService 接口定义了所有管理员相关的业务操作。
type AdminService interface {
	ListUsers(ctx context.Context, page, size int) (*UserListResponse, error)
	GetUserTranscript(ctx context.Context, userID uint) ([]model.ChatMessage, error)
	DeleteUser(ctx context.Context, userID uint) error
}

// adminService 是 AdminService 接口的实现。
type adminService struct {
	userRepo    repository.UserRepository
	messageRepo repository.ChatMessageRepository
	sessions    *session.Manager
	index       TranscriptIndex
}

// NewAdminService 创建一个新的 AdminService 实例。index 可以为 nil。
func NewAdminService(userRepo repository.UserRepository, messageRepo repository.ChatMessageRepository, sessions *session.Manager, index TranscriptIndex) AdminService {
	return &adminService{
		userRepo:    userRepo,
		messageRepo: messageRepo,
		sessions:    sessions,
		index:       index,
	}
}

// ListUsers 分页列出用户及其消息数。page 从 1 开始。
func (s *adminService) ListUsers(ctx context.Context, page, size int) (*UserListResponse, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}
	offset := (page - 1) * size
	users, total, err := s.userRepo.FindWithPagination(offset, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	userResponses := make([]UserDetailResponse, 0, len(users))
	for _, u := range users {
		count, err := s.messageRepo.CountByUser(ctx, u.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorage, err)
		}
		userResponses = append(userResponses, UserDetailResponse{
			UserID:       u.ID,
			Email:        u.Email,
			Role:         u.Role,
			MessageCount: count,
			CreatedAt:    model.LocalTime(u.CreatedAt),
		})
	}

	totalPages := 0
	if total > 0 {
		totalPages = (int(total) + size - 1) / size
	}
	return &UserListResponse{
		Content:       userResponses,
		TotalElements: total,
		TotalPages:    totalPages,
		Size:          size,
		Number:        page,
	}, nil
}

// GetUserTranscript 返回指定用户的完整聊天记录。
func (s *adminService) GetUserTranscript(ctx context.Context, userID uint) ([]model.ChatMessage, error) {
	if _, err := s.userRepo.FindByID(userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	msgs, err := s.messageRepo.ListByUser(ctx, userID, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return msgs, nil
}

// DeleteUser 删除用户（级联 Persona 与聊天记录），并清理会话缓存和索引。
func (s *adminService) DeleteUser(ctx context.Context, userID uint) error {
	if err := s.userRepo.Delete(userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if err := s.sessions.ResetPrefix(ctx, UserSessionPrefix(userID)); err != nil {
		log.Warnf("[AdminService] 清理会话失败, userID: %d, error: %v", userID, err)
	}
	if s.index != nil {
		if err := s.index.DeleteByUser(ctx, userID); err != nil {
			log.Warnf("[AdminService] 清理索引失败, userID: %d, error: %v", userID, err)
		}
	}
	return nil
}
