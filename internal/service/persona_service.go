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

// PersonaService 读取和修改用户的 Persona。
type PersonaService interface {
	Get(userID uint) (*model.Persona, error)
	Update(ctx context.Context, userID uint, patch model.PersonaPatch) (*model.Persona, error)
}

type personaService struct {
	personaRepo repository.PersonaRepository
	sessions    *session.Manager
}

// NewPersonaService 创建一个新的 PersonaService 实例。
func NewPersonaService(personaRepo repository.PersonaRepository, sessions *session.Manager) PersonaService {
	return &personaService{personaRepo: personaRepo, sessions: sessions}
}

func (s *personaService) Get(userID uint) (*model.Persona, error) {
	p, err := s.personaRepo.FindByUserID(userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return p, nil
}

// Update 更新 Persona，并丢弃该用户已缓存的会话，使下一轮对话使用新的指令。
func (s *personaService) Update(ctx context.Context, userID uint, patch model.PersonaPatch) (*model.Persona, error) {
	p, err := s.personaRepo.UpdateByUserID(userID, patch)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if err := s.sessions.ResetPrefix(ctx, UserSessionPrefix(userID)); err != nil {
		log.Warnf("[PersonaService] 重置会话失败, userID: %d, error: %v", userID, err)
	}
	return p, nil
}
