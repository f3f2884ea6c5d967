package repository

import (
	"companion-go/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PersonaRepository 定义了 Persona 的读取与更新。Persona 不会被单独删除。
type PersonaRepository interface {
	FindByUserID(userID uint) (*model.Persona, error)
	UpdateByUserID(userID uint, patch model.PersonaPatch) (*model.Persona, error)
}

type personaRepository struct {
	db *gorm.DB
}

// NewPersonaRepository 创建一个新的 PersonaRepository 实例。
func NewPersonaRepository(db *gorm.DB) PersonaRepository {
	return &personaRepository{db: db}
}

// FindByUserID 获取用户的 Persona。
func (r *personaRepository) FindByUserID(userID uint) (*model.Persona, error) {
	var persona model.Persona
	if err := r.db.Where("user_id = ?", userID).First(&persona).Error; err != nil {
		return nil, err
	}
	return &persona, nil
}

// UpdateByUserID 在事务中锁定 Persona 行并应用部分更新。
func (r *personaRepository) UpdateByUserID(userID uint, patch model.PersonaPatch) (*model.Persona, error) {
	var persona model.Persona
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).First(&persona).Error; err != nil {
			return err
		}
		patch.Apply(&persona)
		return tx.Save(&persona).Error
	})
	if err != nil {
		return nil, err
	}
	return &persona, nil
}
