// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// User 是账号身份记录，拥有唯一的 Persona 与有序的聊天记录。
type User struct {
	ID        uint          `gorm:"primaryKey" json:"id"`
	Email     string        `gorm:"type:varchar(120);uniqueIndex;not null" json:"email"`
	Password  string        `gorm:"type:varchar(128);not null" json:"-"`
	Role      string        `gorm:"type:varchar(16);not null;default:USER" json:"role"`
	Persona   *Persona      `gorm:"constraint:OnDelete:CASCADE;" json:"persona,omitempty"`
	Messages  []ChatMessage `gorm:"constraint:OnDelete:CASCADE;" json:"-"`
	CreatedAt time.Time     `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time     `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (User) TableName() string {
	return "users"
}
