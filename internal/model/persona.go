package model

const (
	DefaultPersonaName         = "Alex"
	DefaultPersonaRelationship = "caring and supportive AI companion"
	DefaultPersonaPersonality  = "Warm, empathetic, and genuinely caring."
)

// Persona 是用户配置的陪伴角色，与 User 一对一。
type Persona struct {
	ID           uint   `gorm:"primaryKey" json:"-"`
	UserID       uint   `gorm:"uniqueIndex;not null" json:"-"`
	Name         string `gorm:"type:varchar(50);not null" json:"name"`
	Relationship string `gorm:"type:varchar(100);not null" json:"relationship"`
	Personality  string `gorm:"type:varchar(500);not null" json:"personality"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Persona) TableName() string {
	return "personas"
}

// DefaultPersona 返回注册时随用户一起创建的默认角色。
func DefaultPersona() Persona {
	return Persona{
		Name:         DefaultPersonaName,
		Relationship: DefaultPersonaRelationship,
		Personality:  DefaultPersonaPersonality,
	}
}

// PersonaPatch 描述一次部分更新，nil 字段保持原值。
type PersonaPatch struct {
	Name         *string `json:"name"`
	Relationship *string `json:"relationship"`
	Personality  *string `json:"personality"`
}

// Apply 将补丁应用到 persona 上，空白字符串视为未提供。
func (p PersonaPatch) Apply(persona *Persona) {
	if p.Name != nil && *p.Name != "" {
		persona.Name = *p.Name
	}
	if p.Relationship != nil && *p.Relationship != "" {
		persona.Relationship = *p.Relationship
	}
	if p.Personality != nil && *p.Personality != "" {
		persona.Personality = *p.Personality
	}
}
