// Package companion 实现陪伴回复的核心逻辑：Persona 提示词、情绪判断、规则兜底回复以及回复生成器。
package companion

import (
	"fmt"

	"companion-go/internal/model"
)

// Compose 根据 Persona 生成会话的初始指令。相同的 Persona 总是得到相同的文本。
func Compose(persona model.Persona) string {
	return fmt.Sprintf(
		"You are %s, a %s.\n\n"+
			"Your personality is defined by these traits: %s.\n\n"+
			"Your goal is to embody this persona in every reply of this conversation. "+
			"Stay consistent with it across turns, remember what the user has told you, "+
			"and focus on making the user feel heard and understood.",
		persona.Name, persona.Relationship, persona.Personality,
	)
}

// AcknowledgeTurn 是紧跟在指令之后的固定模型回合。
func AcknowledgeTurn(persona model.Persona) string {
	return fmt.Sprintf("I understand. I'll be %s for you.", persona.Name)
}
