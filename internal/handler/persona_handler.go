package handler

import (
	"net/http"
	"strings"

	"companion-go/internal/model"
	"companion-go/internal/service"
	"companion-go/pkg/log"

	"github.com/gin-gonic/gin"
)

const (
	maxPersonaName         = 50
	maxPersonaRelationship = 100
	maxPersonaPersonality  = 500
)

// PersonaHandler 处理当前用户 Persona 的读取与修改。
type PersonaHandler struct {
	personaService service.PersonaService
}

func NewPersonaHandler(personaService service.PersonaService) *PersonaHandler {
	return &PersonaHandler{personaService: personaService}
}

// Get 返回当前用户的 Persona。
func (h *PersonaHandler) Get(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	p, err := h.personaService.Get(user.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "success", p)
}

// Update 部分更新当前用户的 Persona，缺省或空白的字段保持原值。
func (h *PersonaHandler) Update(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var patch model.PersonaPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		respond(c, http.StatusBadRequest, "无效的请求负载", nil)
		return
	}
	trim(patch.Name)
	trim(patch.Relationship)
	trim(patch.Personality)
	if tooLong(patch.Name, maxPersonaName) || tooLong(patch.Relationship, maxPersonaRelationship) || tooLong(patch.Personality, maxPersonaPersonality) {
		respond(c, http.StatusBadRequest, "字段长度超出限制", nil)
		return
	}

	p, err := h.personaService.Update(c.Request.Context(), user.ID, patch)
	if err != nil {
		log.Errorf("UpdatePersona: failed for user %d, error: %v", user.ID, err)
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "Persona updated successfully", p)
}

func trim(s *string) {
	if s != nil {
		*s = strings.TrimSpace(*s)
	}
}

func tooLong(s *string, max int) bool {
	return s != nil && len([]rune(*s)) > max
}
