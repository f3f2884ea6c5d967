package handler

import (
	"net/http"
	"strconv"

	"companion-go/internal/service"
	"companion-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// AdminHandler 负责处理所有与管理员相关的 API 请求。
type AdminHandler struct {
	adminService service.AdminService
}

// NewAdminHandler 创建一个新的 AdminHandler 实例。
func NewAdminHandler(adminService service.AdminService) *AdminHandler {
	return &AdminHandler{adminService: adminService}
}

// ListUsers 分页列出用户。
func (h *AdminHandler) ListUsers(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "10"))

	userList, err := h.adminService.ListUsers(c.Request.Context(), page, size)
	if err != nil {
		log.Error("ListUsers: Failed to list users", err)
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "success", userList)
}

func userIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("userId"), 10, 64)
	if err != nil || id == 0 {
		respond(c, http.StatusBadRequest, "无效的用户 ID", nil)
		return 0, false
	}
	return uint(id), true
}

// GetUserTranscript 返回指定用户的聊天记录。
func (h *AdminHandler) GetUserTranscript(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}
	msgs, err := h.adminService.GetUserTranscript(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "success", msgs)
}

// DeleteUser 删除指定用户及其 Persona 和聊天记录。
func (h *AdminHandler) DeleteUser(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}
	if err := h.adminService.DeleteUser(c.Request.Context(), userID); err != nil {
		log.Warnf("DeleteUser: failed for user %d, error: %v", userID, err)
		respondError(c, err)
		return
	}
	log.Infof("User %d deleted by admin", userID)
	respond(c, http.StatusOK, "用户已删除", nil)
}
