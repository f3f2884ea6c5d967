// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"

	"companion-go/internal/middleware"
	"companion-go/internal/model"
	"companion-go/internal/service"

	"github.com/gin-gonic/gin"
)

// respond 写出统一的 {code, message, data} 响应。
func respond(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, gin.H{"code": status, "message": message, "data": data})
}

// statusFor 把业务错误映射为 HTTP 状态码与对外的简短说明。
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrEmailTaken):
		return http.StatusConflict, "邮箱已被注册"
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, "无效的凭证"
	case errors.Is(err, service.ErrInvalidToken):
		return http.StatusUnauthorized, "无效的 token"
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "资源不存在"
	case errors.Is(err, service.ErrServiceUnavailable):
		return http.StatusServiceUnavailable, "AI 服务暂时不可用"
	case errors.Is(err, service.ErrFeatureDisabled):
		return http.StatusNotImplemented, "该功能未启用"
	default:
		return http.StatusInternalServerError, "服务器内部错误"
	}
}

func respondError(c *gin.Context, err error) {
	status, message := statusFor(err)
	respond(c, status, message, nil)
}

// currentUser 取出当前用户，拿不到时写出 500。
func currentUser(c *gin.Context) (*model.User, bool) {
	user, ok := middleware.CurrentUser(c)
	if !ok || user == nil {
		respond(c, http.StatusInternalServerError, "无法获取用户信息", nil)
		return nil, false
	}
	return user, true
}
