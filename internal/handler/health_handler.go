package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ReadyChecker 报告远程生成是否在启动时初始化成功。
type ReadyChecker interface {
	Ready() bool
}

// Health 返回服务状态，ai_ready 为 false 时对话接口会返回 503。
func Health(checker ReadyChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "ai_ready": checker.Ready()})
	}
}
