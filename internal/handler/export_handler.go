package handler

import (
	"net/http"

	"companion-go/internal/service"
	"companion-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// ExportHandler 处理聊天记录导出。
type ExportHandler struct {
	exportService service.ExportService
}

func NewExportHandler(exportService service.ExportService) *ExportHandler {
	return &ExportHandler{exportService: exportService}
}

// Request 创建一个导出任务，返回 202 与任务状态。
func (h *ExportHandler) Request(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	status, err := h.exportService.RequestExport(c.Request.Context(), user.ID)
	if err != nil {
		log.Errorf("Export: request failed for user %d, error: %v", user.ID, err)
		respondError(c, err)
		return
	}
	respond(c, http.StatusAccepted, "export scheduled", status)
}

// Status 查询导出任务。
func (h *ExportHandler) Status(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	status, err := h.exportService.Status(c.Request.Context(), user.ID, c.Param("taskId"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "success", status)
}
