package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/LENAX/dbf-pipeline/pkg/api/dto"
	"github.com/LENAX/dbf-pipeline/pkg/pipeline"
)

// StatusSource 提供流水线当前状态
type StatusSource interface {
	Status() pipeline.Status
}

// HealthHandler 健康检查处理器
type HealthHandler struct {
	version   string
	source    StatusSource
	startTime time.Time
}

// NewHealthHandler 创建HealthHandler
func NewHealthHandler(version string, source StatusSource) *HealthHandler {
	return &HealthHandler{
		version:   version,
		source:    source,
		startTime: time.Now(),
	}
}

// Health 健康检查
// GET /health
// 源目录不可访问时状态为 degraded，运行会在抽取阶段失败
func (h *HealthHandler) Health(c *gin.Context) {
	resp := dto.HealthResponse{
		Status:    "healthy",
		Version:   h.version,
		Uptime:    dto.FormatDuration(time.Since(h.startTime)),
		Timestamp: time.Now().Format(time.RFC3339),
	}
	if h.source != nil {
		st := h.source.Status()
		resp.Pipeline = &dto.PipelineStatus{
			Running:         st.Running,
			DBFFolder:       st.DBFFolder,
			SourceReachable: st.SourceReachable,
			Tables:          st.Tables,
			Destination:     st.Destination,
		}
		if !st.SourceReachable {
			resp.Status = "degraded"
		}
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(resp))
}
