package handler

import (
	"net/http"

	"datapilot-go/pkg/llm"

	"github.com/gin-gonic/gin"
)

// HealthHandler 提供服务健康检查。
type HealthHandler struct {
	llmClient llm.Client
}

// NewHealthHandler 创建一个新的 HealthHandler 实例。
func NewHealthHandler(llmClient llm.Client) *HealthHandler {
	return &HealthHandler{llmClient: llmClient}
}

// Check 探测下游模型服务是否可用。
func (h *HealthHandler) Check(c *gin.Context) {
	if err := h.llmClient.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "llm": "unreachable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
