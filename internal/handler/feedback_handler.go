package handler

import (
	"errors"
	"net/http"

	"datapilot-go/internal/service"
	"datapilot-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// FeedbackHandler 处理用户对答案的反馈。
type FeedbackHandler struct {
	feedbackService service.FeedbackService
}

// NewFeedbackHandler 创建一个新的 FeedbackHandler 实例。
func NewFeedbackHandler(feedbackService service.FeedbackService) *FeedbackHandler {
	return &FeedbackHandler{feedbackService: feedbackService}
}

// Submit 接收一条反馈并更新对应示例的评分。
func (h *FeedbackHandler) Submit(c *gin.Context) {
	var req service.FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "exampleKey 为必填字段"})
		return
	}

	tenantID := c.GetString("tenantID")
	if err := h.feedbackService.Submit(c.Request.Context(), tenantID, req); err != nil {
		if errors.Is(err, service.ErrExampleNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "示例不存在"})
			return
		}
		log.Errorf("[FeedbackHandler] 提交反馈失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "反馈提交失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": 200, "message": "success"})
}
