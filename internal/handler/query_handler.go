package handler

import (
	"errors"
	"net/http"

	"datapilot-go/internal/service"
	"datapilot-go/pkg/llm"
	"datapilot-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// QueryHandler 处理非流式的单次问答请求。
type QueryHandler struct {
	chatService service.ChatService
}

// NewQueryHandler 创建一个新的 QueryHandler 实例。
func NewQueryHandler(chatService service.ChatService) *QueryHandler {
	return &QueryHandler{chatService: chatService}
}

type queryRequest struct {
	Question       string `json:"question" binding:"required"`
	ConversationID string `json:"conversationId"`
}

// Query 执行一次完整的问答并返回单个 JSON 答案。
func (h *QueryHandler) Query(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "question 为必填字段"})
		return
	}

	tenantID := c.GetString("tenantID")
	answer, err := h.chatService.Answer(c.Request.Context(), tenantID, req.ConversationID, req.Question)
	if err != nil {
		log.Errorf("[QueryHandler] 问答失败, tenant: %s: %v", tenantID, err)
		status := http.StatusInternalServerError
		if errors.Is(err, llm.ErrUnavailable) {
			status = http.StatusServiceUnavailable
		} else if errors.Is(err, llm.ErrTimeout) {
			status = http.StatusGatewayTimeout
		}
		c.JSON(status, gin.H{"error": llm.HumanMessage(err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": 200, "data": answer, "message": "success"})
}
