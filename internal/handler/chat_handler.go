// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"encoding/json"
	"net/http"
	"sync"

	"datapilot-go/internal/model"
	"datapilot-go/internal/service"
	"datapilot-go/pkg/log"
	"datapilot-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// ChatHandler 负责处理 WebSocket 问答连接。
type ChatHandler struct {
	chatService service.ChatService
	jwtManager  *token.JWTManager
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService, jwtManager *token.JWTManager) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		jwtManager:  jwtManager,
	}
}

// chatRequest 是客户端通过 WebSocket 发送的问题。
type chatRequest struct {
	Question       string `json:"question"`
	ConversationID string `json:"conversationId"`
}

// wsEventSink 把流式事件序列化后写入 WebSocket 连接。
type wsEventSink struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// Send 满足 service.EventSink 接口。写失败意味着客户端已断开。
func (s *wsEventSink) Send(event model.StreamEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, b)
}

// Handle 处理一个传入的 WebSocket 连接。
// 连接路径携带访问令牌，每条消息触发一轮流式问答。
func (h *ChatHandler) Handle(c *gin.Context) {
	tokenString := c.Param("token")
	claims, err := h.jwtManager.VerifyToken(tokenString)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效的 token", "data": nil})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	log.Infof("WebSocket 连接已建立, tenant: %s", claims.TenantID)
	sink := &wsEventSink{conn: conn}

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Warnf("从 WebSocket 读取消息失败: %v", err)
			break
		}

		var req chatRequest
		if err := json.Unmarshal(message, &req); err != nil {
			// 兼容纯文本问题
			req = chatRequest{Question: string(message)}
		}

		if err := h.chatService.StreamAnswer(c.Request.Context(), claims.TenantID, req.ConversationID, req.Question, sink); err != nil {
			log.Errorf("处理流式响应失败: %v", err)
			break
		}
	}
}
