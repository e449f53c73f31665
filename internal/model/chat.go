package model

import "time"

// ChatMessage 代表存储在 Redis 中的单条对话消息。
type ChatMessage struct {
	Role      string    `json:"role"` // "user" 或 "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// 流式响应的事件类型，与前端约定。
const (
	EventConversation = "conversation"
	EventToken        = "token"
	EventComplete     = "complete"
	EventError        = "error"
)

// StreamEvent 是下发给调用方的流式事件。
type StreamEvent struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId,omitempty"`
	Token          string `json:"token,omitempty"`
	ExampleKey     string `json:"exampleKey,omitempty"`
	Message        string `json:"message,omitempty"`
	Timestamp      int64  `json:"timestamp"`
}

// QueryAnswer 是非流式查询接口的响应体。
type QueryAnswer struct {
	ConversationID string `json:"conversationId"`
	Answer         string `json:"answer"`
	ExampleKey     string `json:"exampleKey,omitempty"`
}
