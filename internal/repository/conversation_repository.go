package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"datapilot-go/internal/model"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ConversationRepository 定义了对话历史记录的操作接口。
// 历史按 (tenantID, conversationID) 键入，作为追加日志使用。
type ConversationRepository interface {
	NewConversationID() string
	GetConversationHistory(ctx context.Context, tenantID, conversationID string) ([]model.ChatMessage, error)
	AppendTurn(ctx context.Context, tenantID, conversationID, question, answer string) error
	DeleteByTenant(ctx context.Context, tenantID string) error
}

type redisConversationRepository struct {
	redisClient *redis.Client
}

// NewConversationRepository 创建一个新的 ConversationRepository 实例。
func NewConversationRepository(redisClient *redis.Client) ConversationRepository {
	return &redisConversationRepository{redisClient: redisClient}
}

// NewConversationID 生成一个新的对话 ID。
func (r *redisConversationRepository) NewConversationID() string {
	return uuid.NewString()
}

func conversationKey(tenantID, conversationID string) string {
	return fmt.Sprintf("conversation:%s:%s", tenantID, conversationID)
}

// GetConversationHistory 从 Redis 获取对话历史记录。
func (r *redisConversationRepository) GetConversationHistory(ctx context.Context, tenantID, conversationID string) ([]model.ChatMessage, error) {
	jsonData, err := r.redisClient.Get(ctx, conversationKey(tenantID, conversationID)).Result()
	if err == redis.Nil {
		return []model.ChatMessage{}, nil // No history yet
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation history: %w", err)
	}
	var messages []model.ChatMessage
	if err := json.Unmarshal([]byte(jsonData), &messages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation history: %w", err)
	}
	return messages, nil
}

// AppendTurn 把一轮问答追加到对话历史，保留最近 20 条，7 天过期。
func (r *redisConversationRepository) AppendTurn(ctx context.Context, tenantID, conversationID, question, answer string) error {
	history, err := r.GetConversationHistory(ctx, tenantID, conversationID)
	if err != nil {
		return err
	}

	now := time.Now()
	history = append(history,
		model.ChatMessage{Role: "user", Content: question, Timestamp: now},
		model.ChatMessage{Role: "assistant", Content: answer, Timestamp: now},
	)
	if len(history) > 20 {
		history = history[len(history)-20:]
	}

	jsonData, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation history: %w", err)
	}
	if err := r.redisClient.Set(ctx, conversationKey(tenantID, conversationID), jsonData, 7*24*time.Hour).Err(); err != nil {
		return fmt.Errorf("failed to set conversation history: %w", err)
	}
	return nil
}

// DeleteByTenant 清除某个租户的全部对话历史。
func (r *redisConversationRepository) DeleteByTenant(ctx context.Context, tenantID string) error {
	pattern := fmt.Sprintf("conversation:%s:*", tenantID)
	keys, err := r.redisClient.Keys(ctx, pattern).Result()
	if err != nil {
		return fmt.Errorf("failed to scan conversation keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return r.redisClient.Del(ctx, keys...).Err()
}
