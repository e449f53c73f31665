package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"datapilot-go/internal/model"
	"datapilot-go/internal/repository"
	"datapilot-go/pkg/llm"
	"datapilot-go/pkg/log"
	"datapilot-go/pkg/tasks"

	"github.com/google/uuid"
)

// EventSink 是流式事件的下发出口，由传输层（WebSocket）实现。
type EventSink interface {
	Send(event model.StreamEvent) error
}

// WritebackProducer 把完成的问答投递到写回队列。
// 写回失败只记录日志，绝不传播到调用方的完成路径。
type WritebackProducer interface {
	Produce(task tasks.ExampleIndexTask) error
}

// ChatService 定义了问答操作的接口。
type ChatService interface {
	// StreamAnswer 执行完整的 RAG 流程并把 LLM 响应逐 token 下发给 sink。
	StreamAnswer(ctx context.Context, tenantID, conversationID, question string, sink EventSink) error
	// Answer 是非流式版本，返回完整答案。
	Answer(ctx context.Context, tenantID, conversationID, question string) (*model.QueryAnswer, error)
}

type chatService struct {
	promptService    PromptService
	schemaService    SchemaService
	llmClient        llm.Client
	conversationRepo repository.ConversationRepository
	writeback        WritebackProducer
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(
	promptService PromptService,
	schemaService SchemaService,
	llmClient llm.Client,
	conversationRepo repository.ConversationRepository,
	writeback WritebackProducer,
) ChatService {
	return &chatService{
		promptService:    promptService,
		schemaService:    schemaService,
		llmClient:        llmClient,
		conversationRepo: conversationRepo,
		writeback:        writeback,
	}
}

// StreamAnswer 协调 RAG 流程并流式传输 LLM 响应。
// 每个 token 收到即下发，不做额外缓冲；失败或取消的流不会留下半截记录。
func (s *chatService) StreamAnswer(ctx context.Context, tenantID, conversationID, question string, sink EventSink) error {
	question = strings.TrimSpace(question)
	if question == "" {
		return errors.New("question 不能为空")
	}
	if conversationID == "" {
		conversationID = s.conversationRepo.NewConversationID()
	}
	if err := sink.Send(model.StreamEvent{
		Type:           model.EventConversation,
		ConversationID: conversationID,
		Timestamp:      time.Now().UnixMilli(),
	}); err != nil {
		return err
	}

	meta, messages := s.composeMessages(ctx, tenantID, conversationID, question)

	// sink 写失败说明客户端已离开：取消上游流，放弃本轮持久化
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream := s.llmClient.StreamChat(streamCtx, messages, nil)
	answerBuilder := &strings.Builder{}

	for ev := range stream.Events() {
		switch ev.Kind {
		case llm.EventToken:
			answerBuilder.WriteString(ev.Token)
			if err := sink.Send(model.StreamEvent{
				Type:      model.EventToken,
				Token:     ev.Token,
				Timestamp: time.Now().UnixMilli(),
			}); err != nil {
				log.Warnf("[ChatService] 客户端断开, 中止流式下发: %v", err)
				cancel()
				drain(stream)
				return nil
			}
		case llm.EventCompleted:
			exampleKey := s.persistTurn(tenantID, conversationID, question, answerBuilder.String(), meta)
			return sink.Send(model.StreamEvent{
				Type:           model.EventComplete,
				ConversationID: conversationID,
				ExampleKey:     exampleKey,
				Timestamp:      time.Now().UnixMilli(),
			})
		case llm.EventFailed:
			log.Errorf("[ChatService] 流式补全失败, tenant: %s: %v", tenantID, ev.Err)
			// 半截答案不持久化，只发一个可区分原因的错误事件
			return sink.Send(model.StreamEvent{
				Type:      model.EventError,
				Message:   llm.HumanMessage(ev.Err),
				Timestamp: time.Now().UnixMilli(),
			})
		case llm.EventCancelled:
			log.Infof("[ChatService] 流被取消, tenant: %s, conversation: %s", tenantID, conversationID)
			return nil
		}
	}
	return nil
}

// Answer 以非流式方式完成一次问答。
func (s *chatService) Answer(ctx context.Context, tenantID, conversationID, question string) (*model.QueryAnswer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, errors.New("question 不能为空")
	}
	if conversationID == "" {
		conversationID = s.conversationRepo.NewConversationID()
	}

	meta, messages := s.composeMessages(ctx, tenantID, conversationID, question)

	answer, err := s.llmClient.Chat(ctx, messages, nil)
	if err != nil {
		return nil, err
	}

	exampleKey := s.persistTurn(tenantID, conversationID, question, answer, meta)
	return &model.QueryAnswer{
		ConversationID: conversationID,
		Answer:         answer,
		ExampleKey:     exampleKey,
	}, nil
}

// composeMessages 组装 system 提示与历史消息。schema 和历史读取失败都降级处理。
func (s *chatService) composeMessages(ctx context.Context, tenantID, conversationID, question string) (*model.SchemaMetadata, []llm.Message) {
	meta, err := s.schemaService.Metadata(tenantID)
	if err != nil {
		log.Errorf("[ChatService] 读取 schema 元数据失败, 继续无 schema 流程: %v", err)
		meta = nil
	}

	systemPrompt := s.promptService.BuildSystemPrompt(ctx, question, tenantID, meta)

	history, err := s.conversationRepo.GetConversationHistory(ctx, tenantID, conversationID)
	if err != nil {
		log.Errorf("[ChatService] 加载对话历史失败: %v", err)
		history = []model.ChatMessage{}
	}

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: "system", Content: systemPrompt})
	for _, m := range history {
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, llm.Message{Role: "user", Content: question})
	return meta, messages
}

// persistTurn 同步保存对话轮次，然后尽力而为地投递示例写回任务。
// 返回写回任务的示例键（写回失败时为空）。
func (s *chatService) persistTurn(tenantID, conversationID, question, answer string, meta *model.SchemaMetadata) string {
	if answer == "" {
		return ""
	}

	// 使用后台上下文：即使原始请求已取消，成功生成的答案也要保存
	if err := s.conversationRepo.AppendTurn(context.Background(), tenantID, conversationID, question, answer); err != nil {
		log.Errorf("[ChatService] 保存对话历史失败: %v", err)
	}

	var snapshot string
	if meta != nil {
		if b, err := json.Marshal(meta); err == nil {
			snapshot = string(b)
		}
	}

	exampleKey := uuid.NewString()
	task := tasks.ExampleIndexTask{
		ExampleKey:     exampleKey,
		TenantID:       tenantID,
		ConversationID: conversationID,
		Question:       question,
		Answer:         answer,
		SchemaSnapshot: snapshot,
		Successful:     true,
	}
	if err := s.writeback.Produce(task); err != nil {
		// 写回是增强路径，失败只记录
		log.Errorf("[ChatService] 投递示例写回任务失败: %v", err)
		return ""
	}
	return exampleKey
}

// drain 消费剩余事件直到通道关闭，避免生产者 goroutine 泄漏。
func drain(stream *llm.Stream) {
	for range stream.Events() {
	}
}
