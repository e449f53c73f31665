package service

import (
	"context"
	"errors"
	"testing"

	"datapilot-go/internal/model"
	"datapilot-go/pkg/llm"
	"datapilot-go/pkg/tasks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePrompt 返回固定的 system 提示。
type fakePrompt struct{}

func (fakePrompt) BuildSystemPrompt(ctx context.Context, question, tenantID string, meta *model.SchemaMetadata) string {
	return "system prompt"
}

// fakeSchema 无 schema。
type fakeSchema struct{}

func (fakeSchema) Upsert(tenantID string, meta *model.SchemaMetadata) error { return nil }
func (fakeSchema) Metadata(tenantID string) (*model.SchemaMetadata, error)  { return nil, nil }

// fakeConvRepo 在内存中记录对话轮次。
type fakeConvRepo struct {
	appended int
}

func (f *fakeConvRepo) NewConversationID() string { return "conv-test" }

func (f *fakeConvRepo) GetConversationHistory(ctx context.Context, tenantID, conversationID string) ([]model.ChatMessage, error) {
	return nil, nil
}

func (f *fakeConvRepo) AppendTurn(ctx context.Context, tenantID, conversationID, question, answer string) error {
	f.appended++
	return nil
}

func (f *fakeConvRepo) DeleteByTenant(ctx context.Context, tenantID string) error { return nil }

// fakeProducer 收集投递的写回任务。
type fakeProducer struct {
	produced []tasks.ExampleIndexTask
	err      error
}

func (f *fakeProducer) Produce(task tasks.ExampleIndexTask) error {
	if f.err != nil {
		return f.err
	}
	f.produced = append(f.produced, task)
	return nil
}

// scriptedLLM 按脚本回放一串流事件。
type scriptedLLM struct {
	script []llm.Event
}

func (f *scriptedLLM) StreamChat(ctx context.Context, messages []llm.Message, gen *llm.GenerationParams) *llm.Stream {
	events := make(chan llm.Event)
	go func() {
		defer close(events)
		for _, ev := range f.script {
			select {
			case events <- ev:
			case <-ctx.Done():
				events <- llm.Event{Kind: llm.EventCancelled}
				return
			}
		}
	}()
	return llm.NewStream(events)
}

func (f *scriptedLLM) Chat(ctx context.Context, messages []llm.Message, gen *llm.GenerationParams) (string, error) {
	var answer string
	for _, ev := range f.script {
		if ev.Kind == llm.EventToken {
			answer += ev.Token
		}
		if ev.Kind == llm.EventFailed {
			return "", ev.Err
		}
	}
	return answer, nil
}

func (f *scriptedLLM) Ping(ctx context.Context) error { return nil }

// collectSink 收集下发的事件，可在第 N 次发送后返回错误模拟客户端断开。
type collectSink struct {
	events  []model.StreamEvent
	failAt  int
	sendErr error
}

func (s *collectSink) Send(event model.StreamEvent) error {
	if s.failAt > 0 && len(s.events)+1 >= s.failAt {
		return s.sendErr
	}
	s.events = append(s.events, event)
	return nil
}

func (s *collectSink) ofType(eventType string) []model.StreamEvent {
	var out []model.StreamEvent
	for _, ev := range s.events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

func newTestChat(script []llm.Event) (ChatService, *fakeConvRepo, *fakeProducer) {
	convRepo := &fakeConvRepo{}
	producer := &fakeProducer{}
	svc := NewChatService(fakePrompt{}, fakeSchema{}, &scriptedLLM{script: script}, convRepo, producer)
	return svc, convRepo, producer
}

func TestStreamAnswerHappyPath(t *testing.T) {
	svc, convRepo, producer := newTestChat([]llm.Event{
		{Kind: llm.EventToken, Token: "SEL"},
		{Kind: llm.EventToken, Token: "ECT 1"},
		{Kind: llm.EventCompleted},
	})
	sink := &collectSink{}

	err := svc.StreamAnswer(context.Background(), "tenant-a", "", "统计上个月每个产品的销量", sink)
	require.NoError(t, err)

	// 事件序列: conversation, token, token, complete
	require.Len(t, sink.events, 4)
	assert.Equal(t, model.EventConversation, sink.events[0].Type)
	assert.Equal(t, "conv-test", sink.events[0].ConversationID)

	tokens := sink.ofType(model.EventToken)
	require.Len(t, tokens, 2)
	assert.Equal(t, "SEL", tokens[0].Token)
	assert.Equal(t, "ECT 1", tokens[1].Token)

	completes := sink.ofType(model.EventComplete)
	require.Len(t, completes, 1)
	assert.NotEmpty(t, completes[0].ExampleKey)

	// 对话轮次同步保存，写回任务恰好一条且携带完整答案
	assert.Equal(t, 1, convRepo.appended)
	require.Len(t, producer.produced, 1)
	task := producer.produced[0]
	assert.Equal(t, "SELECT 1", task.Answer)
	assert.Equal(t, "tenant-a", task.TenantID)
	assert.Equal(t, completes[0].ExampleKey, task.ExampleKey)
	assert.True(t, task.Successful)
}

func TestStreamAnswerFailureEmitsSingleErrorEvent(t *testing.T) {
	svc, convRepo, producer := newTestChat([]llm.Event{
		{Kind: llm.EventFailed, Err: llm.ErrUnavailable},
	})
	sink := &collectSink{}

	err := svc.StreamAnswer(context.Background(), "tenant-a", "conv-1", "统计上个月每个产品的销量", sink)
	require.NoError(t, err)

	errs := sink.ofType(model.EventError)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "不可用")
	assert.Empty(t, sink.ofType(model.EventComplete))

	// 失败的流不留任何持久化痕迹
	assert.Zero(t, convRepo.appended)
	assert.Empty(t, producer.produced)
}

func TestStreamAnswerMidStreamFailureDropsPartialAnswer(t *testing.T) {
	svc, convRepo, producer := newTestChat([]llm.Event{
		{Kind: llm.EventToken, Token: "SELECT"},
		{Kind: llm.EventFailed, Err: errors.New("connection reset")},
	})
	sink := &collectSink{}

	err := svc.StreamAnswer(context.Background(), "tenant-a", "conv-1", "统计上个月每个产品的销量", sink)
	require.NoError(t, err)

	require.Len(t, sink.ofType(model.EventError), 1)
	assert.Zero(t, convRepo.appended, "半截答案不应保存")
	assert.Empty(t, producer.produced)
}

func TestStreamAnswerClientDisconnectCancelsStream(t *testing.T) {
	svc, convRepo, producer := newTestChat([]llm.Event{
		{Kind: llm.EventToken, Token: "SEL"},
		{Kind: llm.EventToken, Token: "ECT 1"},
		{Kind: llm.EventCompleted},
	})
	// 第二次发送（第一个 token）即失败
	sink := &collectSink{failAt: 2, sendErr: errors.New("websocket closed")}

	err := svc.StreamAnswer(context.Background(), "tenant-a", "conv-1", "统计上个月每个产品的销量", sink)
	require.NoError(t, err)

	assert.Zero(t, convRepo.appended)
	assert.Empty(t, producer.produced)
}

func TestStreamAnswerRejectsEmptyQuestion(t *testing.T) {
	svc, _, _ := newTestChat(nil)
	sink := &collectSink{}

	err := svc.StreamAnswer(context.Background(), "tenant-a", "", "   ", sink)
	require.Error(t, err)
	assert.Empty(t, sink.events)
}

func TestStreamAnswerProducerFailureStillCompletes(t *testing.T) {
	convRepo := &fakeConvRepo{}
	producer := &fakeProducer{err: errors.New("kafka down")}
	svc := NewChatService(fakePrompt{}, fakeSchema{}, &scriptedLLM{script: []llm.Event{
		{Kind: llm.EventToken, Token: "SELECT 1"},
		{Kind: llm.EventCompleted},
	}}, convRepo, producer)
	sink := &collectSink{}

	err := svc.StreamAnswer(context.Background(), "tenant-a", "conv-1", "统计上个月每个产品的销量", sink)
	require.NoError(t, err)

	// 写回失败不影响完成事件，只是示例键为空
	completes := sink.ofType(model.EventComplete)
	require.Len(t, completes, 1)
	assert.Empty(t, completes[0].ExampleKey)
	assert.Equal(t, 1, convRepo.appended)
}

func TestAnswerNonStreaming(t *testing.T) {
	svc, convRepo, producer := newTestChat([]llm.Event{
		{Kind: llm.EventToken, Token: "SELECT 1"},
	})

	got, err := svc.Answer(context.Background(), "tenant-a", "", "统计上个月每个产品的销量")
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", got.Answer)
	assert.Equal(t, "conv-test", got.ConversationID)
	assert.NotEmpty(t, got.ExampleKey)
	assert.Equal(t, 1, convRepo.appended)
	require.Len(t, producer.produced, 1)
}
