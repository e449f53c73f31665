// Package llm 提供了与本地大语言模型（Ollama）交互的客户端。
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"syscall"
	"time"

	"datapilot-go/internal/config"
	"datapilot-go/pkg/log"
)

// 对外可区分的失败原因，供调用方映射为用户可见的错误消息。
var (
	// ErrUnavailable 表示模型服务拒绝连接。
	ErrUnavailable = errors.New("llm: model service is not available")
	// ErrTimeout 表示生成超时。
	ErrTimeout = errors.New("llm: completion timed out")
)

// Message 表示一条角色消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationParams 控制生成行为
type GenerationParams struct {
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// EventKind 是流式事件的类型。
type EventKind int

const (
	// EventToken 携带一个增量 token。
	EventToken EventKind = iota
	// EventCompleted 表示流正常结束，完整答案已经产出。
	EventCompleted
	// EventFailed 表示流因传输或后端错误终止。
	EventFailed
	// EventCancelled 表示调用方取消（连接断开）导致的终止。
	EventCancelled
)

// Event 是流式生成过程中的单个事件。
// 终止事件（Completed/Failed/Cancelled）之后通道关闭。
type Event struct {
	Kind  EventKind
	Token string
	Err   error
}

// Stream 是一次流式补全调用的可消费序列。
// 状态机：Connecting → Streaming → {Completed | Failed | Cancelled}。
type Stream struct {
	events chan Event
}

// Events 返回事件通道。调用方必须消费到通道关闭。
func (s *Stream) Events() <-chan Event {
	return s.events
}

// Client defines the interface for an LLM client.
type Client interface {
	// StreamChat 发起流式补全，事件通过返回的 Stream 逐个下发，不做额外缓冲。
	StreamChat(ctx context.Context, messages []Message, gen *GenerationParams) *Stream
	// Chat 发起非流式补全，返回完整答案。
	Chat(ctx context.Context, messages []Message, gen *GenerationParams) (string, error)
	// Ping 探测模型服务是否可用。
	Ping(ctx context.Context) error
}

type ollamaClient struct {
	cfg    config.LLMConfig
	client *http.Client
}

// NewClient creates a new LLM client based on the config.
func NewClient(cfg config.LLMConfig) Client {
	return &ollamaClient{
		cfg:    cfg,
		client: &http.Client{},
	}
}

type chatRequest struct {
	Model    string                 `json:"model"`
	Messages []Message              `json:"messages"`
	Stream   bool                   `json:"stream"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

// chatChunk 是 Ollama /api/chat 返回的 NDJSON 分块。
type chatChunk struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

// StreamChat 调用 Ollama 的聊天接口并以 NDJSON 流式读取分块。
// 首次调用模型可能有冷启动延迟，超时默认放宽到 300 秒（可配置）。
func (c *ollamaClient) StreamChat(ctx context.Context, messages []Message, gen *GenerationParams) *Stream {
	s := &Stream{events: make(chan Event, 16)}
	go c.run(ctx, messages, gen, s)
	return s
}

func (c *ollamaClient) run(ctx context.Context, messages []Message, gen *GenerationParams, s *Stream) {
	defer close(s.events)

	timeout := time.Duration(c.cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := c.doChat(ctx, messages, gen, true)
	if err != nil {
		s.events <- terminalEvent(ctx, err)
		return
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk chatChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			// 非法分块直接跳过，与后端保持宽容
			continue
		}
		if chunk.Message.Content != "" {
			select {
			case s.events <- Event{Kind: EventToken, Token: chunk.Message.Content}:
			case <-ctx.Done():
				s.events <- terminalEvent(ctx, ctx.Err())
				return
			}
		}
		if chunk.Done {
			s.events <- Event{Kind: EventCompleted}
			return
		}
	}
	if err := scanner.Err(); err != nil {
		s.events <- terminalEvent(ctx, err)
		return
	}
	// 流在 done 标记之前被切断，按失败处理，避免把半截答案当作完整结果
	s.events <- Event{Kind: EventFailed, Err: fmt.Errorf("stream ended before done marker")}
}

// Chat 以非流式方式调用聊天接口，返回完整答案。
func (c *ollamaClient) Chat(ctx context.Context, messages []Message, gen *GenerationParams) (string, error) {
	timeout := time.Duration(c.cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := c.doChat(ctx, messages, gen, false)
	if err != nil {
		return "", ClassifyError(ctx, err)
	}
	defer resp.Body.Close()

	var chunk chatChunk
	if err := json.NewDecoder(resp.Body).Decode(&chunk); err != nil {
		return "", fmt.Errorf("failed to decode chat response: %w", err)
	}
	return chunk.Message.Content, nil
}

// Ping 通过 /api/tags 探测模型服务，带 5 秒超时。
func (c *ollamaClient) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, "GET", c.cfg.BaseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return ClassifyError(ctx, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("model service returned status %s", resp.Status)
	}
	return nil
}

func (c *ollamaClient) doChat(ctx context.Context, messages []Message, gen *GenerationParams, stream bool) (*http.Response, error) {
	reqBody := chatRequest{
		Model:    c.cfg.Model,
		Messages: messages,
		Stream:   stream,
		Options:  c.buildOptions(gen),
	}

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+"/api/chat", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("chat api returned non-200 status: %s, body: %s", resp.Status, string(bodyBytes))
	}
	return resp, nil
}

// buildOptions 将生成参数转换为 Ollama 的 options（传参优先于全局配置）。
func (c *ollamaClient) buildOptions(gen *GenerationParams) map[string]interface{} {
	opts := make(map[string]interface{})
	if gen != nil {
		if gen.Temperature != nil {
			opts["temperature"] = *gen.Temperature
		}
		if gen.TopP != nil {
			opts["top_p"] = *gen.TopP
		}
		if gen.MaxTokens != nil {
			opts["num_predict"] = *gen.MaxTokens
		}
	} else {
		if c.cfg.Generation.Temperature != 0 {
			opts["temperature"] = c.cfg.Generation.Temperature
		}
		if c.cfg.Generation.TopP != 0 {
			opts["top_p"] = c.cfg.Generation.TopP
		}
		if c.cfg.Generation.MaxTokens != 0 {
			opts["num_predict"] = c.cfg.Generation.MaxTokens
		}
	}
	if len(opts) == 0 {
		return nil
	}
	return opts
}

// terminalEvent 将底层错误归类为取消或失败事件。
func terminalEvent(ctx context.Context, err error) Event {
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return Event{Kind: EventCancelled, Err: err}
	}
	return Event{Kind: EventFailed, Err: ClassifyError(ctx, err)}
}

// ClassifyError 将传输层错误归类为可区分的失败原因。
func ClassifyError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	default:
		return err
	}
}

// HumanMessage 将失败原因映射为用户可见的提示文案。
func HumanMessage(err error) string {
	switch {
	case errors.Is(err, ErrUnavailable):
		return "AI 模型服务不可用，请确认模型已启动"
	case errors.Is(err, ErrTimeout):
		return "AI 响应超时，请稍后重试"
	default:
		log.Debugf("[LLMClient] 未归类的错误: %v", err)
		return "AI 服务暂时不可用，请稍后重试"
	}
}

// NewStream 用给定通道构造一个 Stream，供测试与自定义适配器驱动事件。
func NewStream(events chan Event) *Stream {
	return &Stream{events: events}
}
