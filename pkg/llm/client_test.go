package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"datapilot-go/internal/config"
	"datapilot-go/pkg/log"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	log.Init("error", "console", "")
	m.Run()
}

func newTestClient(baseURL string) Client {
	return NewClient(config.LLMConfig{
		BaseURL:        baseURL,
		Model:          "test-model",
		TimeoutSeconds: 5,
	})
}

// collect 消费整个事件流并返回全部事件。
func collect(t *testing.T, s *Stream) []Event {
	t.Helper()
	var events []Event
	timeout := time.After(10 * time.Second)
	for {
		select {
		case ev, ok := <-s.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatal("事件流超时未关闭")
		}
	}
}

func TestStreamChatRelaysTokensAndCompletes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		w.Header().Set("Content-Type", "application/x-ndjson")
		_, _ = w.Write([]byte(`{"message":{"content":"SEL"},"done":false}` + "\n"))
		_, _ = w.Write([]byte(`{"message":{"content":"ECT 1"},"done":false}` + "\n"))
		_, _ = w.Write([]byte(`{"message":{"content":""},"done":true}` + "\n"))
	}))
	defer srv.Close()

	s := newTestClient(srv.URL).StreamChat(context.Background(), []Message{{Role: "user", Content: "q"}}, nil)
	events := collect(t, s)

	require.Len(t, events, 3)
	assert.Equal(t, Event{Kind: EventToken, Token: "SEL"}, events[0])
	assert.Equal(t, Event{Kind: EventToken, Token: "ECT 1"}, events[1])
	assert.Equal(t, EventCompleted, events[2].Kind)
}

func TestStreamChatConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close() // 端口已释放，连接必然被拒绝

	s := newTestClient(addr).StreamChat(context.Background(), []Message{{Role: "user", Content: "q"}}, nil)
	events := collect(t, s)

	require.Len(t, events, 1, "连接被拒绝时只允许一个错误事件")
	assert.Equal(t, EventFailed, events[0].Kind)
	assert.ErrorIs(t, events[0].Err, ErrUnavailable)
}

func TestStreamChatCancelled(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":{"content":"tok"},"done":false}` + "\n"))
		w.(http.Flusher).Flush()
		close(started)
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	s := newTestClient(srv.URL).StreamChat(ctx, []Message{{Role: "user", Content: "q"}}, nil)

	<-started
	cancel()
	events := collect(t, s)

	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, EventCancelled, last.Kind)
}

func TestStreamChatTruncatedStreamFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 没有 done 标记就结束
		_, _ = w.Write([]byte(`{"message":{"content":"partial"},"done":false}` + "\n"))
	}))
	defer srv.Close()

	s := newTestClient(srv.URL).StreamChat(context.Background(), []Message{{Role: "user", Content: "q"}}, nil)
	events := collect(t, s)

	last := events[len(events)-1]
	assert.Equal(t, EventFailed, last.Kind)
}

func TestChatNonStreaming(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":{"content":"SELECT 1"},"done":true}`))
	}))
	defer srv.Close()

	answer, err := newTestClient(srv.URL).Chat(context.Background(), []Message{{Role: "user", Content: "q"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", answer)
}

func TestHumanMessageClassification(t *testing.T) {
	assert.Contains(t, HumanMessage(ErrUnavailable), "不可用")
	assert.Contains(t, HumanMessage(ErrTimeout), "超时")
	assert.Contains(t, HumanMessage(context.Canceled), "稍后重试")
}
