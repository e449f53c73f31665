package embedding

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"datapilot-go/pkg/log"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	log.Init("error", "console", "")
	m.Run()
}

// countingClient 记录调用次数的假 Embedding 客户端。
type countingClient struct {
	mu     sync.Mutex
	calls  int
	vector []float32
	err    error
}

func (c *countingClient) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.vector, nil
}

func (c *countingClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestGetOrComputeIdempotentWithinTTL(t *testing.T) {
	client := &countingClient{vector: []float32{0.1, 0.2, 0.3}}
	cache := NewCache(client, 3, time.Minute, time.Minute, time.Second)
	defer cache.Stop()

	v1 := cache.GetOrCompute(context.Background(), "list all users")
	v2 := cache.GetOrCompute(context.Background(), "list all users")

	require.Equal(t, []float32{0.1, 0.2, 0.3}, v1)
	assert.Equal(t, v1, v2)
	assert.Equal(t, 1, client.callCount(), "TTL 内重复查询只允许一次后端调用")
}

func TestGetOrComputeNormalizesKey(t *testing.T) {
	client := &countingClient{vector: []float32{1, 2}}
	cache := NewCache(client, 2, time.Minute, time.Minute, time.Second)
	defer cache.Stop()

	cache.GetOrCompute(context.Background(), "  List All Users ")
	cache.GetOrCompute(context.Background(), "list all users")

	assert.Equal(t, 1, client.callCount())
}

func TestGetOrComputeFallsBackToZeroVector(t *testing.T) {
	client := &countingClient{err: errors.New("backend down")}
	cache := NewCache(client, 4, time.Minute, time.Minute, time.Second)
	defer cache.Stop()

	v := cache.GetOrCompute(context.Background(), "anything")

	require.Len(t, v, 4)
	assert.True(t, IsZeroVector(v))
	// 失败结果不写入缓存，后端恢复后可以重新计算
	assert.Equal(t, 0, cache.Len())
}

func TestEvictExpiredRemovesOldEntries(t *testing.T) {
	client := &countingClient{vector: []float32{1}}
	cache := NewCache(client, 1, 5*time.Minute, time.Hour, time.Second)
	defer cache.Stop()

	base := time.Now()
	cache.now = func() time.Time { return base }
	cache.GetOrCompute(context.Background(), "old question")
	require.Equal(t, 1, cache.Len())

	// 时间推进到 TTL 之后，清理任务应当移除该条目
	cache.now = func() time.Time { return base.Add(5*time.Minute + time.Second) }
	cache.evictExpired()
	assert.Equal(t, 0, cache.Len())

	// 再次查询应当重新调用后端
	cache.GetOrCompute(context.Background(), "old question")
	assert.Equal(t, 2, client.callCount())
}

func TestIsZeroVector(t *testing.T) {
	assert.True(t, IsZeroVector(make([]float32, 8)))
	assert.False(t, IsZeroVector([]float32{0, 0, 0.01}))
	assert.True(t, IsZeroVector(nil))
}
