package embedding

import (
	"context"
	"strings"
	"sync"
	"time"

	"datapilot-go/pkg/log"
)

const (
	defaultTTL     = 5 * time.Minute
	defaultSweep   = 60 * time.Second
	defaultTimeout = 5 * time.Second
)

// cacheEntry 保存一个向量及其写入时间。纯粹的优化层，不作为数据来源。
type cacheEntry struct {
	vector     []float32
	insertedAt time.Time
}

// Cache 以 TTL 方式缓存文本到向量的映射，避免同一会话内重复调用 Embedding 后端。
// 后台清理任务由 Cache 自己持有，在 NewCache 时启动、Stop 时停止。
type Cache struct {
	client  Client
	dims    int
	ttl     time.Duration
	timeout time.Duration

	mu      sync.RWMutex
	entries map[string]cacheEntry

	done chan struct{}
	once sync.Once
	now  func() time.Time
}

// NewCache 创建一个新的 Cache 并启动周期性清理任务。
// ttl 与 sweep 为零时使用默认值（5 分钟 / 60 秒）。
func NewCache(client Client, dims int, ttl, sweep, timeout time.Duration) *Cache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if sweep <= 0 {
		sweep = defaultSweep
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Cache{
		client:  client,
		dims:    dims,
		ttl:     ttl,
		timeout: timeout,
		entries: make(map[string]cacheEntry),
		done:    make(chan struct{}),
		now:     time.Now,
	}
	go c.sweepLoop(sweep)
	return c
}

// GetOrCompute 返回文本对应的向量。
// TTL 内命中则直接返回缓存值；未命中则带超时调用 Embedding 后端。
// 后端失败或超时时返回期望维度的零向量，调用方据此退化为"无有效匹配"而非阻塞整个请求。
func (c *Cache) GetOrCompute(ctx context.Context, text string) []float32 {
	key := normalizeKey(text)

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && c.now().Sub(entry.insertedAt) < c.ttl {
		log.Debugf("[EmbeddingCache] 缓存命中, key_len: %d", len(key))
		return entry.vector
	}

	embedCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	vector, err := c.client.CreateEmbedding(embedCtx, text)
	if err != nil {
		// 退化路径：记录后返回零向量，检索阶段会将其视为无匹配
		log.Warnf("[EmbeddingCache] 向量化失败, 返回零向量退化处理: %v", err)
		return make([]float32, c.dims)
	}

	c.mu.Lock()
	c.entries[key] = cacheEntry{vector: vector, insertedAt: c.now()}
	c.mu.Unlock()
	return vector
}

// Stop 停止后台清理任务。可以安全地多次调用。
func (c *Cache) Stop() {
	c.once.Do(func() { close(c.done) })
}

// Len 返回当前缓存条目数。
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// IsZeroVector 判断向量是否为全零（向量化退化路径的产物）。
func IsZeroVector(v []float32) bool {
	for _, f := range v {
		if f != 0 {
			return false
		}
	}
	return true
}

func (c *Cache) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.evictExpired()
		case <-c.done:
			return
		}
	}
}

// evictExpired 移除超过 TTL 的条目。清理失败不能影响进程。
func (c *Cache) evictExpired() {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("[EmbeddingCache] 清理任务发生 panic: %v", r)
		}
	}()
	cutoff := c.now().Add(-c.ttl)
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for key, entry := range c.entries {
		if entry.insertedAt.Before(cutoff) {
			delete(c.entries, key)
			removed++
		}
	}
	if removed > 0 {
		log.Debugf("[EmbeddingCache] 清理了 %d 条过期缓存", removed)
	}
}

// normalizeKey 对文本做 trim + lowercase，作为缓存键。
func normalizeKey(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}
