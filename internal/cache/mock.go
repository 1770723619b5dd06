// Package cache 缓存层内存实现（用于测试）
package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryCache 进程内 TokenCache 实现
type MemoryCache struct {
	mu     sync.Mutex
	tokens map[string]memoryEntry
}

type memoryEntry struct {
	accountID string
	expiresAt time.Time
}

var _ TokenCache = (*MemoryCache)(nil)

// NewMemoryCache 创建内存缓存实例
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{tokens: make(map[string]memoryEntry)}
}

func (c *MemoryCache) SetToken(_ context.Context, purpose, token, accountID string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[purpose+":"+token] = memoryEntry{accountID: accountID, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (c *MemoryCache) GetToken(_ context.Context, purpose, token string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.tokens[purpose+":"+token]
	if !ok || time.Now().After(entry.expiresAt) {
		return "", nil
	}
	return entry.accountID, nil
}

func (c *MemoryCache) DeleteToken(_ context.Context, purpose, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tokens, purpose+":"+token)
	return nil
}

// Close 关闭缓存
func (c *MemoryCache) Close() error { return nil }
