// Package redis Redis 令牌缓存实现
package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"foodnextdoor/internal/cache"
)

// keyPrefix 所有令牌键的公共前缀
const keyPrefix = "fnd:token:"

// Store Redis 令牌缓存存储
type Store struct {
	client *redis.Client
}

var _ cache.TokenCache = (*Store)(nil)

// NewStoreFromURL 从 URL 创建 Redis 缓存实例
func NewStoreFromURL(redisURL string) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Printf("[Redis/Cache] Connected to %s", opts.Addr)
	return &Store{client: client}, nil
}

// NewStoreFromClient 从现有 Redis 客户端创建缓存实例
func NewStoreFromClient(client *redis.Client) *Store {
	return &Store{client: client}
}

func tokenKey(purpose, token string) string {
	return keyPrefix + purpose + ":" + token
}

// SetToken 写入一次性令牌，TTL 到期后自动失效
func (s *Store) SetToken(ctx context.Context, purpose, token, accountID string, ttl time.Duration) error {
	return s.client.Set(ctx, tokenKey(purpose, token), accountID, ttl).Err()
}

// GetToken 查询令牌对应的账户 ID，不存在时返回空串
func (s *Store) GetToken(ctx context.Context, purpose, token string) (string, error) {
	accountID, err := s.client.Get(ctx, tokenKey(purpose, token)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return accountID, nil
}

// DeleteToken 删除令牌（消费后立即失效）
func (s *Store) DeleteToken(ctx context.Context, purpose, token string) error {
	return s.client.Del(ctx, tokenKey(purpose, token)).Err()
}

// Close 关闭 Redis 连接
func (s *Store) Close() error {
	return s.client.Close()
}

// Client 返回底层 Redis 客户端
func (s *Store) Client() *redis.Client {
	return s.client
}
