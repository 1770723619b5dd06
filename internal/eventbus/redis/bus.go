// Package redis AuthEvents 事件总线操作
package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"foodnextdoor/internal/eventbus"
)

// Store Redis 事件总线存储
type Store struct {
	client *redis.Client
}

var _ eventbus.EventBus = (*Store)(nil)

// NewStoreFromURL 从 URL 创建 Redis 事件总线实例
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

	log.Printf("[Redis/EventBus] Connected to %s", opts.Addr)
	return &Store{client: client}, nil
}

// NewStoreFromClient 从现有 Redis 客户端创建事件总线实例
func NewStoreFromClient(client *redis.Client) *Store {
	return &Store{client: client}
}

// PublishAuthEvent 发布认证事件
func (s *Store) PublishAuthEvent(ctx context.Context, event *eventbus.AuthEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	args := &redis.XAddArgs{
		Stream: eventbus.KeyAuthEvents,
		MaxLen: eventbus.MaxStreamLength,
		Approx: true,
		Values: map[string]interface{}{
			"type":       event.Type,
			"account_id": event.AccountID,
			"email":      event.Email,
			"timestamp":  event.Timestamp.Format(time.RFC3339Nano),
		},
	}

	id, err := s.client.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("failed to publish auth event: %w", err)
	}
	event.ID = id

	log.Printf("[Redis/EventBus] Published auth event: seq=%s type=%s account=%s", id, event.Type, event.AccountID)
	return nil
}

// GetAuthEvents 获取认证事件列表
func (s *Store) GetAuthEvents(ctx context.Context, fromID string, count int64) ([]*eventbus.AuthEvent, error) {
	if fromID == "" {
		fromID = "0"
	}

	msgs, err := s.client.XRange(ctx, eventbus.KeyAuthEvents, fromID, "+").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get auth events: %w", err)
	}

	var events []*eventbus.AuthEvent
	for _, msg := range msgs {
		events = append(events, decodeAuthEvent(msg))
		if count > 0 && int64(len(events)) >= count {
			break
		}
	}
	return events, nil
}

// SubscribeAuthEvents 订阅认证事件
func (s *Store) SubscribeAuthEvents(ctx context.Context) (<-chan *eventbus.AuthEvent, error) {
	ch := make(chan *eventbus.AuthEvent, 100)

	go func() {
		defer close(ch)
		lastID := "$"

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			streams, err := s.client.XRead(ctx, &redis.XReadArgs{
				Streams: []string{eventbus.KeyAuthEvents, lastID},
				Count:   10,
				Block:   5 * time.Second,
			}).Result()

			if err != nil {
				if err == redis.Nil {
					continue
				}
				log.Printf("[Redis/EventBus] Auth event subscription error: %v", err)
				return
			}

			for _, stream := range streams {
				for _, msg := range stream.Messages {
					select {
					case ch <- decodeAuthEvent(msg):
						lastID = msg.ID
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return ch, nil
}

func decodeAuthEvent(msg redis.XMessage) *eventbus.AuthEvent {
	event := &eventbus.AuthEvent{ID: msg.ID}
	if v, ok := msg.Values["type"].(string); ok {
		event.Type = v
	}
	if v, ok := msg.Values["account_id"].(string); ok {
		event.AccountID = v
	}
	if v, ok := msg.Values["email"].(string); ok {
		event.Email = v
	}
	if ts, ok := msg.Values["timestamp"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			event.Timestamp = t
		}
	}
	return event
}

// Close 关闭 Redis 连接
func (s *Store) Close() error {
	return s.client.Close()
}
