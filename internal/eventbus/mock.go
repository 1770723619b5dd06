// Package eventbus 事件总线内存实现（用于测试）
package eventbus

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryBus 进程内 EventBus 实现
//
// 事件保存在内存切片中，订阅者通过带缓冲 channel 接收后续事件。
type MemoryBus struct {
	mu     sync.Mutex
	events []*AuthEvent
	subs   []chan *AuthEvent
	closed bool
}

var _ EventBus = (*MemoryBus)(nil)

// NewMemoryBus 创建内存事件总线实例
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{}
}

// PublishAuthEvent 发布认证事件
func (b *MemoryBus) PublishAuthEvent(_ context.Context, event *AuthEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("event bus closed")
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	event.ID = fmt.Sprintf("%d-%d", event.Timestamp.UnixMilli(), len(b.events))
	b.events = append(b.events, event)

	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
			// 订阅者缓冲满时丢弃，避免阻塞发布方
		}
	}
	return nil
}

// GetAuthEvents 获取已发布的认证事件
func (b *MemoryBus) GetAuthEvents(_ context.Context, fromID string, count int64) ([]*AuthEvent, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var events []*AuthEvent
	skipping := fromID != ""
	for _, e := range b.events {
		if skipping {
			if e.ID == fromID {
				skipping = false
			}
			continue
		}
		events = append(events, e)
		if count > 0 && int64(len(events)) >= count {
			break
		}
	}
	return events, nil
}

// SubscribeAuthEvents 订阅新的认证事件
func (b *MemoryBus) SubscribeAuthEvents(ctx context.Context) (<-chan *AuthEvent, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, fmt.Errorf("event bus closed")
	}
	ch := make(chan *AuthEvent, 100)
	b.subs = append(b.subs, ch)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, sub := range b.subs {
			if sub == ch {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				close(ch)
				break
			}
		}
	}()

	return ch, nil
}

// Close 关闭事件总线
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
	return nil
}
