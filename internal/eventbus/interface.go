// Package eventbus 事件总线抽象接口
//
// 提供认证事件的发布/订阅能力，当前由 Redis Streams 实现。
package eventbus

import (
	"context"
)

// AuthEventBus 认证事件总线接口
type AuthEventBus interface {
	PublishAuthEvent(ctx context.Context, event *AuthEvent) error
	GetAuthEvents(ctx context.Context, fromID string, count int64) ([]*AuthEvent, error)
	SubscribeAuthEvents(ctx context.Context) (<-chan *AuthEvent, error)
}

// EventBus 事件总线组合接口
type EventBus interface {
	AuthEventBus
	Close() error
}
