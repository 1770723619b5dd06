// Package eventbus 事件总线类型定义
package eventbus

import (
	"time"
)

// 认证事件类型
const (
	EventRegistered = "registered"
	EventSignedIn   = "signed_in"
	EventSignedOut  = "signed_out"
)

// AuthEvent 认证事件
type AuthEvent struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	AccountID string    `json:"account_id"`
	Email     string    `json:"email"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	// KeyAuthEvents 认证事件流的 Redis key
	KeyAuthEvents = "fnd:auth_events"

	// MaxStreamLength Stream 最大长度
	MaxStreamLength = 1000
)
