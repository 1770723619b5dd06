// Package cache 短时令牌缓存抽象接口
//
// 存放密码重置 / 邮箱验证令牌（带 TTL），当前由 Redis 实现。
package cache

import (
	"context"
	"time"
)

// 令牌用途常量
const (
	PurposeReset  = "reset"  // 密码重置
	PurposeVerify = "verify" // 邮箱验证
)

// TokenCache 一次性令牌缓存接口
//
// Get 在令牌不存在或已过期时返回 ("", nil)。
type TokenCache interface {
	SetToken(ctx context.Context, purpose, token, accountID string, ttl time.Duration) error
	GetToken(ctx context.Context, purpose, token string) (string, error)
	DeleteToken(ctx context.Context, purpose, token string) error
	Close() error
}
