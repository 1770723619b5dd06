// Package mailer 邮件发送抽象
//
// 用于发送邮箱验证和密码重置邮件，当前由 SMTP 实现。
package mailer

import (
	"context"
)

// Mailer 邮件发送接口
type Mailer interface {
	// SendVerificationMail 发送邮箱验证邮件
	SendVerificationMail(ctx context.Context, to, token string) error
	// SendPasswordResetMail 发送密码重置邮件
	SendPasswordResetMail(ctx context.Context, to, token string) error
}

// NoOpMailer 空操作的 Mailer 实现（未配置 SMTP 或测试时使用）
type NoOpMailer struct{}

var _ Mailer = (*NoOpMailer)(nil)

// NewNoOpMailer 创建 NoOpMailer 实例
func NewNoOpMailer() *NoOpMailer {
	return &NoOpMailer{}
}

func (m *NoOpMailer) SendVerificationMail(ctx context.Context, to, token string) error {
	return nil
}

func (m *NoOpMailer) SendPasswordResetMail(ctx context.Context, to, token string) error {
	return nil
}
