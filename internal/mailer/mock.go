// Package mailer 邮件发送 mock 实现（用于测试）
package mailer

import (
	"context"
	"sync"
)

// SentMail 记录的一封邮件
type SentMail struct {
	To      string
	Token   string
	Purpose string
}

// RecordingMailer 记录所有发送请求的 Mailer 实现
type RecordingMailer struct {
	mu   sync.Mutex
	sent []SentMail
}

var _ Mailer = (*RecordingMailer)(nil)

// NewRecordingMailer 创建 RecordingMailer 实例
func NewRecordingMailer() *RecordingMailer {
	return &RecordingMailer{}
}

func (m *RecordingMailer) SendVerificationMail(_ context.Context, to, token string) error {
	m.record(SentMail{To: to, Token: token, Purpose: "verify"})
	return nil
}

func (m *RecordingMailer) SendPasswordResetMail(_ context.Context, to, token string) error {
	m.record(SentMail{To: to, Token: token, Purpose: "reset"})
	return nil
}

func (m *RecordingMailer) record(mail SentMail) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, mail)
}

// Sent 返回已记录邮件的副本
func (m *RecordingMailer) Sent() []SentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentMail, len(m.sent))
	copy(out, m.sent)
	return out
}
