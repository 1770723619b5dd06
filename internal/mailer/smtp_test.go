package mailer

import (
	"context"
	"testing"
)

func TestTLSConfigForStartTLS(t *testing.T) {
	cfg := SMTPConfig{Host: "smtp.example.com", Port: "587"}

	tlsCfg := tlsConfigFor(cfg)
	// STARTTLS 握手必须带 ServerName，否则 crypto/tls 直接拒绝
	if tlsCfg.ServerName != "smtp.example.com" {
		t.Errorf("ServerName = %q, want %q", tlsCfg.ServerName, "smtp.example.com")
	}
	if tlsCfg.InsecureSkipVerify {
		t.Error("InsecureSkipVerify = true, want false by default")
	}

	cfg.InsecureSkipVerify = true
	if !tlsConfigFor(cfg).InsecureSkipVerify {
		t.Error("InsecureSkipVerify not carried from config")
	}
}

func TestNewSMTPMailerDefaults(t *testing.T) {
	m, err := NewSMTPMailer(SMTPConfig{Host: "localhost", Port: "1025"})
	if err != nil {
		t.Fatalf("NewSMTPMailer: %v", err)
	}
	defer m.Close()

	if m.config.SendTimeout != 10 {
		t.Errorf("SendTimeout = %d, want default 10", m.config.SendTimeout)
	}
	if m.pool == nil {
		t.Fatal("connection pool not initialized")
	}
}

func TestSendCheckedAgainstContext(t *testing.T) {
	m, err := NewSMTPMailer(SMTPConfig{Host: "localhost", Port: "1025", BaseURL: "http://localhost"})
	if err != nil {
		t.Fatalf("NewSMTPMailer: %v", err)
	}
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := m.SendVerificationMail(ctx, "x@example.com", "tok"); err != context.Canceled {
		t.Errorf("SendVerificationMail on canceled ctx = %v, want context.Canceled", err)
	}
}
