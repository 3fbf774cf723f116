package mail

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestLogSenderWritesMessage(t *testing.T) {
	var buf bytes.Buffer
	s := LogSender{Logger: slog.New(slog.NewTextHandler(&buf, nil))}

	err := s.Send(context.Background(), Message{To: "a@x.com", Subject: "hello", Text: "body"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "to=a@x.com") || !strings.Contains(out, "subject=hello") {
		t.Fatalf("unexpected log output: %s", out)
	}
}

func TestLogSenderKeepsBodyOutOfInfoLogs(t *testing.T) {
	msg := Message{To: "a@x.com", Subject: "Reset your password", Text: "http://localhost/reset/0123456789abcdef0123456789abcdef"}

	var info bytes.Buffer
	s := LogSender{Logger: slog.New(slog.NewTextHandler(&info, &slog.HandlerOptions{Level: slog.LevelInfo}))}
	if err := s.Send(context.Background(), msg); err != nil {
		t.Fatalf("send: %v", err)
	}
	if strings.Contains(info.String(), "0123456789abcdef") {
		t.Fatalf("reset token leaked into info log: %s", info.String())
	}

	var debug bytes.Buffer
	s = LogSender{Logger: slog.New(slog.NewTextHandler(&debug, &slog.HandlerOptions{Level: slog.LevelDebug}))}
	if err := s.Send(context.Background(), msg); err != nil {
		t.Fatalf("send: %v", err)
	}
	if !strings.Contains(debug.String(), "0123456789abcdef") {
		t.Fatalf("expected body at debug level: %s", debug.String())
	}
}

func TestLogSenderRequiresRecipient(t *testing.T) {
	if err := (LogSender{}).Send(context.Background(), Message{Subject: "x"}); err != ErrNoRecipient {
		t.Fatalf("expected ErrNoRecipient, got %v", err)
	}
}

func TestSMTPSenderBuildFallsBackToDefaultFrom(t *testing.T) {
	s, err := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", Port: 2525, From: "noreply@example.com"})
	if err != nil {
		t.Fatalf("new sender: %v", err)
	}
	m, err := s.build(Message{To: "a@x.com", Subject: "s", Text: "t"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	from := m.GetFromString()
	if len(from) != 1 || !strings.Contains(from[0], "noreply@example.com") {
		t.Fatalf("unexpected from: %v", from)
	}
	if _, err := s.build(Message{Subject: "s"}); err != ErrNoRecipient {
		t.Fatalf("expected ErrNoRecipient, got %v", err)
	}
}

func TestNewSMTPSenderRequiresHost(t *testing.T) {
	if _, err := NewSMTPSender(SMTPConfig{}); err == nil {
		t.Fatalf("expected error for empty host")
	}
}
