package email

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"manifest-watch/internal/models"
)

func TestNewSenderFromConfig(t *testing.T) {
	if s := NewSenderFromConfig(nil); s != nil {
		t.Fatalf("expected nil sender for nil config")
	}
	if s := NewSenderFromConfig(&models.Config{EmailHost: "  "}); s != nil {
		t.Fatalf("expected nil sender for blank host")
	}
	if s := NewSenderFromConfig(&models.Config{EmailHost: "smtp.example.com", EmailTo: " , ; "}); s != nil {
		t.Fatalf("expected nil sender without recipients")
	}

	s := NewSenderFromConfig(&models.Config{
		EmailHost:   "smtp.example.com",
		EmailPort:   465,
		EmailUser:   "robot",
		EmailPass:   "pass",
		EmailFrom:   "robot@example.com",
		EmailTo:     "a@example.com, b@example.com；c@example.com",
		EmailUseTLS: true,
	})
	if s == nil {
		t.Fatalf("expected sender")
	}
	if len(s.to) != 3 {
		t.Fatalf("expected 3 recipients, got %v", s.to)
	}
	if s.to[2] != "c@example.com" {
		t.Fatalf("recipient order broken: %v", s.to)
	}
}

func TestSendMessageGuards(t *testing.T) {
	var nilSender *Sender
	if err := nilSender.SendMessage(nil, "s", "b"); err == nil {
		t.Fatalf("expected error for nil sender")
	}
	cases := []struct {
		name   string
		sender *Sender
	}{
		{name: "empty host", sender: NewSender("", 25, "", "", "from@example.com", []string{"to@example.com"}, false)},
		{name: "bad port", sender: NewSender("smtp.example.com", 0, "", "", "from@example.com", []string{"to@example.com"}, false)},
		{name: "empty from", sender: NewSender("smtp.example.com", 25, "", "", "", []string{"to@example.com"}, false)},
		{name: "no recipients", sender: NewSender("smtp.example.com", 25, "", "", "from@example.com", nil, false)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.sender.SendMessage(nil, "s", "b"); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestBuildMessage(t *testing.T) {
	msg := buildMessage("from@example.com", []string{"a@example.com", "b@example.com"}, "截单超时\r\n提醒", "第一行\n第二行")
	if !strings.Contains(msg, "Subject: 截单超时提醒\r\n") {
		t.Fatalf("subject newline not stripped: %q", msg)
	}
	if !strings.Contains(msg, "To: a@example.com, b@example.com\r\n") {
		t.Fatalf("recipient header wrong: %q", msg)
	}
	if !strings.Contains(msg, "Content-Type: text/plain; charset=\"UTF-8\"") {
		t.Fatalf("content type missing: %q", msg)
	}
	if !strings.Contains(msg, "第一行\r\n第二行\r\n") {
		t.Fatalf("body not CRLF normalized: %q", msg)
	}
}

func TestNormalizeLineEndings(t *testing.T) {
	got := normalizeLineEndings("a\r\nb\rc\nd")
	if got != "a\r\nb\r\nc\r\nd" {
		t.Fatalf("unexpected normalization: %q", got)
	}
}

func TestSplitRecipients(t *testing.T) {
	got := splitRecipients(" a@example.com ,, b@example.com ；c@example.com; ")
	if len(got) != 3 {
		t.Fatalf("expected 3 recipients, got %v", got)
	}
	if got[0] != "a@example.com" || got[1] != "b@example.com" || got[2] != "c@example.com" {
		t.Fatalf("unexpected recipients: %v", got)
	}
}

func TestIsQuitError(t *testing.T) {
	inner := errors.New("connection reset")
	err := fmt.Errorf("notify failed: %w", &QuitError{Err: inner})
	if !IsQuitError(err) {
		t.Fatalf("wrapped quit error not recognized")
	}
	if IsQuitError(errors.New("other")) {
		t.Fatalf("plain error mistaken for quit error")
	}
	var quitErr *QuitError
	if !errors.As(err, &quitErr) || !errors.Is(quitErr.Unwrap(), inner) {
		t.Fatalf("unwrap lost inner error")
	}
}
