package alert

import (
	"strings"
	"testing"

	"github.com/fullexpi/ransomguard/internal/config"
	"github.com/fullexpi/ransomguard/pkg/models"
)

func TestNewSMTPSink(t *testing.T) {
	s := NewSMTPSink(config.SMTPConfig{Host: "smtp.example.com", Port: 465, From: "a@example.com"}, "ops@example.com")
	if s.host != "smtp.example.com" || s.port != 465 || s.to != "ops@example.com" {
		t.Errorf("NewSMTPSink() = %+v", s)
	}
}

func TestSMTPSink_Name(t *testing.T) {
	s := &SMTPSink{}
	if got := s.Name(); got != "smtp" {
		t.Errorf("Name() = %q, want smtp", got)
	}
}

func TestSMTPSink_Send_RejectsInvalidRecipient(t *testing.T) {
	s := &SMTPSink{host: "smtp.example.com", port: 465, to: "not-an-email"}
	err := s.Send(models.Incident{Path: "/data/a.txt"})
	if err == nil {
		t.Fatal("expected error for invalid recipient")
	}
	if !strings.Contains(err.Error(), "invalid recipient") {
		t.Errorf("error = %q", err.Error())
	}
}

func TestSMTPSink_Send_RejectsEmptyRecipient(t *testing.T) {
	s := &SMTPSink{host: "smtp.example.com", port: 465}
	if err := s.Send(models.Incident{}); err == nil {
		t.Fatal("expected error for empty recipient")
	}
}
