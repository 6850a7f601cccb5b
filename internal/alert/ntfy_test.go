package alert

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fullexpi/ransomguard/internal/config"
	"github.com/fullexpi/ransomguard/pkg/models"
)

func TestNewNtfy_DefaultServer(t *testing.T) {
	n := NewNtfy(config.NtfyConfig{Topic: "alerts"})
	if n.server != "https://ntfy.sh" {
		t.Errorf("server = %q, want https://ntfy.sh", n.server)
	}
}

func TestNtfy_Send_SetsPriorityByRisk(t *testing.T) {
	var capturedPriority, capturedTags string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedPriority = r.Header.Get("Priority")
		capturedTags = r.Header.Get("Tags")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := &Ntfy{server: srv.URL, topic: "alerts", client: srv.Client()}
	if err := n.Send(models.Incident{Risk: models.RiskWarning}); err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if capturedPriority != "urgent" {
		t.Errorf("priority = %q, want urgent", capturedPriority)
	}
	if capturedTags != "rotating_light" {
		t.Errorf("tags = %q, want rotating_light", capturedTags)
	}
}

func TestNtfy_Send_AuthHeader(t *testing.T) {
	var capturedAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := &Ntfy{server: srv.URL, topic: "alerts", token: "tok123", client: srv.Client()}
	n.Send(models.Incident{})
	if capturedAuth != "Bearer tok123" {
		t.Errorf("Authorization = %q, want Bearer tok123", capturedAuth)
	}
}

func TestNtfy_Send_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	n := &Ntfy{server: srv.URL, topic: "alerts", client: srv.Client()}
	if err := n.Send(models.Incident{}); err == nil {
		t.Fatal("expected error for 403 status")
	}
}
