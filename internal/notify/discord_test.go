package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/hostsentry-project/hostsentry/internal/core"
)

func TestDiscord_SendSuccess(t *testing.T) {
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDiscord(core.DiscordConfig{WebhookURL: srv.URL}, zerolog.Nop())
	if err := d.Send(context.Background(), "[MEDIUM] Title", "body"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotBody["content"] != "[MEDIUM] Title\nbody" {
		t.Errorf("content = %q", gotBody["content"])
	}
}

func TestDiscord_RejectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	d := NewDiscord(core.DiscordConfig{WebhookURL: srv.URL}, zerolog.Nop())
	if err := d.Send(context.Background(), "t", "d"); err == nil {
		t.Fatal("expected error for 4xx status")
	}
}

func TestDiscord_ConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	d := NewDiscord(core.DiscordConfig{WebhookURL: srv.URL}, zerolog.Nop())
	if err := d.Send(context.Background(), "t", "d"); err == nil {
		t.Fatal("expected connection error")
	}
}
