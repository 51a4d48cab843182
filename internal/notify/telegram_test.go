package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/hostsentry-project/hostsentry/internal/core"
)

func newTelegramForTest(serverURL string) *Telegram {
	tg := NewTelegram(core.TelegramConfig{Token: "test-token", ChatID: "42"}, zerolog.Nop())
	tg.baseURL = serverURL
	tg.backoff = func(int) time.Duration { return time.Millisecond }
	return tg
}

func TestTelegram_SendSuccess(t *testing.T) {
	var gotPath string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tg := newTelegramForTest(srv.URL)
	if err := tg.Send(context.Background(), "[HIGH] Title", "body"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotPath != "/bottest-token/sendMessage" {
		t.Errorf("path = %q", gotPath)
	}
	if gotBody["chat_id"] != "42" {
		t.Errorf("chat_id = %q", gotBody["chat_id"])
	}
	if gotBody["text"] != "[HIGH] Title\nbody" {
		t.Errorf("text = %q", gotBody["text"])
	}
}

func TestTelegram_RetriesServerErrors(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tg := newTelegramForTest(srv.URL)
	if err := tg.Send(context.Background(), "t", "d"); err != nil {
		t.Fatalf("send should succeed on the third attempt: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestTelegram_RetriesRateLimit(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tg := newTelegramForTest(srv.URL)
	if err := tg.Send(context.Background(), "t", "d"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestTelegram_ExhaustsRetries(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	tg := newTelegramForTest(srv.URL)
	err := tg.Send(context.Background(), "t", "d")
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if !strings.Contains(err.Error(), "HTTP 502") {
		t.Errorf("error = %v, want last status", err)
	}
}

func TestTelegram_ClientErrorNotRetried(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	tg := newTelegramForTest(srv.URL)
	err := tg.Send(context.Background(), "t", "d")
	if err == nil {
		t.Fatal("bad token should surface as an error")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, client errors must not be retried", attempts)
	}
}

func TestTelegram_ConnectionErrorRetried(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening

	tg := newTelegramForTest(srv.URL)
	if err := tg.Send(context.Background(), "t", "d"); err == nil {
		t.Fatal("expected connection error")
	}
}

func TestTelegram_CancelledContextAbortsBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	tg := newTelegramForTest(srv.URL)
	tg.backoff = func(int) time.Duration { return time.Hour }

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	if err := tg.Send(ctx, "t", "d"); err == nil {
		t.Fatal("expected error")
	}
	if time.Since(start) > 2*time.Second {
		t.Error("cancellation should cut the backoff short")
	}
}

func TestTelegram_CircuitBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	tg := newTelegramForTest(srv.URL)
	for i := 0; i < 6; i++ {
		tg.Send(context.Background(), "t", "d")
	}

	err := tg.Send(context.Background(), "t", "d")
	if err == nil {
		t.Fatal("expected error from open breaker")
	}
	if !strings.Contains(err.Error(), "open") {
		t.Errorf("error = %v, want open circuit", err)
	}
}
