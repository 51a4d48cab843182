package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/hostsentry-project/hostsentry/internal/core"
)

// Telegram is the primary instant-messaging channel. Transient
// failures (connection errors, 5xx, 429) are retried up to
// maxAttempts with increasing backoff; any other HTTP status aborts
// immediately. A circuit breaker stops a dead endpoint from burning
// the full retry ladder on every cycle.
type Telegram struct {
	cfg     core.TelegramConfig
	baseURL string
	client  *http.Client
	cb      *gobreaker.CircuitBreaker
	logger  zerolog.Logger

	maxAttempts int
	backoff     func(attempt int) time.Duration
}

// NewTelegram creates the Telegram notifier.
func NewTelegram(cfg core.TelegramConfig, logger zerolog.Logger) *Telegram {
	return &Telegram{
		cfg:     cfg,
		baseURL: "https://api.telegram.org",
		client:  &http.Client{Timeout: 15 * time.Second},
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "TelegramAPI",
			MaxRequests: 3,
			Interval:    30 * time.Second,
			Timeout:     60 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 5
			},
		}),
		logger:      logger.With().Str("channel", "telegram").Logger(),
		maxAttempts: 3,
		backoff: func(attempt int) time.Duration {
			// ~1s after the first failure, ~2s after the second.
			return time.Duration(attempt) * time.Second
		},
	}
}

func (t *Telegram) Name() string { return "telegram" }

// Send delivers the rendered message to the configured chat.
func (t *Telegram) Send(ctx context.Context, title, description string) error {
	_, err := t.cb.Execute(func() (interface{}, error) {
		return nil, t.send(ctx, renderMessage(title, description))
	})
	return err
}

func (t *Telegram) send(ctx context.Context, text string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.cfg.Token)
	payload, err := json.Marshal(map[string]string{
		"chat_id": t.cfg.ChatID,
		"text":    text,
	})
	if err != nil {
		return fmt.Errorf("marshaling telegram payload: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= t.maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("building telegram request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := t.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("telegram connection failed: %w", err)
			t.logger.Warn().Err(err).Int("attempt", attempt).Msg("telegram connection error")
			if !t.wait(ctx, attempt) {
				return lastErr
			}
			continue
		}
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			t.logger.Debug().Int("attempt", attempt).Msg("telegram alert sent")
			return nil
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			lastErr = fmt.Errorf("telegram server error: HTTP %d", resp.StatusCode)
			t.logger.Warn().Int("status", resp.StatusCode).Int("attempt", attempt).Msg("telegram retryable error")
			if !t.wait(ctx, attempt) {
				return lastErr
			}
		default:
			// Client errors (bad token, bad chat) do not heal on retry.
			return fmt.Errorf("telegram rejected message: HTTP %d", resp.StatusCode)
		}
	}
	return lastErr
}

// wait sleeps the backoff for the given attempt, honoring context
// cancellation. Returns false when no further attempt should be made.
func (t *Telegram) wait(ctx context.Context, attempt int) bool {
	if attempt >= t.maxAttempts {
		return false
	}
	select {
	case <-time.After(t.backoff(attempt)):
		return true
	case <-ctx.Done():
		return false
	}
}
