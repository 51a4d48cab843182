package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/hostsentry-project/hostsentry/internal/core"
)

// Discord posts the rendered message to a webhook URL. Single attempt;
// the dispatcher cooldown already rate-limits repeats.
type Discord struct {
	cfg    core.DiscordConfig
	client *http.Client
	logger zerolog.Logger
}

// NewDiscord creates the Discord notifier.
func NewDiscord(cfg core.DiscordConfig, logger zerolog.Logger) *Discord {
	return &Discord{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger.With().Str("channel", "discord").Logger(),
	}
}

func (d *Discord) Name() string { return "discord" }

// Send delivers the rendered message to the webhook.
func (d *Discord) Send(ctx context.Context, title, description string) error {
	payload, err := json.Marshal(map[string]string{
		"content": renderMessage(title, description),
	})
	if err != nil {
		return fmt.Errorf("marshaling discord payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord send failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("discord rejected message: HTTP %d", resp.StatusCode)
	}
	d.logger.Debug().Msg("discord alert sent")
	return nil
}
