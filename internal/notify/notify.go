// Package notify implements the alert delivery channels. Every
// notifier is independently best-effort: it catches its own transport
// errors and reports them back as a plain error, never a panic.
package notify

import (
	"github.com/rs/zerolog"

	"github.com/hostsentry-project/hostsentry/internal/core"
	"github.com/hostsentry-project/hostsentry/internal/dispatch"
)

// FromConfig builds the notifiers for the enabled channels. Channel
// names were validated at config load, so unknown names cannot occur.
func FromConfig(cfg core.AlertsConfig, logger zerolog.Logger) []dispatch.Notifier {
	var notifiers []dispatch.Notifier
	for _, ch := range cfg.EnabledChannels {
		switch ch {
		case "telegram":
			notifiers = append(notifiers, NewTelegram(cfg.Telegram, logger))
		case "discord":
			notifiers = append(notifiers, NewDiscord(cfg.Discord, logger))
		case "email":
			notifiers = append(notifiers, NewEmail(cfg.Email, logger))
		}
	}
	return notifiers
}

// renderMessage joins title and description into the text body shared
// by the chat-style channels. Titles already carry their severity tag.
func renderMessage(title, description string) string {
	return title + "\n" + description
}
