package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hostsentry-project/hostsentry/internal/core"
)

// Store is the persistence handle the dispatcher writes alerts to.
// Implementations must be synchronous with respect to the call: once
// InsertAlert returns, a crash must not lose the alert.
type Store interface {
	InsertAlert(alert *core.Alert) error
}

// Notifier is one delivery channel. Send must catch its own transport
// errors and return them; it never panics across this boundary.
type Notifier interface {
	Name() string
	Send(ctx context.Context, title, description string) error
}

// AlertPublisher mirrors dispatched alerts to an external stream.
// Optional and best-effort.
type AlertPublisher interface {
	PublishAlert(alert *core.Alert) error
}

// Dispatcher deduplicates alerts by title within a cooldown window,
// persists the survivors, and fans them out to every enabled channel.
// A delivery failure on one channel is logged and does not affect the
// others or abort the cycle.
type Dispatcher struct {
	mu        sync.Mutex
	cooldown  time.Duration
	lastSent  map[string]time.Time
	store     Store
	notifiers []Notifier
	publisher AlertPublisher
	logger    zerolog.Logger
	now       func() time.Time
}

// New creates a Dispatcher. store may not be nil; publisher may be.
func New(cooldown time.Duration, store Store, notifiers []Notifier, publisher AlertPublisher, logger zerolog.Logger) *Dispatcher {
	if cooldown <= 0 {
		cooldown = 5 * time.Minute
	}
	return &Dispatcher{
		cooldown:  cooldown,
		lastSent:  make(map[string]time.Time),
		store:     store,
		notifiers: notifiers,
		publisher: publisher,
		logger:    logger.With().Str("component", "dispatcher").Logger(),
		now:       time.Now,
	}
}

// Dispatch processes alerts in the order produced. An alert whose
// title was dispatched within the cooldown window is skipped entirely:
// no persistence, no channel calls. Nothing here returns an error to
// the caller; the monitoring loop must never die on delivery problems.
func (d *Dispatcher) Dispatch(ctx context.Context, alerts []*core.Alert) {
	for _, alert := range alerts {
		if ctx.Err() != nil {
			return
		}
		if !d.admit(alert.Title) {
			core.SuppressedAlerts.Inc()
			d.logger.Debug().Str("title", alert.Title).Msg("skipping duplicate alert within cooldown")
			continue
		}

		if err := d.store.InsertAlert(alert); err != nil {
			core.PersistenceErrors.Inc()
			d.logger.Error().Err(err).Str("alert_id", alert.ID).Msg("failed to persist alert")
		}

		if d.publisher != nil {
			if err := d.publisher.PublishAlert(alert); err != nil {
				d.logger.Warn().Err(err).Str("alert_id", alert.ID).Msg("failed to publish alert to bus")
			}
		}

		for _, n := range d.notifiers {
			if err := n.Send(ctx, alert.Title, alert.Description); err != nil {
				core.ChannelSendFailures.WithLabelValues(n.Name()).Inc()
				d.logger.Error().Err(err).
					Str("channel", n.Name()).
					Str("title", alert.Title).
					Msg("channel delivery failed")
			}
		}

		core.DispatchedAlerts.Inc()
		d.logger.Info().
			Str("severity", alert.Severity.String()).
			Str("title", alert.Title).
			Int("channels", len(d.notifiers)).
			Msg("alert dispatched")
	}
}

// admit records the title as sent now when it is outside the cooldown
// window, and opportunistically prunes expired entries.
func (d *Dispatcher) admit(title string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if sentAt, ok := d.lastSent[title]; ok && now.Sub(sentAt) < d.cooldown {
		return false
	}
	d.lastSent[title] = now

	for t, sentAt := range d.lastSent {
		if now.Sub(sentAt) > d.cooldown {
			delete(d.lastSent, t)
		}
	}
	return true
}

// CacheSize returns the number of titles currently under cooldown.
func (d *Dispatcher) CacheSize() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.lastSent)
}
