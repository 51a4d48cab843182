package core

import (
	"fmt"
	"os"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// AlertBus publishes dispatched alerts to a NATS JetStream stream so
// external consumers (SOAR tooling, archival, dashboards on other
// hosts) can subscribe without touching the notification channels.
// Publishing is best-effort and never blocks the dispatch cycle on a
// broker outage beyond the client's internal buffering.
type AlertBus struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	ns     *server.Server
	logger zerolog.Logger
}

// NewAlertBus connects to NATS. If cfg.Embedded is true, an in-process
// NATS server is started first.
func NewAlertBus(cfg *BusConfig, logger zerolog.Logger) (*AlertBus, error) {
	bus := &AlertBus{
		logger: logger.With().Str("component", "alert_bus").Logger(),
	}

	if cfg.Embedded {
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating NATS data dir: %w", err)
		}

		opts := &server.Options{
			Host:      "127.0.0.1",
			Port:      cfg.Port,
			JetStream: true,
			StoreDir:  cfg.DataDir,
			NoLog:     true,
			NoSigs:    true,
		}
		ns, err := server.NewServer(opts)
		if err != nil {
			return nil, fmt.Errorf("creating embedded NATS server: %w", err)
		}
		ns.Start()
		if !ns.ReadyForConnections(10 * time.Second) {
			return nil, fmt.Errorf("embedded NATS server failed to start within timeout")
		}
		bus.ns = ns
		bus.logger.Info().Int("port", cfg.Port).Msg("embedded NATS server started")
	}

	url := cfg.URL
	if cfg.Embedded {
		url = fmt.Sprintf("nats://127.0.0.1:%d", cfg.Port)
	}

	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				bus.logger.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			bus.logger.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}
	bus.nc = nc

	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("creating JetStream context: %w", err)
	}
	bus.js = js

	// Create or update the alert stream. AddStream returns the existing
	// stream when config matches; after a version upgrade we update it.
	streamCfg := &nats.StreamConfig{
		Name:      "HOSTSENTRY_ALERTS",
		Subjects:  []string{"sentry.alerts.>"},
		Retention: nats.LimitsPolicy,
		MaxAge:    24 * time.Hour * 30,
		MaxBytes:  512 * 1024 * 1024,
		Storage:   nats.FileStorage,
		Discard:   nats.DiscardOld,
	}
	if _, err := js.AddStream(streamCfg); err != nil {
		if _, updateErr := js.UpdateStream(streamCfg); updateErr != nil {
			return nil, fmt.Errorf("creating/updating alert stream: %w (original: %v)", updateErr, err)
		}
	}

	bus.logger.Info().Str("url", url).Msg("connected to NATS JetStream")
	return bus, nil
}

// PublishAlert publishes an Alert to the alert stream, keyed by
// detector and severity.
func (b *AlertBus) PublishAlert(alert *Alert) error {
	data, err := alert.Marshal()
	if err != nil {
		return fmt.Errorf("marshaling alert: %w", err)
	}

	detector := alert.Detector
	if detector == "" {
		detector = "unknown"
	}
	subject := fmt.Sprintf("sentry.alerts.%s.%s", detector, alert.Severity.String())
	if _, err := b.js.Publish(subject, data); err != nil {
		return fmt.Errorf("publishing alert to %s: %w", subject, err)
	}

	b.logger.Debug().
		Str("alert_id", alert.ID).
		Str("subject", subject).
		Msg("alert published")
	return nil
}

// Close shuts down the connection and, when embedded, the server.
func (b *AlertBus) Close() error {
	if b.nc != nil {
		b.nc.Close()
	}
	if b.ns != nil {
		b.ns.Shutdown()
		b.ns.WaitForShutdown()
		b.logger.Info().Msg("embedded NATS server stopped")
	}
	return nil
}

// IsConnected returns true if the NATS connection is active.
func (b *AlertBus) IsConnected() bool {
	return b.nc != nil && b.nc.IsConnected()
}
