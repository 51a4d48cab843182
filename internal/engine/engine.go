package engine

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/hostsentry-project/hostsentry/internal/collect"
	"github.com/hostsentry-project/hostsentry/internal/core"
	"github.com/hostsentry-project/hostsentry/internal/detect"
	"github.com/hostsentry-project/hostsentry/internal/dispatch"
	"github.com/hostsentry-project/hostsentry/internal/notify"
	"github.com/hostsentry-project/hostsentry/internal/store"
	"github.com/hostsentry-project/hostsentry/internal/watch"
)

// maxBatchPerSource bounds how many events one cycle pulls from the
// log collector and from each real-time watcher queue.
const maxBatchPerSource = 250

// Engine wires the collector, watchers, detection pipeline and alert
// dispatcher into the periodic monitoring cycle.
type Engine struct {
	Config     *core.Config
	Store      *store.Store
	Bus        *core.AlertBus
	Pipeline   *core.Pipeline
	Dispatcher *dispatch.Dispatcher
	Collector  collect.Collector
	Logger     zerolog.Logger

	usbQueue  *watch.Queue
	procQueue *watch.Queue
	usbWatch  *watch.USBWatcher
	procWatch *watch.ProcessWatcher

	metricsSrv *http.Server

	ctx    context.Context
	cancel context.CancelFunc
}

// Options carries the platform collaborators the engine cannot build
// itself. Any of them may be nil; the engine then runs without that
// source.
type Options struct {
	Collector     collect.Collector
	DeviceSource  watch.DeviceSource
	DiskInfo      watch.DiskInfoSource
	ProcessSource watch.ProcessSource
}

// NewEngine creates a monitoring engine from the given config.
func NewEngine(cfg *core.Config, opts Options) (*Engine, error) {
	var logger zerolog.Logger
	if cfg.Logging.Format == "json" {
		logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}

	switch cfg.LogLevel() {
	case "debug":
		logger = logger.Level(zerolog.DebugLevel)
	case "warn":
		logger = logger.Level(zerolog.WarnLevel)
	case "error":
		logger = logger.Level(zerolog.ErrorLevel)
	default:
		logger = logger.Level(zerolog.InfoLevel)
	}

	st, err := store.Open(cfg.Database.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	eng := &Engine{
		Config:    cfg,
		Store:     st,
		Collector: opts.Collector,
		Logger:    logger.With().Str("component", "engine").Logger(),
		usbQueue:  watch.NewQueue("usb", maxBatchPerSource*4),
		procQueue: watch.NewQueue("process", maxBatchPerSource*4),
		ctx:       ctx,
		cancel:    cancel,
	}
	if eng.Collector == nil {
		eng.Collector = collect.Nop{}
	}

	eng.Pipeline = core.NewPipeline(logger,
		detect.NewBruteForce(cfg.Thresholds, logger),
		detect.NewPowerShell(cfg.Thresholds, logger),
		detect.NewUSBActivity(cfg.Thresholds, logger),
	)

	if opts.DeviceSource != nil {
		eng.usbWatch = watch.NewUSBWatcher(opts.DeviceSource, opts.DiskInfo, eng.usbQueue, logger)
	}
	if opts.ProcessSource != nil {
		eng.procWatch = watch.NewProcessWatcher(opts.ProcessSource, eng.procQueue, logger)
	}

	return eng, nil
}

// Start brings up the bus, the dispatcher and the background watchers.
func (e *Engine) Start() error {
	e.Logger.Info().Msg("starting hostsentry engine")

	if e.Config.Bus.Enabled {
		bus, err := core.NewAlertBus(&e.Config.Bus, e.Logger)
		if err != nil {
			return fmt.Errorf("starting alert bus: %w", err)
		}
		e.Bus = bus
	}

	notifiers := notify.FromConfig(e.Config.Alerts, e.Logger)
	var publisher dispatch.AlertPublisher
	if e.Bus != nil {
		publisher = e.Bus
	}
	e.Dispatcher = dispatch.New(e.Config.Thresholds.Cooldown(), e.Store, notifiers, publisher, e.Logger)

	if e.usbWatch != nil {
		go e.usbWatch.Run(e.ctx)
	}
	if e.procWatch != nil {
		go e.procWatch.Run(e.ctx)
	}

	if e.Config.Metrics.Enabled {
		if err := e.startMetrics(); err != nil {
			return fmt.Errorf("starting metrics listener: %w", err)
		}
	}

	e.Logger.Info().
		Int("channels", len(e.Config.Channels)).
		Int("notifiers", len(notifiers)).
		Bool("usb_watcher", e.usbWatch != nil).
		Bool("process_watcher", e.procWatch != nil).
		Msg("hostsentry engine started")

	return nil
}

// Run starts the engine and blocks in the monitoring cycle until a
// shutdown signal is received.
func (e *Engine) Run() error {
	if err := e.Start(); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			e.Logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
			e.cancel()
		case <-e.ctx.Done():
		}
	}()

	interval := time.Duration(e.Config.IntervalSeconds) * time.Second
	for {
		e.RunCycle(e.ctx)

		select {
		case <-e.ctx.Done():
			return e.Shutdown()
		case <-time.After(interval):
		}
	}
}

// RunCycle performs one collect -> persist -> detect -> dispatch pass.
func (e *Engine) RunCycle(ctx context.Context) {
	batch, err := e.Collector.Collect(ctx, e.Config.Channels, maxBatchPerSource)
	if err != nil {
		e.Logger.Error().Err(err).Msg("event collection failed")
	}
	batch = append(batch, e.usbQueue.Drain(maxBatchPerSource)...)
	batch = append(batch, e.procQueue.Drain(maxBatchPerSource)...)
	if len(batch) == 0 {
		return
	}
	for _, ev := range batch {
		core.CollectedEvents.WithLabelValues(ev.Channel).Inc()
	}

	if err := e.Store.InsertEvents(batch); err != nil {
		core.PersistenceErrors.Inc()
		e.Logger.Error().Err(err).Int("events", len(batch)).Msg("failed to persist events")
	}

	alerts := e.Pipeline.RunCycle(batch)
	e.Dispatcher.Dispatch(ctx, alerts)

	e.Logger.Debug().
		Int("events", len(batch)).
		Int("alerts", len(alerts)).
		Msg("cycle complete")
}

// Shutdown gracefully stops the engine.
func (e *Engine) Shutdown() error {
	e.Logger.Info().Msg("shutting down hostsentry engine")
	e.cancel()

	if e.metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := e.metricsSrv.Shutdown(shutdownCtx); err != nil {
			e.Logger.Error().Err(err).Msg("error stopping metrics listener")
		}
		cancel()
	}

	if e.Bus != nil {
		if err := e.Bus.Close(); err != nil {
			e.Logger.Error().Err(err).Msg("error closing alert bus")
		}
	}

	if err := e.Store.Close(); err != nil {
		e.Logger.Error().Err(err).Msg("error closing database")
	}

	e.Logger.Info().Msg("hostsentry engine stopped")
	return nil
}

// Context returns the engine's context.
func (e *Engine) Context() context.Context {
	return e.ctx
}

func (e *Engine) startMetrics() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	e.metricsSrv = &http.Server{
		Addr:              e.Config.Metrics.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := e.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			e.Logger.Error().Err(err).Str("listen", e.Config.Metrics.Listen).Msg("metrics listener failed")
		}
	}()

	e.Logger.Info().Str("listen", e.Config.Metrics.Listen).Msg("metrics listener started")
	return nil
}
