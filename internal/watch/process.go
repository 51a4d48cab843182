package watch

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/hostsentry-project/hostsentry/internal/core"
)

// processChannel tags events from the real-time process watcher so
// they are distinguishable from Security log 4688 records.
const processChannel = "ProcessWatcherRT"

// ProcessSource abstracts the OS process-creation notification API.
// Next blocks for at most timeout and reports ok=false when no
// process was created.
type ProcessSource interface {
	Next(ctx context.Context, timeout time.Duration) (cmdline string, ok bool, err error)
}

// ProcessWatcher wraps live process creations as process-creation
// events and pushes them into the queue for the next cycle.
type ProcessWatcher struct {
	source ProcessSource
	queue  *Queue
	logger zerolog.Logger
	now    func() time.Time
}

// NewProcessWatcher creates the watcher.
func NewProcessWatcher(source ProcessSource, queue *Queue, logger zerolog.Logger) *ProcessWatcher {
	return &ProcessWatcher{
		source: source,
		queue:  queue,
		logger: logger.With().Str("component", "process_watcher").Logger(),
		now:    time.Now,
	}
}

// Run polls the process source until the context is cancelled.
func (w *ProcessWatcher) Run(ctx context.Context) {
	w.logger.Info().Msg("process watcher started")
	for {
		if ctx.Err() != nil {
			w.logger.Info().Msg("process watcher stopped")
			return
		}
		cmdline, ok, err := w.source.Next(ctx, 500*time.Millisecond)
		if err != nil {
			w.logger.Error().Err(err).Msg("process source error")
			continue
		}
		if !ok || cmdline == "" {
			continue
		}

		w.queue.Push(core.Event{
			Timestamp: w.now().UTC().Format(time.RFC3339),
			Channel:   processChannel,
			EventID:   4688,
			Command:   cmdline,
			Message:   cmdline,
		})
	}
}
