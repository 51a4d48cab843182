// Package collect defines the boundary to the OS event log reader.
// Reading Windows event log channels (or any other platform source)
// is a collaborator concern; the engine only depends on this
// interface and tolerates empty or partial batches.
package collect

import (
	"context"

	"github.com/hostsentry-project/hostsentry/internal/core"
)

// Collector returns the latest raw events for the configured
// channels, bounded per cycle. A collector failure surfaces as an
// error plus whatever partial batch was read; the engine logs and
// carries on with what it got.
type Collector interface {
	Collect(ctx context.Context, channels []string, maxPerChannel int) ([]core.Event, error)
}

// Nop is the collector used when no platform log reader is wired in;
// the engine then runs purely on the real-time watcher queues.
type Nop struct{}

func (Nop) Collect(context.Context, []string, int) ([]core.Event, error) {
	return nil, nil
}

// Func adapts a function to the Collector interface.
type Func func(ctx context.Context, channels []string, maxPerChannel int) ([]core.Event, error)

func (f Func) Collect(ctx context.Context, channels []string, maxPerChannel int) ([]core.Event, error) {
	return f(ctx, channels, maxPerChannel)
}
