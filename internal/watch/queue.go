// Package watch contains the background producers that feed live OS
// notifications into the collection cycle: a USB hardware watcher and
// a process-creation watcher. Each pushes into a bounded queue the
// main cycle drains non-blockingly once per iteration.
package watch

import (
	"sync"

	"github.com/hostsentry-project/hostsentry/internal/core"
)

// Queue is a bounded, thread-safe FIFO of events. Push never blocks:
// when the queue is full the oldest entry is dropped and counted, so a
// stalled consumer degrades to losing history rather than wedging a
// producer goroutine.
type Queue struct {
	mu     sync.Mutex
	name   string
	items  []core.Event
	maxLen int
}

// NewQueue creates a queue holding at most maxLen events.
func NewQueue(name string, maxLen int) *Queue {
	if maxLen <= 0 {
		maxLen = 1000
	}
	return &Queue{name: name, maxLen: maxLen}
}

// Push appends an event, evicting the oldest when full.
func (q *Queue) Push(e core.Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) >= q.maxLen {
		q.items = q.items[1:]
		core.QueueDroppedEvents.WithLabelValues(q.name).Inc()
	}
	q.items = append(q.items, e)
}

// Drain removes and returns up to max events without blocking.
func (q *Queue) Drain(max int) []core.Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	if max <= 0 || max > len(q.items) {
		max = len(q.items)
	}
	if max == 0 {
		return nil
	}
	out := make([]core.Event, max)
	copy(out, q.items[:max])
	q.items = q.items[max:]
	return out
}

// Len returns the current queue depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
