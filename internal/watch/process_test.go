package watch

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type scriptedProcessSource struct {
	cmdlines []string
	done     context.CancelFunc
}

func (s *scriptedProcessSource) Next(ctx context.Context, timeout time.Duration) (string, bool, error) {
	if len(s.cmdlines) == 0 {
		s.done()
		return "", false, nil
	}
	cmd := s.cmdlines[0]
	s.cmdlines = s.cmdlines[1:]
	return cmd, true, nil
}

func TestProcessWatcher_EnqueuesProcessCreations(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := &scriptedProcessSource{
		cmdlines: []string{"powershell.exe -enc AAAA", "", "notepad.exe"},
		done:     cancel,
	}
	q := NewQueue("proc-test", 100)
	w := NewProcessWatcher(src, q, zerolog.Nop())

	w.Run(ctx)

	events := q.Drain(10)
	if len(events) != 2 {
		t.Fatalf("queued %d events, want 2 (empty cmdline skipped)", len(events))
	}
	e := events[0]
	if e.EventID != 4688 {
		t.Errorf("event_id = %d, want 4688", e.EventID)
	}
	if e.Channel != processChannel {
		t.Errorf("channel = %q", e.Channel)
	}
	if e.Command != "powershell.exe -enc AAAA" || e.Message != e.Command {
		t.Errorf("command/message = %q / %q", e.Command, e.Message)
	}
	if e.Timestamp == "" {
		t.Error("timestamp should be set")
	}
}
