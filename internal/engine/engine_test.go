package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/hostsentry-project/hostsentry/internal/collect"
	"github.com/hostsentry-project/hostsentry/internal/core"
)

func testConfig(t *testing.T) *core.Config {
	t.Helper()
	cfg := core.DefaultConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "test.db")
	cfg.Metrics.Enabled = false
	cfg.Bus.Enabled = false
	cfg.Logging.Level = "error"
	return cfg
}

func TestEngine_CycleDetectsAndPersists(t *testing.T) {
	now := time.Now().UTC().Format(time.RFC3339)
	collector := collect.Func(func(ctx context.Context, channels []string, max int) ([]core.Event, error) {
		return []core.Event{
			{Timestamp: now, Channel: "Security", EventID: 4625, IP: "10.0.0.5", User: "admin"},
			{Timestamp: now, Channel: "Security", EventID: 4625, IP: "10.0.0.5", User: "admin"},
		}, nil
	})

	eng, err := NewEngine(testConfig(t), Options{Collector: collector})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if err := eng.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	eng.RunCycle(context.Background())

	events, alerts, err := eng.Store.Counts()
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if events != 2 {
		t.Errorf("persisted %d events, want 2", events)
	}
	if alerts != 1 {
		t.Errorf("persisted %d alerts, want 1 brute force alert", alerts)
	}

	recent, err := eng.Store.RecentAlerts(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 1 || recent[0].Title != "[HIGH] Brute Force Attack - admin" {
		t.Errorf("recent alerts = %+v", recent)
	}

	if err := eng.Shutdown(); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestEngine_EmptyCycleIsQuiet(t *testing.T) {
	eng, err := NewEngine(testConfig(t), Options{})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if err := eng.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	eng.RunCycle(context.Background())

	events, alerts, err := eng.Store.Counts()
	if err != nil {
		t.Fatal(err)
	}
	if events != 0 || alerts != 0 {
		t.Errorf("empty cycle wrote %d events, %d alerts", events, alerts)
	}
	eng.Shutdown()
}

func TestEngine_CollectorErrorDoesNotAbortCycle(t *testing.T) {
	calls := 0
	collector := collect.Func(func(ctx context.Context, channels []string, max int) ([]core.Event, error) {
		calls++
		return []core.Event{{Channel: "System", EventID: 7036}}, context.DeadlineExceeded
	})

	eng, err := NewEngine(testConfig(t), Options{Collector: collector})
	if err != nil {
		t.Fatal(err)
	}
	if err := eng.Start(); err != nil {
		t.Fatal(err)
	}

	eng.RunCycle(context.Background())

	events, _, err := eng.Store.Counts()
	if err != nil {
		t.Fatal(err)
	}
	if events != 1 {
		t.Errorf("partial batch should still be processed, persisted %d events", events)
	}
	eng.Shutdown()
}
