package detect

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/hostsentry-project/hostsentry/internal/core"
)

func newBruteForceForTest() *BruteForce {
	return NewBruteForce(core.ThresholdsConfig{
		BruteForceWindowMinutes: 10,
		BruteForceFailures:      2,
	}, zerolog.Nop())
}

func failedLogon(ip, user string, at time.Time) core.Event {
	return core.Event{
		Timestamp: at.UTC().Format(time.RFC3339),
		Channel:   "Security",
		EventID:   4625,
		IP:        ip,
		User:      user,
	}
}

func TestBruteForce_BelowThresholdNoAlert(t *testing.T) {
	d := newBruteForceForTest()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	alerts := d.Detect([]core.Event{failedLogon("10.0.0.5", "admin", base)})
	if len(alerts) != 0 {
		t.Fatalf("one failure should not alert, got %d", len(alerts))
	}
}

func TestBruteForce_AlertAtThreshold(t *testing.T) {
	d := newBruteForceForTest()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	alerts := d.Detect([]core.Event{
		failedLogon("10.0.0.5", "admin", base),
		failedLogon("10.0.0.5", "admin", base.Add(time.Minute)),
	})
	if len(alerts) != 1 {
		t.Fatalf("got %d alerts, want exactly 1", len(alerts))
	}
	a := alerts[0]
	if a.Severity != core.SeverityHigh {
		t.Errorf("severity = %v, want HIGH", a.Severity)
	}
	if a.Title != "[HIGH] Brute Force Attack - admin" {
		t.Errorf("title = %q", a.Title)
	}
	if !strings.Contains(a.Description, "Source IP: 10.0.0.5") {
		t.Errorf("description missing source IP:\n%s", a.Description)
	}
	if !strings.Contains(a.Description, "Failed Attempts: 2") {
		t.Errorf("description missing attempt count:\n%s", a.Description)
	}
}

func TestBruteForce_EdgeTriggeredAboveThreshold(t *testing.T) {
	d := newBruteForceForTest()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	var batch []core.Event
	for i := 0; i < 5; i++ {
		batch = append(batch, failedLogon("10.0.0.5", "admin", base.Add(time.Duration(i)*time.Minute)))
	}
	alerts := d.Detect(batch)
	if len(alerts) != 1 {
		t.Fatalf("five failures should still produce one alert, got %d", len(alerts))
	}
}

func TestBruteForce_StatePersistsAcrossBatches(t *testing.T) {
	d := newBruteForceForTest()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if alerts := d.Detect([]core.Event{failedLogon("10.0.0.5", "admin", base)}); len(alerts) != 0 {
		t.Fatal("first batch should not alert")
	}
	alerts := d.Detect([]core.Event{failedLogon("10.0.0.5", "admin", base.Add(2 * time.Minute))})
	if len(alerts) != 1 {
		t.Fatalf("second batch should complete the threshold, got %d alerts", len(alerts))
	}
}

func TestBruteForce_SeparateKeysTrackedIndependently(t *testing.T) {
	d := newBruteForceForTest()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	alerts := d.Detect([]core.Event{
		failedLogon("10.0.0.5", "alice", base),
		failedLogon("10.0.0.6", "bob", base),
	})
	if len(alerts) != 0 {
		t.Fatalf("one failure per IP should not alert, got %d", len(alerts))
	}
}

func TestBruteForce_WindowPrunesOldFailures(t *testing.T) {
	d := newBruteForceForTest()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	d.Detect([]core.Event{failedLogon("10.0.0.5", "admin", base)})
	// Second failure lands beyond the 10 minute window relative to its
	// own timestamp, so the first has aged out.
	alerts := d.Detect([]core.Event{failedLogon("10.0.0.5", "admin", base.Add(11 * time.Minute))})
	if len(alerts) != 0 {
		t.Fatalf("pruned window should not alert, got %d", len(alerts))
	}
}

func TestBruteForce_RearmsAfterWindowDrains(t *testing.T) {
	d := newBruteForceForTest()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	first := d.Detect([]core.Event{
		failedLogon("10.0.0.5", "admin", base),
		failedLogon("10.0.0.5", "admin", base.Add(time.Minute)),
	})
	if len(first) != 1 {
		t.Fatalf("setup: want 1 alert, got %d", len(first))
	}

	// A new burst well past the window drains the old entries first,
	// re-arming the trigger.
	later := base.Add(30 * time.Minute)
	second := d.Detect([]core.Event{
		failedLogon("10.0.0.5", "admin", later),
		failedLogon("10.0.0.5", "admin", later.Add(time.Minute)),
	})
	if len(second) != 1 {
		t.Fatalf("new burst after drain should alert again, got %d", len(second))
	}
}

func TestBruteForce_EmptyIPKeyedAsLocalhost(t *testing.T) {
	d := newBruteForceForTest()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	alerts := d.Detect([]core.Event{
		failedLogon("", "svc", base),
		failedLogon("", "svc", base.Add(time.Minute)),
	})
	if len(alerts) != 1 {
		t.Fatalf("localhost key should aggregate, got %d alerts", len(alerts))
	}
	if !strings.Contains(alerts[0].Description, "Source IP: localhost") {
		t.Errorf("description should name localhost:\n%s", alerts[0].Description)
	}
}

func TestBruteForce_EmptyUserReportedAsUnknown(t *testing.T) {
	d := newBruteForceForTest()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	alerts := d.Detect([]core.Event{
		failedLogon("10.0.0.5", "", base),
		failedLogon("10.0.0.5", "", base.Add(time.Minute)),
	})
	if len(alerts) != 1 {
		t.Fatalf("want 1 alert, got %d", len(alerts))
	}
	if alerts[0].Title != "[HIGH] Brute Force Attack - unknown" {
		t.Errorf("title = %q", alerts[0].Title)
	}
	if strings.Contains(alerts[0].Description, "Target User:") {
		t.Error("unknown user should not appear as a target line")
	}
}

func TestBruteForce_UnparseableTimestampUsesClock(t *testing.T) {
	d := newBruteForceForTest()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	e1 := failedLogon("10.0.0.5", "admin", now)
	e1.Timestamp = "not-a-time"
	e2 := failedLogon("10.0.0.5", "admin", now)
	e2.Timestamp = ""

	alerts := d.Detect([]core.Event{e1, e2})
	if len(alerts) != 1 {
		t.Fatalf("clock fallback should keep both failures in window, got %d alerts", len(alerts))
	}
}

func TestBruteForce_IgnoresOtherEventIDs(t *testing.T) {
	d := newBruteForceForTest()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	var batch []core.Event
	for i := 0; i < 4; i++ {
		e := failedLogon("10.0.0.5", "admin", base)
		e.EventID = 4624
		batch = append(batch, e)
	}
	if alerts := d.Detect(batch); len(alerts) != 0 {
		t.Fatalf("successful logons should be ignored, got %d alerts", len(alerts))
	}
}

func TestBruteForce_ManyKeysStayBounded(t *testing.T) {
	d := newBruteForceForTest()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	var batch []core.Event
	for i := 0; i < 200; i++ {
		batch = append(batch, failedLogon(fmt.Sprintf("10.0.%d.%d", i/250, i%250), "admin", base))
	}
	if alerts := d.Detect(batch); len(alerts) != 0 {
		t.Fatalf("single failures across many IPs should not alert, got %d", len(alerts))
	}
	if d.tracked.Len() != 200 {
		t.Errorf("tracked keys = %d, want 200", d.tracked.Len())
	}
}
