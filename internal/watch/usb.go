package watch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hostsentry-project/hostsentry/internal/core"
	"github.com/hostsentry-project/hostsentry/internal/detect"
)

// DeviceNotification is one raw plug-and-play notification from the
// OS. A single physical insertion typically produces several of these
// (disk entity, volume, label).
type DeviceNotification struct {
	Kind core.USBKind
	Name string
	PNP  string
}

// DeviceSource abstracts the OS notification API (WMI on Windows,
// udev elsewhere). Next blocks for at most timeout and reports
// ok=false when nothing arrived.
type DeviceSource interface {
	Next(ctx context.Context, timeout time.Duration) (DeviceNotification, bool, error)
}

// DiskInfo is the enrichment looked up for an attached disk.
type DiskInfo struct {
	Model      string
	CapacityGB *float64
}

// DiskInfoSource resolves a PNP identifier to disk metadata. Lookup
// failures are not errors; the event simply stays unenriched.
type DiskInfoSource interface {
	Lookup(pnp string) (DiskInfo, bool)
}

// debounceWindow collapses the burst of raw notifications one
// physical action produces, keyed by kind + full PNP identifier.
const debounceWindow = 2 * time.Second

// USBWatcher filters raw device notifications down to genuine USB
// mass-storage hardware, de-bounces them, enriches them with disk
// metadata, and pushes synthetic events into the queue.
type USBWatcher struct {
	source   DeviceSource
	diskInfo DiskInfoSource
	queue    *Queue
	logger   zerolog.Logger

	mu        sync.Mutex
	recent    map[string]time.Time
	infoByPNP map[string]DiskInfo

	now func() time.Time
}

// NewUSBWatcher creates the watcher. diskInfo may be nil.
func NewUSBWatcher(source DeviceSource, diskInfo DiskInfoSource, queue *Queue, logger zerolog.Logger) *USBWatcher {
	return &USBWatcher{
		source:    source,
		diskInfo:  diskInfo,
		queue:     queue,
		logger:    logger.With().Str("component", "usb_watcher").Logger(),
		recent:    make(map[string]time.Time),
		infoByPNP: make(map[string]DiskInfo),
		now:       time.Now,
	}
}

// Run polls the device source until the context is cancelled. Source
// errors are logged and polling continues; a broken OS API surfaces as
// an empty batch, never a dead loop.
func (w *USBWatcher) Run(ctx context.Context) {
	w.logger.Info().Msg("usb watcher started")
	for {
		if ctx.Err() != nil {
			w.logger.Info().Msg("usb watcher stopped")
			return
		}
		n, ok, err := w.source.Next(ctx, 500*time.Millisecond)
		if err != nil {
			w.logger.Error().Err(err).Msg("device source error")
			continue
		}
		if !ok {
			continue
		}
		w.Handle(n)
	}
}

// Handle processes one raw notification: storage filter, debounce,
// enrichment, enqueue.
func (w *USBWatcher) Handle(n DeviceNotification) {
	if !IsUSBStorage(n.PNP) {
		w.logger.Debug().Str("name", n.Name).Str("pnp", truncatePNP(n.PNP)).Msg("skipping non-storage device")
		return
	}

	now := w.now()
	key := fmt.Sprintf("%s:%s", n.Kind, n.PNP)

	w.mu.Lock()
	for k, t := range w.recent {
		if now.Sub(t) > debounceWindow {
			delete(w.recent, k)
		}
	}
	if seenAt, seen := w.recent[key]; seen && now.Sub(seenAt) <= debounceWindow {
		w.mu.Unlock()
		w.logger.Debug().Str("kind", string(n.Kind)).Str("name", n.Name).Msg("skipping duplicate notification")
		return
	}
	w.recent[key] = now

	var info DiskInfo
	switch n.Kind {
	case core.USBAttach:
		if w.diskInfo != nil {
			if found, ok := w.diskInfo.Lookup(n.PNP); ok {
				info = found
			}
		}
		// Remember enrichment so the removal event can reuse it; the
		// disk is gone from the OS by the time removal fires.
		w.infoByPNP[n.PNP] = info
	case core.USBRemove:
		info = w.infoByPNP[n.PNP]
		delete(w.infoByPNP, n.PNP)
	}
	w.mu.Unlock()

	w.queue.Push(w.buildEvent(n, info, now))
	w.logger.Info().
		Str("kind", string(n.Kind)).
		Str("name", n.Name).
		Str("model", info.Model).
		Msg("usb device event queued")
}

// buildEvent assembles the synthetic enriched event consumed by the
// USB activity detector.
func (w *USBWatcher) buildEvent(n DeviceNotification, info DiskInfo, now time.Time) core.Event {
	lines := []string{fmt.Sprintf("USB %s: %s", n.Kind, n.Name)}
	if info.Model != "" {
		lines = append(lines, fmt.Sprintf("Model: %s", info.Model))
	}
	if info.CapacityGB != nil {
		lines = append(lines, fmt.Sprintf("Capacity: %g GB", *info.CapacityGB))
	}
	if n.PNP != "" {
		lines = append(lines, n.PNP)
	}

	return core.Event{
		Timestamp:     now.UTC().Format(time.RFC3339),
		Channel:       "System",
		EventID:       detect.SyntheticUSBEventID,
		Message:       strings.Join(lines, "\n"),
		USBKind:       n.Kind,
		USBName:       n.Name,
		USBModel:      info.Model,
		USBCapacityGB: info.CapacityGB,
		USBPNPID:      n.PNP,
	}
}

// IsUSBStorage reports whether a PNP identifier describes genuine USB
// mass-storage hardware: it must carry both the storage-bus marker and
// the disk marker. Input devices (HID) and bare volume notifications
// never qualify, regardless of their display name.
func IsUSBStorage(pnp string) bool {
	upper := strings.ToUpper(pnp)
	return strings.Contains(upper, "USBSTOR") && strings.Contains(upper, "DISK")
}

func truncatePNP(pnp string) string {
	if len(pnp) > 60 {
		return pnp[:60] + "..."
	}
	return pnp
}
