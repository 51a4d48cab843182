package detect

import (
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/hostsentry-project/hostsentry/internal/core"
)

const USBActivityName = "usb_activity"

// SyntheticUSBEventID marks the enriched events produced by the USB
// hardware watcher, as opposed to legacy System log lines.
const SyntheticUSBEventID = 9999

// usbEventIDs is the fixed allow-set of System channel event codes
// that can describe USB activity.
var usbEventIDs = map[int]bool{
	2003: true, 2100: true, 2102: true,
	400: true, 410: true,
	SyntheticUSBEventID: true,
}

// usbSignatures match legacy log lines that mention USB hardware
// without a recognized event code.
var usbSignatures = []string{
	"usb\\vid_",
	"usb vid",
	"device configured (usb\\vid",
	"usb attach:",
	"usb remove:",
}

// USBActivity turns USB hardware notifications into alerts. A single
// physical insertion fans out into several raw OS notifications
// (volume, label, mass storage entity), so synthetic events are
// deduplicated per kind+serial within a short TTL. The cache is pruned
// on every invocation before processing.
type USBActivity struct {
	mu     sync.Mutex
	ttl    time.Duration
	recent *lru.Cache[string, time.Time]
	logger zerolog.Logger
	now    func() time.Time
}

// NewUSBActivity creates the detector from validated thresholds.
func NewUSBActivity(cfg core.ThresholdsConfig, logger zerolog.Logger) *USBActivity {
	recent, _ := lru.New[string, time.Time](10000)
	return &USBActivity{
		ttl:    cfg.USBDedupeTTL(),
		recent: recent,
		logger: logger.With().Str("detector", USBActivityName).Logger(),
		now:    time.Now,
	}
}

func (d *USBActivity) Name() string { return USBActivityName }

// Detect filters the batch down to System channel USB events and emits
// one structured alert per physical device action, or a generic LOW
// alert for legacy log lines.
func (d *USBActivity) Detect(events []core.Event) []*core.Alert {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	d.pruneLocked(now)

	var alerts []*core.Alert
	for i := range events {
		e := &events[i]
		if e.Channel != "System" {
			continue
		}
		if !usbEventIDs[e.EventID] && !looksUSB(e.Message) {
			continue
		}

		if e.EventID == SyntheticUSBEventID {
			serial := extractSerial(e.USBPNPID)
			dedupeKey := fmt.Sprintf("%s:%s", e.USBKind, serial)
			if _, seen := d.recent.Get(dedupeKey); seen {
				continue
			}
			d.recent.Add(dedupeKey, now)

			severity, title, desc := formatUSBAlert(e)
			alerts = append(alerts, core.NewAlert(USBActivityName, severity, title, desc))
			d.logger.Info().
				Str("kind", string(e.USBKind)).
				Str("serial", serial).
				Msg("usb device event")
			continue
		}

		// Legacy USB log lines (rare); no dedupe beyond the dispatcher
		// cooldown layer.
		alerts = append(alerts, core.NewAlert(
			USBActivityName,
			core.SeverityLow,
			"USB Activity",
			truncate(e.Message, 400),
		))
	}
	return alerts
}

func (d *USBActivity) pruneLocked(now time.Time) {
	for _, key := range d.recent.Keys() {
		if seenAt, ok := d.recent.Peek(key); ok && now.Sub(seenAt) > d.ttl {
			d.recent.Remove(key)
		}
	}
}

func looksUSB(message string) bool {
	m := strings.ToLower(message)
	for _, sig := range usbSignatures {
		if strings.Contains(m, sig) {
			return true
		}
	}
	return false
}

// extractSerial pulls the device serial fragment out of a PNP
// identifier such as USBSTOR\DISK&VEN_SANDISK&PROD_ULTRA\4C5310&0.
// Unstructured identifiers fall back to their final 32 characters.
func extractSerial(pnp string) string {
	if pnp == "" {
		return "unknown"
	}
	if idx := strings.LastIndex(pnp, `\`); idx >= 0 && idx+1 < len(pnp) {
		return pnp[idx+1:]
	}
	if len(pnp) > 32 {
		return pnp[len(pnp)-32:]
	}
	return pnp
}

// extractVendor guesses the manufacturer from a disk model string.
func extractVendor(model string) string {
	if model == "" {
		return "Unknown"
	}
	fields := strings.Fields(model)
	if len(fields) == 0 {
		return model
	}
	vendor := fields[0]
	switch strings.ToLower(vendor) {
	case "usb", "mass", "storage", "device":
		return model
	}
	return vendor
}

// extractLabel recovers a volume label from the device name when the
// OS handed us one instead of a generic class name.
func extractLabel(name string) string {
	switch name {
	case "", "Volume", "USB Mass Storage Device":
		return ""
	}
	if strings.Contains(name, `\`) || strings.Contains(name, "_??") {
		return ""
	}
	return name
}

func shortenPath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	return path[:maxLen] + "..."
}

// formatUSBAlert renders a synthetic USB event into severity, title
// and description. Attach with a reported capacity is MEDIUM, anything
// else LOW. The title embeds action plus an 8-character serial
// fragment so the dispatcher cooldown stays granular per physical
// device.
func formatUSBAlert(e *core.Event) (core.Severity, string, string) {
	deviceName := e.USBModel
	if deviceName == "" {
		deviceName = e.USBName
	}
	if deviceName == "" {
		deviceName = "USB Device"
	}

	severity := core.SeverityLow
	if e.USBKind == core.USBAttach && e.USBCapacityGB != nil {
		severity = core.SeverityMedium
	}

	action := "Removed"
	if e.USBKind == core.USBAttach {
		action = "Attached"
	}

	lines := []string{
		fmt.Sprintf("USB Device %s", action),
		fmt.Sprintf("Device Name: %s", deviceName),
	}
	if label := extractLabel(e.USBName); label != "" {
		lines = append(lines, fmt.Sprintf("Label: %s", label))
	}
	if e.USBCapacityGB != nil {
		lines = append(lines, fmt.Sprintf("Capacity: %.2f GB", *e.USBCapacityGB))
	}

	deviceType := "USB Device"
	if strings.Contains(strings.ToLower(e.USBName), "storage") ||
		strings.Contains(strings.ToLower(e.USBPNPID), "disk") {
		deviceType = "Mass Storage"
	}
	lines = append(lines,
		fmt.Sprintf("Vendor: %s", extractVendor(deviceName)),
		fmt.Sprintf("Device Type: %s", deviceType),
		fmt.Sprintf("Risk Level: %s", severity.String()),
	)

	if e.USBKind == core.USBAttach && e.USBPNPID != "" {
		lines = append(lines, fmt.Sprintf("Device Path: %s", shortenPath(e.USBPNPID, 60)))
	}

	serial := extractSerial(e.USBPNPID)
	if len(serial) > 8 {
		serial = serial[:8]
	}
	title := fmt.Sprintf("USB Device %s: %s", action, serial)

	return severity, title, strings.Join(lines, "\n")
}
