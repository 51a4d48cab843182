package core

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Severity represents the severity level of an alert.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "INFO"
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Severity) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	switch str {
	case "INFO":
		*s = SeverityInfo
	case "LOW":
		*s = SeverityLow
	case "MEDIUM":
		*s = SeverityMedium
	case "HIGH":
		*s = SeverityHigh
	case "CRITICAL":
		*s = SeverityCritical
	default:
		*s = SeverityInfo
	}
	return nil
}

// USBKind is the direction of a USB hardware notification.
type USBKind string

const (
	USBAttach USBKind = "attach"
	USBRemove USBKind = "remove"
)

// Event is one observed security signal collected from an event log
// channel or one of the real-time watchers. Timestamps come from the
// source clock and are not globally ordered.
type Event struct {
	Timestamp string  `json:"timestamp"`
	Channel   string  `json:"channel"`
	EventID   int     `json:"event_id"`
	User      string  `json:"user,omitempty"`
	IP        string  `json:"ip,omitempty"`
	Command   string  `json:"command,omitempty"`
	Message   string  `json:"message,omitempty"`
	USBKind   USBKind `json:"usb_kind,omitempty"`
	USBName   string  `json:"usb_name,omitempty"`
	USBModel  string  `json:"usb_model,omitempty"`
	// USBCapacityGB is nil when the device reported no size.
	USBCapacityGB *float64 `json:"usb_capacity_gb,omitempty"`
	USBPNPID      string   `json:"usb_pnp_id,omitempty"`
}

// Time parses the event timestamp, falling back to the supplied instant
// when the field is empty or malformed. Events are never dropped for a
// bad clock.
func (e *Event) Time(fallback time.Time) time.Time {
	if e.Timestamp == "" {
		return fallback
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
		if ts, err := time.Parse(layout, e.Timestamp); err == nil {
			return ts
		}
	}
	return fallback
}

// Alert is one decision to notify. Terminal after persistence and a
// dispatch attempt; never retried as a unit.
type Alert struct {
	ID          string    `json:"id"`
	Severity    Severity  `json:"severity"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Detector    string    `json:"detector,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewAlert creates an Alert with a generated ID and current timestamp.
func NewAlert(detector string, severity Severity, title, description string) *Alert {
	return &Alert{
		ID:          uuid.New().String(),
		Severity:    severity,
		Title:       title,
		Description: description,
		Detector:    detector,
		CreatedAt:   time.Now().UTC(),
	}
}

// Marshal serializes the alert to JSON.
func (a *Alert) Marshal() ([]byte, error) {
	return json.Marshal(a)
}

// UnmarshalAlert deserializes an Alert from JSON.
func UnmarshalAlert(data []byte) (*Alert, error) {
	var alert Alert
	if err := json.Unmarshal(data, &alert); err != nil {
		return nil, err
	}
	return &alert, nil
}
