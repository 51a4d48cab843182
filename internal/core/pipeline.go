package core

import (
	"github.com/rs/zerolog"
)

// Detector is the interface implemented by all detection rules. Detect
// consumes one batch of normalized events plus any internal state the
// detector carries, and returns zero or more alerts. Detectors are
// called from the main cycle goroutine only and must not perform I/O.
type Detector interface {
	// Name returns the unique name of the detector.
	Name() string
	// Detect evaluates a batch of normalized events.
	Detect(events []Event) []*Alert
}

// Pipeline runs all registered detectors over a batch and concatenates
// their alerts. A panicking detector is recovered and logged so a rule
// defect can never terminate the monitoring loop.
type Pipeline struct {
	detectors []Detector
	logger    zerolog.Logger
}

// NewPipeline creates a Pipeline.
func NewPipeline(logger zerolog.Logger, detectors ...Detector) *Pipeline {
	return &Pipeline{
		detectors: detectors,
		logger:    logger.With().Str("component", "pipeline").Logger(),
	}
}

// RunCycle normalizes the batch and runs every detector over it in
// registration order. Pure detection: no persistence, no network. An
// empty batch yields an empty (nil) alert list.
func (p *Pipeline) RunCycle(batch []Event) []*Alert {
	if len(batch) == 0 {
		return nil
	}

	normalized := make([]Event, len(batch))
	for i, e := range batch {
		normalized[i] = Normalize(e)
	}

	var alerts []*Alert
	for _, det := range p.detectors {
		alerts = append(alerts, p.safeDetect(det, normalized)...)
	}

	p.logger.Debug().
		Int("events", len(batch)).
		Int("alerts", len(alerts)).
		Msg("detection cycle complete")
	return alerts
}

func (p *Pipeline) safeDetect(det Detector, events []Event) (alerts []*Alert) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().
				Str("detector", det.Name()).
				Interface("panic", r).
				Msg("detector panicked; skipping for this cycle")
			alerts = nil
		}
	}()

	alerts = det.Detect(events)
	for _, a := range alerts {
		EmittedAlerts.WithLabelValues(det.Name(), a.Severity.String()).Inc()
	}
	return alerts
}
