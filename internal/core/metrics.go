package core

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline and dispatcher counters, exposed on the metrics listener.
var (
	CollectedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hostsentry_events_collected_total",
		Help: "Events collected per source channel.",
	}, []string{"channel"})

	EmittedAlerts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hostsentry_alerts_emitted_total",
		Help: "Alerts produced by detectors, before cooldown.",
	}, []string{"detector", "severity"})

	DispatchedAlerts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hostsentry_alerts_dispatched_total",
		Help: "Alerts that passed cooldown and were fanned out.",
	})

	SuppressedAlerts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hostsentry_alerts_suppressed_total",
		Help: "Alerts dropped by the title cooldown window.",
	})

	ChannelSendFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hostsentry_channel_send_failures_total",
		Help: "Delivery failures per notification channel.",
	}, []string{"channel"})

	PersistenceErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hostsentry_persistence_errors_total",
		Help: "Store writes that failed and were logged instead of retried.",
	})

	QueueDroppedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hostsentry_queue_dropped_events_total",
		Help: "Events dropped from a full watcher queue.",
	}, []string{"queue"})
)
