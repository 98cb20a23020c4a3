package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Audit facade outcomes
var (
	// AuditLogOutcomes counts facade calls by outcome (logged, skipped, failed).
	AuditLogOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_audit_log_outcomes_total",
			Help: "Audit facade calls by outcome",
		},
		[]string{"outcome", "action"},
	)
)

// Realtime fan-out
var (
	RealtimeSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "inventory_audit_realtime_subscribers",
			Help: "Currently connected realtime subscribers",
		},
	)

	RealtimeDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inventory_audit_realtime_delivered_total",
			Help: "Audit events queued to realtime subscribers",
		},
	)

	// RealtimeDropped counts events dropped because a subscriber buffer was full.
	RealtimeDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inventory_audit_realtime_dropped_total",
			Help: "Audit events dropped for slow realtime subscribers",
		},
	)

	PublishFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_audit_publish_failures_total",
			Help: "Audit notification sink failures",
		},
		[]string{"sink"},
	)
)
