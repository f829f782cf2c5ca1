package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Access decision metrics
	AccessDecisions *prometheus.CounterVec
	DecisionLatency prometheus.Histogram

	// Grant lifecycle metrics
	GrantTransitions *prometheus.CounterVec

	// Audit metrics
	AuditAppends  prometheus.Counter
	AuditFailures prometheus.Counter

	// Token metrics
	TokenCollisions prometheus.Counter

	// Outbox metrics
	OutboxEventsProcessed   prometheus.Counter
	OutboxEventsFailed      prometheus.Counter
	OutboxProcessingLatency prometheus.Histogram

	// Database metrics
	DatabaseOperations *prometheus.CounterVec
}

// New creates and registers all application metrics
func New(namespace string) *Metrics {
	return &Metrics{
		AccessDecisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "access_decisions_total",
			Help:      "Access decisions by outcome and access type",
		}, []string{"outcome", "access_type"}),
		DecisionLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "access_decision_duration_seconds",
			Help:      "Time spent evaluating the access predicate",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		GrantTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grant_transitions_total",
			Help:      "Grant lifecycle transitions by kind",
		}, []string{"transition"}),
		AuditAppends: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_appends_total",
			Help:      "Share token access log rows appended",
		}),
		AuditFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_failures_total",
			Help:      "Audit writes that failed and aborted the access",
		}),
		TokenCollisions: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_collisions_total",
			Help:      "Token generation retries caused by a unique constraint hit",
		}),
		OutboxEventsProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_events_processed_total",
			Help:      "Outbox events published successfully",
		}),
		OutboxEventsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_events_failed_total",
			Help:      "Outbox events that failed publication",
		}),
		OutboxProcessingLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "outbox_processing_duration_seconds",
			Help:      "Time spent processing outbox batches",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		DatabaseOperations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "database_operations_total",
			Help:      "Database operations by name and status",
		}, []string{"operation", "status"}),
	}
}
