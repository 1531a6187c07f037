// Package metrics holds the Prometheus instruments of the fuel service.
//
// All methods are safe on a nil *Metrics, which records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "fleet_fuel"

// Event kinds.
const (
	KindGoingDO      = "going_do"
	KindReturnDO     = "return_do"
	KindLPO          = "lpo"
	KindYardDispense = "yard_dispense"
)

// Event outcomes.
const (
	OutcomeCreated  = "created"
	OutcomeLinked   = "linked"
	OutcomeOrphaned = "orphaned"
	OutcomePending  = "pending"
	OutcomeConflict = "conflict"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// Notification outcomes.
const (
	NoticeEmitted       = "emitted"
	NoticeDeduplicated  = "deduplicated"
	NoticePublishFailed = "publish_failed"
)

// Metrics groups the service instruments.
type Metrics struct {
	// EventsTotal counts ingested events. Labels: kind, outcome
	EventsTotal *prometheus.CounterVec

	// BalanceAnomaliesTotal counts mutations that left a record with a
	// negative balance.
	BalanceAnomaliesTotal prometheus.Counter

	// NotificationsTotal counts deficiency notices. Labels: type, outcome
	NotificationsTotal *prometheus.CounterVec

	// OperationDuration measures service operations. Labels: operation
	OperationDuration *prometheus.HistogramVec
}

// New registers the instruments on reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_total",
				Help:      "Ingested delivery orders, LPOs and yard dispenses by outcome",
			},
			[]string{"kind", "outcome"},
		),
		BalanceAnomaliesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "balance_anomalies_total",
				Help:      "Record mutations that produced a negative balance",
			},
		),
		NotificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_total",
				Help:      "Deficiency notifications by type and outcome",
			},
			[]string{"type", "outcome"},
		),
		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of fuel service operations",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"operation"},
		),
	}
}

func (m *Metrics) RecordEvent(kind, outcome string) {
	if m == nil {
		return
	}
	m.EventsTotal.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) RecordAnomaly() {
	if m == nil {
		return
	}
	m.BalanceAnomaliesTotal.Inc()
}

func (m *Metrics) RecordNotification(kind, outcome string) {
	if m == nil {
		return
	}
	m.NotificationsTotal.WithLabelValues(kind, outcome).Inc()
}

// ObserveSince records the time elapsed since start. Use with defer.
func (m *Metrics) ObserveSince(operation string, start time.Time) {
	if m == nil {
		return
	}
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
