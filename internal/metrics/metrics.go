// Package metrics holds the Prometheus collectors of the safety core.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Ledger
	LedgerOperations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "safety_core_ledger_operations_total",
		Help: "Ledger credit/debit calls grouped by outcome (applied, replayed, insufficient_funds, conflict, error)",
	}, []string{"type", "outcome"})
	LedgerReconcileDrift = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "safety_core_ledger_reconcile_drift_total",
		Help: "Wallets found with a cached balance that disagrees with the transaction sum",
	})

	// Control gate
	GateDecisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "safety_core_gate_decisions_total",
		Help: "checkAction decisions grouped by action, decision and block kind",
	}, []string{"action", "decision", "kind"})
	FlagChanges = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "safety_core_flag_changes_total",
		Help: "Control flag writes grouped by key and scope",
	}, []string{"key", "scope"})
	FlagSnapshotErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "safety_core_flag_snapshot_errors_total",
		Help: "Failed reloads of the control flag snapshot",
	})

	// Failure tracker
	FailureTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "safety_core_failure_transitions_total",
		Help: "Failure state transitions grouped by category and outcome (created, updated, unchanged, resolved)",
	}, []string{"category", "outcome"})

	// Audit log
	AuditWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "safety_core_audit_writes_total",
		Help: "Audit write attempts grouped by result (stored, queued, retried, invalid)",
	}, []string{"result"})
	AuditLost = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "safety_core_audit_dead_lettered_total",
		Help: "Audit events that left the retry queue without being stored, by reason",
	}, []string{"reason"})
	AuditRetryQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "safety_core_audit_retry_queue_depth",
		Help: "Audit events waiting for a retry",
	})

	// Payment events
	PaymentEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "safety_core_payment_events_total",
		Help: "Consumed payment events grouped by type and result",
	}, []string{"type", "result"})
)

func init() {
	prometheus.MustRegister(LedgerOperations)
	prometheus.MustRegister(LedgerReconcileDrift)
	prometheus.MustRegister(GateDecisions)
	prometheus.MustRegister(FlagChanges)
	prometheus.MustRegister(FlagSnapshotErrors)
	prometheus.MustRegister(FailureTransitions)
	prometheus.MustRegister(AuditWrites)
	prometheus.MustRegister(AuditLost)
	prometheus.MustRegister(AuditRetryQueueDepth)
	prometheus.MustRegister(PaymentEvents)
}

// Handler returns an http.Handler exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
