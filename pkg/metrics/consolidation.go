package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ConsolidationMetrics records outcomes of consolidation runs.
type ConsolidationMetrics struct {
	runs       *prometheus.CounterVec
	payments   prometheus.Counter
	deliveries prometheus.Counter
	failures   *prometheus.CounterVec
}

// NewConsolidationMetrics registers the consolidation metrics on the provided registerer.
func NewConsolidationMetrics(reg prometheus.Registerer) *ConsolidationMetrics {
	if reg == nil {
		return &ConsolidationMetrics{}
	}
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "consolidation_runs_total",
		Help: "Consolidation runs, by trigger (scheduled/manual).",
	}, []string{"trigger"})
	payments := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consolidation_payments_created_total",
		Help: "Consolidated payments created.",
	})
	deliveries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consolidation_deliveries_included_total",
		Help: "Delivery orders included in consolidated payments.",
	})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "consolidation_group_failures_total",
		Help: "Invoice groups that failed, by reason.",
	}, []string{"reason"})
	reg.MustRegister(runs, payments, deliveries, failures)
	return &ConsolidationMetrics{
		runs:       runs,
		payments:   payments,
		deliveries: deliveries,
		failures:   failures,
	}
}

// IncRun counts one run for the given trigger.
func (c *ConsolidationMetrics) IncRun(trigger string) {
	if c == nil || c.runs == nil {
		return
	}
	if trigger == "" {
		trigger = "unknown"
	}
	c.runs.WithLabelValues(trigger).Inc()
}

// AddPayments counts created payments.
func (c *ConsolidationMetrics) AddPayments(n int) {
	if c == nil || c.payments == nil || n <= 0 {
		return
	}
	c.payments.Add(float64(n))
}

// AddDeliveries counts deliveries included in created payments.
func (c *ConsolidationMetrics) AddDeliveries(n int) {
	if c == nil || c.deliveries == nil || n <= 0 {
		return
	}
	c.deliveries.Add(float64(n))
}

// IncFailure counts one failed group with a coarse reason label.
func (c *ConsolidationMetrics) IncFailure(reason string) {
	if c == nil || c.failures == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	c.failures.WithLabelValues(reason).Inc()
}
