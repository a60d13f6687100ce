// Package metrics exposes Prometheus collectors for the advisory engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "advisor"

// Plan outcomes
const (
	PlanProposed     = "proposed"
	PlanNoAction     = "no_action"
	PlanConflict     = "conflict"
	PlanStale        = "stale"
	PlanFailed       = "failed"
	PlanAccepted     = "accepted"
	PlanAcceptFailed = "accept_failed"
)

// Metrics holds the engine's collectors on a dedicated registry
type Metrics struct {
	registry *prometheus.Registry

	verdicts       *prometheus.CounterVec
	ruleFailures   *prometheus.CounterVec
	driftChecks    *prometheus.CounterVec
	driftMagnitude prometheus.Histogram
	plans          *prometheus.CounterVec
	iterations     prometheus.Histogram
	reviewRuns     prometheus.Counter
	reviewLatency  prometheus.Histogram
	clients        prometheus.Gauge
}

// New creates and registers every collector
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		verdicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "compliance_verdicts_total",
				Help:      "Compliance verdicts by outcome",
			},
			[]string{"outcome"},
		),
		ruleFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "compliance_rule_failures_total",
				Help:      "Failed compliance rules by rule and severity",
			},
			[]string{"rule", "severity"},
		),
		driftChecks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "drift_checks_total",
				Help:      "Drift evaluations by trigger reason",
			},
			[]string{"reason"},
		),
		driftMagnitude: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "drift_magnitude",
				Help:      "Largest per-class drift observed at each evaluation",
				Buckets:   []float64{0.01, 0.02, 0.03, 0.05, 0.075, 0.1, 0.15, 0.25},
			},
		),
		plans: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rebalancing_plans_total",
				Help:      "Rebalancing plan attempts by outcome",
			},
			[]string{"outcome"},
		),
		iterations: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "planner_resolution_iterations",
				Help:      "Conflict resolution rounds needed per proposed plan",
				Buckets:   prometheus.LinearBuckets(0, 1, 6),
			},
		),
		reviewRuns: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "review_runs_total",
				Help:      "Completed scheduled drift reviews",
			},
		),
		reviewLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "review_duration_seconds",
				Help:      "Wall time of a scheduled drift review across all clients",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
		),
		clients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "clients",
				Help:      "Registered clients",
			},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.verdicts,
		m.ruleFailures,
		m.driftChecks,
		m.driftMagnitude,
		m.plans,
		m.iterations,
		m.reviewRuns,
		m.reviewLatency,
		m.clients,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveVerdict counts a verdict and each of its failed rules
func (m *Metrics) ObserveVerdict(passed bool, failed map[string]string) {
	outcome := "fail"
	if passed {
		outcome = "pass"
	}
	m.verdicts.WithLabelValues(outcome).Inc()
	for rule, severity := range failed {
		m.ruleFailures.WithLabelValues(rule, severity).Inc()
	}
}

// ObserveDrift records a drift evaluation
func (m *Metrics) ObserveDrift(reason string, magnitude float64) {
	m.driftChecks.WithLabelValues(reason).Inc()
	m.driftMagnitude.Observe(magnitude)
}

// ObservePlan records a planning outcome
func (m *Metrics) ObservePlan(outcome string) {
	m.plans.WithLabelValues(outcome).Inc()
}

// ObserveIterations records the resolution rounds of a proposed plan
func (m *Metrics) ObserveIterations(n int) {
	m.iterations.Observe(float64(n))
}

// ObserveReview records a completed scheduled review
func (m *Metrics) ObserveReview(d time.Duration) {
	m.reviewRuns.Inc()
	m.reviewLatency.Observe(d.Seconds())
}

// SetClients sets the registered client count
func (m *Metrics) SetClients(n int) {
	m.clients.Set(float64(n))
}
