// Package metrics defines the Prometheus metrics exported by simexchange.
package metrics

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric name.
const Namespace = "simexchange"

// Metrics groups the instruments used across services and the HTTP server.
type Metrics struct {
	// Wizard transitions by kind: advance, back, invalid, ignored, submit.
	WizardTransitions metrics.Counter
	// Validation failures by step name.
	ValidationFailures metrics.Counter
	// Resolved deployments by status.
	Deployments metrics.Counter
	// Seconds from submission to resolution.
	DeployDuration metrics.Histogram
	// Collateral transfers by action and result.
	CollateralMoves metrics.Counter
	// Selection watcher fetches by watcher and result.
	SelectorFetches metrics.Counter
	// HTTP request durations in seconds by method, route and status code.
	HTTPRequestDuration metrics.Histogram
}

// PrometheusMetrics registers the metrics with the default Prometheus
// registry. It must be called at most once per process.
func PrometheusMetrics(namespace string) *Metrics {
	return &Metrics{
		WizardTransitions: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wizard",
			Name:      "transitions_total",
			Help:      "Wizard events handled, by kind.",
		}, []string{"kind"}),
		ValidationFailures: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wizard",
			Name:      "validation_failures_total",
			Help:      "Step submissions rejected by validation, by step.",
		}, []string{"step"}),
		Deployments: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "deploy",
			Name:      "outcomes_total",
			Help:      "Resolved contract deployments, by status.",
		}, []string{"status"}),
		DeployDuration: prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "deploy",
			Name:      "duration_seconds",
			Help:      "Time from draft submission to deployment resolution.",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
		}, []string{}),
		CollateralMoves: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collateral",
			Name:      "transfers_total",
			Help:      "Collateral deposits and withdrawals, by action and result.",
		}, []string{"action", "result"}),
		SelectorFetches: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watch",
			Name:      "fetches_total",
			Help:      "Fetches issued by selection watchers, by watcher and result.",
		}, []string{"watcher", "result"}),
		HTTPRequestDuration: prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   stdprometheus.DefBuckets,
		}, []string{"method", "route", "code"}),
	}
}

// NopMetrics returns metrics that record nothing.
func NopMetrics() *Metrics {
	return &Metrics{
		WizardTransitions:   discard.NewCounter(),
		ValidationFailures:  discard.NewCounter(),
		Deployments:         discard.NewCounter(),
		DeployDuration:      discard.NewHistogram(),
		CollateralMoves:     discard.NewCounter(),
		SelectorFetches:     discard.NewCounter(),
		HTTPRequestDuration: discard.NewHistogram(),
	}
}
