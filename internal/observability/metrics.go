package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce         sync.Once
	matchingRunsTotal    *prometheus.CounterVec
	transitionsTotal     *prometheus.CounterVec
	requestsTotal        *prometheus.CounterVec
	requestLatencySecond *prometheus.HistogramVec
)

// RegisterMetrics initialises the Prometheus collectors used by the engine.
func RegisterMetrics() {
	registerOnce.Do(func() {
		matchingRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "peerlens_matching_runs_total",
			Help: "Total number of evaluator matching runs, by strategy and outcome.",
		}, []string{"strategy", "outcome"})

		transitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "peerlens_evaluation_transitions_total",
			Help: "Total number of evaluation lifecycle transitions, by target status.",
		}, []string{"status"})

		requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "peerlens_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		requestLatencySecond = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "peerlens_request_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		prometheus.MustRegister(matchingRunsTotal, transitionsTotal, requestsTotal, requestLatencySecond)
	})
}

// MatchingRuns exposes the counter for generator runs.
func MatchingRuns() *prometheus.CounterVec {
	RegisterMetrics()
	return matchingRunsTotal
}

// EvaluationTransitions exposes the counter for lifecycle transitions.
func EvaluationTransitions() *prometheus.CounterVec {
	RegisterMetrics()
	return transitionsTotal
}

// Requests exposes the counter for API requests.
func Requests() *prometheus.CounterVec {
	RegisterMetrics()
	return requestsTotal
}

// RequestLatency exposes the latency histogram for API requests.
func RequestLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return requestLatencySecond
}
