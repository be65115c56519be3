// Package metrics exposes Prometheus instrumentation for backend calls and
// the parsing and ranking steps.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	backendLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cv_analyzer_backend_latency_ms",
		Help:    "Latency of analysis and scoring backend calls in milliseconds",
		Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
	}, []string{"op", "backend"})

	backendCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cv_analyzer_backend_calls_total",
		Help: "Backend calls by operation and outcome",
	}, []string{"op", "backend", "outcome"})

	requirementsParsed = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cv_analyzer_requirements",
		Help:    "Number of requirements produced per analysis",
		Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
	}, []string{"source"})

	candidatesRanked = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cv_analyzer_candidates_ranked",
		Help:    "Number of candidates produced per scoring response",
		Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
	})

	filesIngested = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cv_analyzer_files_ingested_total",
		Help: "Uploaded files accepted or rejected by kind",
	}, []string{"kind", "result"})
)

func ensureRegistered() {
	once.Do(func() {
		prometheus.MustRegister(backendLatency, backendCalls, requirementsParsed, candidatesRanked, filesIngested)
	})
}

// Register makes sure the collectors are on the default registry before
// the first observation, so /metrics lists them from startup.
func Register() {
	ensureRegistered()
}

// ObserveBackend records latency and outcome of one backend call
func ObserveBackend(op, backend string, start time.Time, err error) {
	ensureRegistered()
	backendLatency.WithLabelValues(op, backend).Observe(float64(time.Since(start).Milliseconds()))
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	backendCalls.WithLabelValues(op, backend, outcome).Inc()
}

// ObserveRequirements records how many requirements an analysis produced
func ObserveRequirements(source string, n int) {
	ensureRegistered()
	requirementsParsed.WithLabelValues(source).Observe(float64(n))
}

// ObserveCandidates records how many candidates a scoring response held
func ObserveCandidates(n int) {
	ensureRegistered()
	candidatesRanked.Observe(float64(n))
}

// IncFiles counts uploaded files of a kind (jd, cv) by result (accepted, rejected)
func IncFiles(kind, result string, n int) {
	ensureRegistered()
	filesIngested.WithLabelValues(kind, result).Add(float64(n))
}
