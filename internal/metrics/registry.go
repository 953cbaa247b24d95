// Package metrics exposes the Prometheus instruments of the ranking
// pipeline. Every method is safe on a nil *Registry so callers can run
// without metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const namespace = "fundrank"

// Step names a pipeline stage
type Step string

const (
	StepFetch     Step = "fetch"
	StepNormalize Step = "normalize"
	StepMatch     Step = "match"
	StepEnrich    Step = "enrich"
	StepRank      Step = "rank"
)

// Result labels the outcome of a step or run
type Result string

const (
	ResultSuccess  Result = "success"
	ResultError    Result = "error"
	ResultDegraded Result = "degraded"
)

// Registry holds all Prometheus metrics for fundrank
type Registry struct {
	reg *prometheus.Registry

	Runs              *prometheus.CounterVec
	StepDuration      *prometheus.HistogramVec
	UnmatchedFunds    *prometheus.CounterVec
	MetricUnavailable *prometheus.CounterVec
	MalformedRecords  *prometheus.CounterVec
	ProviderRequests  *prometheus.CounterVec
	CircuitState      *prometheus.GaugeVec
}

// NewRegistry creates a registry with every fundrank metric plus the Go and
// process collectors
func NewRegistry() *Registry {
	m := &Registry{
		reg: prometheus.NewRegistry(),

		Runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Ranking runs by category and result",
			},
			[]string{"category", "result"},
		),

		StepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_duration_seconds",
				Help:      "Duration of each pipeline step in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"step", "result"},
		),

		UnmatchedFunds: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "unmatched_funds_total",
				Help:      "Funds with no counterpart in the reference provider",
			},
			[]string{"category"},
		),

		MetricUnavailable: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "metric_unavailable_total",
				Help:      "Derived metrics that could not be fetched and were set to zero",
			},
			[]string{"metric"},
		),

		MalformedRecords: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "malformed_records_total",
				Help:      "Provider record fields that were missing or unparsable",
			},
			[]string{"provider", "field"},
		),

		ProviderRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_requests_total",
				Help:      "Outbound provider requests by outcome",
			},
			[]string{"provider", "outcome"},
		),

		CircuitState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_state",
				Help:      "Circuit breaker state per provider (0=closed, 1=half-open, 2=open)",
			},
			[]string{"provider"},
		),
	}

	m.reg.MustRegister(
		m.Runs,
		m.StepDuration,
		m.UnmatchedFunds,
		m.MetricUnavailable,
		m.MalformedRecords,
		m.ProviderRequests,
		m.CircuitState,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Gatherer returns the underlying registry for scraping and tests
func (m *Registry) Gatherer() prometheus.Gatherer {
	if m == nil {
		return prometheus.NewRegistry()
	}
	return m.reg
}

// Handler returns an HTTP handler serving this registry
func (m *Registry) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// StepTimer tracks execution time for a pipeline step
type StepTimer struct {
	metrics *Registry
	step    Step
	start   time.Time
}

// StartStepTimer begins timing a pipeline step
func (m *Registry) StartStepTimer(step Step) *StepTimer {
	return &StepTimer{metrics: m, step: step, start: time.Now()}
}

// Stop completes the step timing and records it. It returns the elapsed time.
func (st *StepTimer) Stop(result Result) time.Duration {
	d := time.Since(st.start)
	if st.metrics != nil {
		st.metrics.StepDuration.WithLabelValues(string(st.step), string(result)).Observe(d.Seconds())
	}
	log.Debug().
		Str("step", string(st.step)).
		Str("result", string(result)).
		Dur("duration", d).
		Msg("Pipeline step completed")
	return d
}

// RecordRun counts a finished run
func (m *Registry) RecordRun(category string, result Result) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(category, string(result)).Inc()
}

// RecordUnmatched counts funds that found no reference counterpart
func (m *Registry) RecordUnmatched(category string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.UnmatchedFunds.WithLabelValues(category).Add(float64(n))
}

// RecordMetricUnavailable counts one derived metric set to zero
func (m *Registry) RecordMetricUnavailable(metric string) {
	if m == nil {
		return
	}
	m.MetricUnavailable.WithLabelValues(metric).Inc()
}

// RecordMalformed counts defaulted fields of one provider
func (m *Registry) RecordMalformed(provider, field string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.MalformedRecords.WithLabelValues(provider, field).Add(float64(n))
}

// RecordProviderRequest counts an outbound request by outcome
// ("ok", "error", "cache_hit")
func (m *Registry) RecordProviderRequest(provider, outcome string) {
	if m == nil {
		return
	}
	m.ProviderRequests.WithLabelValues(provider, outcome).Inc()
}

// SetCircuitState records the breaker state of a provider
func (m *Registry) SetCircuitState(provider string, state int) {
	if m == nil {
		return
	}
	m.CircuitState.WithLabelValues(provider).Set(float64(state))
}
