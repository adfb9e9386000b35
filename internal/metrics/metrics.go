// Package metrics holds the Prometheus collectors for the service. Every
// collector lives on a dedicated registry so tests can build as many
// Metrics values as they like without clashing on the global one.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sakif/tracecode/internal/executor"
	"github.com/sakif/tracecode/internal/executor/sandbox"
)

const namespace = "tracecode"

// Metrics implements sandbox.Observer.
type Metrics struct {
	Registry *prometheus.Registry

	ExecutionsTotal    *prometheus.CounterVec
	ExecutionDuration  *prometheus.HistogramVec
	ExecutionErrors    *prometheus.CounterVec
	ActiveExecutions   prometheus.Gauge
	SpawnFailures      prometheus.Counter
	TruncatedOutputs   prometheus.Counter
	RateLimitRejects   prometheus.Counter
	SubmissionsCreated prometheus.Counter
}

var _ sandbox.Observer = (*Metrics)(nil)

func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		ExecutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "executions_total",
				Help:      "Total number of executions by language and status.",
			},
			[]string{"language", "status"},
		),

		ExecutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "execution_duration_seconds",
				Help:      "Wall-clock time of the child process.",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"language", "status"},
		),

		ExecutionErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "execution_errors_total",
				Help:      "Executions that failed inside the sandbox itself, by operation.",
			},
			[]string{"op"},
		),

		ActiveExecutions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_executions",
				Help:      "Number of executions currently holding a workspace.",
			},
		),

		SpawnFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "spawn_failures_total",
				Help:      "Executions whose interpreter could not be started.",
			},
		),

		TruncatedOutputs: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "truncated_outputs_total",
				Help:      "Executions whose output exceeded the capture limit.",
			},
		),

		RateLimitRejects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "api",
				Name:      "rate_limit_rejects_total",
				Help:      "Requests rejected by the rate limiter.",
			},
		),

		SubmissionsCreated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "submissions_created_total",
				Help:      "Submissions persisted after an execution.",
			},
		),
	}

	reg.MustRegister(
		m.ExecutionsTotal,
		m.ExecutionDuration,
		m.ExecutionErrors,
		m.ActiveExecutions,
		m.SpawnFailures,
		m.TruncatedOutputs,
		m.RateLimitRejects,
		m.SubmissionsCreated,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// languageLabel keeps label cardinality bounded: the language field is
// client-supplied, so anything outside the registry collapses to one value.
func languageLabel(language string) string {
	if _, ok := sandbox.Lookup(language); ok {
		return language
	}
	return "unsupported"
}

func (m *Metrics) ExecutionStarted(string) {
	m.ActiveExecutions.Inc()
}

func (m *Metrics) ExecutionFinished(language string, res *executor.ExecutionResult) {
	m.ActiveExecutions.Dec()
	lang := languageLabel(language)
	m.ExecutionsTotal.WithLabelValues(lang, string(res.Status)).Inc()
	if res.Status != executor.StatusCompilationError {
		m.ExecutionDuration.WithLabelValues(lang, string(res.Status)).Observe(res.ElapsedSeconds)
	}
	if res.SpawnFailed {
		m.SpawnFailures.Inc()
	}
	if res.Truncated {
		m.TruncatedOutputs.Inc()
	}
}

func (m *Metrics) ExecutionFailed(_, op string) {
	m.ActiveExecutions.Dec()
	m.ExecutionErrors.WithLabelValues(op).Inc()
}

// RateLimited implements middleware.RejectRecorder.
func (m *Metrics) RateLimited() {
	m.RateLimitRejects.Inc()
}

// SubmissionCreated implements service.SubmissionRecorder.
func (m *Metrics) SubmissionCreated() {
	m.SubmissionsCreated.Inc()
}
