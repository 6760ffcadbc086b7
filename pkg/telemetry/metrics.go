package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the guardrails engine. A nil or
// disabled *Metrics is a valid no-op.
type Metrics struct {
	config MetricsConfig

	// Evaluation metrics
	evaluations        *prometheus.CounterVec
	evaluationDuration *prometheus.HistogramVec
	violations         *prometheus.CounterVec

	// Policy metrics
	policiesLoaded   prometheus.Gauge
	policiesRejected *prometheus.CounterVec
	unsafePatterns   *prometheus.CounterVec

	// Collaborator metrics
	storeErrors  *prometheus.CounterVec
	driftChecks  *prometheus.CounterVec
	remediations prometheus.Counter

	// HTTP metrics
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		evaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "evaluations_total",
				Help:      "Total number of policy evaluations",
			},
			[]string{"target", "passed"},
		),
		evaluationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "evaluation_duration_seconds",
				Help:      "Duration of policy evaluations in seconds",
				Buckets:   buckets,
			},
			[]string{"target"},
		),
		violations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "violations_total",
				Help:      "Total number of violations found",
			},
			[]string{"severity"},
		),

		policiesLoaded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "policies_loaded",
				Help:      "Number of policies in the catalog",
			},
		),
		policiesRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "policies_rejected_total",
				Help:      "Total number of policy definitions rejected at load",
			},
			[]string{"reason"},
		),
		unsafePatterns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "unsafe_patterns_total",
				Help:      "Total number of regular expressions refused by the safety guard",
			},
			[]string{"stage"},
		),

		storeErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_errors_total",
				Help:      "Total number of result store failures",
			},
			[]string{"op"},
		),
		driftChecks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "drift_checks_total",
				Help:      "Total number of drift checks by risk level",
			},
			[]string{"risk"},
		),
		remediations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "remediations_total",
				Help:      "Total number of remediation suggestions issued",
			},
		),

		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   buckets,
			},
			[]string{"method", "route"},
		),
	}

	registry.MustRegister(
		m.evaluations,
		m.evaluationDuration,
		m.violations,
		m.policiesLoaded,
		m.policiesRejected,
		m.unsafePatterns,
		m.storeErrors,
		m.driftChecks,
		m.remediations,
		m.httpRequests,
		m.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m, nil
}

func (m *Metrics) enabled() bool {
	return m != nil && m.registry != nil
}

// Evaluation Metrics

// RecordEvaluation records a finished evaluation of the given target kind.
func (m *Metrics) RecordEvaluation(target string, passed bool, duration time.Duration) {
	if !m.enabled() {
		return
	}
	m.evaluations.WithLabelValues(target, strconv.FormatBool(passed)).Inc()
	m.evaluationDuration.WithLabelValues(target).Observe(duration.Seconds())
}

// RecordViolations adds count violations of the given severity.
func (m *Metrics) RecordViolations(severity string, count int) {
	if !m.enabled() || count <= 0 {
		return
	}
	m.violations.WithLabelValues(severity).Add(float64(count))
}

// Policy Metrics

// SetPoliciesLoaded sets the catalog size.
func (m *Metrics) SetPoliciesLoaded(count int) {
	if !m.enabled() {
		return
	}
	m.policiesLoaded.Set(float64(count))
}

// RecordPolicyRejected records a definition dropped at load.
func (m *Metrics) RecordPolicyRejected(reason string) {
	if !m.enabled() {
		return
	}
	m.policiesRejected.WithLabelValues(reason).Inc()
}

// RecordUnsafePattern records a pattern refused by the guard at the given stage.
func (m *Metrics) RecordUnsafePattern(stage string) {
	if !m.enabled() {
		return
	}
	m.unsafePatterns.WithLabelValues(stage).Inc()
}

// Collaborator Metrics

// RecordStoreError records a failed store operation.
func (m *Metrics) RecordStoreError(op string) {
	if !m.enabled() {
		return
	}
	m.storeErrors.WithLabelValues(op).Inc()
}

// RecordDriftCheck records a drift check graded at risk.
func (m *Metrics) RecordDriftCheck(risk string) {
	if !m.enabled() {
		return
	}
	m.driftChecks.WithLabelValues(risk).Inc()
}

// RecordRemediations adds count issued remediation suggestions.
func (m *Metrics) RecordRemediations(count int) {
	if !m.enabled() || count <= 0 {
		return
	}
	m.remediations.Add(float64(count))
}

// HTTP Metrics

// RecordHTTPRequest records a served HTTP request.
func (m *Metrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if !m.enabled() {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if !m.enabled() {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
