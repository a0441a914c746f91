// Package metrics exposes Prometheus instruments for the validation service.
// A nil *ValidationMetrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ecodeli"

// Validation outcomes used as the "outcome" label
const (
	OutcomeValid    = "valid"
	OutcomeInvalid  = "invalid"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

type ValidationMetrics struct {
	registry *prometheus.Registry

	validationsTotal   *prometheus.CounterVec
	validationDuration *prometheus.HistogramVec
	validationInFlight prometheus.Gauge
	fallbacksTotal     *prometheus.CounterVec
	issuesTotal        *prometheus.CounterVec
	confidence         *prometheus.HistogramVec

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

func NewValidationMetrics(service string) *ValidationMetrics {
	registry := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"service": service}

	validationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "validation",
			Name:        "documents_total",
			Help:        "Total validated documents by backend and outcome.",
			ConstLabels: constLabels,
		},
		[]string{"backend", "outcome"},
	)
	validationDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "validation",
			Name:        "duration_seconds",
			Help:        "Document validation duration in seconds by backend.",
			Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			ConstLabels: constLabels,
		},
		[]string{"backend"},
	)
	validationInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "validation",
			Name:        "in_flight",
			Help:        "Number of in-flight document validations.",
			ConstLabels: constLabels,
		},
	)
	fallbacksTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "validation",
			Name:        "fallbacks_total",
			Help:        "Total backend failures answered by the filename classifier.",
			ConstLabels: constLabels,
		},
		[]string{"backend", "reason"},
	)
	issuesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "validation",
			Name:        "issues_total",
			Help:        "Total issues reported by code and severity.",
			ConstLabels: constLabels,
		},
		[]string{"code", "severity"},
	)
	confidence := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "validation",
			Name:        "confidence",
			Help:        "Distribution of final confidence scores.",
			Buckets:     []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
			ConstLabels: constLabels,
		},
		[]string{"category"},
	)
	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "http",
			Name:        "requests_total",
			Help:        "Total HTTP requests processed.",
			ConstLabels: constLabels,
		},
		[]string{"method", "route", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "http",
			Name:        "request_duration_seconds",
			Help:        "HTTP request duration in seconds.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		},
		[]string{"method", "route"},
	)

	registry.MustRegister(
		validationsTotal,
		validationDuration,
		validationInFlight,
		fallbacksTotal,
		issuesTotal,
		confidence,
		requestTotal,
		requestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &ValidationMetrics{
		registry:           registry,
		validationsTotal:   validationsTotal,
		validationDuration: validationDuration,
		validationInFlight: validationInFlight,
		fallbacksTotal:     fallbacksTotal,
		issuesTotal:        issuesTotal,
		confidence:         confidence,
		requestTotal:       requestTotal,
		requestDuration:    requestDuration,
	}
}

func (m *ValidationMetrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests
func (m *ValidationMetrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *ValidationMetrics) StartValidation() {
	if m == nil {
		return
	}
	m.validationInFlight.Inc()
}

// Observation is what a finished validation reports
type Observation struct {
	Backend    string
	Outcome    string
	Category   string
	Confidence float64
	FellBack   bool
	Reason     string
	Duration   time.Duration
	Issues     []IssueLabel
}

// IssueLabel is the label pair of one reported issue
type IssueLabel struct {
	Code     string
	Severity string
}

func (m *ValidationMetrics) FinishValidation(o Observation) {
	if m == nil {
		return
	}
	m.validationInFlight.Dec()

	backend := o.Backend
	if backend == "" {
		backend = "none"
	}
	m.validationsTotal.WithLabelValues(backend, o.Outcome).Inc()
	m.validationDuration.WithLabelValues(backend).Observe(o.Duration.Seconds())

	if o.FellBack {
		reason := o.Reason
		if reason == "" {
			reason = "unknown"
		}
		m.fallbacksTotal.WithLabelValues(backend, reason).Inc()
	}
	for _, issue := range o.Issues {
		m.issuesTotal.WithLabelValues(issue.Code, issue.Severity).Inc()
	}
	if o.Outcome != OutcomeRejected && o.Outcome != OutcomeFailed {
		m.confidence.WithLabelValues(o.Category).Observe(o.Confidence)
	}
}

// Middleware records request counts and durations labelled by chi route
// pattern, so path parameters do not explode cardinality.
func (m *ValidationMetrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(recorder, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		m.requestTotal.WithLabelValues(r.Method, route, strconv.Itoa(recorder.statusCode)).Inc()
		m.requestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
