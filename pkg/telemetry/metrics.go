package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the control plane. A disabled or
// nil Metrics records nothing; every method is safe to call regardless.
type Metrics struct {
	config MetricsConfig

	// Control plane operations (plan, apply)
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec

	// Configuration changes
	changesApplied *prometheus.CounterVec

	// Workflow lifecycle operations
	workflowOperations *prometheus.CounterVec

	// Policy gate verdicts
	policyVerdicts *prometheus.CounterVec

	// Compatibility validation issues
	compatibilityIssues *prometheus.CounterVec

	// Error metrics
	errorsByClass *prometheus.CounterVec
	errorsByCode  *prometheus.CounterVec

	// HTTP surface
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	// System metrics
	activeOperations prometheus.Gauge
	auditEntries     prometheus.Gauge
	auditEvictions   prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
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

		operationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total number of control plane operations by outcome",
			},
			[]string{"operation", "outcome"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of control plane operations in seconds",
				Buckets:   buckets,
			},
			[]string{"operation"},
		),

		changesApplied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "changes_applied_total",
				Help:      "Total number of configuration changes applied",
			},
			[]string{"resource_type", "apply_mode"},
		),

		workflowOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workflow_operations_total",
				Help:      "Total number of workflow lifecycle operations",
			},
			[]string{"operation", "outcome"},
		),

		policyVerdicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "policy_verdicts_total",
				Help:      "Total number of policy gate verdicts",
			},
			[]string{"policy", "severity"},
		),

		compatibilityIssues: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "compatibility_issues_total",
				Help:      "Total number of compatibility issues found during planning",
			},
			[]string{"dimension"},
		),

		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of errors by error class",
			},
			[]string{"class"},
		),
		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_code_total",
				Help:      "Total number of errors by error code",
			},
			[]string{"code"},
		),

		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   buckets,
			},
			[]string{"method", "path"},
		),

		activeOperations: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_operations",
				Help:      "Current number of in-flight plan and apply operations",
			},
		),
		auditEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "audit_entries",
				Help:      "Current number of entries held in the audit trail",
			},
		),
		auditEvictions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "audit_evictions_total",
				Help:      "Total number of audit entries evicted by the retention cap",
			},
		),
	}

	registry.MustRegister(
		m.operationsTotal,
		m.operationDuration,
		m.changesApplied,
		m.workflowOperations,
		m.policyVerdicts,
		m.compatibilityIssues,
		m.errorsByClass,
		m.errorsByCode,
		m.requestsTotal,
		m.requestDuration,
		m.activeOperations,
		m.auditEntries,
		m.auditEvictions,
	)

	return m, nil
}

// RecordOperation records a plan or apply call with its outcome and duration.
func (m *Metrics) RecordOperation(operation, outcome string, duration time.Duration) {
	if m == nil || m.operationsTotal == nil {
		return
	}
	m.operationsTotal.WithLabelValues(operation, outcome).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordChange records one applied configuration change.
func (m *Metrics) RecordChange(resourceType, applyMode string) {
	if m == nil || m.changesApplied == nil {
		return
	}
	m.changesApplied.WithLabelValues(resourceType, applyMode).Inc()
}

// RecordWorkflowOperation records a workflow lifecycle operation.
func (m *Metrics) RecordWorkflowOperation(operation, outcome string) {
	if m == nil || m.workflowOperations == nil {
		return
	}
	m.workflowOperations.WithLabelValues(operation, outcome).Inc()
}

// RecordPolicyVerdict records one policy gate verdict.
func (m *Metrics) RecordPolicyVerdict(policy, severity string) {
	if m == nil || m.policyVerdicts == nil {
		return
	}
	m.policyVerdicts.WithLabelValues(policy, severity).Inc()
}

// RecordCompatibilityIssue records one compatibility issue by dimension.
func (m *Metrics) RecordCompatibilityIssue(dimension string) {
	if m == nil || m.compatibilityIssues == nil {
		return
	}
	m.compatibilityIssues.WithLabelValues(dimension).Inc()
}

// RecordError records an error by class and optionally by code.
func (m *Metrics) RecordError(errorClass, errorCode string) {
	if m == nil || m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass).Inc()
	if errorCode != "" && m.errorsByCode != nil {
		m.errorsByCode.WithLabelValues(errorCode).Inc()
	}
}

// RecordHTTPRequest records one HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil || m.requestsTotal == nil {
		return
	}
	m.requestsTotal.WithLabelValues(method, path, status).Inc()
	m.requestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// SetActiveOperations sets the current number of in-flight operations.
func (m *Metrics) SetActiveOperations(count float64) {
	if m == nil || m.activeOperations == nil {
		return
	}
	m.activeOperations.Set(count)
}

// SetAuditEntries sets the current size of the audit trail.
func (m *Metrics) SetAuditEntries(count float64) {
	if m == nil || m.auditEntries == nil {
		return
	}
	m.auditEntries.Set(count)
}

// RecordAuditEvictions records entries dropped from the audit trail by its
// retention cap.
func (m *Metrics) RecordAuditEvictions(count int) {
	if m == nil || m.auditEvictions == nil {
		return
	}
	m.auditEvictions.Add(float64(count))
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

// ObserveDuration is a helper to time an operation and record it.
func (t *Timer) ObserveDuration(observer prometheus.Observer) {
	observer.Observe(t.Duration().Seconds())
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
