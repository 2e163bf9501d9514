package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "soe"

// Registry holds the engine's Prometheus collectors. A nil *Registry is valid and records
// nothing, which keeps tests and tools free of metric plumbing.
type Registry struct {
	transitions          *prometheus.CounterVec
	conflictRetries      prometheus.Counter
	deniedAnomalies      *prometheus.CounterVec
	timelineInconsistent prometheus.Counter
	roleResolutions      *prometheus.CounterVec
	auditSinkFailures    *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// NewRegistry registers all collectors on reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	f := promauto.With(reg)
	return &Registry{
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "transitions_total",
			Help:      "Incident lifecycle operations by result and reason",
		}, []string{"operation", "result", "reason"}),
		conflictRetries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "conflict_retries_total",
			Help:      "Automatic re-fetch and re-evaluate cycles after an optimistic check failed",
		}),
		deniedAnomalies: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "persistence",
			Name:      "denied_anomalies_total",
			Help:      "Operations approved in process but denied by persistence policy",
		}, []string{"operation"}),
		timelineInconsistent: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "timeline",
			Name:      "inconsistencies_total",
			Help:      "Row writes whose event append and compensation both failed",
		}),
		roleResolutions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "role",
			Name:      "resolutions_total",
			Help:      "Role resolution outcomes",
		}, []string{"outcome"}),
		auditSinkFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "sink_failures_total",
			Help:      "Audit log entries a sink failed to record",
		}, []string{"sink"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
		}, []string{"method", "route"}),
	}
}

func (r *Registry) ObserveOperation(operation, result, reason string) {
	if r == nil {
		return
	}
	r.transitions.WithLabelValues(operation, result, reason).Inc()
}

func (r *Registry) ConflictRetry() {
	if r == nil {
		return
	}
	r.conflictRetries.Inc()
}

func (r *Registry) DeniedAnomaly(operation string) {
	if r == nil {
		return
	}
	r.deniedAnomalies.WithLabelValues(operation).Inc()
}

func (r *Registry) TimelineInconsistency() {
	if r == nil {
		return
	}
	r.timelineInconsistent.Inc()
}

func (r *Registry) RoleResolution(outcome string) {
	if r == nil {
		return
	}
	r.roleResolutions.WithLabelValues(outcome).Inc()
}

func (r *Registry) AuditSinkFailure(sink string) {
	if r == nil {
		return
	}
	r.auditSinkFailures.WithLabelValues(sink).Inc()
}

func (r *Registry) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	r.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
