// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder groups the application collectors. A nil *Recorder is valid and
// records nothing.
type Recorder struct {
	allocations     *prometheus.CounterVec
	decisions       *prometheus.CounterVec
	partialFailures prometheus.Counter
	notifications   *prometheus.CounterVec
	activeSessions  prometheus.Gauge
	reconcileFound  *prometheus.CounterVec
	httpRequests    *prometheus.HistogramVec
}

// NewRecorder creates the collectors and registers them with reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		allocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "membership",
			Name:      "control_numbers_allocated_total",
			Help:      "Control numbers handed out, by source (recycled or minted).",
		}, []string{"source"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "membership",
			Name:      "registration_decisions_total",
			Help:      "Administrator decisions on registration requests.",
		}, []string{"decision"}),
		partialFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "membership",
			Name:      "approval_partial_failures_total",
			Help:      "Approvals that created a member but failed to mark the request approved.",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "membership",
			Name:      "status_notifications_total",
			Help:      "Status transition notifications shown to users.",
		}, []string{"status"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "membership",
			Name:      "status_sync_sessions",
			Help:      "Live status synchronizer sessions.",
		}),
		reconcileFound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "membership",
			Name:      "reconcile_findings_total",
			Help:      "Inconsistencies found by the reconcile sweep.",
		}, []string{"kind"}),
		httpRequests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "membership",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status code.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "code"}),
	}
	if reg != nil {
		reg.MustRegister(
			r.allocations,
			r.decisions,
			r.partialFailures,
			r.notifications,
			r.activeSessions,
			r.reconcileFound,
			r.httpRequests,
		)
	}
	return r
}

func (r *Recorder) ControlNumberAllocated(source string) {
	if r == nil {
		return
	}
	r.allocations.WithLabelValues(source).Inc()
}

func (r *Recorder) RegistrationDecided(decision string) {
	if r == nil {
		return
	}
	r.decisions.WithLabelValues(decision).Inc()
}

func (r *Recorder) ApprovalPartiallyFailed() {
	if r == nil {
		return
	}
	r.partialFailures.Inc()
}

func (r *Recorder) NotificationShown(status string) {
	if r == nil {
		return
	}
	r.notifications.WithLabelValues(status).Inc()
}

func (r *Recorder) SessionStarted() {
	if r == nil {
		return
	}
	r.activeSessions.Inc()
}

func (r *Recorder) SessionEnded() {
	if r == nil {
		return
	}
	r.activeSessions.Dec()
}

func (r *Recorder) ReconcileFindings(kind string, n int) {
	if r == nil || n == 0 {
		return
	}
	r.reconcileFound.WithLabelValues(kind).Add(float64(n))
}

func (r *Recorder) ObserveHTTP(route, code string, seconds float64) {
	if r == nil {
		return
	}
	r.httpRequests.WithLabelValues(route, code).Observe(seconds)
}
