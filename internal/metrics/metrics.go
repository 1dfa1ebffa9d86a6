// Package metrics defines the Prometheus collectors the service exports.
//
// Collectors are registered on a caller-supplied registry rather than the
// global default, so tests can build as many instances as they like. Every
// method is safe on a nil *Metrics; code paths that don't care about metrics
// simply pass nil.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "snippetvault"

// Reasons a version gets written.
const (
	ReasonInitial  = "initial"
	ReasonSnapshot = "snapshot"
	ReasonBackup   = "backup"
	ReasonRestored = "restored"
)

// Restore outcomes.
const (
	RestoreRestored  = "restored"
	RestoreNotFound  = "not_found"
	RestoreForbidden = "forbidden"
	RestoreFailed    = "failed"
)

// Comparison outcomes.
const (
	CompareOK       = "ok"
	CompareNotFound = "not_found"
	CompareInvalid  = "invalid"
)

type Metrics struct {
	versionsCreated *prometheus.CounterVec
	restores        *prometheus.CounterVec
	comparisons     *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// New registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		versionsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "versions_created_total",
			Help:      "Versions written, by reason.",
		}, []string{"reason"}),
		restores: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "restores_total",
			Help:      "Restore attempts, by outcome.",
		}, []string{"outcome"}),
		comparisons: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "comparisons_total",
			Help:      "Version comparisons, by outcome.",
		}, []string{"outcome"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served.",
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func (m *Metrics) VersionCreated(reason string) {
	if m == nil {
		return
	}
	m.versionsCreated.WithLabelValues(reason).Inc()
}

func (m *Metrics) Restore(outcome string) {
	if m == nil {
		return
	}
	m.restores.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Comparison(outcome string) {
	if m == nil {
		return
	}
	m.comparisons.WithLabelValues(outcome).Inc()
}

// HTTPRequest records one served request. route is the router pattern, not
// the raw path, to keep label cardinality bounded.
func (m *Metrics) HTTPRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
