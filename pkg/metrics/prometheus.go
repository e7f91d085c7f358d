// Package metrics implements the observability hooks with Prometheus
// collectors.
//
// Register the collectors once at startup and install them as hooks:
//
//	m := metrics.New(prometheus.DefaultRegisterer)
//	m.Install()
//
// The collectors are then served by promhttp on the status API's /metrics.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/matzehuels/lamacheck/pkg/observability"
)

const namespace = "lamacheck"

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Cycle metrics
	CyclesTotal      *prometheus.CounterVec
	CycleDuration    prometheus.Histogram
	CycleRunning     prometheus.Gauge
	ArtifactsUpdated prometheus.Counter
	TasksTotal       *prometheus.CounterVec
	TaskDuration     *prometheus.HistogramVec
	BlacklistedTotal *prometheus.CounterVec

	// Cache metrics
	CacheHits     *prometheus.CounterVec
	CacheMisses   *prometheus.CounterVec
	CacheSetBytes *prometheus.CounterVec

	// HTTP client metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestErrors   *prometheus.CounterVec

	// Audit metrics
	RegistryEvents *prometheus.CounterVec
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CyclesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cycles_total",
				Help:      "Total number of update cycles run",
			},
			[]string{"status"},
		),

		CycleDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cycle_duration_seconds",
				Help:      "Duration of update cycles",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
			},
		),

		CycleRunning: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "cycle_running",
				Help:      "1 while an update cycle is running",
			},
		),

		ArtifactsUpdated: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "artifacts_updated_total",
				Help:      "Total number of artifacts whose latest version changed",
			},
		),

		TasksTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tasks_total",
				Help:      "Total number of executed update tasks",
			},
			[]string{"kind", "status"},
		),

		TaskDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "task_duration_seconds",
				Help:      "Duration of update tasks",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"kind"},
		),

		BlacklistedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "blacklisted_total",
				Help:      "Total number of repositories blacklisted during a cycle",
			},
			[]string{"repo"},
		),

		CacheHits: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Total number of cache hits",
			},
			[]string{"key_type"},
		),

		CacheMisses: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_misses_total",
				Help:      "Total number of cache misses",
			},
			[]string{"key_type"},
		),

		CacheSetBytes: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_set_bytes_total",
				Help:      "Total number of bytes written to the cache",
			},
			[]string{"key_type"},
		),

		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of outgoing HTTP requests by response status",
			},
			[]string{"host", "code"},
		),

		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of outgoing HTTP requests",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"host"},
		),

		RequestErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_request_errors_total",
				Help:      "Total number of outgoing HTTP requests failing without a response",
			},
			[]string{"host"},
		),

		RegistryEvents: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "registry_events_total",
				Help:      "Total number of audited registry changes",
			},
			[]string{"event"},
		),
	}
}

// Install registers m as the cycle, cache and HTTP hooks. Audit events keep
// going to the installed audit hooks and are counted by m as well.
func (m *Metrics) Install() {
	observability.Install(observability.Hooks{
		Audit: observability.Tee{observability.Audit(), m},
		Cycle: m,
		Cache: m,
		HTTP:  m,
	})
}

// Event counts an audit event by name.
func (m *Metrics) Event(_ context.Context, name string, _ ...any) {
	m.RegistryEvents.WithLabelValues(name).Inc()
}

func (m *Metrics) OnCycleStart(context.Context, string) {
	m.CycleRunning.Set(1)
}

func (m *Metrics) OnCycleComplete(_ context.Context, _ string, updated int, duration time.Duration, err error) {
	m.CycleRunning.Set(0)
	m.CyclesTotal.WithLabelValues(status(err)).Inc()
	m.CycleDuration.Observe(duration.Seconds())
	m.ArtifactsUpdated.Add(float64(updated))
}

func (m *Metrics) OnTaskComplete(_ context.Context, kind string, duration time.Duration, err error) {
	m.TasksTotal.WithLabelValues(kind, status(err)).Inc()
	m.TaskDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

func (m *Metrics) OnBlacklisted(_ context.Context, repoID string) {
	m.BlacklistedTotal.WithLabelValues(repoID).Inc()
}

func (m *Metrics) OnCacheHit(_ context.Context, keyType string) {
	m.CacheHits.WithLabelValues(keyType).Inc()
}

func (m *Metrics) OnCacheMiss(_ context.Context, keyType string) {
	m.CacheMisses.WithLabelValues(keyType).Inc()
}

func (m *Metrics) OnCacheSet(_ context.Context, keyType string, size int) {
	m.CacheSetBytes.WithLabelValues(keyType).Add(float64(size))
}

// OnRequest is a no-op; requests are counted when their response arrives.
func (m *Metrics) OnRequest(context.Context, string, string, string) {}

func (m *Metrics) OnResponse(_ context.Context, _, host, _ string, statusCode int, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(host, statusClass(statusCode)).Inc()
	m.RequestDuration.WithLabelValues(host).Observe(duration.Seconds())
}

func (m *Metrics) OnError(_ context.Context, _, host, _ string, _ error) {
	m.RequestErrors.WithLabelValues(host).Inc()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// statusClass folds status codes into "2xx", "4xx", ... to bound label
// cardinality.
func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "other"
	}
	return string(rune('0'+code/100)) + "xx"
}

var (
	_ observability.AuditHooks = (*Metrics)(nil)
	_ observability.CycleHooks = (*Metrics)(nil)
	_ observability.CacheHooks = (*Metrics)(nil)
	_ observability.HTTPHooks  = (*Metrics)(nil)
)
