package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every metric the domain packages record against.
type Registry struct {
	ChunkUploadsTotal    *prometheus.CounterVec
	ImportOutcomesTotal  *prometheus.CounterVec
	RouteMatchTotal      *prometheus.CounterVec
	FlaggedRunsTotal     prometheus.Counter
	TaskQueueDepth       prometheus.Gauge
	TaskDurationSeconds  *prometheus.HistogramVec
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPDurationSeconds  *prometheus.HistogramVec

	registerer prometheus.Registerer
}

// NewRegistry builds and registers the domain metric set under namespace.
func NewRegistry(namespace, subsystem string) *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(NewRuntimeCollector(namespace, subsystem))

	r := &Registry{
		registerer: reg,
		ChunkUploadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "chunk_uploads_total",
			Help: "Chunk uploads by outcome (accepted, duplicate, rejected).",
		}, []string{"outcome"}),
		ImportOutcomesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "import_outcomes_total",
			Help: "Third-party/file import pipeline outcomes by source and status.",
		}, []string{"source", "status"}),
		RouteMatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "route_match_total",
			Help: "Route matcher verdicts (completed, missed).",
		}, []string{"verdict"}),
		FlaggedRunsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "flagged_runs_total",
			Help: "Runs flagged by the speed-anomaly detector.",
		}),
		TaskQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "task_queue_depth",
			Help: "Current number of queued background tasks.",
		}),
		TaskDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name:    "task_duration_seconds",
			Help:    "Background task handler duration by task kind.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "http_requests_total",
			Help: "HTTP requests by route and status class.",
		}, []string{"route", "status"}),
		HTTPDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}

	reg.MustRegister(
		r.ChunkUploadsTotal,
		r.ImportOutcomesTotal,
		r.RouteMatchTotal,
		r.FlaggedRunsTotal,
		r.TaskQueueDepth,
		r.TaskDurationSeconds,
		r.HTTPRequestsTotal,
		r.HTTPDurationSeconds,
	)

	return r
}

// Handler returns the Prometheus exposition HTTP handler for this registry.
func (r *Registry) Handler() http.Handler {
	gatherer, ok := r.registerer.(prometheus.Gatherer)
	if !ok {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
