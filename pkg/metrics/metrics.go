package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Pool metrics
	PoolWorkerTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neutrino_pool_worker_transitions_total",
			Help: "Total worker state transitions by from/to state",
		},
		[]string{"from", "to"},
	)

	PoolRespawns = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "neutrino_pool_respawns_total",
			Help: "Total number of worker respawns after an unexpected exit",
		},
	)

	// Scheduler metrics
	SchedulingLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "neutrino_scheduling_latency_seconds",
			Help:    "Time taken to select a worker for a task",
			Buckets: prometheus.DefBuckets,
		},
	)

	NoCapacityTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "neutrino_no_capacity_total",
			Help: "Total number of tasks rejected because no worker had spare capacity",
		},
	)

	TasksScheduled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "neutrino_tasks_scheduled_total",
			Help: "Total number of tasks assigned to a worker",
		},
	)

	// HTTP front-end metrics
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neutrino_http_requests_total",
			Help: "Total number of HTTP requests by route and status",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "neutrino_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Gateway metrics
	GatewayProxiedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neutrino_gateway_proxied_total",
			Help: "Total number of requests proxied to a backend node by outcome",
		},
		[]string{"node_id", "outcome"},
	)

	GatewayProxyDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "neutrino_gateway_proxy_duration_seconds",
			Help:    "Gateway proxy round-trip duration in seconds by node",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"node_id"},
	)

	GatewayBackendsHealthy = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "neutrino_gateway_backends_healthy",
			Help: "Number of backend nodes currently considered healthy",
		},
	)
)

func init() {
	prometheus.MustRegister(PoolWorkerTransitions)
	prometheus.MustRegister(PoolRespawns)
	prometheus.MustRegister(SchedulingLatency)
	prometheus.MustRegister(NoCapacityTotal)
	prometheus.MustRegister(TasksScheduled)
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(GatewayProxiedTotal)
	prometheus.MustRegister(GatewayProxyDuration)
	prometheus.MustRegister(GatewayBackendsHealthy)
}

// Handler returns the Prometheus scrape handler for mounting at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations against a histogram.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time to a labeled histogram.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
