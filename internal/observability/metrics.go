package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	TokenRequests     *prometheus.CounterVec
	ActiveJobs        prometheus.Gauge
	JobEvents         *prometheus.CounterVec
	PipelineStageMS   *prometheus.HistogramVec
	ProviderErrors    *prometheus.CounterVec
	WorkerReconnects  prometheus.Counter
	GreetingLatencyMS prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		TokenRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_requests_total",
			Help:      "Access token requests by outcome.",
		}, []string{"outcome"}),
		ActiveJobs: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_jobs",
			Help:      "Number of agent jobs currently running.",
		}),
		JobEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_events_total",
			Help:      "Agent job lifecycle events by type.",
		}, []string{"event"}),
		PipelineStageMS: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_stage_ms",
			Help:      "Pipeline stage latency in milliseconds.",
			Buckets:   []float64{50, 100, 200, 300, 500, 700, 1000, 1500, 2500},
		}, []string{"stage"}),
		ProviderErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Provider errors by provider.",
		}, []string{"provider"}),
		WorkerReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_reconnects_total",
			Help:      "Dispatch websocket reconnect attempts.",
		}),
		GreetingLatencyMS: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "greeting_latency_ms",
			Help:      "Latency from job start to the first greeting audio in milliseconds.",
			Buckets:   []float64{200, 400, 700, 1000, 1500, 2500, 4000},
		}),
	}
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.PipelineStageMS.WithLabelValues(stage).Observe(float64(d.Milliseconds()))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
