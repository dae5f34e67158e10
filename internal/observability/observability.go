// Package observability provides Prometheus metrics for the animation
// generator's capture, scheduling, and encoding pipelines.
package observability

import (
	"log"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry *prometheus.Registry

	// Capture loop
	CapturesTotal   *prometheus.CounterVec // webcam, status: success, skipped_duplicate, error
	CaptureDuration prometheus.Histogram

	// Scheduling and queue
	JobsScheduledTotal *prometheus.CounterVec // type
	QueueTransitions   *prometheus.CounterVec // to_status

	// Encoding
	EncodesTotal   *prometheus.CounterVec // type, status: success, error
	EncodeDuration prometheus.Histogram

	// Retention
	RetentionTagsTotal *prometheus.CounterVec // tag
}

// NewMetrics creates a new Metrics instance with all collectors registered
// on a private registry.
func NewMetrics() (*Metrics, error) {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		CapturesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webcam_captures_total",
				Help: "Total number of webcam capture attempts",
			},
			[]string{"webcam", "status"},
		),
		CaptureDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "webcam_capture_duration_seconds",
				Help:    "Time taken to fetch and store one webcam frame",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
			},
		),
		JobsScheduledTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "animation_jobs_scheduled_total",
				Help: "Total number of animation jobs created by the scheduler",
			},
			[]string{"type"},
		),
		QueueTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "animation_queue_transitions_total",
				Help: "Total number of animation job state transitions",
			},
			[]string{"to_status"},
		),
		EncodesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "animation_encodes_total",
				Help: "Total number of animation encode attempts",
			},
			[]string{"type", "status"},
		),
		EncodeDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "animation_encode_duration_seconds",
				Help:    "Time taken to encode one animation",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~7min
			},
		),
		RetentionTagsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "retention_tags_applied_total",
				Help: "Total number of retention tags applied to captured images",
			},
			[]string{"tag"},
		),
	}

	collectors := []prometheus.Collector{
		m.CapturesTotal,
		m.CaptureDuration,
		m.JobsScheduledTotal,
		m.QueueTransitions,
		m.EncodesTotal,
		m.EncodeDuration,
		m.RetentionTagsTotal,
	}
	for _, c := range collectors {
		if err := m.registry.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// RegisterHandlers registers the metrics endpoint with the provided http.ServeMux.
func (m *Metrics) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/metrics", m.metricsHandler)
}

// Handler returns the metrics endpoint as a plain http.Handler, for mounting
// on non-mux routers.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      log.New(os.Stderr, "metrics handler: ", log.LstdFlags),
		ErrorHandling: promhttp.HTTPErrorOnError,
	})
}

func (m *Metrics) metricsHandler(w http.ResponseWriter, r *http.Request) {
	m.Handler().ServeHTTP(w, r)
}
