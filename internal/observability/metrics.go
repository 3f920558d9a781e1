package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics holds the pipeline's Prometheus collectors. They live on a
// private registry so tests can construct isolated instances.
type Metrics struct {
	registry *prometheus.Registry

	QueueDepth     prometheus.Gauge
	QueuedBytes    prometheus.Gauge
	Uploads        prometheus.Counter
	UploadFailures prometheus.Counter
	UploadedBytes  prometheus.Counter
	DuplicateHits  prometheus.Counter
	UploadDuration prometheus.Histogram
}

func InitMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mediaqueue_queue_depth",
			Help: "Number of items currently in the upload queue.",
		}),
		QueuedBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mediaqueue_queued_bytes",
			Help: "Total size of queued files in bytes.",
		}),
		Uploads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mediaqueue_uploads_total",
			Help: "Files uploaded successfully.",
		}),
		UploadFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mediaqueue_upload_failures_total",
			Help: "Files that ended in a transfer error.",
		}),
		UploadedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mediaqueue_uploaded_bytes_total",
			Help: "Bytes transferred to the remote store.",
		}),
		DuplicateHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mediaqueue_duplicate_hits_total",
			Help: "Files flagged by the duplicate detector.",
		}),
		UploadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mediaqueue_upload_duration_seconds",
			Help:    "Per-file transfer duration.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
	}

	for _, c := range []prometheus.Collector{
		m.QueueDepth, m.QueuedBytes, m.Uploads, m.UploadFailures,
		m.UploadedBytes, m.DuplicateHits, m.UploadDuration,
	} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Handler serves the private registry for a /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartMetricsServer starts an HTTP server exposing /metrics and /health.
func StartMetricsServer(port string, m *Metrics, logger *zap.Logger) {
	go func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		})
		mux.Handle("/metrics", m.Handler())

		logger.Info("starting metrics server", zap.String("port", port))
		if err := http.ListenAndServe(":"+port, mux); err != nil {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
}
