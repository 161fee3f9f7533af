package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// serverMetrics holds the server's own instrumentation, exported on
// /metrics in Prometheus format.
type serverMetrics struct {
	registry        *prometheus.Registry
	pointsWritten   prometheus.Counter
	queriesServed   prometheus.Counter
	storageErrors   prometheus.Counter
	requestDuration *prometheus.HistogramVec
}

func newServerMetrics() *serverMetrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &serverMetrics{
		registry: registry,
		pointsWritten: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "metricboard",
			Name:      "points_written_total",
			Help:      "Number of points accepted by the write endpoint.",
		}),
		queriesServed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "metricboard",
			Name:      "queries_served_total",
			Help:      "Number of successful range queries.",
		}),
		storageErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "metricboard",
			Name:      "storage_errors_total",
			Help:      "Number of requests that failed with a storage error.",
		}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "metricboard",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by path and status code.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"path", "code"}),
	}
}

// instrument wraps the mux with request duration tracking
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.metrics.requestDuration.
			WithLabelValues(r.URL.Path, strconv.Itoa(rec.status)).
			Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
