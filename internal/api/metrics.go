package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry          *prometheus.Registry
	requestTotal      *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	rateLimitRejected *prometheus.CounterVec
	transformsTotal   *prometheus.CounterVec
	resultLookups     *prometheus.CounterVec
	sourceBytes       prometheus.Counter
	resultBytes       prometheus.Counter
	prewarmEnqueued   prometheus.Counter
	queueDepth        prometheus.Gauge
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelgate_api_requests_total",
			Help: "Total HTTP requests handled by the API.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pixelgate_api_request_duration_seconds",
			Help:    "API request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		rateLimitRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelgate_api_rate_limit_rejections_total",
			Help: "Total API requests rejected by rate limiting.",
		}, []string{"route"}),
		transformsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelgate_transforms_total",
			Help: "Total transformations attempted, by outcome.",
		}, []string{"outcome"}),
		resultLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelgate_result_lookups_total",
			Help: "Total stored-result lookups, by hit or miss.",
		}, []string{"outcome"}),
		sourceBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pixelgate_source_bytes_total",
			Help: "Total bytes of source images consumed by fresh transforms.",
		}),
		resultBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pixelgate_result_bytes_total",
			Help: "Total bytes of freshly encoded results.",
		}),
		prewarmEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pixelgate_prewarm_enqueued_total",
			Help: "Total warm tasks enqueued through the prewarm endpoint.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pixelgate_warm_queue_depth",
			Help: "Pending tasks in the warm queue.",
		}),
	}
	registry.MustRegister(
		m.requestTotal,
		m.requestDuration,
		m.rateLimitRejected,
		m.transformsTotal,
		m.resultLookups,
		m.sourceBytes,
		m.resultBytes,
		m.prewarmEnqueued,
		m.queueDepth,
	)
	return m
}

func (m *metrics) metricsHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metrics) withHTTPMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		route := routeLabel(r.URL.Path)
		status := strconv.Itoa(recorder.status)

		m.requestTotal.WithLabelValues(r.Method, route, status).Inc()
		m.requestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
	})
}

// routeLabel folds the open-ended command paths into a fixed label set so
// metric cardinality stays bounded.
func routeLabel(path string) string {
	switch {
	case path == "" || path == "/":
		return "/"
	case path == "/healthz":
		return "/healthz"
	case path == "/metrics":
		return "/metrics"
	case path == "/prewarm":
		return "/prewarm"
	case strings.HasPrefix(path, "/params/"):
		return "/params"
	default:
		return "/image"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.status = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}
