package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the application, including the
// receiving engine counters.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	linesProcessed  prometheus.Counter
	unitsProcessed  prometheus.Counter
	linesSkipped    prometheus.Counter
}

// NewMetrics initialises the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "atlas_http_requests_total",
		Help: "HTTP requests partitioned by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "atlas_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	linesProcessed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "atlas_asn_lines_processed_total",
		Help: "Shipping notice lines converted into inventory.",
	})
	unitsProcessed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "atlas_asn_units_processed_total",
		Help: "Units converted into inventory across all lines.",
	})
	linesSkipped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "atlas_asn_batch_lines_skipped_total",
		Help: "Lines skipped by bulk processing after a per-line failure.",
	})
	registry.MustRegister(requests, duration, linesProcessed, unitsProcessed, linesSkipped)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		linesProcessed:  linesProcessed,
		unitsProcessed:  unitsProcessed,
		linesSkipped:    linesSkipped,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// LineProcessed counts a successful line putaway of the given size.
func (m *Metrics) LineProcessed(quantity int64) {
	if m == nil {
		return
	}
	m.linesProcessed.Inc()
	m.unitsProcessed.Add(float64(quantity))
}

// BatchLineSkipped counts a line skipped during bulk processing.
func (m *Metrics) BatchLineSkipped() {
	if m == nil {
		return
	}
	m.linesSkipped.Inc()
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
