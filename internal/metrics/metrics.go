// Package metrics exposes the service's Prometheus instruments. A nil
// *Recorder is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "valuation"

type Recorder struct {
	gatherer prometheus.Gatherer

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	httpInFlight prometheus.Gauge
	httpSize     *prometheus.HistogramVec

	predictions *prometheus.CounterVec
	upstream    *prometheus.CounterVec
	upstreamDur *prometheus.HistogramVec
	cache       *prometheus.CounterVec
	refreshes   *prometheus.CounterVec
}

// New registers all instruments on reg. Use a fresh prometheus.NewRegistry()
// in tests to avoid duplicate registration panics.
func New(reg *prometheus.Registry) *Recorder {
	r := &Recorder{
		gatherer: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"route", "method", "class"}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_in_flight_requests",
			Help:      "Requests currently being served.",
		}),
		httpSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response body size.",
			Buckets:   []float64{200, 500, 1_000, 2_000, 5_000, 10_000, 50_000, 100_000},
		}, []string{"route", "method"}),
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Completed predictions by model and verdict.",
		}, []string{"model", "valuation"}),
		upstream: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Calls to external providers by outcome.",
		}, []string{"provider", "endpoint", "outcome"}),
		upstreamDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Latency of calls to external providers.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider", "endpoint"}),
		cache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      "Geocode cache lookups by result (hit, miss, stale, negative).",
		}, []string{"result"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_refresh_total",
			Help:      "Background geocode refreshes by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(r.httpRequests, r.httpDuration, r.httpInFlight, r.httpSize,
		r.predictions, r.upstream, r.upstreamDur, r.cache, r.refreshes)
	return r
}

func (r *Recorder) Prediction(model, valuation string) {
	if r == nil {
		return
	}
	r.predictions.WithLabelValues(model, valuation).Inc()
}

// ObserveUpstream satisfies maps.Observer.
func (r *Recorder) ObserveUpstream(provider, endpoint, outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.upstream.WithLabelValues(provider, endpoint, outcome).Inc()
	r.upstreamDur.WithLabelValues(provider, endpoint).Observe(d.Seconds())
}

func (r *Recorder) CacheResult(result string) {
	if r == nil {
		return
	}
	r.cache.WithLabelValues(result).Inc()
}

func (r *Recorder) Refresh(outcome string) {
	if r == nil {
		return
	}
	r.refreshes.WithLabelValues(outcome).Inc()
}

// Handler serves the exposition format for the recorder's registry.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}

// Middleware records per-route request metrics. Route labels use the chi
// pattern so path parameters don't explode cardinality.
func (r *Recorder) Middleware(next http.Handler) http.Handler {
	if r == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		r.httpInFlight.Inc()
		defer r.httpInFlight.Dec()

		ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, req)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := "unmatched"
		if rc := chi.RouteContext(req.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		r.httpRequests.WithLabelValues(route, req.Method, strconv.Itoa(status)).Inc()
		r.httpDuration.WithLabelValues(route, req.Method, statusClass(status)).Observe(time.Since(start).Seconds())
		r.httpSize.WithLabelValues(route, req.Method).Observe(float64(ww.BytesWritten()))
	})
}

func statusClass(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
