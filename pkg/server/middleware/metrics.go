package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
)

func registerMetrics() {
	registerOnce.Do(func() {
		httpRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pmc_http_requests_total",
				Help: "HTTP requests by path and status",
			},
			[]string{"path", "status"},
		)
		httpLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pmc_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"path"},
		)
		prometheus.MustRegister(httpRequests, httpLatency)
	})
}

// Metrics records a request counter and latency histogram per route.
func Metrics() func(http.Handler) http.Handler {
	registerMetrics()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, req)

			// The route pattern keeps label cardinality bounded; raw
			// paths would explode it on scans.
			path := req.URL.Path
			if rctx := chi.RouteContext(req.Context()); rctx != nil && rctx.RoutePattern() != "" {
				path = rctx.RoutePattern()
			}
			httpRequests.WithLabelValues(path, strconv.Itoa(ww.Status())).Inc()
			httpLatency.WithLabelValues(path).Observe(time.Since(start).Seconds())
		})
	}
}
