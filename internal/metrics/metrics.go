// Package metrics exposes Prometheus instrumentation for the gateway:
// session counts, eviction/orphan counters, and HTTP request instrumentation
// for the echo-based facade.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SessionsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "msbgateway_sessions_active",
			Help: "Number of currently active (non-stopped) sessions",
		},
		[]string{"flavor", "template"},
	)

	SessionCreateDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "msbgateway_session_create_duration_seconds",
			Help:    "Time to start a remote sandbox for a new session",
			Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
		},
		[]string{"template"},
	)

	ExecDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "msbgateway_exec_duration_seconds",
			Help:    "Time to execute code or a command in a session",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 30.0, 60.0},
		},
		[]string{"kind"}, // "code" | "command"
	)

	EvictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "msbgateway_evictions_total",
			Help: "Total sessions evicted by the LRU evictor",
		},
		[]string{"reason"}, // "lru"
	)

	OrphansReapedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "msbgateway_orphans_reaped_total",
			Help: "Total remote sandboxes stopped by the orphan reaper",
		},
		[]string{},
	)

	AdmissionDenialsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "msbgateway_admission_denials_total",
			Help: "Total requests denied admission after eviction was attempted or disabled",
		},
		[]string{"resource_type"}, // "sessions" | "memory"
	)

	ReaperCycleDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "msbgateway_reaper_cycle_duration_seconds",
			Help:    "Duration of one idle or orphan reaper cycle",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		},
		[]string{"reaper"}, // "idle" | "orphan"
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "msbgateway_http_requests_total",
			Help: "Total HTTP requests served by the facade",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "msbgateway_http_request_duration_seconds",
			Help:    "Duration of HTTP requests served by the facade",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

func init() {
	prometheus.MustRegister(
		SessionsActive,
		SessionCreateDuration,
		ExecDuration,
		EvictionsTotal,
		OrphansReapedTotal,
		AdmissionDenialsTotal,
		ReaperCycleDuration,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	)
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// EchoMiddleware instruments every request with HTTPRequestsTotal.
func EchoMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			elapsed := time.Since(start)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}

			method, path := c.Request().Method, c.Path()
			HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
			HTTPRequestDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
			return err
		}
	}
}
