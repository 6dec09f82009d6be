package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "HTTP response size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 6),
		},
		[]string{"method", "path"},
	)

	// Dashboard-specific metrics
	SyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dashboard_sync_duration_seconds",
			Help:    "Duration of config change detection runs",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		},
	)

	SyncErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dashboard_sync_errors_total",
			Help: "Total number of failed config syncs",
		},
	)

	ConfigWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_config_writes_total",
			Help: "Config documents rewritten through the dashboard",
		},
		[]string{"file", "result"},
	)

	ManagerActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_manager_actions_total",
			Help: "Lifecycle actions delegated to the manager CLI",
		},
		[]string{"action", "result"},
	)

	ServersTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dashboard_servers_total",
			Help: "Number of server records in servers.json",
		},
	)

	WorkspacesTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dashboard_workspaces_total",
			Help: "Number of workspace records in workspaces.json",
		},
	)

	ConfigValid = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dashboard_config_valid",
			Help: "Whether the config documents parse (1) or not (0)",
		},
	)

	LogFilesTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dashboard_log_files_total",
			Help: "Number of log files in the log directory",
		},
	)
)

// Metrics returns a middleware that records Prometheus metrics
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		path := normalizePath(r.URL.Path)
		status := strconv.Itoa(ww.Status())

		httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		httpResponseSize.WithLabelValues(r.Method, path).Observe(float64(ww.BytesWritten()))
	})
}

// normalizePath maps URL paths to route patterns for metrics labels.
// This prevents cardinality explosion from dynamic path segments.
func normalizePath(path string) string {
	path = strings.TrimSuffix(path, "/")

	for _, collection := range []string{"servers", "workspaces"} {
		prefix := "/api/" + collection + "/"
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		rest := strings.TrimPrefix(path, prefix)
		if _, action, ok := strings.Cut(rest, "/"); ok {
			return prefix + "{name}/" + action
		}
		return prefix + "{name}"
	}

	switch {
	case path == "/api/config/history":
		return path
	case strings.HasPrefix(path, "/api/config/"):
		return "/api/config/{file}"
	case strings.HasPrefix(path, "/api/"), strings.HasPrefix(path, "/webhooks/"):
		return path
	case path == "/health" || path == "/ping" || path == "/version" || path == "/metrics":
		return path
	default:
		// Static frontend assets
		return "/static"
	}
}
