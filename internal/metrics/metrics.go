// Package metrics provides Prometheus instrumentation for the Sendaka
// decision service.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sendaka",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sendaka",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// RiskDecisionsTotal counts risk evaluations by recommended action.
	RiskDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sendaka",
			Name:      "risk_decisions_total",
			Help:      "Total risk evaluations by recommended action.",
		},
		[]string{"action"},
	)

	// RiskSignalsTotal counts individual scoring signals that fired.
	RiskSignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sendaka",
			Name:      "risk_signals_total",
			Help:      "Total scoring signals fired across evaluations.",
		},
		[]string{"signal"},
	)

	// RiskScore observes the distribution of computed scores.
	RiskScore = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "sendaka",
		Name:      "risk_score",
		Help:      "Distribution of computed risk scores.",
		Buckets:   []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
	})

	// AccessChecksTotal counts permission-group checks by outcome.
	AccessChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sendaka",
			Name:      "access_checks_total",
			Help:      "Total permission group checks by group and outcome.",
		},
		[]string{"group", "outcome"},
	)

	// RegionScopeDenialsTotal counts region-scope enforcement failures.
	RegionScopeDenialsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sendaka",
			Name:      "region_scope_denials_total",
			Help:      "Total region scope denials by reason.",
		},
		[]string{"reason"},
	)

	// CasesOpenedTotal counts review cases auto-created on block decisions.
	CasesOpenedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sendaka",
		Name:      "cases_opened_total",
		Help:      "Total review cases opened.",
	})

	// CasesResolvedTotal counts resolved review cases.
	CasesResolvedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sendaka",
		Name:      "cases_resolved_total",
		Help:      "Total review cases resolved.",
	})

	// ActiveWebSocketClients tracks connected stream clients.
	ActiveWebSocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "sendaka",
			Name:      "active_websocket_clients",
			Help:      "Number of currently connected WebSocket clients.",
		},
	)

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sendaka", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBIdleConnections tracks idle database connections.
	DBIdleConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sendaka", Name: "db_idle_connections",
		Help: "Number of idle database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sendaka", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sendaka", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		RiskDecisionsTotal,
		RiskSignalsTotal,
		RiskScore,
		AccessChecksTotal,
		RegionScopeDenialsTotal,
		CasesOpenedTotal,
		CasesResolvedTotal,
		ActiveWebSocketClients,
		DBOpenConnections,
		DBIdleConnections,
		DBInUseConnections,
		GoroutineCount,
	)
}

// StartDBStatsCollector periodically samples sql.DBStats and runtime goroutine
// count into Prometheus gauges. Call in a goroutine; exits when ctx is done.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
			DBIdleConnections.Set(float64(stats.Idle))
			DBInUseConnections.Set(float64(stats.InUse))
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
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
