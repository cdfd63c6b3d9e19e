package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ndvigrid",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ndvigrid",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	httpResponseSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ndvigrid",
		Subsystem: "http",
		Name:      "response_size_bytes",
		Help:      "HTTP response size in bytes",
		Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
	}, []string{"method", "path"})

	// View synchronization
	SyncBroadcasts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ndvigrid",
		Subsystem: "sync",
		Name:      "broadcasts_total",
		Help:      "View state broadcast rounds delivered to viewports",
	}, []string{"kind"})

	SyncWritesSuppressed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ndvigrid",
		Subsystem: "sync",
		Name:      "writes_suppressed_total",
		Help:      "View state writes dropped because the value did not change",
	}, []string{"kind"})

	SyncApplies = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ndvigrid",
		Subsystem: "sync",
		Name:      "applies_total",
		Help:      "Broadcasts received by viewports, by whether the surface moved",
	}, []string{"result"})

	ActiveViewports = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ndvigrid",
		Subsystem: "sync",
		Name:      "active_viewports",
		Help:      "Viewports currently mounted in the grid",
	})

	// Vector layers
	LayersStyled = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ndvigrid",
		Subsystem: "layer",
		Name:      "styled_total",
		Help:      "Vector layers that received a style table",
	})

	LayerStyleTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ndvigrid",
		Subsystem: "layer",
		Name:      "style_timeouts_total",
		Help:      "Vector layers styled with the wildcard rule after layer discovery timed out",
	})

	TileFetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ndvigrid",
		Subsystem: "tiles",
		Name:      "fetch_duration_seconds",
		Help:      "Duration of vector tile fetches from the tile source",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"source"})

	TileFetchErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ndvigrid",
		Subsystem: "tiles",
		Name:      "fetch_errors_total",
		Help:      "Vector tile fetches that failed",
	}, []string{"source"})

	ActiveWebSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ndvigrid",
		Subsystem: "ws",
		Name:      "active_connections",
		Help:      "Current number of active WebSocket connections",
	})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ndvigrid",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total cache hits",
	}, []string{"operation"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ndvigrid",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total cache misses",
	}, []string{"operation"})

	// Database pool metrics
	DBPoolConnsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ndvigrid",
		Subsystem: "db",
		Name:      "pool_conns_open",
		Help:      "Total connections open in the database pool",
	})

	DBPoolConnsAcquired = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ndvigrid",
		Subsystem: "db",
		Name:      "pool_conns_acquired",
		Help:      "Connections currently acquired from the database pool",
	})

	DBPoolConnsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ndvigrid",
		Subsystem: "db",
		Name:      "pool_conns_idle",
		Help:      "Idle connections in the database pool",
	})
)

// Middleware records request metrics.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Response().StatusCode())
		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		method := c.Method()

		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(duration)
		httpResponseSize.WithLabelValues(method, path).Observe(float64(len(c.Response().Body())))

		return err
	}
}

// Handler returns a Fiber handler serving Prometheus /metrics endpoint.
func Handler() fiber.Handler {
	handler := promhttp.Handler()
	return func(c *fiber.Ctx) error {
		fasthttpadaptor.NewFastHTTPHandler(handler)(c.Context())
		return nil
	}
}

// UpdateDBPoolMetrics updates database pool metrics from pgx pool stats.
func UpdateDBPoolMetrics(stat interface{}) {
	// Accept any value with the pgxpool.Stat accessors so this package does
	// not import pgxpool.
	type poolStat interface {
		AcquiredConns() int32
		IdleConns() int32
		TotalConns() int32
	}

	if s, ok := stat.(poolStat); ok {
		DBPoolConnsAcquired.Set(float64(s.AcquiredConns()))
		DBPoolConnsIdle.Set(float64(s.IdleConns()))
		DBPoolConnsOpen.Set(float64(s.TotalConns()))
	}
}
