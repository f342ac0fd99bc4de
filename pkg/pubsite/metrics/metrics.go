package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "pubsite"

// Metrics holds the Prometheus collectors of the site backend.
// All methods are safe to call on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	PanicsTotal         prometheus.Counter

	GatewayRequests   *prometheus.CounterVec
	ArticlesCreated   *prometheus.CounterVec
	RateLimitRejected prometheus.Counter
	APILogsPurged     prometheus.Counter
}

// New creates the collectors on a dedicated registry that also carries the
// Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		PanicsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "panics_total",
				Help:      "Total number of recovered panics",
			},
		),

		GatewayRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "news_gateway_requests_total",
				Help:      "News gateway outcomes by response status",
			},
			[]string{"status_code"},
		),

		ArticlesCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "news_articles_created_total",
				Help:      "News articles created, by source",
			},
			[]string{"source"},
		),

		RateLimitRejected: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "news_gateway_rate_limited_total",
				Help:      "News gateway requests rejected by the per-key rate limit",
			},
		),

		APILogsPurged: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_logs_purged_total",
				Help:      "API log rows removed by the retention job",
			},
		),
	}
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordHTTPRequest records one served HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordPanic records a recovered panic
func (m *Metrics) RecordPanic() {
	if m == nil {
		return
	}
	m.PanicsTotal.Inc()
}

// RecordGatewayOutcome records the final status of a news gateway request
func (m *Metrics) RecordGatewayOutcome(status int) {
	if m == nil {
		return
	}
	m.GatewayRequests.WithLabelValues(strconv.Itoa(status)).Inc()
}

// RecordArticleCreated records a created article labelled by where it came from
func (m *Metrics) RecordArticleCreated(source string) {
	if m == nil {
		return
	}
	m.ArticlesCreated.WithLabelValues(source).Inc()
}

// RecordRateLimited records a rate-limit rejection
func (m *Metrics) RecordRateLimited() {
	if m == nil {
		return
	}
	m.RateLimitRejected.Inc()
}

// RecordAPILogsPurged records rows removed by the retention job
func (m *Metrics) RecordAPILogsPurged(n int64) {
	if m == nil {
		return
	}
	m.APILogsPurged.Add(float64(n))
}

// Handler returns the Prometheus exposition handler for the registry
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware records request count and latency labelled by route template.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		m.RecordHTTPRequest(c.Request.Method, endpoint, c.Writer.Status(), time.Since(start))
	}
}

// Recovery recovers panics outside the news gateway, logs and counts them.
func (m *Metrics) Recovery(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				m.RecordPanic()
				log.Error("Panic recovered",
					zap.Any("error", err),
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path),
					zap.String("ip", c.ClientIP()),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			}
		}()
		c.Next()
	}
}
