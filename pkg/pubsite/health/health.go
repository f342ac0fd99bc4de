package health

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
)

const (
	checkTimeout = 2 * time.Second
	// maxGoroutines fails liveness when exceeded; a leak this size means the process should restart
	maxGoroutines = 10000
)

// Checker serves liveness and readiness probes
type Checker struct {
	handler healthcheck.Handler
}

// Option adds checks to a Checker
type Option func(*Checker)

// WithDatabase adds a readiness check pinging the SQL connection pool
func WithDatabase(db *sql.DB) Option {
	return func(hc *Checker) {
		hc.handler.AddReadinessCheck("database", healthcheck.DatabasePingCheck(db, checkTimeout))
	}
}

// WithRedis adds a readiness check pinging Redis
func WithRedis(rdb goredis.UniversalClient) Option {
	return func(hc *Checker) {
		hc.handler.AddReadinessCheck("redis", RedisPingCheck(rdb, checkTimeout))
	}
}

// NewChecker creates a checker. When reg is non-nil the status of every check
// is also exported as a gauge under namespace.
func NewChecker(reg prometheus.Registerer, namespace string, opts ...Option) *Checker {
	var handler healthcheck.Handler
	if reg != nil {
		handler = healthcheck.NewMetricsHandler(reg, namespace)
	} else {
		handler = healthcheck.NewHandler()
	}

	hc := &Checker{handler: handler}
	hc.handler.AddLivenessCheck("goroutines", healthcheck.GoroutineCountCheck(maxGoroutines))
	for _, opt := range opts {
		opt(hc)
	}
	return hc
}

// RedisPingCheck returns a check that fails when Redis does not answer PING within timeout
func RedisPingCheck(rdb goredis.UniversalClient, timeout time.Duration) healthcheck.Check {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return rdb.Ping(ctx).Err()
	}
}

// Status is the plain health endpoint kept for load balancers
func Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "pubsite",
	})
}

// RegisterRoutes mounts /health, /health/live and /health/ready
func (hc *Checker) RegisterRoutes(r gin.IRoutes) {
	r.GET("/health", Status)
	r.GET("/health/live", gin.WrapF(hc.handler.LiveEndpoint))
	r.GET("/health/ready", gin.WrapF(hc.handler.ReadyEndpoint))
}
