package server

import (
	"time"

	"github.com/berlinerpub/pubsite/pkg/pubsite/admin"
	"github.com/berlinerpub/pubsite/pkg/pubsite/apikeys"
	"github.com/berlinerpub/pubsite/pkg/pubsite/auth"
	"github.com/berlinerpub/pubsite/pkg/pubsite/config"
	"github.com/berlinerpub/pubsite/pkg/pubsite/drinks"
	"github.com/berlinerpub/pubsite/pkg/pubsite/health"
	"github.com/berlinerpub/pubsite/pkg/pubsite/importexport"
	"github.com/berlinerpub/pubsite/pkg/pubsite/logger"
	"github.com/berlinerpub/pubsite/pkg/pubsite/metrics"
	"github.com/berlinerpub/pubsite/pkg/pubsite/models"
	"github.com/berlinerpub/pubsite/pkg/pubsite/news"
	"github.com/berlinerpub/pubsite/pkg/pubsite/newsapi"
	"github.com/berlinerpub/pubsite/pkg/pubsite/settings"
	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Dependencies are the shared resources the router wires into handlers.
// Redis and Limiter are optional; a nil Metrics gets a private registry.
type Dependencies struct {
	Config   *config.Config
	DB       *gorm.DB
	Redis    *goredis.Client
	Limiter  newsapi.Limiter
	Throttle *auth.LoginThrottle
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

// NewRouter builds the gin engine with every route of the site.
func NewRouter(deps Dependencies) *gin.Engine {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}

	r := gin.New()
	r.Use(logger.RequestID())
	r.Use(logger.GinMiddleware(log))
	r.Use(deps.Metrics.Middleware())
	r.Use(deps.Metrics.Recovery(log))
	r.Use(siteCORS(deps.Config))

	// Probes and metrics
	var checks []health.Option
	if sqlDB, err := deps.DB.DB(); err == nil {
		checks = append(checks, health.WithDatabase(sqlDB))
	}
	if deps.Redis != nil {
		checks = append(checks, health.WithRedis(deps.Redis))
	}
	health.NewChecker(deps.Metrics.Registry(), "pubsite", checks...).RegisterRoutes(r)
	r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))

	// The news gateway answers every method itself
	gatewayOpts := []newsapi.Option{
		newsapi.WithMetrics(deps.Metrics),
		newsapi.WithLogger(log.Named("newsapi")),
	}
	if deps.Limiter != nil {
		gatewayOpts = append(gatewayOpts, newsapi.WithLimiter(deps.Limiter))
	}
	if deps.Config != nil {
		gatewayOpts = append(gatewayOpts, newsapi.WithMaxBodyBytes(deps.Config.NewsAPI.MaxBodyBytes))
	}
	newsapi.NewHandler(deps.DB, gatewayOpts...).RegisterRoutes(r)

	api := r.Group("/api")
	{
		api.GET("/health", health.Status)

		// Auth routes (public)
		authHandler := auth.NewHandler(deps.DB, deps.Throttle)
		authHandler.RegisterRoutes(api.Group("/auth"))

		newsHandler := news.NewHandler(deps.DB)
		drinksHandler := drinks.NewHandler(deps.DB)
		settingsHandler := settings.NewHandler(deps.DB)

		// Public site content
		newsHandler.RegisterPublicRoutes(api)
		drinksHandler.RegisterPublicRoutes(api)
		settingsHandler.RegisterPublicRoutes(api)

		// Content management (editors and admins)
		adminGroup := api.Group("/admin")
		adminGroup.Use(auth.AuthMiddleware(), auth.RequireRole(models.RoleAdmin, models.RoleEditor))
		newsHandler.RegisterRoutes(adminGroup)
		drinksHandler.RegisterRoutes(adminGroup)
		importexport.NewHandler(deps.DB).RegisterRoutes(adminGroup)
		settingsHandler.RegisterRoutes(adminGroup)

		// Accounts, API keys and stats (admins only)
		adminOnly := adminGroup.Group("", auth.RequireAdmin())
		apikeys.NewHandler(deps.DB).RegisterRoutes(adminOnly)
		admin.NewHandler(deps.DB).RegisterRoutes(adminOnly)
	}

	return r
}

// siteCORS applies the configured origin allow-list everywhere except the
// news gateway, which answers its own pre-flight with a fixed header set.
func siteCORS(cfg *config.Config) gin.HandlerFunc {
	handler := gincors.New(corsConfig(cfg))
	return func(c *gin.Context) {
		if c.FullPath() == newsapi.Endpoint {
			c.Next()
			return
		}
		handler(c)
	}
}

func corsConfig(cfg *config.Config) gincors.Config {
	origins := []string{"*"}
	if cfg != nil && len(cfg.CORS.AllowedOrigins) > 0 {
		origins = cfg.CORS.AllowedOrigins
	}

	corsConfig := gincors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", logger.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	// Credentials cannot be combined with a wildcard origin
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			break
		}
	}
	return corsConfig
}
