package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/berlinerpub/pubsite/pkg/pubsite/admin"
	"github.com/berlinerpub/pubsite/pkg/pubsite/auth"
	"github.com/berlinerpub/pubsite/pkg/pubsite/config"
	"github.com/berlinerpub/pubsite/pkg/pubsite/database"
	"github.com/berlinerpub/pubsite/pkg/pubsite/jobs"
	"github.com/berlinerpub/pubsite/pkg/pubsite/logger"
	"github.com/berlinerpub/pubsite/pkg/pubsite/metrics"
	"github.com/berlinerpub/pubsite/pkg/pubsite/models"
	"github.com/berlinerpub/pubsite/pkg/pubsite/newsapi"
	"github.com/berlinerpub/pubsite/pkg/pubsite/server"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if cfg.Log.Development {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		File:        cfg.Log.File,
		MaxSize:     cfg.Log.MaxSize,
		MaxBackups:  cfg.Log.MaxBackups,
		MaxAge:      cfg.Log.MaxAge,
		Compress:    cfg.Log.Compress,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()

	log.Info("starting pubsite server",
		zap.String("database", cfg.Database.Type),
		zap.String("rate_limiter", cfg.NewsAPI.RateLimiter),
		zap.String("log_level", cfg.Log.Level),
	)
	if cfg.UsesDefaultSecret() {
		log.Warn("using the development JWT secret; set PUBSITE_JWT_SECRET in production")
	}

	auth.Configure(auth.TokenConfig{
		Secret: cfg.JWT.Secret,
		Issuer: cfg.JWT.Issuer,
		TTL:    cfg.JWT.Expiry,
	})

	// Connect to database
	if err := database.Connect(cfg.Database); err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	db := database.GetDB()
	defer database.Close(db)

	// Run auto-migrations
	if err := models.AutoMigrate(db); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}
	log.Info("database migrations completed")

	// Create default admin user if no admin exists
	created, err := admin.EnsureAdmin(db, cfg.Admin.Email, cfg.Admin.Password)
	if err != nil {
		log.Fatal("failed to ensure admin user exists", zap.Error(err))
	}
	if created {
		log.Warn("created default admin user; change its password", zap.String("email", cfg.Admin.Email))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var rdb *goredis.Client
	if cfg.Redis.Enabled() {
		rdb, err = database.OpenRedis(ctx, cfg.Redis)
		if err != nil {
			log.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer rdb.Close()
		log.Info("connected to redis", zap.String("address", cfg.Redis.Address))
	}

	var limiter newsapi.Limiter
	if cfg.NewsAPI.RateLimiter == config.LimiterRedis {
		limiter = newsapi.NewRedisLimiter(rdb, nil)
	}

	m := metrics.New()
	router := server.NewRouter(server.Dependencies{
		Config:   cfg,
		DB:       db,
		Redis:    rdb,
		Limiter:  limiter,
		Throttle: auth.NewLoginThrottle(cfg.Auth.LoginRate, cfg.Auth.LoginBurst),
		Metrics:  m,
		Logger:   log,
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	retention := jobs.NewAPILogRetention(db, cfg.Retention.APILogs, cfg.Retention.Interval, m, log.Named("jobs"))

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	group.Go(func() error {
		log.Info("starting api log retention",
			zap.Duration("retention", cfg.Retention.APILogs),
			zap.Duration("interval", cfg.Retention.Interval),
		)
		return retention.Run(groupCtx)
	})

	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}
		return nil
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("server error", zap.Error(err))
	}

	log.Info("server exited cleanly")
}
