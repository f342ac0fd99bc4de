package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultJWTSecret is only suitable for local development.
const DefaultJWTSecret = "pubsite-dev-secret-change-in-production"

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Addr returns the host:port the server listens on.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig selects the gorm dialect and its connection pool
type DatabaseConfig struct {
	Type            string // sqlite, postgres or mysql
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig is optional; an empty Address disables Redis.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// Enabled reports whether a Redis address is configured.
func (r RedisConfig) Enabled() bool {
	return r.Address != ""
}

// JWTConfig holds admin token settings
type JWTConfig struct {
	Secret string
	Issuer string
	Expiry time.Duration
}

// CORSConfig holds the origins allowed to call the site API
type CORSConfig struct {
	AllowedOrigins []string
}

// LogConfig configures the zap logger and optional file rotation
type LogConfig struct {
	Level       string
	Development bool
	File        string
	MaxSize     int // MB
	MaxBackups  int
	MaxAge      int // days
	Compress    bool
}

// Rate limiter backends for the news gateway.
const (
	LimiterDatabase = "database"
	LimiterRedis    = "redis"
)

// NewsAPIConfig configures the news ingestion gateway
type NewsAPIConfig struct {
	RateLimiter  string
	MaxBodyBytes int64
}

// RetentionConfig controls cleanup of old gateway audit rows
type RetentionConfig struct {
	APILogs  time.Duration
	Interval time.Duration
}

// AdminConfig is the account created on first start when no admin exists
type AdminConfig struct {
	Email    string
	Password string
}

// AuthConfig throttles login attempts per client IP
type AuthConfig struct {
	LoginRate  float64 // attempts per second
	LoginBurst int
}

// Config is the root configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	NewsAPI   NewsAPIConfig
	Retention RetentionConfig
	Admin     AdminConfig
	Auth      AuthConfig
}

// Load reads configuration from the environment (prefix PUBSITE_), an optional
// .env file and an optional YAML file named by PUBSITE_CONFIG_FILE.
// Environment variables take precedence over the file, which takes precedence over defaults.
func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetEnvPrefix("pubsite")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if file := os.Getenv("PUBSITE_CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", file, err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:            v.GetString("server.host"),
			Port:            v.GetInt("server.port"),
			ReadTimeout:     v.GetDuration("server.read_timeout"),
			WriteTimeout:    v.GetDuration("server.write_timeout"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		},
		Database: DatabaseConfig{
			Type:            strings.ToLower(v.GetString("database.type")),
			DSN:             v.GetString("database.dsn"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
		},
		Redis: RedisConfig{
			Address:  v.GetString("redis.address"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("jwt.secret"),
			Issuer: v.GetString("jwt.issuer"),
			Expiry: v.GetDuration("jwt.expiry"),
		},
		CORS: CORSConfig{
			AllowedOrigins: parseList(v.GetString("cors.allowed_origins")),
		},
		Log: LogConfig{
			Level:       v.GetString("log.level"),
			Development: v.GetBool("log.development"),
			File:        v.GetString("log.file"),
			MaxSize:     v.GetInt("log.max_size"),
			MaxBackups:  v.GetInt("log.max_backups"),
			MaxAge:      v.GetInt("log.max_age"),
			Compress:    v.GetBool("log.compress"),
		},
		NewsAPI: NewsAPIConfig{
			RateLimiter:  strings.ToLower(v.GetString("newsapi.rate_limiter")),
			MaxBodyBytes: v.GetInt64("newsapi.max_body_bytes"),
		},
		Retention: RetentionConfig{
			APILogs:  v.GetDuration("retention.api_logs"),
			Interval: v.GetDuration("retention.interval"),
		},
		Admin: AdminConfig{
			Email:    v.GetString("admin.email"),
			Password: v.GetString("admin.password"),
		},
		Auth: AuthConfig{
			LoginRate:  v.GetFloat64("auth.login_rate"),
			LoginBurst: v.GetInt("auth.login_burst"),
		},
	}

	if len(cfg.CORS.AllowedOrigins) == 0 {
		cfg.CORS.AllowedOrigins = []string{"*"}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "pubsite.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")
	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", DefaultJWTSecret)
	v.SetDefault("jwt.issuer", "pubsite")
	v.SetDefault("jwt.expiry", "24h")
	v.SetDefault("cors.allowed_origins", "*")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 28)
	v.SetDefault("log.compress", true)
	v.SetDefault("newsapi.rate_limiter", LimiterDatabase)
	v.SetDefault("newsapi.max_body_bytes", 1<<20)
	v.SetDefault("retention.api_logs", "720h")
	v.SetDefault("retention.interval", "1h")
	v.SetDefault("admin.email", "admin@pubsite.local")
	v.SetDefault("admin.password", "changeme")
	v.SetDefault("auth.login_rate", 0.2)
	v.SetDefault("auth.login_burst", 5)
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Database.Type {
	case "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("unsupported database type: %q", c.Database.Type)
	}

	switch c.NewsAPI.RateLimiter {
	case LimiterDatabase:
	case LimiterRedis:
		if !c.Redis.Enabled() {
			return fmt.Errorf("newsapi.rate_limiter=redis requires redis.address")
		}
	default:
		return fmt.Errorf("unsupported newsapi.rate_limiter: %q", c.NewsAPI.RateLimiter)
	}

	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("jwt.secret must be at least 32 characters long")
	}

	// Shorter retention would drop rows still inside the one-hour rate limit window.
	if c.Retention.APILogs > 0 && c.Retention.APILogs < time.Hour {
		return fmt.Errorf("retention.api_logs must be at least 1h, got %s", c.Retention.APILogs)
	}

	if c.NewsAPI.MaxBodyBytes <= 0 {
		return fmt.Errorf("newsapi.max_body_bytes must be positive")
	}
	return nil
}

// UsesDefaultSecret reports whether the development JWT secret is in use.
func (c *Config) UsesDefaultSecret() bool {
	return c.JWT.Secret == DefaultJWTSecret
}

func parseList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// loadEnvFile loads .env from the working directory or its parent. Missing files are ignored
// and variables already present in the environment are not overridden.
func loadEnvFile() {
	if err := godotenv.Load(".env"); err == nil {
		return
	}
	parentEnv := filepath.Join("..", ".env")
	if _, err := os.Stat(parentEnv); err == nil {
		_ = godotenv.Load(parentEnv)
	}
}
