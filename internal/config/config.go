package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config carries all runtime settings, sourced from environment variables.
type Config struct {
	AppEnv           string
	LogLevel         string
	LogFormat        string
	HTTPListenAddr   string
	PublicBasePath   string
	MetricsNamespace string

	// Store
	StoreDriver    string // "postgres" or "sqlite"
	DatabaseURL    string
	DatabaseSchema string
	SQLitePath     string

	// Cache
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTLS      bool

	// Dashboard
	PollInterval time.Duration
	DemoStats    bool

	// Doctor auth
	JWTSecret   string
	TokenExpiry time.Duration

	// External services
	BotEngineBaseURL string
	BotEngineAPIKey  string
	BotEngineTimeout time.Duration
	NotifierBaseURL  string
	NotifierTimeout  time.Duration

	// Live feed
	FeedChannel string
}

// Load reads configuration from the environment, applying defaults.
func Load() (*Config, error) {
	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFormat:        getEnv("LOG_FORMAT", "text"),
		HTTPListenAddr:   getEnv("HTTP_LISTEN_ADDR", ":8080"),
		PublicBasePath:   getEnv("PUBLIC_BASE_PATH", ""),
		MetricsNamespace: getEnv("METRICS_NAMESPACE", "telemed_admin"),

		StoreDriver:    strings.ToLower(getEnv("STORE_DRIVER", "postgres")),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		DatabaseSchema: getEnv("DATABASE_SCHEMA", "public"),
		SQLitePath:     getEnv("SQLITE_PATH", "telemed-admin.db"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getIntEnv("REDIS_DB", 0),
		RedisTLS:      getBoolEnv("REDIS_TLS", false),

		PollInterval: getDurationEnv("POLL_INTERVAL", 60*time.Second),
		DemoStats:    getBoolEnv("DEMO_STATS", false),

		JWTSecret:   os.Getenv("JWT_SECRET"),
		TokenExpiry: getDurationEnv("TOKEN_EXPIRY", 24*time.Hour),

		BotEngineBaseURL: getEnv("BOT_ENGINE_BASE_URL", "http://localhost:3000"),
		BotEngineAPIKey:  os.Getenv("BOT_ENGINE_API_KEY"),
		BotEngineTimeout: getDurationEnv("BOT_ENGINE_TIMEOUT", 15*time.Second),
		NotifierBaseURL:  getEnv("NOTIFIER_BASE_URL", "http://localhost:3000"),
		NotifierTimeout:  getDurationEnv("NOTIFIER_TIMEOUT", 10*time.Second),

		FeedChannel: getEnv("FEED_CHANNEL", "message_feed"),
	}

	switch cfg.StoreDriver {
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=postgres")
		}
	case "sqlite":
	default:
		return nil, fmt.Errorf("unsupported STORE_DRIVER %q", cfg.StoreDriver)
	}

	if cfg.JWTSecret == "" {
		if cfg.AppEnv == "production" {
			return nil, fmt.Errorf("JWT_SECRET is required in production")
		}
		cfg.JWTSecret = "dev-insecure-secret"
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return def
}

func getIntEnv(key string, def int) int {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return parsed
}

func getBoolEnv(key string, def bool) bool {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	switch strings.ToLower(val) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	default:
		return def
	}
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	parsed, err := time.ParseDuration(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
