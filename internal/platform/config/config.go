package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures process-level configuration. Values come from the
// environment so main stays lean and deployments stay twelve-factor.
type Config struct {
	Addr        string
	PostgresDSN string
	RedisURL    string

	// Kafka sink for security events. Empty brokers disable the sink.
	KafkaBrokers  []string
	SecurityTopic string

	JWTSigningKey string

	RateLimit RateLimit

	// ViewSyncInterval controls how often buffered view counters are
	// flushed to the database.
	ViewSyncInterval time.Duration

	LogLevel string
}

// RateLimit holds per-endpoint-class request limits. Each class gets a
// minute window and an hour window, both enforced.
type RateLimit struct {
	Enabled bool

	AuthPerMinute   int
	AuthPerHour     int
	APIPerMinute    int
	APIPerHour      int
	UploadPerMinute int
	UploadPerHour   int
	AdminPerMinute  int
	AdminPerHour    int

	// BlockDuration is how long an IP stays blocked after tripping the
	// auth-class minute limit.
	BlockDuration time.Duration
}

// FromEnv builds a Config from BULLETDROP_* environment variables.
func FromEnv() Config {
	cfg := Config{
		Addr:             envStr("BULLETDROP_ADDR", ":8080"),
		PostgresDSN:      envStr("BULLETDROP_DATABASE_URL", ""),
		RedisURL:         envStr("BULLETDROP_REDIS_URL", ""),
		SecurityTopic:    envStr("BULLETDROP_SECURITY_TOPIC", "bulletdrop.security.events"),
		JWTSigningKey:    envStr("BULLETDROP_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		ViewSyncInterval: envDuration("BULLETDROP_VIEW_SYNC_INTERVAL", 30*time.Second),
		LogLevel:         envStr("BULLETDROP_LOG_LEVEL", "info"),
		RateLimit: RateLimit{
			Enabled:         envStr("BULLETDROP_RATE_LIMIT_ENABLED", "true") == "true",
			AuthPerMinute:   envInt("BULLETDROP_RATE_LIMIT_AUTH_PER_MINUTE", 5),
			AuthPerHour:     envInt("BULLETDROP_RATE_LIMIT_AUTH_PER_HOUR", 20),
			APIPerMinute:    envInt("BULLETDROP_RATE_LIMIT_API_PER_MINUTE", 60),
			APIPerHour:      envInt("BULLETDROP_RATE_LIMIT_API_PER_HOUR", 1000),
			UploadPerMinute: envInt("BULLETDROP_RATE_LIMIT_UPLOAD_PER_MINUTE", 10),
			UploadPerHour:   envInt("BULLETDROP_RATE_LIMIT_UPLOAD_PER_HOUR", 100),
			AdminPerMinute:  envInt("BULLETDROP_RATE_LIMIT_ADMIN_PER_MINUTE", 30),
			AdminPerHour:    envInt("BULLETDROP_RATE_LIMIT_ADMIN_PER_HOUR", 300),
			BlockDuration:   envDuration("BULLETDROP_RATE_LIMIT_BLOCK_DURATION", 5*time.Minute),
		},
	}

	if brokers := envStr("BULLETDROP_KAFKA_BROKERS", ""); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}

	return cfg
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
