// Package config loads and validates the service configuration from the
// environment (with optional .env support for local development).
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"8080"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	// RedisURL selects the durable session store. Empty means the in-memory
	// store, which loses all sessions on restart.
	RedisURL string `env:"REDIS_URL"`

	// FailsafeDelay is how long after a ping the redundant external
	// notification fires. Deployed revisions used 10s and 30s.
	FailsafeDelay         time.Duration `env:"FAILSAFE_DELAY" default:"30s"`
	FailsafeCancelOnDrain bool          `env:"FAILSAFE_CANCEL_ON_DRAIN" default:"false"`
	OutboundTimeout       time.Duration `env:"OUTBOUND_TIMEOUT" default:"10s"`
	TimelineAPIURL        string        `env:"TIMELINE_API_URL" default:"https://timeline-api.rebble.io"`

	NotificationRetention time.Duration `env:"NOTIFICATION_RETENTION" default:"10m"`
	JanitorInterval       time.Duration `env:"JANITOR_INTERVAL" default:"1m"`
	// SessionTTL bounds idle session lifetime. Zero keeps sessions forever,
	// matching the original deployment.
	SessionTTL time.Duration `env:"SESSION_TTL" default:"0s"`

	MaxPayloadBytes int `env:"MAX_PAYLOAD_BYTES" default:"4096"`

	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" default:"5"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" default:"10"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.FailsafeDelay <= 0 {
		return fmt.Errorf("FAILSAFE_DELAY must be positive, got %s", cfg.FailsafeDelay)
	}
	if cfg.NotificationRetention <= 0 {
		return fmt.Errorf("NOTIFICATION_RETENTION must be positive, got %s", cfg.NotificationRetention)
	}
	if cfg.JanitorInterval <= 0 {
		return fmt.Errorf("JANITOR_INTERVAL must be positive, got %s", cfg.JanitorInterval)
	}
	if cfg.SessionTTL < 0 {
		return fmt.Errorf("SESSION_TTL must not be negative, got %s", cfg.SessionTTL)
	}
	if cfg.MaxPayloadBytes <= 0 {
		return fmt.Errorf("MAX_PAYLOAD_BYTES must be positive, got %d", cfg.MaxPayloadBytes)
	}
	if cfg.RateLimitRPS <= 0 || cfg.RateLimitBurst <= 0 {
		return fmt.Errorf("rate limit settings must be positive, got rps=%v burst=%d", cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	return nil
}
