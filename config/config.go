package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds process-level settings sourced from environment variables.
type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required"`
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`
	JWTSecret   string `env:"JWT_SECRET,required"`

	// EsignWebhookSecret authenticates inbound e-signature webhooks. Leaving
	// it empty disables signature verification, which is only acceptable for
	// local development.
	EsignWebhookSecret string `env:"ESIGN_WEBHOOK_SECRET"`

	ReminderInterval   time.Duration `env:"REMINDER_INTERVAL" envDefault:"24h"`
	ReminderWorkers    int           `env:"REMINDER_WORKERS" envDefault:"4"`
	ReminderRateLimit  int           `env:"REMINDER_RATE_LIMIT" envDefault:"3"`
	ReminderRateWindow time.Duration `env:"REMINDER_RATE_WINDOW" envDefault:"24h"`
}

// Load parses the configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}
	if cfg.ReminderWorkers <= 0 {
		return Config{}, fmt.Errorf("config: REMINDER_WORKERS must be positive")
	}
	if cfg.ReminderRateLimit <= 0 {
		return Config{}, fmt.Errorf("config: REMINDER_RATE_LIMIT must be positive")
	}
	return cfg, nil
}
