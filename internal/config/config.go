// Package config loads runtime configuration from the environment, with
// an optional .env file for local development.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv   string `env:"APP_ENV" envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Empty DSN/addr select the in-memory fallbacks, which keeps local
	// runs dependency-free.
	PostgresDSN   string `env:"POSTGRES_DSN"`
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	HTTPAddr     string `env:"HTTP_ADDR" envDefault:":8080"`
	AccountsPath string `env:"ACCOUNTS_PATH" envDefault:"accounts.yaml"`
	ExportDir    string `env:"EXPORT_DIR" envDefault:"exports"`

	// Timezone fixes the wall clock for month keys and daily rate
	// budget rollovers.
	Timezone string `env:"TIMEZONE" envDefault:"Europe/Amsterdam"`

	Workers      int           `env:"WORKERS" envDefault:"1"`
	PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"1s"`

	MaxAttempts        int           `env:"MAX_ATTEMPTS" envDefault:"3"`
	BackoffBase        time.Duration `env:"BACKOFF_BASE" envDefault:"30s"`
	BackoffCap         time.Duration `env:"BACKOFF_CAP" envDefault:"15m"`
	StallAfter         time.Duration `env:"STALL_AFTER" envDefault:"10m"`
	MaintenanceEvery   time.Duration `env:"MAINTENANCE_EVERY" envDefault:"1m"`
	SucceededRetention time.Duration `env:"SUCCEEDED_RETENTION" envDefault:"720h"`
	DeadRetention      time.Duration `env:"DEAD_RETENTION" envDefault:"2160h"`

	InstagramPerMinute int `env:"INSTAGRAM_PER_MINUTE" envDefault:"10"`
	InstagramPerDay    int `env:"INSTAGRAM_PER_DAY" envDefault:"200"`
	FacebookPerMinute  int `env:"FACEBOOK_PER_MINUTE" envDefault:"5"`
	FacebookPerDay     int `env:"FACEBOOK_PER_DAY" envDefault:"100"`
	TwitterPerMinute   int `env:"TWITTER_PER_MINUTE" envDefault:"20"`
	TwitterPerDay      int `env:"TWITTER_PER_DAY" envDefault:"500"`

	S3Endpoint  string `env:"S3_ENDPOINT"`
	S3AccessKey string `env:"S3_ACCESS_KEY"`
	S3SecretKey string `env:"S3_SECRET_KEY"`
	S3Bucket    string `env:"S3_BUCKET" envDefault:"socmon-reports"`
	S3UseSSL    bool   `env:"S3_USE_SSL" envDefault:"true"`
}

// Load reads .env when present, then parses the environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return c, nil
}

// Location resolves the configured timezone.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}
