package config

import (
	"context"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	WorkerModeLocal  = "local"
	WorkerModeLambda = "lambda"
)

type Config struct {
	Env  string `env:"NODE_ENV" envDefault:"development"`
	Port int    `env:"PORT" envDefault:"8080"`

	DatabaseURL string `env:"DATABASE_URL"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	JWT      JWTConfig      `envPrefix:"JWT_"`
	Worker   WorkerConfig   ``
	Snapshot SnapshotConfig `envPrefix:"SNAPSHOT_"`
	Replay   ReplayConfig   `envPrefix:"REPLAY_"`
	Redis    RedisConfig    `envPrefix:"REDIS_"`
	Admin    AdminConfig    `envPrefix:"ADMIN_"`

	GeoIPDBPath  string   `env:"GEOIP_DB_PATH"`
	OTLPEndpoint string   `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	CORSOrigins  []string `env:"CORS_ORIGINS" envSeparator:","`
}

type JWTConfig struct {
	Secret               string        `env:"SECRET"`
	AccessExpiresIn      time.Duration `env:"ACCESS_EXPIRES_IN" envDefault:"15m"`
	RefreshExpiresInDays int           `env:"REFRESH_EXPIRES_IN_DAYS" envDefault:"30"`
}

func (c JWTConfig) RefreshTTL() time.Duration {
	return time.Duration(c.RefreshExpiresInDays) * 24 * time.Hour
}

type WorkerConfig struct {
	Mode          string        `env:"WORKER_MODE" envDefault:"local"`
	URL           string        `env:"WORKER_URL" envDefault:"http://127.0.0.1:8081"`
	Port          int           `env:"WORKER_PORT" envDefault:"8081"`
	PollInterval  time.Duration `env:"WORKER_POLL_INTERVAL" envDefault:"1s"`
	StatsInterval time.Duration `env:"WORKER_STATS_INTERVAL" envDefault:"30s"`

	// lambda mode only
	SQSQueueURL string `env:"SQS_QUEUE_URL"`
	AWSRegion   string `env:"AWS_REGION"`
	LambdaARN   string `env:"LAMBDA_ARN"`
}

type SnapshotConfig struct {
	Prefix       string   `env:"PREFIX" envDefault:"/api/v1"`
	MaxBodyBytes int      `env:"MAX_BODY_BYTES" envDefault:"65536"`
	DenyHeaders  []string `env:"DENY_HEADERS" envSeparator:","`
	Buffer       int      `env:"BUFFER" envDefault:"256"`
}

type ReplayConfig struct {
	AllowMethods   []string `env:"ALLOW_METHODS" envSeparator:","`
	RefusePrefixes []string `env:"REFUSE_PREFIXES" envSeparator:"," envDefault:"/api/v1/auth"`
}

type RedisConfig struct {
	Addr     string `env:"ADDR"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
}

type AdminConfig struct {
	Email    string `env:"EMAIL"`
	Password string `env:"PASSWORD"`
	Name     string `env:"NAME" envDefault:"Admin"`
}

// Load reads .env (when present) and the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) validate() error {
	switch c.Env {
	case "development", "test", "staging", "production":
	default:
		return fmt.Errorf("invalid NODE_ENV %q", c.Env)
	}

	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	switch c.Worker.Mode {
	case WorkerModeLocal:
	case WorkerModeLambda:
		if c.Worker.SQSQueueURL == "" || c.Worker.AWSRegion == "" || c.Worker.LambdaARN == "" {
			return fmt.Errorf("SQS_QUEUE_URL, AWS_REGION and LAMBDA_ARN are required when WORKER_MODE=lambda")
		}
	default:
		return fmt.Errorf("invalid WORKER_MODE %q", c.Worker.Mode)
	}

	return nil
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}
