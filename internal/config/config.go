package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

type Config struct {
	App          AppConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Leave        LeaveConfig
	Notification NotificationConfig
	HTTP         HTTPConfig
}

type AppConfig struct {
	Name            string        `envconfig:"APP_NAME" default:"hris-leave"`
	Env             string        `envconfig:"APP_ENV" default:"development"`
	Port            int           `envconfig:"APP_PORT" default:"8080"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`
	ShutdownTimeout time.Duration `envconfig:"APP_SHUTDOWN_TIMEOUT" default:"15s"`
	// Timezone decides which calendar day "today" is for leave timing.
	Timezone        string        `envconfig:"APP_TIMEZONE" default:"Asia/Jakarta"`
}

type DatabaseConfig struct {
	Driver     string `envconfig:"DB_DRIVER" default:"postgres"`
	Host       string `envconfig:"DB_HOST" default:"localhost"`
	Port       int    `envconfig:"DB_PORT" default:"5432"`
	User       string `envconfig:"DB_USER" default:"postgres"`
	Password   string `envconfig:"DB_PASSWORD"`
	Name       string `envconfig:"DB_NAME" default:"hris"`
	SSLMode    string `envconfig:"DB_SSLMODE" default:"disable"`
	MaxConns   int32  `envconfig:"DB_MAX_CONNS" default:"25"`
	MinConns   int32  `envconfig:"DB_MIN_CONNS" default:"5"`
	SQLitePath string `envconfig:"DB_SQLITE_PATH" default:"hris-leave.db"`
}

type RedisConfig struct {
	// Addr empty disables the Redis event publisher.
	Addr     string `envconfig:"REDIS_ADDR"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
	Channel  string `envconfig:"REDIS_CHANNEL" default:"hris:leave:events"`
}

type LeaveConfig struct {
	StorageTimeout       time.Duration `envconfig:"LEAVE_STORAGE_TIMEOUT" default:"5s"`
	ReconcileInterval    time.Duration `envconfig:"LEAVE_RECONCILE_INTERVAL" default:"0s"`
	ReconcileCron        string        `envconfig:"LEAVE_RECONCILE_CRON"`
	ReconcileConcurrency int           `envconfig:"LEAVE_RECONCILE_CONCURRENCY" default:"4"`
	ReconcileMaxRetries  int           `envconfig:"LEAVE_RECONCILE_MAX_RETRIES" default:"3"`
	WorkerConcurrency    int           `envconfig:"LEAVE_WORKER_CONCURRENCY" default:"2"`
}

type NotificationConfig struct {
	Workers        int           `envconfig:"NOTIFICATION_WORKERS" default:"2"`
	QueueSize      int           `envconfig:"NOTIFICATION_QUEUE_SIZE" default:"1000"`
	PublishTimeout time.Duration `envconfig:"NOTIFICATION_PUBLISH_TIMEOUT" default:"5s"`
	SSEBuffer      int           `envconfig:"NOTIFICATION_SSE_BUFFER" default:"16"`
	SSEKeepalive   time.Duration `envconfig:"NOTIFICATION_SSE_KEEPALIVE" default:"30s"`
}

type HTTPConfig struct {
	AllowedOrigins []string      `envconfig:"HTTP_ALLOWED_ORIGINS" default:"http://localhost:3000"`
	RateLimit      int           `envconfig:"HTTP_RATE_LIMIT" default:"100"`
	RateWindow     time.Duration `envconfig:"HTTP_RATE_WINDOW" default:"1m"`
	ReadTimeout    time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"15s"`
	WriteTimeout   time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"0s"`
}

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv fills a Config from the process environment only.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.App.Timezone); err != nil {
		return fmt.Errorf("APP_TIMEZONE %q: %w", c.App.Timezone, err)
	}
	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.Password == "" {
			return fmt.Errorf("DB_PASSWORD is required")
		}
	case DriverSQLite:
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("DB_SQLITE_PATH is required")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("DB_DRIVER must be one of postgres, sqlite, memory; got %q", c.Database.Driver)
	}
	if c.Leave.StorageTimeout <= 0 {
		return fmt.Errorf("LEAVE_STORAGE_TIMEOUT must be positive")
	}
	if c.Leave.ReconcileInterval < 0 {
		return fmt.Errorf("LEAVE_RECONCILE_INTERVAL must not be negative")
	}
	if c.Leave.ReconcileConcurrency <= 0 {
		return fmt.Errorf("LEAVE_RECONCILE_CONCURRENCY must be positive")
	}
	if c.Leave.ReconcileMaxRetries < 0 {
		return fmt.Errorf("LEAVE_RECONCILE_MAX_RETRIES must not be negative")
	}
	if c.Notification.Workers <= 0 || c.Notification.QueueSize <= 0 {
		return fmt.Errorf("NOTIFICATION_WORKERS and NOTIFICATION_QUEUE_SIZE must be positive")
	}
	return nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Database.User, c.Database.Password),
		Host:     fmt.Sprintf("%s:%d", c.Database.Host, c.Database.Port),
		Path:     c.Database.Name,
		RawQuery: "sslmode=" + url.QueryEscape(c.Database.SSLMode),
	}
	return u.String()
}

// Location resolves APP_TIMEZONE, falling back to UTC when it does not load.
// Validate rejects an unknown zone, so the fallback only applies to configs
// built by hand.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}
