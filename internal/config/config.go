package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is loaded from the environment (and an optional .env file).
type Config struct {
	HTTP    HTTPConfig
	DB      DBConfig  `envPrefix:"DB_"`
	Log     LogConfig `envPrefix:"LOG_"`
	Metrics MetricsConfig

	// Environment is the deployment label reported by GET /status.
	// NODE_ENV is honoured when APP_ENV is unset.
	Environment string `env:"APP_ENV"`

	// Hostname identifies this instance in intake results.
	Hostname string `env:"HOSTNAME" envDefault:"unknown"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// HTTPConfig contains listener settings.
type HTTPConfig struct {
	Host         string        `env:"HOST"               envDefault:"0.0.0.0"`
	Port         int           `env:"PORT"               envDefault:"3000"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT"  envDefault:"5s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"10s"`

	// ProcessRateLimit is the sustained rate (req/s) allowed on POST /process. Zero disables limiting.
	ProcessRateLimit float64 `env:"PROCESS_RATE_LIMIT" envDefault:"0"`
	ProcessRateBurst int     `env:"PROCESS_RATE_BURST" envDefault:"50"`
}

// Addr returns host:port for the listener.
func (h HTTPConfig) Addr() string {
	return net.JoinHostPort(h.Host, strconv.Itoa(h.Port))
}

// DBConfig contains PostgreSQL connection and pool settings.
type DBConfig struct {
	Host     string `env:"HOST"     envDefault:"localhost"`
	Port     int    `env:"PORT"     envDefault:"5432"`
	Name     string `env:"NAME"     envDefault:"devops_app"`
	User     string `env:"USER"     envDefault:"postgres"`
	Password string `env:"PASSWORD" envDefault:"postgres"`
	SSLMode  string `env:"SSL_MODE" envDefault:"disable"`

	MaxConns       int32         `env:"MAX_CONNS"       envDefault:"20"`
	IdleTimeout    time.Duration `env:"IDLE_TIMEOUT"    envDefault:"30s"`
	ConnectTimeout time.Duration `env:"CONNECT_TIMEOUT" envDefault:"2s"`
	QueryTimeout   time.Duration `env:"QUERY_TIMEOUT"   envDefault:"2s"`
}

// LogConfig selects the logrus level and formatter.
type LogConfig struct {
	Level  string `env:"LEVEL"  envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"text"` // text | json
}

// MetricsConfig controls the Prometheus surface.
type MetricsConfig struct {
	Enabled           bool          `env:"METRICS_ENABLED"     envDefault:"true"`
	PoolStatsInterval time.Duration `env:"POOL_STATS_INTERVAL" envDefault:"15s"`
}

const (
	defaultEnvironment    = "development"
	defaultMaxConns       = 20
	defaultIdleTimeout    = 30 * time.Second
	defaultConnectTimeout = 2 * time.Second
	defaultQueryTimeout   = 2 * time.Second
	defaultShutdown       = 10 * time.Second
	defaultReadTimeout    = 5 * time.Second
	defaultWriteTimeout   = 10 * time.Second
	defaultRateBurst      = 50
	defaultStatsInterval  = 15 * time.Second
)

// Load reads .env (if present) and parses the environment into a Config.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return Config{}, fmt.Errorf("load .env file: %w", err)
		}
	}
	return Parse()
}

// Parse reads configuration from the process environment only.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	cfg.Sanitize()
	return cfg, nil
}

// Sanitize applies guardrails to values loaded from env.
func (c *Config) Sanitize() {
	if c.Environment == "" {
		c.Environment = os.Getenv("NODE_ENV")
	}
	if c.Environment == "" {
		c.Environment = defaultEnvironment
	}
	if c.Hostname == "" {
		c.Hostname = "unknown"
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = defaultShutdown
	}

	if c.HTTP.ReadTimeout <= 0 {
		c.HTTP.ReadTimeout = defaultReadTimeout
	}
	if c.HTTP.WriteTimeout <= 0 {
		c.HTTP.WriteTimeout = defaultWriteTimeout
	}
	if c.HTTP.ProcessRateLimit < 0 {
		c.HTTP.ProcessRateLimit = 0
	}
	if c.HTTP.ProcessRateBurst <= 0 {
		c.HTTP.ProcessRateBurst = defaultRateBurst
	}

	if c.DB.MaxConns <= 0 {
		c.DB.MaxConns = defaultMaxConns
	}
	if c.DB.IdleTimeout <= 0 {
		c.DB.IdleTimeout = defaultIdleTimeout
	}
	if c.DB.ConnectTimeout <= 0 {
		c.DB.ConnectTimeout = defaultConnectTimeout
	}
	if c.DB.QueryTimeout <= 0 {
		c.DB.QueryTimeout = defaultQueryTimeout
	}

	if c.Metrics.PoolStatsInterval <= 0 {
		c.Metrics.PoolStatsInterval = defaultStatsInterval
	}
}
