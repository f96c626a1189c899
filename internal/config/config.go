// Package config provides centralized configuration management for the
// application. Process settings load from environment variables with
// sensible defaults and are validated on startup to fail fast on
// misconfiguration. The declarative source catalog (entity kinds, import
// sources, mappings) loads from a YAML document; see sources.go.
package config

import "time"

// Config holds all process-level configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	Import    ImportConfig
	Scheduler SchedulerConfig
	Rate      RateLimitConfig
	Security  SecurityConfig
	Logging   LoggingConfig

	// SourcesPath is the path of the YAML source catalog (default: sources.yaml)
	SourcesPath string `env:"SOURCES_PATH" default:"sources.yaml"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 0 for SSE)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// StoreConfig selects and configures the entity store backend.
type StoreConfig struct {
	// Backend is the store implementation: memory, sqlite, or postgres (default: sqlite)
	Backend string `env:"STORE_BACKEND" default:"sqlite"`

	// URL is the backend connection string: a DSN for postgres (pool tuning
	// such as pool_max_conns rides the DSN), a file path for sqlite, unused
	// for memory. Supports both STORE_URL and DATABASE_URL env vars.
	URL string `env:"STORE_URL" envAlt:"DATABASE_URL" default:"sluice.db"`
}

// ImportConfig holds import pipeline settings shared by every source.
type ImportConfig struct {
	// SpoolDir is where fetched payloads are spooled so chunked invocations
	// of one run re-read identical bytes (default: spool)
	SpoolDir string `env:"IMPORT_SPOOL_DIR" default:"spool"`

	// MaxConcurrentRuns caps how many operations may run at once (default: 4)
	MaxConcurrentRuns int `env:"IMPORT_MAX_CONCURRENT" default:"4"`

	// OperationTimeout is the maximum duration for one logical operation
	// across all of its chunks (default: 10m)
	OperationTimeout time.Duration `env:"IMPORT_OPERATION_TIMEOUT" default:"10m"`

	// FetchTimeout is the HTTP client timeout for http sources (default: 20s)
	FetchTimeout time.Duration `env:"IMPORT_FETCH_TIMEOUT" default:"20s"`
}

// SchedulerConfig holds background scheduler settings for `serve`.
type SchedulerConfig struct {
	// Enabled controls whether scheduled imports and expire passes run (default: true)
	Enabled bool `env:"SCHEDULER_ENABLED" default:"true"`

	// CheckInterval is how often the scheduler looks for due work (default: 1m)
	CheckInterval time.Duration `env:"SCHEDULER_CHECK_INTERVAL" default:"1m"`

	// ExpireInterval is how often sources with a retention window get an
	// expire pass (default: 24h)
	ExpireInterval time.Duration `env:"SCHEDULER_EXPIRE_INTERVAL" default:"24h"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`
}

// SecurityConfig holds API authentication and proxy trust settings.
type SecurityConfig struct {
	// RequireAPIKey rejects API requests without a valid X-API-Key (default: false)
	RequireAPIKey bool `env:"SECURITY_REQUIRE_API_KEY" default:"false"`

	// APIKeys is the comma-separated list of accepted API keys
	APIKeys []string `env:"SECURITY_API_KEYS"`

	// TrustedProxies lists proxy CIDRs whose forwarded-IP headers are trusted
	TrustedProxies []string `env:"SECURITY_TRUSTED_PROXIES"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	if c.Host == "" {
		return ":" + itoa(c.Port)
	}
	return c.Host + ":" + itoa(c.Port)
}

// itoa converts an int to string without importing strconv in this file.
func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var b [20]byte
	n := len(b)
	neg := i < 0
	if neg {
		i = -i
	}
	for i > 0 {
		n--
		b[n] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		n--
		b[n] = '-'
	}
	return string(b[n:])
}
