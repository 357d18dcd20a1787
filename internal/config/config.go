package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `json:"server"`
	Store      StoreConfig      `json:"store"`
	Ingest     IngestConfig     `json:"ingest"`
	Search     SearchConfig     `json:"search"`
	Cache      CacheConfig      `json:"cache"`
	Resilience ResilienceConfig `json:"resilience"`
	Monitoring MonitoringConfig `json:"monitoring"`
	Logging    LoggingConfig    `json:"logging"`
	Docs       DocsConfig       `json:"docs"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Mode            string `json:"mode"` // stdio or http
	Host            string `json:"host"`
	Port            int    `json:"port"`
	ReadTimeout     int    `json:"read_timeout_seconds"`
	WriteTimeout    int    `json:"write_timeout_seconds"`
	EnableWebSocket bool   `json:"enable_websocket"`
}

// StoreConfig represents the persistent store configuration
type StoreConfig struct {
	Driver           string `json:"driver"` // sqlite or postgres
	Path             string `json:"path"`   // sqlite database file
	DSN              string `json:"-"`      // postgres DSN, never serialized
	MaxOpenConns     int    `json:"max_open_conns"`
	BusyTimeoutMS    int    `json:"busy_timeout_ms"`
	RetryAttempts    int    `json:"retry_attempts"`
	RetryBaseDelayMS int    `json:"retry_base_delay_ms"`
}

// IngestConfig represents ingestion pipeline configuration
type IngestConfig struct {
	ProgressIntervalBytes int64 `json:"progress_interval_bytes"`
	MaxDocumentBytes      int64 `json:"max_document_bytes"`
	StrictValidation      bool  `json:"strict_validation"`
}

// SearchConfig represents search behavior configuration
type SearchConfig struct {
	DefaultPageSize  int `json:"default_page_size"`
	MaxPageSize      int `json:"max_page_size"`
	MaxFuzzyDistance int `json:"max_fuzzy_distance"`
	SnippetLength    int `json:"snippet_length"`
}

// CacheConfig represents result cache configuration
type CacheConfig struct {
	Backend    string      `json:"backend"` // memory or redis
	Capacity   int         `json:"capacity"`
	TTLSeconds int         `json:"ttl_seconds"`
	Redis      RedisConfig `json:"redis"`
}

// RedisConfig represents the optional Redis cache backend
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"-"` // Never serialize password
	DB       int    `json:"db"`
}

// ResilienceConfig represents request handling limits and recovery behavior
type ResilienceConfig struct {
	RequestTimeoutSeconds   int     `json:"request_timeout_seconds"`
	MaxTimeoutSeconds       int     `json:"max_timeout_seconds"`
	BreakerFailureThreshold int     `json:"breaker_failure_threshold"`
	BreakerWindowSeconds    int     `json:"breaker_window_seconds"`
	BreakerHalfOpenProbes   int     `json:"breaker_half_open_probes"`
	BackoffFactor           float64 `json:"backoff_factor"`
	BackoffMaxSeconds       int     `json:"backoff_max_seconds"`
	SearchRetries           int     `json:"search_retries"`
	SchemaRetries           int     `json:"schema_retries"`
	ExampleRetries          int     `json:"example_retries"`
	MaxConcurrent           int     `json:"max_concurrent"`
}

// MonitoringConfig represents latency tracking configuration
type MonitoringConfig struct {
	Enabled               bool `json:"enabled"`
	FastThresholdMS       int  `json:"fast_threshold_ms"`
	AcceptableThresholdMS int  `json:"acceptable_threshold_ms"`
	SlowThresholdMS       int  `json:"slow_threshold_ms"`
	WindowSize            int  `json:"window_size"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// DocsConfig represents generated documentation configuration
type DocsConfig struct {
	Enabled bool   `json:"enabled"`
	Title   string `json:"title"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Mode:            "stdio",
			Host:            "localhost",
			Port:            8080,
			ReadTimeout:     30,
			WriteTimeout:    30,
			EnableWebSocket: true,
		},
		Store: StoreConfig{
			Driver:           "sqlite",
			Path:             "./data/openapi.db",
			MaxOpenConns:     10,
			BusyTimeoutMS:    5000,
			RetryAttempts:    3,
			RetryBaseDelayMS: 100,
		},
		Ingest: IngestConfig{
			ProgressIntervalBytes: 2 * 1024 * 1024,
			MaxDocumentBytes:      256 * 1024 * 1024,
			StrictValidation:      false,
		},
		Search: SearchConfig{
			DefaultPageSize:  10,
			MaxPageSize:      50,
			MaxFuzzyDistance: 2,
			SnippetLength:    200,
		},
		Cache: CacheConfig{
			Backend:    "memory",
			Capacity:   1000,
			TTLSeconds: 300,
			Redis: RedisConfig{
				Addr: "localhost:6379",
				DB:   0,
			},
		},
		Resilience: ResilienceConfig{
			RequestTimeoutSeconds:   30,
			MaxTimeoutSeconds:       120,
			BreakerFailureThreshold: 5,
			BreakerWindowSeconds:    60,
			BreakerHalfOpenProbes:   3,
			BackoffFactor:           2.0,
			BackoffMaxSeconds:       60,
			SearchRetries:           3,
			SchemaRetries:           3,
			ExampleRetries:          2,
			MaxConcurrent:           20,
		},
		Monitoring: MonitoringConfig{
			Enabled:               true,
			FastThresholdMS:       200,
			AcceptableThresholdMS: 500,
			SlowThresholdMS:       2000,
			WindowSize:            512,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Docs: DocsConfig{
			Enabled: true,
			Title:   "API Reference",
		},
	}
}

// LoadConfig loads configuration from environment variables and defaults
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		// Don't fail if .env doesn't exist
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := DefaultConfig()

	// Override with environment variables
	loadFromEnv(config)

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// loadFromEnv loads configuration from environment variables
func loadFromEnv(config *Config) {
	loadServerConfig(config)
	loadStoreConfig(config)
	loadIngestConfig(config)
	loadSearchConfig(config)
	loadCacheConfig(config)
	loadResilienceConfig(config)
	loadMonitoringConfig(config)
	loadLoggingConfig(config)
	loadDocsConfig(config)
}

// loadServerConfig loads server configuration from environment
func loadServerConfig(config *Config) {
	if mode := os.Getenv("OPENAPI_MCP_MODE"); mode != "" {
		config.Server.Mode = mode
	}
	if host := os.Getenv("OPENAPI_MCP_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("OPENAPI_MCP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	// Server timeouts
	if readTimeout := os.Getenv("OPENAPI_MCP_READ_TIMEOUT_SECONDS"); readTimeout != "" {
		if rt, err := strconv.Atoi(readTimeout); err == nil {
			config.Server.ReadTimeout = rt
		}
	}
	if writeTimeout := os.Getenv("OPENAPI_MCP_WRITE_TIMEOUT_SECONDS"); writeTimeout != "" {
		if wt, err := strconv.Atoi(writeTimeout); err == nil {
			config.Server.WriteTimeout = wt
		}
	}
	if ws := os.Getenv("OPENAPI_MCP_ENABLE_WEBSOCKET"); ws != "" {
		if enabled, err := strconv.ParseBool(ws); err == nil {
			config.Server.EnableWebSocket = enabled
		}
	}
}

// loadStoreConfig loads store configuration from environment
func loadStoreConfig(config *Config) {
	if driver := os.Getenv("OPENAPI_MCP_STORE_DRIVER"); driver != "" {
		config.Store.Driver = driver
	}
	if path := os.Getenv("OPENAPI_MCP_STORE_PATH"); path != "" {
		config.Store.Path = path
	}

	// Postgres DSN - check both prefixed and conventional env vars
	if dsn := os.Getenv("OPENAPI_MCP_STORE_DSN"); dsn != "" {
		config.Store.DSN = dsn
	} else if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		config.Store.DSN = dsn
	}

	if maxConns := os.Getenv("OPENAPI_MCP_STORE_MAX_OPEN_CONNS"); maxConns != "" {
		if mc, err := strconv.Atoi(maxConns); err == nil {
			config.Store.MaxOpenConns = mc
		}
	}
	if busyTimeout := os.Getenv("OPENAPI_MCP_STORE_BUSY_TIMEOUT_MS"); busyTimeout != "" {
		if bt, err := strconv.Atoi(busyTimeout); err == nil {
			config.Store.BusyTimeoutMS = bt
		}
	}
	if retryAttempts := os.Getenv("OPENAPI_MCP_STORE_RETRY_ATTEMPTS"); retryAttempts != "" {
		if ra, err := strconv.Atoi(retryAttempts); err == nil {
			config.Store.RetryAttempts = ra
		}
	}
	if retryDelay := os.Getenv("OPENAPI_MCP_STORE_RETRY_BASE_DELAY_MS"); retryDelay != "" {
		if rd, err := strconv.Atoi(retryDelay); err == nil {
			config.Store.RetryBaseDelayMS = rd
		}
	}
}

// loadIngestConfig loads ingestion configuration from environment
func loadIngestConfig(config *Config) {
	if interval := os.Getenv("OPENAPI_MCP_INGEST_PROGRESS_INTERVAL_BYTES"); interval != "" {
		if iv, err := strconv.ParseInt(interval, 10, 64); err == nil {
			config.Ingest.ProgressIntervalBytes = iv
		}
	}
	if maxBytes := os.Getenv("OPENAPI_MCP_INGEST_MAX_DOCUMENT_BYTES"); maxBytes != "" {
		if mb, err := strconv.ParseInt(maxBytes, 10, 64); err == nil {
			config.Ingest.MaxDocumentBytes = mb
		}
	}
	if strict := os.Getenv("OPENAPI_MCP_INGEST_STRICT_VALIDATION"); strict != "" {
		if sv, err := strconv.ParseBool(strict); err == nil {
			config.Ingest.StrictValidation = sv
		}
	}
}

// loadSearchConfig loads search configuration from environment
func loadSearchConfig(config *Config) {
	if pageSize := os.Getenv("OPENAPI_MCP_SEARCH_DEFAULT_PAGE_SIZE"); pageSize != "" {
		if ps, err := strconv.Atoi(pageSize); err == nil {
			config.Search.DefaultPageSize = ps
		}
	}
	if maxPageSize := os.Getenv("OPENAPI_MCP_SEARCH_MAX_PAGE_SIZE"); maxPageSize != "" {
		if mp, err := strconv.Atoi(maxPageSize); err == nil {
			config.Search.MaxPageSize = mp
		}
	}
	if fuzzy := os.Getenv("OPENAPI_MCP_SEARCH_MAX_FUZZY_DISTANCE"); fuzzy != "" {
		if fd, err := strconv.Atoi(fuzzy); err == nil {
			config.Search.MaxFuzzyDistance = fd
		}
	}
	if snippet := os.Getenv("OPENAPI_MCP_SEARCH_SNIPPET_LENGTH"); snippet != "" {
		if sl, err := strconv.Atoi(snippet); err == nil {
			config.Search.SnippetLength = sl
		}
	}
}

// loadCacheConfig loads cache configuration from environment
func loadCacheConfig(config *Config) {
	if backend := os.Getenv("OPENAPI_MCP_CACHE_BACKEND"); backend != "" {
		config.Cache.Backend = backend
	}
	if capacity := os.Getenv("OPENAPI_MCP_CACHE_CAPACITY"); capacity != "" {
		if c, err := strconv.Atoi(capacity); err == nil {
			config.Cache.Capacity = c
		}
	}
	if ttl := os.Getenv("OPENAPI_MCP_CACHE_TTL_SECONDS"); ttl != "" {
		if t, err := strconv.Atoi(ttl); err == nil {
			config.Cache.TTLSeconds = t
		}
	}

	// Redis settings - check both prefixed and conventional env vars
	if addr := os.Getenv("OPENAPI_MCP_REDIS_ADDR"); addr != "" {
		config.Cache.Redis.Addr = addr
	} else if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		config.Cache.Redis.Addr = addr
	}
	if password := os.Getenv("OPENAPI_MCP_REDIS_PASSWORD"); password != "" {
		config.Cache.Redis.Password = password
	} else if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		config.Cache.Redis.Password = password
	}
	if db := os.Getenv("OPENAPI_MCP_REDIS_DB"); db != "" {
		if d, err := strconv.Atoi(db); err == nil {
			config.Cache.Redis.DB = d
		}
	}
}

// loadResilienceConfig loads request handling configuration from environment
func loadResilienceConfig(config *Config) {
	if timeout := os.Getenv("OPENAPI_MCP_REQUEST_TIMEOUT_SECONDS"); timeout != "" {
		if t, err := strconv.Atoi(timeout); err == nil {
			config.Resilience.RequestTimeoutSeconds = t
		}
	}
	if maxTimeout := os.Getenv("OPENAPI_MCP_MAX_TIMEOUT_SECONDS"); maxTimeout != "" {
		if mt, err := strconv.Atoi(maxTimeout); err == nil {
			config.Resilience.MaxTimeoutSeconds = mt
		}
	}
	if threshold := os.Getenv("OPENAPI_MCP_BREAKER_FAILURE_THRESHOLD"); threshold != "" {
		if ft, err := strconv.Atoi(threshold); err == nil {
			config.Resilience.BreakerFailureThreshold = ft
		}
	}
	if window := os.Getenv("OPENAPI_MCP_BREAKER_WINDOW_SECONDS"); window != "" {
		if w, err := strconv.Atoi(window); err == nil {
			config.Resilience.BreakerWindowSeconds = w
		}
	}
	if probes := os.Getenv("OPENAPI_MCP_BREAKER_HALF_OPEN_PROBES"); probes != "" {
		if p, err := strconv.Atoi(probes); err == nil {
			config.Resilience.BreakerHalfOpenProbes = p
		}
	}
	if maxConcurrent := os.Getenv("OPENAPI_MCP_MAX_CONCURRENT"); maxConcurrent != "" {
		if mc, err := strconv.Atoi(maxConcurrent); err == nil {
			config.Resilience.MaxConcurrent = mc
		}
	}
}

// loadMonitoringConfig loads latency tracking configuration from environment
func loadMonitoringConfig(config *Config) {
	if enabled := os.Getenv("OPENAPI_MCP_MONITORING_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.Monitoring.Enabled = e
		}
	}
	if window := os.Getenv("OPENAPI_MCP_MONITORING_WINDOW_SIZE"); window != "" {
		if w, err := strconv.Atoi(window); err == nil {
			config.Monitoring.WindowSize = w
		}
	}
}

// loadLoggingConfig loads logging configuration from environment
func loadLoggingConfig(config *Config) {
	if level := os.Getenv("OPENAPI_MCP_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("OPENAPI_MCP_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
}

// loadDocsConfig loads documentation configuration from environment
func loadDocsConfig(config *Config) {
	if enabled := os.Getenv("OPENAPI_MCP_DOCS_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.Docs.Enabled = e
		}
	}
	if title := os.Getenv("OPENAPI_MCP_DOCS_TITLE"); title != "" {
		config.Docs.Title = title
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Mode != "stdio" && c.Server.Mode != "http" {
		return fmt.Errorf("invalid server mode: %s", c.Server.Mode)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}

	// Validate store config
	if c.Store.Driver != "sqlite" && c.Store.Driver != "postgres" {
		return fmt.Errorf("unsupported store driver: %s", c.Store.Driver)
	}
	if c.Store.Driver == "sqlite" && c.Store.Path == "" {
		return fmt.Errorf("store path cannot be empty for the sqlite driver")
	}
	if c.Store.Driver == "postgres" && c.Store.DSN == "" {
		return fmt.Errorf("store DSN is required for the postgres driver")
	}

	// Validate ingest config
	if c.Ingest.ProgressIntervalBytes <= 0 {
		return fmt.Errorf("progress interval must be positive")
	}
	if c.Ingest.MaxDocumentBytes <= 0 {
		return fmt.Errorf("max document size must be positive")
	}

	// Validate search config
	if c.Search.DefaultPageSize < 1 {
		return fmt.Errorf("default page size must be positive")
	}
	if c.Search.MaxPageSize < c.Search.DefaultPageSize {
		return fmt.Errorf("max page size must be at least the default page size")
	}
	if c.Search.MaxFuzzyDistance < 0 {
		return fmt.Errorf("fuzzy distance cannot be negative")
	}

	// Validate cache config
	if c.Cache.Backend != "memory" && c.Cache.Backend != "redis" {
		return fmt.Errorf("unsupported cache backend: %s", c.Cache.Backend)
	}
	if c.Cache.Capacity <= 0 {
		return fmt.Errorf("cache capacity must be positive")
	}
	if c.Cache.Backend == "redis" && c.Cache.Redis.Addr == "" {
		return fmt.Errorf("redis address cannot be empty when the redis backend is selected")
	}

	// Validate resilience config
	if c.Resilience.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}
	if c.Resilience.MaxTimeoutSeconds < c.Resilience.RequestTimeoutSeconds {
		return fmt.Errorf("max timeout must be at least the default request timeout")
	}
	if c.Resilience.BreakerFailureThreshold <= 0 {
		return fmt.Errorf("breaker failure threshold must be positive")
	}
	if c.Resilience.MaxConcurrent <= 0 {
		return fmt.Errorf("max concurrent requests must be positive")
	}

	// Validate monitoring config
	if c.Monitoring.FastThresholdMS >= c.Monitoring.AcceptableThresholdMS ||
		c.Monitoring.AcceptableThresholdMS >= c.Monitoring.SlowThresholdMS {
		return fmt.Errorf("latency thresholds must be strictly increasing")
	}

	return nil
}

// EnsureStoreDir creates the directory holding the sqlite database file
func (c *Config) EnsureStoreDir() (string, error) {
	dir := filepath.Dir(c.Store.Path)
	if dir == "" {
		dir = "."
	}

	absPath, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path for store directory: %w", err)
	}

	if err := os.MkdirAll(absPath, 0750); err != nil {
		return "", fmt.Errorf("failed to create store directory: %w", err)
	}

	return absPath, nil
}
