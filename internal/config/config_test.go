package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	// Server defaults
	assert.Equal(t, "stdio", cfg.Server.Mode)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30, cfg.Server.ReadTimeout)
	assert.Equal(t, 30, cfg.Server.WriteTimeout)
	assert.True(t, cfg.Server.EnableWebSocket)

	// Store defaults
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "./data/openapi.db", cfg.Store.Path)
	assert.Equal(t, 10, cfg.Store.MaxOpenConns)
	assert.Equal(t, 5000, cfg.Store.BusyTimeoutMS)
	assert.Equal(t, 3, cfg.Store.RetryAttempts)

	// Ingest defaults
	assert.Equal(t, int64(2*1024*1024), cfg.Ingest.ProgressIntervalBytes)
	assert.False(t, cfg.Ingest.StrictValidation)

	// Search defaults
	assert.Equal(t, 10, cfg.Search.DefaultPageSize)
	assert.Equal(t, 50, cfg.Search.MaxPageSize)
	assert.Equal(t, 2, cfg.Search.MaxFuzzyDistance)

	// Cache defaults
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, 1000, cfg.Cache.Capacity)
	assert.Equal(t, 300, cfg.Cache.TTLSeconds)

	// Resilience defaults
	assert.Equal(t, 30, cfg.Resilience.RequestTimeoutSeconds)
	assert.Equal(t, 120, cfg.Resilience.MaxTimeoutSeconds)
	assert.Equal(t, 5, cfg.Resilience.BreakerFailureThreshold)
	assert.Equal(t, 60, cfg.Resilience.BreakerWindowSeconds)
	assert.Equal(t, 3, cfg.Resilience.BreakerHalfOpenProbes)
	assert.Equal(t, 2.0, cfg.Resilience.BackoffFactor)
	assert.Equal(t, 60, cfg.Resilience.BackoffMaxSeconds)
	assert.Equal(t, 3, cfg.Resilience.SearchRetries)
	assert.Equal(t, 3, cfg.Resilience.SchemaRetries)
	assert.Equal(t, 2, cfg.Resilience.ExampleRetries)
	assert.Equal(t, 20, cfg.Resilience.MaxConcurrent)

	// Monitoring defaults
	assert.True(t, cfg.Monitoring.Enabled)
	assert.Equal(t, 200, cfg.Monitoring.FastThresholdMS)
	assert.Equal(t, 500, cfg.Monitoring.AcceptableThresholdMS)
	assert.Equal(t, 2000, cfg.Monitoring.SlowThresholdMS)

	// Logging defaults
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  func() *Config
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid config",
			config:  DefaultConfig,
			wantErr: false,
		},
		{
			name: "invalid server mode",
			config: func() *Config {
				cfg := DefaultConfig()
				cfg.Server.Mode = "grpc"
				return cfg
			},
			wantErr: true,
			errMsg:  "invalid server mode",
		},
		{
			name: "invalid server port - too low",
			config: func() *Config {
				cfg := DefaultConfig()
				cfg.Server.Port = 0
				return cfg
			},
			wantErr: true,
			errMsg:  "invalid server port",
		},
		{
			name: "invalid server port - too high",
			config: func() *Config {
				cfg := DefaultConfig()
				cfg.Server.Port = 70000
				return cfg
			},
			wantErr: true,
			errMsg:  "invalid server port",
		},
		{
			name: "empty server host",
			config: func() *Config {
				cfg := DefaultConfig()
				cfg.Server.Host = ""
				return cfg
			},
			wantErr: true,
			errMsg:  "server host cannot be empty",
		},
		{
			name: "unsupported store driver",
			config: func() *Config {
				cfg := DefaultConfig()
				cfg.Store.Driver = "mysql"
				return cfg
			},
			wantErr: true,
			errMsg:  "unsupported store driver",
		},
		{
			name: "postgres without DSN",
			config: func() *Config {
				cfg := DefaultConfig()
				cfg.Store.Driver = "postgres"
				return cfg
			},
			wantErr: true,
			errMsg:  "store DSN is required",
		},
		{
			name: "zero progress interval",
			config: func() *Config {
				cfg := DefaultConfig()
				cfg.Ingest.ProgressIntervalBytes = 0
				return cfg
			},
			wantErr: true,
			errMsg:  "progress interval must be positive",
		},
		{
			name: "max page size below default",
			config: func() *Config {
				cfg := DefaultConfig()
				cfg.Search.MaxPageSize = 5
				return cfg
			},
			wantErr: true,
			errMsg:  "max page size",
		},
		{
			name: "unsupported cache backend",
			config: func() *Config {
				cfg := DefaultConfig()
				cfg.Cache.Backend = "memcached"
				return cfg
			},
			wantErr: true,
			errMsg:  "unsupported cache backend",
		},
		{
			name: "redis backend without address",
			config: func() *Config {
				cfg := DefaultConfig()
				cfg.Cache.Backend = "redis"
				cfg.Cache.Redis.Addr = ""
				return cfg
			},
			wantErr: true,
			errMsg:  "redis address cannot be empty",
		},
		{
			name: "max timeout below default timeout",
			config: func() *Config {
				cfg := DefaultConfig()
				cfg.Resilience.MaxTimeoutSeconds = 10
				return cfg
			},
			wantErr: true,
			errMsg:  "max timeout",
		},
		{
			name: "unordered latency thresholds",
			config: func() *Config {
				cfg := DefaultConfig()
				cfg.Monitoring.FastThresholdMS = 600
				return cfg
			},
			wantErr: true,
			errMsg:  "latency thresholds",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config().Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	env := map[string]string{
		"OPENAPI_MCP_MODE":                   "http",
		"OPENAPI_MCP_PORT":                   "9090",
		"OPENAPI_MCP_STORE_DRIVER":           "postgres",
		"DATABASE_URL":                       "postgres://svc@localhost/openapi?sslmode=disable",
		"OPENAPI_MCP_SEARCH_MAX_PAGE_SIZE":   "25",
		"OPENAPI_MCP_CACHE_BACKEND":          "redis",
		"REDIS_ADDR":                         "redis:6379",
		"OPENAPI_MCP_REQUEST_TIMEOUT_SECONDS": "45",
		"OPENAPI_MCP_LOG_LEVEL":              "debug",
	}
	for k, v := range env {
		t.Setenv(k, v)
	}

	cfg := DefaultConfig()
	loadFromEnv(cfg)

	assert.Equal(t, "http", cfg.Server.Mode)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://svc@localhost/openapi?sslmode=disable", cfg.Store.DSN)
	assert.Equal(t, 25, cfg.Search.MaxPageSize)
	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.Equal(t, "redis:6379", cfg.Cache.Redis.Addr)
	assert.Equal(t, 45, cfg.Resilience.RequestTimeoutSeconds)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadFromEnv_IgnoresMalformedValues(t *testing.T) {
	t.Setenv("OPENAPI_MCP_PORT", "not-a-number")
	t.Setenv("OPENAPI_MCP_CACHE_TTL_SECONDS", "soon")

	cfg := DefaultConfig()
	loadFromEnv(cfg)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 300, cfg.Cache.TTLSeconds)
}

func TestEnsureStoreDir(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Store.Path = t.TempDir() + "/nested/openapi.db"

	dir, err := cfg.EnsureStoreDir()
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
