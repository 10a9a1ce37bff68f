package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"climate-check/internal/smhi"
)

// Config holds the full application configuration, loaded from environment
// variables with sensible defaults for a local run.
type Config struct {
	Server   ServerConfig
	Cache    CacheConfig
	SMHI     SMHIConfig
	Pipeline PipelineConfig
	Logging  LoggingConfig
}

// ServerConfig configures the HTTP API (server mode only)
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// CacheConfig configures the on-disk observation cache. The default is a
// local SQLite file; CACHE_DRIVER=postgres with a CACHE_DSN switches to a
// shared Postgres cache.
type CacheConfig struct {
	Enabled         bool
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// SMHIConfig configures the SMHI open-data client and the fetch pool
type SMHIConfig struct {
	BaseURL        string
	Parameter      int
	RequestTimeout time.Duration
	Concurrency    int
	RetryOnTimeout bool
}

// PipelineConfig configures the normalization and trend policies
type PipelineConfig struct {
	TrailingExclusionMonths int
	MinStationObservations  int
	MinTrendYears           int
}

// LoggingConfig configures logging behavior
type LoggingConfig struct {
	Level string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	var err error

	cfg.Server.Host = envString("SERVER_HOST", "0.0.0.0")
	if cfg.Server.Port, err = envInt("SERVER_PORT", 8080); err != nil {
		return nil, err
	}
	if cfg.Server.ReadTimeout, err = envDuration("SERVER_READ_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.Server.WriteTimeout, err = envDuration("SERVER_WRITE_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.Server.IdleTimeout, err = envDuration("SERVER_IDLE_TIMEOUT", 60*time.Second); err != nil {
		return nil, err
	}

	if cfg.Cache.Enabled, err = envBool("CACHE_ENABLED", true); err != nil {
		return nil, err
	}
	cfg.Cache.Driver = envString("CACHE_DRIVER", "sqlite3")
	defaultDSN := ""
	if cfg.Cache.Driver == "sqlite3" {
		defaultDSN = envString("CACHE_PATH", "smhi_cache.db")
	}
	cfg.Cache.DSN = envString("CACHE_DSN", defaultDSN)
	defaultOpenConns := 10
	if cfg.Cache.Driver == "sqlite3" {
		// sqlite serializes writers; more connections just contend.
		defaultOpenConns = 1
	}
	if cfg.Cache.MaxOpenConns, err = envInt("CACHE_MAX_OPEN_CONNS", defaultOpenConns); err != nil {
		return nil, err
	}
	if cfg.Cache.MaxIdleConns, err = envInt("CACHE_MAX_IDLE_CONNS", defaultOpenConns); err != nil {
		return nil, err
	}
	if cfg.Cache.ConnMaxLifetime, err = envDuration("CACHE_CONN_MAX_LIFETIME", 0); err != nil {
		return nil, err
	}
	if cfg.Cache.ConnMaxIdleTime, err = envDuration("CACHE_CONN_MAX_IDLE_TIME", 0); err != nil {
		return nil, err
	}

	cfg.SMHI.BaseURL = envString("SMHI_BASE_URL", smhi.DefaultBaseURL)
	if cfg.SMHI.Parameter, err = envInt("SMHI_PARAMETER", smhi.ParameterMonthlyMeanAirTemperature); err != nil {
		return nil, err
	}
	if cfg.SMHI.RequestTimeout, err = envDuration("SMHI_REQUEST_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.SMHI.Concurrency, err = envInt("FETCH_CONCURRENCY", 10); err != nil {
		return nil, err
	}
	if cfg.SMHI.RetryOnTimeout, err = envBool("FETCH_RETRY_ON_TIMEOUT", true); err != nil {
		return nil, err
	}

	if cfg.Pipeline.TrailingExclusionMonths, err = envInt("TRAILING_EXCLUSION_MONTHS", 4); err != nil {
		return nil, err
	}
	if cfg.Pipeline.MinStationObservations, err = envInt("MIN_STATION_OBSERVATIONS", 12); err != nil {
		return nil, err
	}
	if cfg.Pipeline.MinTrendYears, err = envInt("MIN_TREND_YEARS", 10); err != nil {
		return nil, err
	}

	cfg.Logging.Level = envString("LOG_LEVEL", "info")

	return cfg, nil
}

// Validate checks the configuration for inconsistencies
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid SERVER_PORT %d", c.Server.Port)
	}

	switch c.Cache.Driver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("invalid CACHE_DRIVER %q (allowed: sqlite3, postgres)", c.Cache.Driver)
	}
	if c.Cache.Enabled && c.Cache.DSN == "" {
		return fmt.Errorf("CACHE_DSN (or CACHE_PATH for sqlite3) is required when the cache is enabled")
	}

	if c.SMHI.Parameter < 1 {
		return fmt.Errorf("invalid SMHI_PARAMETER %d", c.SMHI.Parameter)
	}
	if c.SMHI.Concurrency < 1 {
		return fmt.Errorf("invalid FETCH_CONCURRENCY %d", c.SMHI.Concurrency)
	}
	if c.SMHI.RequestTimeout <= 0 {
		return fmt.Errorf("invalid SMHI_REQUEST_TIMEOUT %s", c.SMHI.RequestTimeout)
	}

	if c.Pipeline.TrailingExclusionMonths < 0 {
		return fmt.Errorf("invalid TRAILING_EXCLUSION_MONTHS %d", c.Pipeline.TrailingExclusionMonths)
	}
	if c.Pipeline.MinStationObservations < 1 {
		return fmt.Errorf("invalid MIN_STATION_OBSERVATIONS %d", c.Pipeline.MinStationObservations)
	}
	if c.Pipeline.MinTrendYears < 2 {
		return fmt.Errorf("invalid MIN_TREND_YEARS %d: need at least 2 to fit a line", c.Pipeline.MinTrendYears)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", c.Logging.Level)
	}

	return nil
}

func envString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return parsed, nil
}

func envBool(key string, fallback bool) (bool, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return parsed, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return parsed, nil
}
