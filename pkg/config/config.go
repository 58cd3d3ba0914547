package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/propsight/propsight/pkg/events"
	"github.com/propsight/propsight/pkg/observability"
	"github.com/propsight/propsight/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Storage configuration
	Storage storage.Config

	// Upstream event API configuration
	Upstream UpstreamConfig

	// Analytics engine configuration
	Analytics AnalyticsConfig

	// Reconciler configuration
	Reconciler ReconcilerConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// UpstreamConfig holds the raw-event API connection settings
type UpstreamConfig struct {
	BaseURL   string
	APISecret string
	Timeout   time.Duration
	MaxPages  int
	PageDelay time.Duration
}

// ClientConfig converts the upstream settings to an events client config
func (u UpstreamConfig) ClientConfig() events.ClientConfig {
	return events.ClientConfig{
		BaseURL:   u.BaseURL,
		APISecret: u.APISecret,
		Timeout:   u.Timeout,
		MaxPages:  u.MaxPages,
		PageDelay: u.PageDelay,
	}
}

// AnalyticsConfig holds aggregation engine settings
type AnalyticsConfig struct {
	MaxLookbackDays int
}

// Owner identifies one account whose aggregates the reconciler refreshes
type Owner struct {
	ID   string `yaml:"id"`
	Type string `yaml:"type"`
}

// ReconcilerConfig holds the scheduled reconciliation settings
type ReconcilerConfig struct {
	Schedule     string
	LookbackDays int
	Parallelism  int
	Owners       []Owner
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables, then applies
// the optional YAML overlay named by PROPSIGHT_CONFIG_FILE.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Upstream:      loadUpstreamConfig(),
		Analytics:     loadAnalyticsConfig(),
		Reconciler:    loadReconcilerConfig(),
		Observability: loadObservabilityConfig(),
	}

	if path := getEnv("PROPSIGHT_CONFIG_FILE", ""); path != "" {
		if err := cfg.ApplyFile(path); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("PROPSIGHT_HOST", "0.0.0.0"),
		Port:            getEnv("PROPSIGHT_PORT", "8080"),
		ReadTimeout:     getEnvDuration("PROPSIGHT_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("PROPSIGHT_WRITE_TIMEOUT", 30*time.Second),
		IdleTimeout:     getEnvDuration("PROPSIGHT_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("PROPSIGHT_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("PROPSIGHT_HEALTH_PORT", "9090"),
	}
}

// loadStorageConfig loads storage configuration from environment
func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	if pgURL := getEnv("PROPSIGHT_POSTGRES_URL", ""); pgURL != "" {
		cfg.PostgresURL = pgURL
	}
	if maxConns := getEnvInt("PROPSIGHT_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.PostgresMaxConns = maxConns
	}
	if timeout := getEnvDuration("PROPSIGHT_POSTGRES_TIMEOUT", 0); timeout > 0 {
		cfg.PostgresTimeout = timeout
	}

	if redisURL := getEnv("PROPSIGHT_REDIS_URL", ""); redisURL != "" {
		cfg.RedisURL = redisURL
	}
	if redisPassword := getEnv("PROPSIGHT_REDIS_PASSWORD", ""); redisPassword != "" {
		cfg.RedisPassword = redisPassword
	}
	if redisDB := getEnvInt("PROPSIGHT_REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}
	if redisMaxRetries := getEnvInt("PROPSIGHT_REDIS_MAX_RETRIES", 0); redisMaxRetries > 0 {
		cfg.RedisMaxRetries = redisMaxRetries
	}
	if redisPoolSize := getEnvInt("PROPSIGHT_REDIS_POOL_SIZE", 0); redisPoolSize > 0 {
		cfg.RedisPoolSize = redisPoolSize
	}

	if cacheEnabled := getEnv("PROPSIGHT_CACHE_ENABLED", ""); cacheEnabled != "" {
		cfg.CacheEnabled = strings.ToLower(cacheEnabled) == "true"
	}
	if statsTTL := getEnvDuration("PROPSIGHT_CACHE_STATS_TTL", 0); statsTTL > 0 {
		cfg.CacheTTL["stats"] = statsTTL
	}
	if attrTTL := getEnvDuration("PROPSIGHT_CACHE_ATTRIBUTION_TTL", 0); attrTTL > 0 {
		cfg.CacheTTL["attribution"] = attrTTL
	}
	if l1CacheSize := getEnvInt("PROPSIGHT_L1_CACHE_SIZE", 0); l1CacheSize > 0 {
		cfg.L1CacheSize = l1CacheSize
	}

	return cfg
}

// loadUpstreamConfig loads the event API configuration from environment
func loadUpstreamConfig() UpstreamConfig {
	return UpstreamConfig{
		BaseURL:   getEnv("PROPSIGHT_UPSTREAM_URL", "https://data.mixpanel.com"),
		APISecret: getEnv("PROPSIGHT_UPSTREAM_API_SECRET", ""),
		Timeout:   getEnvDuration("PROPSIGHT_UPSTREAM_TIMEOUT", 30*time.Second),
		MaxPages:  getEnvInt("PROPSIGHT_UPSTREAM_MAX_PAGES", events.DefaultMaxPages),
		PageDelay: getEnvDuration("PROPSIGHT_UPSTREAM_PAGE_DELAY", events.DefaultPageDelay),
	}
}

// loadAnalyticsConfig loads engine configuration from environment
func loadAnalyticsConfig() AnalyticsConfig {
	return AnalyticsConfig{
		MaxLookbackDays: getEnvInt("PROPSIGHT_MAX_LOOKBACK_DAYS", 60),
	}
}

// loadReconcilerConfig loads reconciler configuration from environment.
// The owner list only comes from the YAML overlay.
func loadReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{
		Schedule:     getEnv("PROPSIGHT_RECONCILE_SCHEDULE", "0 3 * * *"),
		LookbackDays: getEnvInt("PROPSIGHT_RECONCILE_LOOKBACK_DAYS", 7),
		Parallelism:  getEnvInt("PROPSIGHT_RECONCILE_PARALLELISM", 4),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       parseLogLevel(getEnv("PROPSIGHT_LOG_LEVEL", "info")),
		MetricsEnabled: getEnvBool("PROPSIGHT_METRICS_ENABLED", true),
	}
}

// fileConfig mirrors the YAML overlay. Pointer fields distinguish
// "absent" from zero values so the overlay only overrides what it sets.
type fileConfig struct {
	Server struct {
		Host       *string `yaml:"host"`
		Port       *string `yaml:"port"`
		HealthPort *string `yaml:"health_port"`
	} `yaml:"server"`
	Storage struct {
		PostgresURL *string `yaml:"postgres_url"`
		RedisURL    *string `yaml:"redis_url"`
	} `yaml:"storage"`
	Upstream struct {
		BaseURL   *string `yaml:"base_url"`
		APISecret *string `yaml:"api_secret"`
		MaxPages  *int    `yaml:"max_pages"`
	} `yaml:"upstream"`
	Analytics struct {
		MaxLookbackDays *int `yaml:"max_lookback_days"`
	} `yaml:"analytics"`
	Reconciler struct {
		Schedule     *string `yaml:"schedule"`
		LookbackDays *int    `yaml:"lookback_days"`
		Parallelism  *int    `yaml:"parallelism"`
		Owners       []Owner `yaml:"owners"`
	} `yaml:"reconciler"`
	LogLevel *string `yaml:"log_level"`
}

// ApplyFile overlays settings from a YAML file onto the configuration
func (c *Config) ApplyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parsing YAML: %w", err)
	}

	if fc.Server.Host != nil {
		c.Server.Host = *fc.Server.Host
	}
	if fc.Server.Port != nil {
		c.Server.Port = *fc.Server.Port
	}
	if fc.Server.HealthPort != nil {
		c.Server.HealthPort = *fc.Server.HealthPort
	}
	if fc.Storage.PostgresURL != nil {
		c.Storage.PostgresURL = *fc.Storage.PostgresURL
	}
	if fc.Storage.RedisURL != nil {
		c.Storage.RedisURL = *fc.Storage.RedisURL
	}
	if fc.Upstream.BaseURL != nil {
		c.Upstream.BaseURL = *fc.Upstream.BaseURL
	}
	if fc.Upstream.APISecret != nil {
		c.Upstream.APISecret = *fc.Upstream.APISecret
	}
	if fc.Upstream.MaxPages != nil {
		c.Upstream.MaxPages = *fc.Upstream.MaxPages
	}
	if fc.Analytics.MaxLookbackDays != nil {
		c.Analytics.MaxLookbackDays = *fc.Analytics.MaxLookbackDays
	}
	if fc.Reconciler.Schedule != nil {
		c.Reconciler.Schedule = *fc.Reconciler.Schedule
	}
	if fc.Reconciler.LookbackDays != nil {
		c.Reconciler.LookbackDays = *fc.Reconciler.LookbackDays
	}
	if fc.Reconciler.Parallelism != nil {
		c.Reconciler.Parallelism = *fc.Reconciler.Parallelism
	}
	if len(fc.Reconciler.Owners) > 0 {
		c.Reconciler.Owners = fc.Reconciler.Owners
	}
	if fc.LogLevel != nil {
		c.Observability.LogLevel = parseLogLevel(*fc.LogLevel)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Storage.PostgresURL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Storage.RedisURL == "" {
		return fmt.Errorf("redis URL is required")
	}

	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream base URL is required")
	}
	if c.Upstream.MaxPages <= 0 {
		return fmt.Errorf("upstream max pages must be positive")
	}

	if c.Analytics.MaxLookbackDays <= 0 {
		return fmt.Errorf("max lookback days must be positive")
	}

	if c.Reconciler.Schedule == "" {
		return fmt.Errorf("reconcile schedule is required")
	}
	if c.Reconciler.Parallelism <= 0 {
		return fmt.Errorf("reconcile parallelism must be positive")
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
