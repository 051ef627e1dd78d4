// Package am loads kwpulse configuration.
//
// Files merge in precedence order /etc/kwpulse/config.toml <
// ~/.kwpulse/config.toml < the nearest kwpulse.toml above the working
// directory < KWPULSE_* environment variables.
package am

import "time"

// Config is the kwpulse configuration
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database" toml:"database"`
	Discovery  DiscoveryConfig  `mapstructure:"discovery" toml:"discovery"`
	Catalog    CatalogConfig    `mapstructure:"catalog" toml:"catalog"`
	OpenRouter OpenRouterConfig `mapstructure:"openrouter" toml:"openrouter"`
	Budget     BudgetConfig     `mapstructure:"budget" toml:"budget"`
	Metrics    MetricsConfig    `mapstructure:"metrics" toml:"metrics"`
	Log        LogConfig        `mapstructure:"log" toml:"log"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path" toml:"path"`
}

// DiscoveryConfig configures the discovery scheduler
type DiscoveryConfig struct {
	KeywordDelayMS           int `mapstructure:"keyword_delay_ms" toml:"keyword_delay_ms"`                     // Between scored keywords, across all jobs
	ProviderDelayMS          int `mapstructure:"provider_delay_ms" toml:"provider_delay_ms"`                   // Between suggestion provider calls
	ReconcileIntervalSeconds int `mapstructure:"reconcile_interval_seconds" toml:"reconcile_interval_seconds"` // 0 = reconcile at startup only
	SearchLimit              int `mapstructure:"search_limit" toml:"search_limit"`                             // Apps fetched per keyword
}

// CatalogConfig configures the app catalog adapter
type CatalogConfig struct {
	SearchURL      string             `mapstructure:"search_url" toml:"search_url"`
	HintsURL       string             `mapstructure:"hints_url" toml:"hints_url"`
	TimeoutSeconds int                `mapstructure:"timeout_seconds" toml:"timeout_seconds"`
	RequestDelayMS int                `mapstructure:"request_delay_ms" toml:"request_delay_ms"`
	Cache          CatalogCacheConfig `mapstructure:"cache" toml:"cache"`
}

// Catalog cache backends
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// CatalogCacheConfig configures caching of catalog responses
type CatalogCacheConfig struct {
	Backend       string `mapstructure:"backend" toml:"backend"` // none, memory, redis
	TTLSeconds    int    `mapstructure:"ttl_seconds" toml:"ttl_seconds"`
	MaxEntries    int    `mapstructure:"max_entries" toml:"max_entries"` // memory backend only
	RedisAddr     string `mapstructure:"redis_addr" toml:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password" toml:"redis_password,omitempty"`
	RedisDB       int    `mapstructure:"redis_db" toml:"redis_db"`
	RedisPrefix   string `mapstructure:"redis_prefix" toml:"redis_prefix"`
}

// OpenRouterConfig configures OpenRouter.ai API access
type OpenRouterConfig struct {
	APIKey         string   `mapstructure:"api_key" toml:"api_key,omitempty"`
	Model          string   `mapstructure:"model" toml:"model"`
	BaseURL        string   `mapstructure:"base_url" toml:"base_url,omitempty"`
	Temperature    *float64 `mapstructure:"temperature" toml:"temperature,omitempty"` // nil = default 0.7
	MaxTokens      *int     `mapstructure:"max_tokens" toml:"max_tokens,omitempty"`   // nil = default 400
	TimeoutSeconds int      `mapstructure:"timeout_seconds" toml:"timeout_seconds"`
}

// BudgetConfig caps LLM spend over sliding windows. 0 = no limit.
type BudgetConfig struct {
	DailyUSD           float64 `mapstructure:"daily_usd" toml:"daily_usd"`
	WeeklyUSD          float64 `mapstructure:"weekly_usd" toml:"weekly_usd"`
	MonthlyUSD         float64 `mapstructure:"monthly_usd" toml:"monthly_usd"`
	EstimatePerCallUSD float64 `mapstructure:"estimate_per_call_usd" toml:"estimate_per_call_usd"` // Charged before each call
}

// MetricsConfig configures the Prometheus endpoint of the daemon
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" toml:"enabled"`
	Address string `mapstructure:"address" toml:"address"`
}

// LogConfig configures logging
type LogConfig struct {
	JSON      bool `mapstructure:"json" toml:"json"`
	Verbosity int  `mapstructure:"verbosity" toml:"verbosity"`
}

// File system constants
const (
	DefaultDirPermissions  = 0755
	DefaultFilePermissions = 0644
)

// KeywordDelay is the spacing between scored keywords.
func (c *Config) KeywordDelay() time.Duration {
	return time.Duration(c.Discovery.KeywordDelayMS) * time.Millisecond
}

// ProviderDelay is the spacing between suggestion provider calls.
func (c *Config) ProviderDelay() time.Duration {
	return time.Duration(c.Discovery.ProviderDelayMS) * time.Millisecond
}

// CatalogDelay is the spacing between catalog requests.
func (c *Config) CatalogDelay() time.Duration {
	return time.Duration(c.Catalog.RequestDelayMS) * time.Millisecond
}

// CatalogTimeout is the per-request catalog timeout.
func (c *Config) CatalogTimeout() time.Duration {
	return time.Duration(c.Catalog.TimeoutSeconds) * time.Second
}

// CacheTTL is how long catalog responses stay cached.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Catalog.Cache.TTLSeconds) * time.Second
}

// ReconcileInterval is how often the daemon re-runs Reconcile; 0 disables it.
func (c *Config) ReconcileInterval() time.Duration {
	return time.Duration(c.Discovery.ReconcileIntervalSeconds) * time.Second
}

// OpenRouterTimeout is the per-request suggestion timeout.
func (c *Config) OpenRouterTimeout() time.Duration {
	return time.Duration(c.OpenRouter.TimeoutSeconds) * time.Second
}
