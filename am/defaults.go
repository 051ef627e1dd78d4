package am

import (
	"fmt"

	"github.com/spf13/viper"
)

// Default values that other packages also need
const (
	DefaultDatabasePath    = "kwpulse.db"
	DefaultMetricsAddress  = "127.0.0.1:9477"
	DefaultOpenRouterModel = "openai/gpt-4o-mini"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", DefaultDatabasePath)

	// Discovery pacing
	v.SetDefault("discovery.keyword_delay_ms", 2000)
	v.SetDefault("discovery.provider_delay_ms", 500)
	v.SetDefault("discovery.reconcile_interval_seconds", 300)
	v.SetDefault("discovery.search_limit", 10)

	// Catalog
	v.SetDefault("catalog.search_url", "https://itunes.apple.com/search")
	v.SetDefault("catalog.hints_url", "https://search.itunes.apple.com/WebObjects/MZSearchHints.woa/wa/hints")
	v.SetDefault("catalog.timeout_seconds", 15)
	v.SetDefault("catalog.request_delay_ms", 250)
	v.SetDefault("catalog.cache.backend", CacheMemory)
	v.SetDefault("catalog.cache.ttl_seconds", 900)
	v.SetDefault("catalog.cache.max_entries", 2048)
	v.SetDefault("catalog.cache.redis_addr", "127.0.0.1:6379")
	v.SetDefault("catalog.cache.redis_db", 0)
	v.SetDefault("catalog.cache.redis_prefix", "kwpulse:catalog:")

	// OpenRouter
	v.SetDefault("openrouter.model", DefaultOpenRouterModel)
	v.SetDefault("openrouter.timeout_seconds", 30)

	// LLM budget (disabled until a limit is set)
	v.SetDefault("budget.daily_usd", 0.0)
	v.SetDefault("budget.weekly_usd", 0.0)
	v.SetDefault("budget.monthly_usd", 0.0)
	v.SetDefault("budget.estimate_per_call_usd", 0.001)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.address", DefaultMetricsAddress)

	v.SetDefault("log.json", false)
	v.SetDefault("log.verbosity", 0)
}

// BindSensitiveEnvVars explicitly binds secrets to environment variables.
// OPENROUTER_API_KEY is accepted as a fallback for the prefixed name.
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("openrouter.api_key", "KWPULSE_OPENROUTER_API_KEY", "OPENROUTER_API_KEY")
	v.BindEnv("catalog.cache.redis_password", "KWPULSE_CATALOG_CACHE_REDIS_PASSWORD")
	v.BindEnv("database.path", "KWPULSE_DATABASE_PATH")
}

// GetDatabasePath returns the configured database path
func (c *Config) GetDatabasePath() string {
	if c.Database.Path == "" {
		return DefaultDatabasePath
	}
	return c.Database.Path
}

// String returns a summary without secrets
func (c *Config) String() string {
	return fmt.Sprintf("Config{Database: %s, Cache: %s, Model: %s, OpenRouterKey: %t}",
		c.Database.Path, c.Catalog.Cache.Backend, c.OpenRouter.Model, c.OpenRouter.APIKey != "")
}
