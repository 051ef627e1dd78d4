package am

import (
	"net"

	"github.com/teranos/kwpulse/errors"
)

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	// Delays: 0 = no spacing, negative = invalid
	if c.Discovery.KeywordDelayMS < 0 {
		return errors.Newf("discovery.keyword_delay_ms must be >= 0, got %d", c.Discovery.KeywordDelayMS)
	}
	if c.Discovery.ProviderDelayMS < 0 {
		return errors.Newf("discovery.provider_delay_ms must be >= 0, got %d", c.Discovery.ProviderDelayMS)
	}
	if c.Discovery.ReconcileIntervalSeconds < 0 {
		return errors.Newf("discovery.reconcile_interval_seconds must be >= 0, got %d", c.Discovery.ReconcileIntervalSeconds)
	}
	if c.Discovery.SearchLimit < 0 || c.Discovery.SearchLimit > 200 {
		return errors.Newf("discovery.search_limit must be between 0 and 200, got %d", c.Discovery.SearchLimit)
	}

	if c.Catalog.TimeoutSeconds <= 0 {
		return errors.Newf("catalog.timeout_seconds must be > 0, got %d", c.Catalog.TimeoutSeconds)
	}
	if c.Catalog.RequestDelayMS < 0 {
		return errors.Newf("catalog.request_delay_ms must be >= 0, got %d", c.Catalog.RequestDelayMS)
	}

	switch c.Catalog.Cache.Backend {
	case CacheNone, "":
	case CacheMemory:
		if c.Catalog.Cache.MaxEntries < 0 {
			return errors.Newf("catalog.cache.max_entries must be >= 0, got %d", c.Catalog.Cache.MaxEntries)
		}
	case CacheRedis:
		if c.Catalog.Cache.RedisAddr == "" {
			return errors.New("catalog.cache.redis_addr cannot be empty when backend is redis")
		}
	default:
		return errors.WithHint(
			errors.Newf("catalog.cache.backend %q is unknown", c.Catalog.Cache.Backend),
			"use one of: none, memory, redis",
		)
	}
	if c.Catalog.Cache.Backend != CacheNone && c.Catalog.Cache.TTLSeconds <= 0 {
		return errors.Newf("catalog.cache.ttl_seconds must be > 0, got %d", c.Catalog.Cache.TTLSeconds)
	}

	if c.OpenRouter.Temperature != nil && (*c.OpenRouter.Temperature < 0 || *c.OpenRouter.Temperature > 2) {
		return errors.Newf("openrouter.temperature must be between 0 and 2, got %f", *c.OpenRouter.Temperature)
	}
	if c.OpenRouter.MaxTokens != nil && *c.OpenRouter.MaxTokens <= 0 {
		return errors.Newf("openrouter.max_tokens must be > 0, got %d (omit for default)", *c.OpenRouter.MaxTokens)
	}
	if c.OpenRouter.TimeoutSeconds < 0 {
		return errors.Newf("openrouter.timeout_seconds must be >= 0, got %d", c.OpenRouter.TimeoutSeconds)
	}

	budgets := map[string]float64{
		"budget.daily_usd":             c.Budget.DailyUSD,
		"budget.weekly_usd":            c.Budget.WeeklyUSD,
		"budget.monthly_usd":           c.Budget.MonthlyUSD,
		"budget.estimate_per_call_usd": c.Budget.EstimatePerCallUSD,
	}
	for key, value := range budgets {
		if value < 0 {
			return errors.Newf("%s must be >= 0, got %.4f", key, value)
		}
	}

	if c.Metrics.Enabled {
		if _, _, err := net.SplitHostPort(c.Metrics.Address); err != nil {
			return errors.Wrapf(err, "metrics.address %q is not host:port", c.Metrics.Address)
		}
	}

	if c.Log.Verbosity < 0 {
		return errors.Newf("log.verbosity must be >= 0, got %d", c.Log.Verbosity)
	}
	return nil
}
