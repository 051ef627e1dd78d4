package commands

import (
	"context"
	"database/sql"
	"math/rand"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/teranos/kwpulse/ai/openrouter"
	"github.com/teranos/kwpulse/ai/suggest"
	"github.com/teranos/kwpulse/ai/tracker"
	"github.com/teranos/kwpulse/am"
	"github.com/teranos/kwpulse/catalog"
	"github.com/teranos/kwpulse/errors"
	"github.com/teranos/kwpulse/keyword/score"
	"github.com/teranos/kwpulse/keyword/strategy"
	"github.com/teranos/kwpulse/pulse/budget"
	"github.com/teranos/kwpulse/pulse/discovery"
)

const configHint = "run `kwpulse am check` to find the offending file or variable"

// loadConfig loads and validates the effective configuration for a command.
func loadConfig() (*am.Config, error) {
	cfg, err := am.Load()
	if err != nil {
		return nil, errors.WithHint(errors.Wrap(err, "failed to load config"), configHint)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.WithHint(errors.WrapInvalidRequest(err, "invalid config"), configHint)
	}
	return cfg, nil
}

// services holds the collaborators every command builds from config.
type services struct {
	itunes    *catalog.ITunesClient
	catalog   catalog.Client
	engine    *score.Engine
	llm       *openrouter.Client
	tracker   *tracker.UsageTracker
	budget    *budget.Tracker
	generator *strategy.Generator

	closers []func() error
}

// Close releases connections opened by buildServices, newest first.
func (s *services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i]()
	}
}

// buildServices wires catalog, scoring and keyword generation from cfg.
// database may be nil, in which case LLM usage is neither tracked nor capped.
func buildServices(ctx context.Context, cfg *am.Config, database *sql.DB, log *zap.SugaredLogger) *services {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	svc := &services{}

	svc.itunes = catalog.NewITunesClient(catalog.ITunesConfig{
		SearchURL: cfg.Catalog.SearchURL,
		HintsURL:  cfg.Catalog.HintsURL,
		Timeout:   cfg.CatalogTimeout(),
		Delay:     cfg.CatalogDelay(),
		Logger:    log.Named("catalog"),
	})
	svc.catalog = svc.itunes

	cache, closeCache := buildCache(ctx, cfg.Catalog.Cache, log.Named("catalog.cache"))
	if cache != nil {
		svc.catalog = catalog.NewCachedClient(svc.itunes, cache, log.Named("catalog.cache"))
	}
	if closeCache != nil {
		svc.closers = append(svc.closers, closeCache)
	}

	svc.engine = score.NewEngine(svc.catalog, score.EngineConfig{
		SearchLimit: cfg.Discovery.SearchLimit,
	}, log.Named("score"))

	if database != nil {
		svc.tracker = tracker.NewUsageTracker(database)
	}
	svc.llm = openrouter.NewClient(openrouter.Config{
		APIKey:        cfg.OpenRouter.APIKey,
		Model:         cfg.OpenRouter.Model,
		BaseURL:       cfg.OpenRouter.BaseURL,
		Temperature:   cfg.OpenRouter.Temperature,
		MaxTokens:     cfg.OpenRouter.MaxTokens,
		Timeout:       cfg.OpenRouterTimeout(),
		Logger:        log.Named("openrouter"),
		Tracker:       svc.tracker,
		OperationType: "keyword-suggest",
	})
	if !svc.llm.IsConfigured() {
		log.Warnw("OpenRouter API key not set, keyword generation will produce no keywords",
			"env", "KWPULSE_OPENROUTER_API_KEY")
	}

	var chat suggest.Chatter = svc.llm
	if database != nil {
		svc.budget = budget.NewTracker(database, budgetConfig(cfg))
		chat = budget.Guard(svc.llm, svc.budget)
	}

	provider := suggest.NewProvider(chat, cfg.OpenRouterTimeout(), log.Named("suggest"))
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	svc.generator = strategy.NewGenerator(provider, cfg.ProviderDelay(), rng, log.Named("strategy"))

	return svc
}

func budgetConfig(cfg *am.Config) budget.Config {
	return budget.Config{
		DailyUSD:           cfg.Budget.DailyUSD,
		WeeklyUSD:          cfg.Budget.WeeklyUSD,
		MonthlyUSD:         cfg.Budget.MonthlyUSD,
		EstimatePerCallUSD: cfg.Budget.EstimatePerCallUSD,
	}
}

// buildCache returns the configured catalog cache, or nil for none. An
// unreachable Redis falls back to an in-process cache.
func buildCache(ctx context.Context, cfg am.CatalogCacheConfig, log *zap.SugaredLogger) (catalog.Cache, func() error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	ttl := time.Duration(cfg.TTLSeconds) * time.Second

	switch cfg.Backend {
	case am.CacheNone, "":
		return nil, nil
	case am.CacheRedis:
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		rc, err := catalog.NewRedisCache(pingCtx, catalog.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      ttl,
			Prefix:   cfg.RedisPrefix,
		})
		if err == nil {
			log.Debugw("Catalog cache using redis", "addr", cfg.RedisAddr)
			return rc, rc.Close
		}
		log.Warnw("Redis unavailable, using in-memory catalog cache",
			"addr", cfg.RedisAddr, "error", err)
	}
	return catalog.NewMemoryCache(ttl, cfg.MaxEntries), nil
}

// newScheduler builds a scheduler over database using svc.
func newScheduler(database *sql.DB, svc *services, cfg *am.Config, metrics *discovery.Metrics, log *zap.SugaredLogger) *discovery.Scheduler {
	return discovery.NewScheduler(
		discovery.NewStore(database),
		svc.generator,
		svc.engine,
		discovery.NewTokenTable(),
		discovery.SchedulerConfig{
			KeywordDelay: cfg.KeywordDelay(),
			Metrics:      metrics,
		},
		log,
	)
}

// commandContext is the command's context, or Background when the command
// runs outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
