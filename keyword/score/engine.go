package score

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/kwpulse/catalog"
	"github.com/teranos/kwpulse/errors"
	"github.com/teranos/kwpulse/internal/util"
	"github.com/teranos/kwpulse/logger"
)

const (
	DefaultSearchLimit = 10

	maxTopApps      = 3
	maxRelatedTerms = 5
)

// Analysis is the scored view of one keyword in one storefront.
type Analysis struct {
	Keyword         string   `json:"keyword" yaml:"keyword"`
	Country         string   `json:"country" yaml:"country"`
	Popularity      int      `json:"popularity" yaml:"popularity"`
	Difficulty      int      `json:"difficulty" yaml:"difficulty"`
	CompetitorCount int      `json:"competitor_count" yaml:"competitor_count"`
	Opportunity     int      `json:"opportunity" yaml:"opportunity"` // weighted form
	TopApps         []string `json:"top_apps" yaml:"top_apps"`
	RelatedTerms    []string `json:"related_terms" yaml:"related_terms"`
}

// EngineConfig tunes the catalog queries behind an analysis.
type EngineConfig struct {
	SearchLimit int
}

// Engine scores keywords using a catalog.Client.
type Engine struct {
	catalog     catalog.Client
	searchLimit int
	logger      *zap.SugaredLogger
}

// NewEngine creates a scoring engine. A nil logger logs nothing.
func NewEngine(client catalog.Client, cfg EngineConfig, log *zap.SugaredLogger) *Engine {
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = DefaultSearchLimit
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Engine{
		catalog:     client,
		searchLimit: cfg.SearchLimit,
		logger:      logger.AddScoreSymbol(log),
	}
}

// Analyze searches the catalog and fetches hints for keyword, then scores it.
// A failed search is returned as an error. A failed hint lookup is logged and
// scored as if the store returned no hints.
func (e *Engine) Analyze(ctx context.Context, keyword, country string) (*Analysis, error) {
	keyword = util.NormalizeKeyword(keyword)
	if keyword == "" {
		return nil, errors.NewInvalidRequestError("keyword is empty")
	}
	country = strings.ToLower(strings.TrimSpace(country))

	apps, err := e.catalog.Search(ctx, keyword, country, e.searchLimit)
	if err != nil {
		return nil, errors.Wrapf(err, "analyze %q", keyword)
	}

	hints, err := e.catalog.Autocomplete(ctx, keyword, country)
	if err != nil {
		e.logger.Warnw("Autocomplete failed, scoring without hints",
			logger.FieldKeyword, keyword,
			logger.FieldCountry, country,
			logger.FieldError, err,
		)
		hints = nil
	}

	popularity := Popularity(keyword, hints, apps)
	difficulty := Difficulty(apps)

	a := &Analysis{
		Keyword:         keyword,
		Country:         country,
		Popularity:      popularity,
		Difficulty:      difficulty,
		CompetitorCount: len(apps),
		Opportunity:     WeightedOpportunity(popularity, difficulty),
		TopApps:         topApps(apps),
		RelatedTerms:    relatedTerms(keyword, hints),
	}

	e.logger.Debugw("Keyword analyzed",
		logger.FieldKeyword, keyword,
		logger.FieldPopularity, a.Popularity,
		logger.FieldDifficulty, a.Difficulty,
		logger.FieldOpportunity, a.Opportunity,
	)
	return a, nil
}

// Discover analyzes keywords and keeps those whose weighted opportunity is at
// least minOpportunity, best first. Individual failures are logged and skipped;
// only context cancellation aborts the batch.
func (e *Engine) Discover(ctx context.Context, keywords []string, country string, minOpportunity int) ([]Analysis, error) {
	var out []Analysis
	for _, kw := range util.DedupKeywords(keywords) {
		if err := ctx.Err(); err != nil {
			return out, errors.Wrap(err, "discover cancelled")
		}
		a, err := e.Analyze(ctx, kw, country)
		if err != nil {
			e.logger.Warnw("Skipping keyword",
				logger.FieldKeyword, kw,
				logger.FieldError, err,
			)
			continue
		}
		if a.Opportunity >= minOpportunity {
			out = append(out, *a)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Opportunity > out[j].Opportunity
	})
	return out, nil
}

func topApps(apps []catalog.App) []string {
	names := make([]string, 0, maxTopApps)
	for _, a := range apps {
		if len(names) == maxTopApps {
			break
		}
		names = append(names, a.Name)
	}
	return names
}

func relatedTerms(keyword string, hints []catalog.Hint) []string {
	terms := make([]string, 0, maxRelatedTerms)
	for _, h := range hints {
		if len(terms) == maxRelatedTerms {
			break
		}
		term := util.NormalizeKeyword(h.Keyword)
		if term == "" || term == keyword {
			continue
		}
		terms = append(terms, term)
	}
	return terms
}
