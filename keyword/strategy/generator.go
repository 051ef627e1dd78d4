// Package strategy sources candidate keywords for discovery cycles.
//
// A Generator asks a Suggester for keywords using one of three strategies and
// returns only normalized keywords the job has not used yet. Generate never
// fails: provider errors shrink the result instead.
package strategy

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/kwpulse/internal/pace"
	"github.com/teranos/kwpulse/internal/util"
	"github.com/teranos/kwpulse/logger"
)

// Strategy selects how keywords are sourced.
type Strategy string

const (
	Random   Strategy = "random"
	Category Strategy = "category"
	Trending Strategy = "trending"
)

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case Random, Category, Trending:
		return true
	}
	return false
}

const (
	randomPerCategory   = 3
	randomMaxCategories = 15
	categoryAttempts    = 3
)

// Suggester produces keyword ideas for an App Store category.
// audience is a market hint (the uppercased country code); reference, when
// set, biases suggestions toward variants of that keyword.
type Suggester interface {
	Suggest(ctx context.Context, category, audience string, count int, reference string) ([]string, error)
}

// Request describes one Generate call.
type Request struct {
	Strategy     Strategy
	SeedCategory string
	Audience     string
	Count        int
	// Used holds every keyword the job already produced, oldest first
	Used []string
}

// Generator implements the random, category and trending strategies.
type Generator struct {
	suggester Suggester
	pacer     *pace.Pacer
	logger    *zap.SugaredLogger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewGenerator creates a Generator. providerDelay spaces calls to the
// suggester across all jobs sharing this Generator. A nil rng is seeded from
// the clock.
func NewGenerator(s Suggester, providerDelay time.Duration, rng *rand.Rand, log *zap.SugaredLogger) *Generator {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Generator{
		suggester: s,
		pacer:     pace.New(providerDelay),
		logger:    log,
		rng:       rng,
	}
}

// SetProviderDelay changes the spacing between suggester calls.
func (g *Generator) SetProviderDelay(d time.Duration) {
	g.pacer.SetDelay(d)
}

// Generate returns up to req.Count keywords absent from req.Used.
func (g *Generator) Generate(ctx context.Context, req Request) []string {
	if req.Count <= 0 {
		return nil
	}
	b := newBatch(req.Used, req.Count)
	log := logger.FromContext(ctx, g.logger).With(logger.FieldStrategy, string(req.Strategy))

	switch req.Strategy {
	case Random:
		g.random(ctx, req, b, log)
	case Category:
		g.category(ctx, req, b, log)
	case Trending:
		g.trending(ctx, req, b, log)
	default:
		log.Warnw("Unknown strategy, no keywords generated")
		return nil
	}

	log.Debugw("Keywords generated",
		logger.FieldRequested, req.Count,
		logger.FieldCount, len(b.out),
	)
	return b.out
}

func (g *Generator) random(ctx context.Context, req Request, b *batch, log *zap.SugaredLogger) {
	cats := g.shuffled()
	take := min(2*req.Count, randomMaxCategories, len(cats))

	for _, cat := range cats[:take] {
		if b.full() || ctx.Err() != nil {
			return
		}
		g.ask(ctx, b, log, cat, req.Audience, randomPerCategory, "")
	}
}

func (g *Generator) category(ctx context.Context, req Request, b *batch, log *zap.SugaredLogger) {
	seed := strings.TrimSpace(req.SeedCategory)
	if seed == "" {
		seed = DefaultCategory
	}

	for attempt := 0; attempt < categoryAttempts; attempt++ {
		if b.full() || ctx.Err() != nil {
			return
		}
		reference := ""
		if attempt > 0 {
			reference = b.reference()
		}
		g.ask(ctx, b, log, seed, req.Audience, req.Count, reference)
	}
}

func (g *Generator) trending(ctx context.Context, req Request, b *batch, log *zap.SugaredLogger) {
	per := (req.Count + len(TrendingCategories) - 1) / len(TrendingCategories)
	for _, cat := range TrendingCategories {
		if b.full() || ctx.Err() != nil {
			return
		}
		g.ask(ctx, b, log, cat, req.Audience, per, "")
	}
}

// ask makes one paced suggester call and absorbs its failure.
func (g *Generator) ask(ctx context.Context, b *batch, log *zap.SugaredLogger, category, audience string, count int, reference string) {
	if err := g.pacer.Wait(ctx); err != nil {
		return
	}
	suggestions, err := g.suggester.Suggest(ctx, category, audience, count, reference)
	if err != nil {
		log.Warnw("Suggestion failed, skipping category",
			logger.FieldCategory, category,
			logger.FieldError, err,
		)
		return
	}
	b.add(suggestions)
}

// shuffled returns a Fisher-Yates permutation of Categories.
func (g *Generator) shuffled() []string {
	cats := append([]string(nil), Categories...)
	g.mu.Lock()
	g.rng.Shuffle(len(cats), func(i, j int) { cats[i], cats[j] = cats[j], cats[i] })
	g.mu.Unlock()
	return cats
}

// batch accumulates normalized keywords not seen in used or earlier in the call.
type batch struct {
	used  []string
	seen  map[string]struct{}
	out   []string
	limit int
}

func newBatch(used []string, limit int) *batch {
	seen := make(map[string]struct{}, len(used)+limit)
	for _, kw := range used {
		seen[util.NormalizeKeyword(kw)] = struct{}{}
	}
	return &batch{used: used, seen: seen, out: make([]string, 0, limit), limit: limit}
}

func (b *batch) full() bool { return len(b.out) >= b.limit }

func (b *batch) add(keywords []string) {
	for _, kw := range keywords {
		if b.full() {
			return
		}
		kw = util.NormalizeKeyword(kw)
		if kw == "" {
			continue
		}
		if _, dup := b.seen[kw]; dup {
			continue
		}
		b.seen[kw] = struct{}{}
		b.out = append(b.out, kw)
	}
}

// reference is the job's first keyword, or the first one found in this call.
func (b *batch) reference() string {
	if len(b.used) > 0 {
		return util.NormalizeKeyword(b.used[0])
	}
	if len(b.out) > 0 {
		return b.out[0]
	}
	return ""
}
