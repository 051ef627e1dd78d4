package budget

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/teranos/kwpulse/errors"
)

// Sliding windows
const (
	Day   = 24 * time.Hour
	Week  = 7 * Day
	Month = 30 * Day
)

// Config holds spend limits in USD. Zero disables a limit.
type Config struct {
	DailyUSD   float64 `json:"daily_usd" yaml:"daily_usd"`
	WeeklyUSD  float64 `json:"weekly_usd" yaml:"weekly_usd"`
	MonthlyUSD float64 `json:"monthly_usd" yaml:"monthly_usd"`
	// EstimatePerCallUSD is charged against the limits before each call
	EstimatePerCallUSD float64 `json:"estimate_per_call_usd" yaml:"estimate_per_call_usd"`
}

// Enabled reports whether any limit is set.
func (c Config) Enabled() bool {
	return c.DailyUSD > 0 || c.WeeklyUSD > 0 || c.MonthlyUSD > 0
}

// Status represents current spend against the limits
type Status struct {
	DailySpend   float64 `json:"daily_spend" yaml:"daily_spend"`
	WeeklySpend  float64 `json:"weekly_spend" yaml:"weekly_spend"`
	MonthlySpend float64 `json:"monthly_spend" yaml:"monthly_spend"`
	DailyOps     int     `json:"daily_ops" yaml:"daily_ops"`
	WeeklyOps    int     `json:"weekly_ops" yaml:"weekly_ops"`
	MonthlyOps   int     `json:"monthly_ops" yaml:"monthly_ops"`
	Limits       Config  `json:"limits" yaml:"limits"`
}

// Remaining returns what is left under limit, or -1 when limit is unset.
func Remaining(limit, spend float64) float64 {
	if limit <= 0 {
		return -1
	}
	if spend >= limit {
		return 0
	}
	return limit - spend
}

// Tracker tracks and enforces spend limits
type Tracker struct {
	store *Store
	now   func() time.Time

	mu     sync.RWMutex
	config Config
}

// NewTracker creates a new budget tracker
func NewTracker(database *sql.DB, config Config) *Tracker {
	return &Tracker{
		store:  NewStore(database),
		now:    time.Now,
		config: config,
	}
}

// Status returns spend in each window from the usage ledger.
func (bt *Tracker) Status(ctx context.Context) (*Status, error) {
	now := bt.now()
	st := &Status{Limits: bt.Limits()}

	var err error
	if st.DailySpend, st.DailyOps, err = bt.store.Spend(ctx, now.Add(-Day)); err != nil {
		return nil, errors.Wrap(err, "daily window")
	}
	if st.WeeklySpend, st.WeeklyOps, err = bt.store.Spend(ctx, now.Add(-Week)); err != nil {
		return nil, errors.Wrap(err, "weekly window")
	}
	if st.MonthlySpend, st.MonthlyOps, err = bt.store.Spend(ctx, now.Add(-Month)); err != nil {
		return nil, errors.Wrap(err, "monthly window")
	}
	return st, nil
}

// Check returns an error wrapping ErrServiceUnavailable when spending
// estimatedUSD more would exceed a limit.
func (bt *Tracker) Check(ctx context.Context, estimatedUSD float64) error {
	limits := bt.Limits()
	if !limits.Enabled() {
		return nil
	}

	status, err := bt.Status(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get budget status")
	}

	windows := []struct {
		name  string
		spend float64
		limit float64
	}{
		{"daily", status.DailySpend, limits.DailyUSD},
		{"weekly", status.WeeklySpend, limits.WeeklyUSD},
		{"monthly", status.MonthlySpend, limits.MonthlyUSD},
	}
	for _, w := range windows {
		if w.limit > 0 && w.spend+estimatedUSD > w.limit {
			return errors.WithHint(
				errors.Wrapf(errors.ErrServiceUnavailable,
					"%s LLM budget would be exceeded: spent $%.4f + estimated $%.4f > limit $%.2f",
					w.name, w.spend, estimatedUSD, w.limit),
				"raise budget."+w.name+"_usd or wait for the window to slide",
			)
		}
	}
	return nil
}

// SetLimits replaces the limits, e.g. after a config reload.
func (bt *Tracker) SetLimits(config Config) {
	bt.mu.Lock()
	defer bt.mu.Unlock()
	bt.config = config
}

// Limits returns the current limits
func (bt *Tracker) Limits() Config {
	bt.mu.RLock()
	defer bt.mu.RUnlock()
	return bt.config
}
