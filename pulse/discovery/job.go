// Package discovery runs continuous keyword-discovery jobs.
//
// A job repeatedly sources keywords through a strategy, scores each one and
// stores a Result per keyword. The Scheduler owns one timer loop per running
// job and resumes jobs left running by a previous process via Reconcile.
package discovery

import (
	"strings"
	"time"

	"github.com/teranos/kwpulse/errors"
	"github.com/teranos/kwpulse/keyword/strategy"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	// StatusFailed is reserved for unrecoverable errors; nothing sets it today.
	StatusFailed Status = "failed"
)

// Bounds on JobConfig.
const (
	MinSearchesPerCycle = 1
	MaxSearchesPerCycle = 10
	MinIntervalMinutes  = 1
	MaxIntervalMinutes  = 1440
	MinTotalCycles      = 1
	MaxTotalCycles      = 1000

	DefaultCountry = "us"
)

// JobConfig is fixed when the job is created.
type JobConfig struct {
	Name             string            `json:"name" yaml:"name"`
	Strategy         strategy.Strategy `json:"strategy" yaml:"strategy"`
	SeedCategory     string            `json:"seed_category,omitempty" yaml:"seed_category,omitempty"`
	Country          string            `json:"country" yaml:"country"`
	SearchesPerCycle int               `json:"searches_per_cycle" yaml:"searches_per_cycle"`
	IntervalMinutes  int               `json:"interval_minutes" yaml:"interval_minutes"`
	TotalCycles      int               `json:"total_cycles" yaml:"total_cycles"`
	Notes            string            `json:"notes,omitempty" yaml:"notes,omitempty"`
	SessionTag       string            `json:"session_tag,omitempty" yaml:"session_tag,omitempty"`
}

// Normalize trims text fields and lowercases the country, defaulting it to us.
func (c *JobConfig) Normalize() {
	c.Name = strings.TrimSpace(c.Name)
	c.Strategy = strategy.Strategy(strings.ToLower(strings.TrimSpace(string(c.Strategy))))
	c.SeedCategory = strings.TrimSpace(c.SeedCategory)
	c.Country = strings.ToLower(strings.TrimSpace(c.Country))
	if c.Country == "" {
		c.Country = DefaultCountry
	}
	c.Notes = strings.TrimSpace(c.Notes)
	c.SessionTag = strings.TrimSpace(c.SessionTag)
}

// Validate checks bounds and the strategy enum. Failures wrap ErrInvalidRequest.
func (c JobConfig) Validate() error {
	switch {
	case c.Name == "":
		return errors.NewInvalidRequestError("name is required")
	case !c.Strategy.Valid():
		return errors.WithHint(
			errors.NewInvalidRequestError("unknown strategy %q", c.Strategy),
			"use one of: random, category, trending",
		)
	case len(c.Country) != 2:
		return errors.NewInvalidRequestError("country %q is not an ISO-3166 alpha-2 code", c.Country)
	case c.SearchesPerCycle < MinSearchesPerCycle || c.SearchesPerCycle > MaxSearchesPerCycle:
		return errors.NewInvalidRequestError("searches per cycle %d outside %d-%d",
			c.SearchesPerCycle, MinSearchesPerCycle, MaxSearchesPerCycle)
	case c.IntervalMinutes < MinIntervalMinutes || c.IntervalMinutes > MaxIntervalMinutes:
		return errors.NewInvalidRequestError("interval %d minutes outside %d-%d",
			c.IntervalMinutes, MinIntervalMinutes, MaxIntervalMinutes)
	case c.TotalCycles < MinTotalCycles || c.TotalCycles > MaxTotalCycles:
		return errors.NewInvalidRequestError("total cycles %d outside %d-%d",
			c.TotalCycles, MinTotalCycles, MaxTotalCycles)
	}
	return nil
}

// Job is a discovery job and its progress.
type Job struct {
	ID        string `json:"id" yaml:"id"`
	JobConfig `yaml:",inline"`

	Status        Status   `json:"status" yaml:"status"`
	CurrentCycle  int      `json:"current_cycle" yaml:"current_cycle"`
	TotalKeywords int      `json:"total_keywords" yaml:"total_keywords"`
	UsedKeywords  []string `json:"used_keywords" yaml:"used_keywords"`

	CreatedAt   time.Time  `json:"created_at" yaml:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	LastRunAt   *time.Time `json:"last_run_at,omitempty" yaml:"last_run_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at" yaml:"updated_at"`
}

// Interval is the configured time between cycles for the given unit.
func (j *Job) Interval(unit time.Duration) time.Duration {
	return time.Duration(j.IntervalMinutes) * unit
}

// ResultStatus is the outcome of scoring one keyword.
type ResultStatus string

const (
	ResultSuccess ResultStatus = "success"
	ResultError   ResultStatus = "error"
)

// Result is one keyword attempt within a cycle. Only Tracked changes after insert.
type Result struct {
	ID              string       `json:"id" yaml:"id"`
	JobID           string       `json:"job_id" yaml:"job_id"`
	Keyword         string       `json:"keyword" yaml:"keyword"`
	Cycle           int          `json:"cycle" yaml:"cycle"`
	Status          ResultStatus `json:"status" yaml:"status"`
	Popularity      int          `json:"popularity" yaml:"popularity"`
	Difficulty      int          `json:"difficulty" yaml:"difficulty"`
	CompetitorCount int          `json:"competitor_count" yaml:"competitor_count"`
	// Opportunity is the ratio form, comparable across cycles
	Opportunity  int       `json:"opportunity" yaml:"opportunity"`
	TopApps      []string  `json:"top_apps,omitempty" yaml:"top_apps,omitempty"`
	RelatedTerms []string  `json:"related_terms,omitempty" yaml:"related_terms,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty" yaml:"error_message,omitempty"`
	Tracked      bool      `json:"tracked" yaml:"tracked"`
	CreatedAt    time.Time `json:"created_at" yaml:"created_at"`
}

// TrackedKeyword is a result promoted to the long-lived tracking list.
type TrackedKeyword struct {
	ID             string    `json:"id" yaml:"id"`
	Keyword        string    `json:"keyword" yaml:"keyword"`
	Country        string    `json:"country" yaml:"country"`
	Popularity     int       `json:"popularity" yaml:"popularity"`
	Difficulty     int       `json:"difficulty" yaml:"difficulty"`
	Opportunity    int       `json:"opportunity" yaml:"opportunity"`
	SourceJobID    string    `json:"source_job_id,omitempty" yaml:"source_job_id,omitempty"`
	SourceResultID string    `json:"source_result_id,omitempty" yaml:"source_result_id,omitempty"`
	CreatedAt      time.Time `json:"created_at" yaml:"created_at"`
}

// Progress is the snapshot written once per cycle.
type Progress struct {
	JobID         string
	CurrentCycle  int
	TotalKeywords int
	UsedKeywords  []string
	LastRunAt     time.Time
}

// JobDetail is a job with its results, best opportunity first.
type JobDetail struct {
	Job     *Job      `json:"job" yaml:"job"`
	Results []*Result `json:"results" yaml:"results"`
}

// PromoteSummary reports what a promotion did with each requested result.
type PromoteSummary struct {
	Promoted       int `json:"promoted" yaml:"promoted"`
	AlreadyTracked int `json:"already_tracked" yaml:"already_tracked"`
	// Skipped counts error results, which carry no scores to track
	Skipped int `json:"skipped" yaml:"skipped"`
	Missing int `json:"missing" yaml:"missing"`
}

// ReconcileSummary reports what Reconcile did with each running job.
type ReconcileSummary struct {
	Resumed   []string `json:"resumed" yaml:"resumed"`
	Completed []string `json:"completed" yaml:"completed"`
	Skipped   []string `json:"skipped" yaml:"skipped"`
}
