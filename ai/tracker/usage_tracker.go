// Package tracker records every LLM call made while sourcing keywords, with
// token counts and estimated cost, in the ai_model_usage table.
package tracker

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/teranos/kwpulse/db"
	"github.com/teranos/kwpulse/errors"
)

// ModelUsage is one recorded model call.
type ModelUsage struct {
	ID                int64      `json:"id"`
	OperationType     string     `json:"operation_type"`
	EntityType        string     `json:"entity_type"`
	EntityID          string     `json:"entity_id"`
	ModelName         string     `json:"model_name"`
	ModelProvider     string     `json:"model_provider"`
	ModelConfig       *string    `json:"model_config,omitempty"`
	RequestTimestamp  time.Time  `json:"request_timestamp"`
	ResponseTimestamp *time.Time `json:"response_timestamp,omitempty"`
	TokensUsed        *int       `json:"tokens_used,omitempty"`
	Cost              *float64   `json:"cost,omitempty"`
	Success           bool       `json:"success"`
	ErrorMessage      *string    `json:"error_message,omitempty"`
}

// ModelConfig is the sampling configuration sent with a request.
type ModelConfig struct {
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
}

// UsageTracker writes and aggregates ModelUsage rows.
type UsageTracker struct {
	db *sql.DB
}

// NewUsageTracker creates a tracker over a migrated database.
func NewUsageTracker(db *sql.DB) *UsageTracker {
	return &UsageTracker{db: db}
}

// TrackUsage records one model call.
func (t *UsageTracker) TrackUsage(ctx context.Context, usage *ModelUsage) error {
	query := `
		INSERT INTO ai_model_usage (
			operation_type, entity_type, entity_id, model_name, model_provider,
			model_config, request_timestamp, response_timestamp, tokens_used,
			cost, success, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := t.db.ExecContext(ctx, query,
		usage.OperationType, usage.EntityType, usage.EntityID,
		usage.ModelName, usage.ModelProvider, usage.ModelConfig,
		db.FormatTime(usage.RequestTimestamp), db.FormatNullTime(usage.ResponseTimestamp), usage.TokensUsed,
		usage.Cost, usage.Success, usage.ErrorMessage,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to record usage for model %s", usage.ModelName)
	}
	return nil
}

// UsageStats aggregates usage since a point in time.
type UsageStats struct {
	TotalRequests      int     `json:"total_requests" yaml:"total_requests"`
	SuccessfulRequests int     `json:"successful_requests" yaml:"successful_requests"`
	SuccessRate        float64 `json:"success_rate" yaml:"success_rate"`
	TotalTokens        int     `json:"total_tokens" yaml:"total_tokens"`
	TotalCost          float64 `json:"total_cost" yaml:"total_cost"`
	UniqueModels       int     `json:"unique_models" yaml:"unique_models"`
}

// GetUsageStats returns totals for calls made at or after since.
func (t *UsageTracker) GetUsageStats(ctx context.Context, since time.Time) (*UsageStats, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(CASE WHEN success = 1 THEN 1 END),
			COALESCE(SUM(COALESCE(tokens_used, 0)), 0),
			COALESCE(SUM(COALESCE(cost, 0)), 0),
			COUNT(DISTINCT model_name)
		FROM ai_model_usage
		WHERE request_timestamp >= ?`

	var stats UsageStats
	err := t.db.QueryRowContext(ctx, query, db.FormatTime(since)).Scan(
		&stats.TotalRequests, &stats.SuccessfulRequests,
		&stats.TotalTokens, &stats.TotalCost, &stats.UniqueModels,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query usage stats")
	}

	if stats.TotalRequests > 0 {
		stats.SuccessRate = float64(stats.SuccessfulRequests) / float64(stats.TotalRequests)
	}
	return &stats, nil
}

// ModelBreakdown is per-model usage for successful calls.
type ModelBreakdown struct {
	ModelName     string  `json:"model_name" yaml:"model_name"`
	ModelProvider string  `json:"model_provider" yaml:"model_provider"`
	RequestCount  int     `json:"request_count" yaml:"request_count"`
	TotalTokens   int     `json:"total_tokens" yaml:"total_tokens"`
	TotalCost     float64 `json:"total_cost" yaml:"total_cost"`
}

// GetModelBreakdown returns per-model totals, most expensive first.
func (t *UsageTracker) GetModelBreakdown(ctx context.Context, since time.Time) ([]ModelBreakdown, error) {
	query := `
		SELECT
			model_name,
			model_provider,
			COUNT(*),
			COALESCE(SUM(COALESCE(tokens_used, 0)), 0),
			COALESCE(SUM(COALESCE(cost, 0)), 0)
		FROM ai_model_usage
		WHERE request_timestamp >= ? AND success = 1
		GROUP BY model_name, model_provider
		ORDER BY 5 DESC, model_name ASC`

	rows, err := t.db.QueryContext(ctx, query, db.FormatTime(since))
	if err != nil {
		return nil, errors.Wrap(err, "failed to query model breakdown")
	}
	defer rows.Close()

	var breakdown []ModelBreakdown
	for rows.Next() {
		var mb ModelBreakdown
		if err := rows.Scan(&mb.ModelName, &mb.ModelProvider, &mb.RequestCount, &mb.TotalTokens, &mb.TotalCost); err != nil {
			return nil, errors.Wrap(err, "failed to scan model breakdown")
		}
		breakdown = append(breakdown, mb)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate model breakdown")
	}
	return breakdown, nil
}

// NewModelConfig serializes sampling parameters, or returns nil when both are unset.
func NewModelConfig(temperature *float64, maxTokens *int) *string {
	if temperature == nil && maxTokens == nil {
		return nil
	}
	data, err := json.Marshal(ModelConfig{Temperature: temperature, MaxTokens: maxTokens})
	if err != nil {
		return nil
	}
	s := string(data)
	return &s
}
