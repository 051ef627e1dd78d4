package logger

import (
	"context"

	"go.uber.org/zap"
)

// Standard field names for consistent structured logging across kwpulse.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Identity and context
	FieldJobID     = "job_id"
	FieldResultID  = "result_id"
	FieldSession   = "session"
	FieldRequestID = "request_id"

	// Components
	FieldComponent = "component"
	FieldProvider  = "provider"

	// Discovery
	FieldCycle       = "cycle"
	FieldTotalCycles = "total_cycles"
	FieldKeyword     = "keyword"
	FieldStrategy    = "strategy"
	FieldCategory    = "category"
	FieldCountry     = "country"
	FieldStatus      = "status"

	// Scores
	FieldPopularity  = "popularity"
	FieldDifficulty  = "difficulty"
	FieldOpportunity = "opportunity"

	// Timing
	FieldDurationMS = "duration_ms"
	FieldInterval   = "interval"

	// Errors
	FieldError = "error"

	// Counts
	FieldCount     = "count"
	FieldRequested = "requested"

	// Network
	FieldAddress = "address"
	FieldURL     = "url"

	// Symbol marker (꩜, ✿, ❀, ...)
	FieldSymbol = "symbol"
)

// Context keys for propagating logging context
type contextKey string

const (
	jobIDKey     contextKey = "logger_job_id"
	cycleKey     contextKey = "logger_cycle"
	componentKey contextKey = "logger_component"
)

// WithJobID adds a job ID to the context for logging
func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, jobIDKey, jobID)
}

// WithCycle adds a cycle number to the context for logging
func WithCycle(ctx context.Context, cycle int) context.Context {
	return context.WithValue(ctx, cycleKey, cycle)
}

// WithComponent adds a component name to the context for logging
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, componentKey, component)
}

// FieldsFromContext extracts logging fields from context.
// Returns key-value pairs suitable for use with Infow/Errorw/etc.
func FieldsFromContext(ctx context.Context) []interface{} {
	var fields []interface{}

	if jobID, ok := ctx.Value(jobIDKey).(string); ok && jobID != "" {
		fields = append(fields, FieldJobID, jobID)
	}
	if cycle, ok := ctx.Value(cycleKey).(int); ok && cycle > 0 {
		fields = append(fields, FieldCycle, cycle)
	}
	if component, ok := ctx.Value(componentKey).(string); ok && component != "" {
		fields = append(fields, FieldComponent, component)
	}

	return fields
}

// FromContext returns the given logger enriched with fields carried by ctx.
// A nil base falls back to the global Logger.
func FromContext(ctx context.Context, base *zap.SugaredLogger) *zap.SugaredLogger {
	if base == nil {
		base = Logger
	}
	fields := FieldsFromContext(ctx)
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}

// ComponentLogger returns a named logger for a specific component.
// This is the preferred way to get a logger for dependency injection.
//
// Example:
//
//	scheduler := discovery.NewScheduler(store, gen, engine, tokens, cfg,
//	    logger.ComponentLogger("pulse.discovery"))
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}
