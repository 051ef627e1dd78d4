package logger

import "go.uber.org/zap/zapcore"

// Verbosity level constants for CLI flag counts (-v, -vv, ...).
//
// These levels control WHAT categories of CLI output are shown as well as
// the zap level of the global logger.
const (
	VerbosityUser  = 0 // No flags: results and errors only
	VerbosityInfo  = 1 // -v: + cycle progress, startup summary
	VerbosityDebug = 2 // -vv: + provider calls, timing, config details
	VerbosityTrace = 3 // -vvv: + SQL, pacing waits
)

// VerbosityToLevel maps verbosity flags to zap log levels.
//
//	0 (none)  -> WarnLevel
//	1 (-v)    -> InfoLevel
//	2+ (-vv)  -> DebugLevel
func VerbosityToLevel(verbosity int) zapcore.Level {
	switch {
	case verbosity <= VerbosityUser:
		return zapcore.WarnLevel
	case verbosity == VerbosityInfo:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}

// OutputCategory defines a category of CLI output that can be enabled/disabled
type OutputCategory int

const (
	// Level 0 (default) - Always shown
	OutputResults    OutputCategory = iota // Job tables, analysis output
	OutputErrors                           // Errors with hints
	OutputUserStatus                       // Final success/failure status

	// Level 1 (-v) - Informational
	OutputProgress // Cycle progress
	OutputStartup  // Daemon banner, reconcile summary

	// Level 2 (-vv) - Detailed
	OutputTiming    // Cycle and provider timing
	OutputConfig    // Config values loaded/applied
	OutputHTTPCalls // Catalog and OpenRouter requests

	// Level 3 (-vvv) - Debug
	OutputSQLQueries // Individual SQL statements
)

// categoryLevels maps each output category to its minimum verbosity level
var categoryLevels = map[OutputCategory]int{
	OutputResults:    VerbosityUser,
	OutputErrors:     VerbosityUser,
	OutputUserStatus: VerbosityUser,

	OutputProgress: VerbosityInfo,
	OutputStartup:  VerbosityInfo,

	OutputTiming:    VerbosityDebug,
	OutputConfig:    VerbosityDebug,
	OutputHTTPCalls: VerbosityDebug,

	OutputSQLQueries: VerbosityTrace,
}

// ShouldOutput returns true if the given category should be shown at the given verbosity
func ShouldOutput(verbosity int, category OutputCategory) bool {
	minLevel, ok := categoryLevels[category]
	if !ok {
		// Unknown category, require highest verbosity
		return verbosity >= VerbosityTrace
	}
	return verbosity >= minLevel
}

// VerbosityDescription returns a description of what's shown at each level
func VerbosityDescription(verbosity int) string {
	switch {
	case verbosity <= VerbosityUser:
		return "results and errors only"
	case verbosity == VerbosityInfo:
		return "results, errors, cycle progress and startup"
	case verbosity == VerbosityDebug:
		return "above + provider calls, timing, config details"
	default:
		return "above + SQL statements"
	}
}
