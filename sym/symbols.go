// Package sym defines canonical symbols for kwpulse operations and system markers.
// These symbols are stable across CLI output and structured log fields.
package sym

// Operator glyphs, one per top-level command family.
const (
	AM       = "≡" // am: configuration and system settings
	Discover = "⨳" // discover: pull candidate keywords from a strategy
	Score    = "⋈" // analyze: join catalog search and autocomplete into scores
	Track    = "✦" // promote: move results onto the tracked keyword list
)

// System infrastructure symbols.
const (
	Pulse      = "꩜" // discovery jobs, cycle timers, pacing
	PulseOpen  = "✿" // graceful startup with running-job reconciliation
	PulseClose = "❀" // graceful shutdown, job state left for the next reconcile
	DB         = "⊔" // database/storage layer
)

// SymbolToCommand maps glyph strings to their CLI command equivalents.
var SymbolToCommand = map[string]string{
	AM:       "am",
	Discover: "discover",
	Score:    "analyze",
	Track:    "promote",
	Pulse:    "pulse",
}

// CommandToSymbol maps CLI commands to their canonical glyph strings.
var CommandToSymbol = map[string]string{
	"am":       AM,
	"discover": Discover,
	"analyze":  Score,
	"promote":  Track,
	"pulse":    Pulse,
}

// CommandDescriptions provides short explanations used in help output.
var CommandDescriptions = map[string]string{
	"am":       "Configuration: show, initialize and check settings",
	"discover": "Discover: generate keywords and keep the promising ones",
	"analyze":  "Analyze: difficulty, popularity and opportunity for one keyword",
	"promote":  "Promote: copy job results onto the tracked keyword list",
	"pulse":    "Pulse: run the discovery scheduler daemon",
}

// Prefix returns the glyph for a command followed by a space, or an empty
// string for commands without a symbol.
func Prefix(command string) string {
	if glyph, ok := CommandToSymbol[command]; ok {
		return glyph + " "
	}
	return ""
}
