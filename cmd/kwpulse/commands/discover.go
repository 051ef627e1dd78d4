package commands

import (
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teranos/kwpulse/errors"
	"github.com/teranos/kwpulse/keyword/strategy"
	"github.com/teranos/kwpulse/logger"
	"github.com/teranos/kwpulse/pulse/discovery"
	"github.com/teranos/kwpulse/sym"
)

// DiscoverCmd runs one generate-and-score pass without creating a job
var DiscoverCmd = &cobra.Command{
	Use:   "discover [keyword...]",
	Short: sym.Discover + " Generate and score keywords once, without a job",
	Long: sym.Discover + ` Score a batch of keywords and keep those at or above --min
weighted opportunity, best first.

Keywords given as arguments are scored as-is. Without arguments a strategy
generates --count keywords first. Nothing is stored.

Examples:
  kwpulse discover --strategy category --category Productivity --count 10
  kwpulse discover "habit tracker" "pomodoro" --min 40`,
	RunE: runDiscover,
}

func init() {
	DiscoverCmd.Flags().String("strategy", string(strategy.Random), "Keyword strategy: random, category, trending")
	DiscoverCmd.Flags().String("category", "", "Seed category for category and trending strategies")
	DiscoverCmd.Flags().String("country", discovery.DefaultCountry, "Storefront country code")
	DiscoverCmd.Flags().Int("count", 10, "Keywords to generate when none are given")
	DiscoverCmd.Flags().Int("min", 0, "Minimum weighted opportunity to keep (0-100)")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	strategyName, _ := cmd.Flags().GetString("strategy")
	category, _ := cmd.Flags().GetString("category")
	country, _ := cmd.Flags().GetString("country")
	count, _ := cmd.Flags().GetInt("count")
	minOpp, _ := cmd.Flags().GetInt("min")

	if minOpp < 0 || minOpp > 100 {
		return errors.NewInvalidRequestError("--min %d outside 0-100", minOpp)
	}
	country = strings.ToLower(strings.TrimSpace(country))

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)

	// Usage tracking needs the database even though nothing else is stored
	database, err := openDatabase(cmd, cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	log := logger.ComponentLogger("kwpulse")
	svc := buildServices(ctx, cfg, database, log)
	defer svc.Close()

	keywords := args
	if len(keywords) == 0 {
		s := strategy.Strategy(strings.ToLower(strategyName))
		if !s.Valid() {
			return errors.WithHint(
				errors.NewInvalidRequestError("unknown strategy %q", strategyName),
				"use one of: random, category, trending",
			)
		}
		keywords = svc.generator.Generate(ctx, strategy.Request{
			Strategy:     s,
			SeedCategory: category,
			Audience:     strings.ToUpper(country),
			Count:        count,
		})
		log.Infow("Generated keywords", logger.FieldStrategy, string(s), logger.FieldCount, len(keywords))
		if len(keywords) == 0 {
			return errors.WithHint(
				errors.Wrap(errors.ErrServiceUnavailable, "no keywords generated"),
				"check the OpenRouter API key with 'kwpulse am show'",
			)
		}
	}

	results, err := svc.engine.Discover(ctx, keywords, country, minOpp)
	if err != nil {
		return err
	}
	return render(cmd, results, func(w io.Writer) error {
		return writeAnalysisTable(w, results)
	})
}
