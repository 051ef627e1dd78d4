package commands

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/kwpulse/am"
	"github.com/teranos/kwpulse/keyword/score"
	"github.com/teranos/kwpulse/logger"
	"github.com/teranos/kwpulse/pulse/discovery"
	"github.com/teranos/kwpulse/sym"
)

// AnalyzeCmd scores a single keyword against the catalog
var AnalyzeCmd = &cobra.Command{
	Use:   "analyze <keyword>",
	Short: sym.Score + " Score one keyword in a storefront",
	Long: sym.Score + ` Score one keyword: popularity from autocomplete hints, difficulty
from the top search results, and the weighted opportunity of the two.

Example:
  kwpulse analyze "white noise" --country gb`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	AnalyzeCmd.Flags().String("country", discovery.DefaultCountry, "Storefront country code")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	country, _ := cmd.Flags().GetString("country")
	keyword := strings.Join(args, " ")

	cfg, err := am.Load()
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)

	// Scoring alone needs no database
	svc := buildServices(ctx, cfg, nil, logger.ComponentLogger("kwpulse"))
	defer svc.Close()

	a, err := svc.engine.Analyze(ctx, keyword, country)
	if err != nil {
		return err
	}
	return render(cmd, a, func(w io.Writer) error {
		return writeAnalysis(w, a)
	})
}

func writeAnalysis(w io.Writer, a *score.Analysis) error {
	fmt.Fprintf(w, "%s %s (%s)\n", sym.Score, pterm.Bold.Sprint(a.Keyword), strings.ToUpper(a.Country))
	fmt.Fprintf(w, "  Popularity   %3d\n", a.Popularity)
	fmt.Fprintf(w, "  Difficulty   %3d\n", a.Difficulty)
	fmt.Fprintf(w, "  Opportunity  %3d\n", a.Opportunity)
	fmt.Fprintf(w, "  Competitors  %3d\n", a.CompetitorCount)
	if len(a.TopApps) > 0 {
		fmt.Fprintf(w, "  Top apps     %s\n", strings.Join(a.TopApps, ", "))
	}
	if len(a.RelatedTerms) > 0 {
		fmt.Fprintf(w, "  Related      %s\n", strings.Join(a.RelatedTerms, ", "))
	}
	return nil
}

func writeAnalysisTable(w io.Writer, analyses []score.Analysis) error {
	rows := make([][]string, 0, len(analyses))
	for _, a := range analyses {
		rows = append(rows, []string{
			a.Keyword,
			strconv.Itoa(a.Popularity), strconv.Itoa(a.Difficulty), strconv.Itoa(a.Opportunity),
			strconv.Itoa(a.CompetitorCount), truncate(strings.Join(a.TopApps, ", "), 40),
		})
	}
	return writeTable(w, []string{"Keyword", "Pop", "Diff", "Opp", "Apps", "Top apps"}, rows)
}
