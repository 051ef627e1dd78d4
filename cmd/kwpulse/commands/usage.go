package commands

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/teranos/kwpulse/ai/tracker"
	"github.com/teranos/kwpulse/pulse/budget"
)

// UsageCmd reports LLM calls made for keyword generation
var UsageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show LLM usage and estimated cost",
	Long: `Show keyword-suggestion calls made through OpenRouter, with token
counts and estimated cost per model, and spend against the budget limits.

Example:
  kwpulse usage --since 168h`,
	RunE: runUsage,
}

func init() {
	UsageCmd.Flags().Duration("since", 24*time.Hour, "Window to report, ending now")
}

// usageReport is the machine-readable form of the usage command
type usageReport struct {
	Since  time.Time                `json:"since" yaml:"since"`
	Totals *tracker.UsageStats      `json:"totals" yaml:"totals"`
	Models []tracker.ModelBreakdown `json:"models" yaml:"models"`
	Budget *budget.Status           `json:"budget" yaml:"budget"`
}

func runUsage(cmd *cobra.Command, args []string) error {
	window, _ := cmd.Flags().GetDuration("since")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	database, err := openDatabase(cmd, cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	ctx := commandContext(cmd)
	t := tracker.NewUsageTracker(database)
	since := time.Now().Add(-window)

	report := usageReport{Since: since.UTC(), Models: []tracker.ModelBreakdown{}}
	if report.Totals, err = t.GetUsageStats(ctx, since); err != nil {
		return err
	}
	models, err := t.GetModelBreakdown(ctx, since)
	if err != nil {
		return err
	}
	if models != nil {
		report.Models = models
	}
	if report.Budget, err = budget.NewTracker(database, budgetConfig(cfg)).Status(ctx); err != nil {
		return err
	}

	return render(cmd, report, func(w io.Writer) error {
		return writeUsage(w, report, window)
	})
}

func writeUsage(w io.Writer, r usageReport, window time.Duration) error {
	fmt.Fprintf(w, "LLM usage over the last %s\n", window)
	fmt.Fprintf(w, "  Requests  %d (%.0f%% successful)\n", r.Totals.TotalRequests, r.Totals.SuccessRate*100)
	fmt.Fprintf(w, "  Tokens    %d\n", r.Totals.TotalTokens)
	fmt.Fprintf(w, "  Cost      $%.4f\n\n", r.Totals.TotalCost)

	rows := make([][]string, 0, len(r.Models))
	for _, m := range r.Models {
		rows = append(rows, []string{
			m.ModelName, m.ModelProvider, strconv.Itoa(m.RequestCount),
			strconv.Itoa(m.TotalTokens), fmt.Sprintf("$%.4f", m.TotalCost),
		})
	}
	if err := writeTable(w, []string{"Model", "Provider", "Requests", "Tokens", "Cost"}, rows); err != nil {
		return err
	}

	b := r.Budget
	fmt.Fprintln(w, "\nBudget (sliding windows)")
	fmt.Fprintf(w, "  24h  $%.4f  %s\n", b.DailySpend, limitLabel(b.Limits.DailyUSD, b.DailySpend))
	fmt.Fprintf(w, "  7d   $%.4f  %s\n", b.WeeklySpend, limitLabel(b.Limits.WeeklyUSD, b.WeeklySpend))
	_, err := fmt.Fprintf(w, "  30d  $%.4f  %s\n", b.MonthlySpend, limitLabel(b.Limits.MonthlyUSD, b.MonthlySpend))
	return err
}

func limitLabel(limit, spend float64) string {
	remaining := budget.Remaining(limit, spend)
	if remaining < 0 {
		return "no limit"
	}
	return fmt.Sprintf("of $%.2f ($%.4f left)", limit, remaining)
}
