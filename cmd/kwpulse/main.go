package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/kwpulse/am"
	"github.com/teranos/kwpulse/cmd/kwpulse/commands"
	"github.com/teranos/kwpulse/errors"
	"github.com/teranos/kwpulse/logger"
)

var rootCmd = &cobra.Command{
	Use:   "kwpulse",
	Short: "kwpulse - continuous App Store keyword discovery",
	Long: `kwpulse - continuous App Store keyword discovery.

Discovery jobs source candidate keywords from an LLM, score them against
the App Store catalog, and keep every result for later promotion.

Available commands:
  job      - Create, run and inspect discovery jobs
  pulse    - Run the discovery scheduler daemon
  analyze  - Score a single keyword
  discover - Generate and score keywords once, without a job
  usage    - Show LLM usage and estimated cost
  am       - Show and manage configuration

Examples:
  kwpulse job create --name sleep --strategy category --category "Health & Fitness"
  kwpulse job start <id>
  kwpulse pulse start
  kwpulse analyze "white noise" --country gb`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")

		// Config-file log settings apply unless flags override them
		if cfg, err := am.Load(); err == nil {
			if verbosity == 0 {
				verbosity = cfg.Log.Verbosity
			}
			jsonLogs = jsonLogs || cfg.Log.JSON
		}

		if err := logger.Initialize(jsonLogs, verbosity); err != nil {
			return errors.Wrap(err, "failed to initialize logger")
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv)")
	rootCmd.PersistentFlags().Bool("json-logs", false, "Write logs as JSON")
	commands.AddGlobalFlags(rootCmd)

	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.AnalyzeCmd)
	rootCmd.AddCommand(commands.DiscoverCmd)
	rootCmd.AddCommand(commands.JobCmd)
	rootCmd.AddCommand(commands.PulseCmd)
	rootCmd.AddCommand(commands.UsageCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, commands.FormatError(err))
		os.Exit(1)
	}
}
