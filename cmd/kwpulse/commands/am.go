package commands

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/kwpulse/am"
	"github.com/teranos/kwpulse/errors"
	"github.com/teranos/kwpulse/sym"
)

// AmCmd represents the am (configuration) command
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: sym.AM + " Show and manage kwpulse configuration",
	Long: sym.AM + ` am - Show and manage kwpulse configuration ("I am")

Configuration sources (later overrides earlier):
1. Default values
2. System config (/etc/kwpulse/config.toml)
3. User config (~/.kwpulse/config.toml)
4. Project config (nearest kwpulse.toml, searching up from the working directory)
5. Environment variables (KWPULSE_* prefix, e.g. KWPULSE_DISCOVERY_KEYWORD_DELAY_MS)

Examples:
  kwpulse am show                 # Effective configuration as TOML
  kwpulse am show --sources       # Every setting with the source it came from
  kwpulse am init                 # Write ~/.kwpulse/config.toml with defaults
  kwpulse am check ./kwpulse.toml # Report unknown keys and invalid values`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE:  runAmShow,
}

var amInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with default values",
	RunE:  runAmInit,
}

var amCheckCmd = &cobra.Command{
	Use:   "check [path]",
	Short: "Check a config file for unknown keys and invalid values",
	Long: `Check a config file for unknown keys and invalid values.

Without a path every loaded config file is checked.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAmCheck,
}

func init() {
	amShowCmd.Flags().Bool("sources", false, "Show where each setting came from")
	amInitCmd.Flags().String("path", "", "File to write (default ~/.kwpulse/config.toml)")
	amInitCmd.Flags().Bool("force", false, "Overwrite an existing file, keeping a backup")

	AmCmd.AddCommand(amShowCmd)
	AmCmd.AddCommand(amInitCmd)
	AmCmd.AddCommand(amCheckCmd)
}

func runAmShow(cmd *cobra.Command, args []string) error {
	sources, _ := cmd.Flags().GetBool("sources")
	if sources {
		intro, err := am.GetConfigIntrospection()
		if err != nil {
			return err
		}
		return render(cmd, intro, func(w io.Writer) error {
			return writeIntrospection(w, intro)
		})
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	masked := maskSecrets(*cfg)
	return render(cmd, masked, func(w io.Writer) error {
		data, err := toml.Marshal(masked)
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to TOML")
		}
		_, err = fmt.Fprintf(w, "# kwpulse configuration\n%s", data)
		return err
	})
}

func runAmInit(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("path")
	force, _ := cmd.Flags().GetBool("force")
	if path == "" {
		path = am.UserConfigPath()
	}

	if err := am.WriteDefault(path, force); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s Wrote default configuration to %s\n", sym.AM, path)
	return nil
}

func runAmCheck(cmd *cobra.Command, args []string) error {
	paths := args
	if len(paths) == 0 {
		if _, err := am.Load(); err != nil {
			return err
		}
		paths = am.LoadedFiles()
		if len(paths) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No config files loaded; defaults and environment only")
			return nil
		}
	}

	failed := 0
	reports := make([]*am.CheckReport, 0, len(paths))
	for _, p := range paths {
		report, err := am.CheckFile(p)
		if err != nil {
			return err
		}
		if !report.OK() {
			failed++
		}
		reports = append(reports, report)
	}

	if err := render(cmd, reports, func(w io.Writer) error {
		for _, r := range reports {
			writeCheckReport(w, r)
		}
		return nil
	}); err != nil {
		return err
	}
	if failed > 0 {
		return errors.NewInvalidRequestError("%d of %d config file(s) have problems", failed, len(reports))
	}
	return nil
}

func writeCheckReport(w io.Writer, r *am.CheckReport) {
	if r.OK() {
		fmt.Fprintf(w, "%s %s\n", pterm.Green("✓"), r.Path)
		return
	}
	fmt.Fprintf(w, "%s %s\n", pterm.Red("✗"), r.Path)
	for _, key := range r.UnknownKeys {
		fmt.Fprintf(w, "    unknown key: %s\n", key)
	}
	if r.Err != nil {
		fmt.Fprintf(w, "    invalid: %v\n", r.Err)
	}
}

func writeIntrospection(w io.Writer, intro *am.ConfigIntrospection) error {
	fmt.Fprintln(w, "Loaded files (later overrides earlier):")
	if len(intro.Files) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, f := range intro.Files {
		fmt.Fprintf(w, "  %s\n", f)
	}
	fmt.Fprintln(w)

	rows := make([][]string, 0, len(intro.Settings))
	for _, s := range intro.Settings {
		origin := string(s.Source)
		if s.SourcePath != "" {
			origin += " (" + filepath.Base(s.SourcePath) + ")"
		}
		rows = append(rows, []string{s.Key, truncate(fmt.Sprintf("%v", s.Value), 50), origin})
	}
	return writeTable(w, []string{"Key", "Value", "Source"}, rows)
}

func maskSecrets(cfg am.Config) am.Config {
	if cfg.OpenRouter.APIKey != "" {
		cfg.OpenRouter.APIKey = "********"
	}
	if cfg.Catalog.Cache.RedisPassword != "" {
		cfg.Catalog.Cache.RedisPassword = "********"
	}
	return cfg
}
