package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/kwpulse/keyword/strategy"
	"github.com/teranos/kwpulse/logger"
	"github.com/teranos/kwpulse/pulse/discovery"
	"github.com/teranos/kwpulse/sym"
)

// JobCmd groups discovery job management
var JobCmd = &cobra.Command{
	Use:   "job",
	Short: sym.Discover + " Manage discovery jobs",
	Long: sym.Discover + ` Discovery jobs source keywords from a strategy, score each one
and store every attempt as a result.

A started job runs its first cycle immediately. Later cycles run in the
pulse daemon, which resumes every running job on startup.

Examples:
  kwpulse job create --name sleep --strategy category --category "Health & Fitness"
  kwpulse job ls --tag launch-q3
  kwpulse job show <id>
  kwpulse job start <id>
  kwpulse job promote <result-id> <result-id>`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var jobCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a pending discovery job",
	RunE:  runJobCreate,
}

var jobListCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List discovery jobs, newest first",
	RunE:    runJobList,
}

var jobShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a job and its results, best opportunity first",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobShow,
}

var jobStartCmd = &cobra.Command{
	Use:   "start <id>",
	Short: "Start or resume a job",
	Long: `Start or resume a job. The next cycle runs before the command returns.

Without --foreground the job stays running and the pulse daemon runs its
remaining cycles. With --foreground this process keeps the job loop until
the job completes or is interrupted; an interrupted job stays running and
is picked up by the next reconcile.`,
	Args: cobra.ExactArgs(1),
	RunE: runJobStart,
}

var jobStopCmd = &cobra.Command{
	Use:   "stop <id>",
	Short: "Pause a running job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobStop,
}

var jobRemoveCmd = &cobra.Command{
	Use:     "rm <id>",
	Aliases: []string{"delete"},
	Short:   "Delete a job and its results",
	Args:    cobra.ExactArgs(1),
	RunE:    runJobRemove,
}

var jobPromoteCmd = &cobra.Command{
	Use:   "promote <result-id>...",
	Short: sym.Track + " Promote results to the tracked keyword list",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runJobPromote,
}

var jobTrackedCmd = &cobra.Command{
	Use:   "tracked",
	Short: sym.Track + " List tracked keywords, best opportunity first",
	RunE:  runJobTracked,
}

func init() {
	jobCreateCmd.Flags().String("name", "", "Job name (required)")
	jobCreateCmd.Flags().String("strategy", string(strategy.Category), "Keyword strategy: random, category, trending")
	jobCreateCmd.Flags().String("category", "", "Seed category for category and trending strategies")
	jobCreateCmd.Flags().String("country", discovery.DefaultCountry, "Storefront country code")
	jobCreateCmd.Flags().Int("searches", 5, "Keywords scored per cycle (1-10)")
	jobCreateCmd.Flags().Int("interval", 60, "Minutes between cycles (1-1440)")
	jobCreateCmd.Flags().Int("cycles", 24, "Total cycles (1-1000)")
	jobCreateCmd.Flags().String("notes", "", "Free-form notes")
	jobCreateCmd.Flags().String("tag", "", "Session tag for grouping jobs")
	jobCreateCmd.Flags().Bool("start", false, "Start the job right after creating it")
	_ = jobCreateCmd.MarkFlagRequired("name")

	jobListCmd.Flags().String("tag", "", "Only jobs with this session tag")

	jobShowCmd.Flags().Int("limit", 25, "Maximum results shown in table output (0 = all)")

	jobStartCmd.Flags().Bool("foreground", false, "Keep running cycles in this process")

	jobTrackedCmd.Flags().String("country", "", "Only keywords for this storefront")

	JobCmd.AddCommand(jobCreateCmd)
	JobCmd.AddCommand(jobListCmd)
	JobCmd.AddCommand(jobShowCmd)
	JobCmd.AddCommand(jobStartCmd)
	JobCmd.AddCommand(jobStopCmd)
	JobCmd.AddCommand(jobRemoveCmd)
	JobCmd.AddCommand(jobPromoteCmd)
	JobCmd.AddCommand(jobTrackedCmd)
}

// withScheduler runs fn against a scheduler backed by the configured
// database. The scheduler is shut down afterwards, leaving running jobs
// for the daemon.
func withScheduler(cmd *cobra.Command, fn func(ctx context.Context, sched *discovery.Scheduler) error) error {
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

	log := logger.ComponentLogger("kwpulse")
	svc := buildServices(ctx, cfg, database, log)
	defer svc.Close()

	sched := newScheduler(database, svc, cfg, nil, log.Named("pulse.discovery"))
	defer sched.Shutdown()

	return fn(ctx, sched)
}

func runJobCreate(cmd *cobra.Command, args []string) error {
	var jc discovery.JobConfig
	jc.Name, _ = cmd.Flags().GetString("name")
	strategyName, _ := cmd.Flags().GetString("strategy")
	jc.Strategy = strategy.Strategy(strategyName)
	jc.SeedCategory, _ = cmd.Flags().GetString("category")
	jc.Country, _ = cmd.Flags().GetString("country")
	jc.SearchesPerCycle, _ = cmd.Flags().GetInt("searches")
	jc.IntervalMinutes, _ = cmd.Flags().GetInt("interval")
	jc.TotalCycles, _ = cmd.Flags().GetInt("cycles")
	jc.Notes, _ = cmd.Flags().GetString("notes")
	jc.SessionTag, _ = cmd.Flags().GetString("tag")
	start, _ := cmd.Flags().GetBool("start")

	return withScheduler(cmd, func(ctx context.Context, sched *discovery.Scheduler) error {
		job, err := sched.Create(ctx, jc)
		if err != nil {
			return err
		}
		if start {
			if job, err = sched.Start(ctx, job.ID); err != nil {
				return err
			}
		}
		return render(cmd, job, func(w io.Writer) error {
			return writeJob(w, job)
		})
	})
}

func runJobList(cmd *cobra.Command, args []string) error {
	tag, _ := cmd.Flags().GetString("tag")
	return withScheduler(cmd, func(ctx context.Context, sched *discovery.Scheduler) error {
		jobs, err := sched.List(ctx, tag)
		if err != nil {
			return err
		}
		return render(cmd, jobs, func(w io.Writer) error {
			return writeJobTable(w, jobs)
		})
	})
}

func runJobShow(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	return withScheduler(cmd, func(ctx context.Context, sched *discovery.Scheduler) error {
		detail, err := sched.Get(ctx, args[0])
		if err != nil {
			return err
		}
		return render(cmd, detail, func(w io.Writer) error {
			if err := writeJob(w, detail.Job); err != nil {
				return err
			}
			fmt.Fprintln(w)
			return writeResultTable(w, detail.Results, limit)
		})
	})
}

func runJobStart(cmd *cobra.Command, args []string) error {
	foreground, _ := cmd.Flags().GetBool("foreground")
	return withScheduler(cmd, func(ctx context.Context, sched *discovery.Scheduler) error {
		job, err := sched.Start(ctx, args[0])
		if err != nil {
			return err
		}
		if err := render(cmd, job, func(w io.Writer) error { return writeJob(w, job) }); err != nil {
			return err
		}
		if !foreground || job.Status != discovery.StatusRunning {
			return nil
		}

		sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for len(sched.ArmedJobs()) > 0 {
			select {
			case <-sigCtx.Done():
				return nil
			case <-ticker.C:
			}
		}
		return nil
	})
}

func runJobStop(cmd *cobra.Command, args []string) error {
	return withScheduler(cmd, func(ctx context.Context, sched *discovery.Scheduler) error {
		job, err := sched.Stop(ctx, args[0])
		if err != nil {
			return err
		}
		return render(cmd, job, func(w io.Writer) error { return writeJob(w, job) })
	})
}

func runJobRemove(cmd *cobra.Command, args []string) error {
	return withScheduler(cmd, func(ctx context.Context, sched *discovery.Scheduler) error {
		if err := sched.Delete(ctx, args[0]); err != nil {
			return err
		}
		return render(cmd, map[string]string{"deleted": args[0]}, func(w io.Writer) error {
			_, err := fmt.Fprintf(w, "Deleted job %s\n", args[0])
			return err
		})
	})
}

func runJobPromote(cmd *cobra.Command, args []string) error {
	return withScheduler(cmd, func(ctx context.Context, sched *discovery.Scheduler) error {
		summary, err := sched.Promote(ctx, args)
		if err != nil {
			return err
		}
		return render(cmd, summary, func(w io.Writer) error {
			_, err := fmt.Fprintf(w, "%s promoted %d, already tracked %d, skipped %d, missing %d\n",
				sym.Track, summary.Promoted, summary.AlreadyTracked, summary.Skipped, summary.Missing)
			return err
		})
	})
}

func runJobTracked(cmd *cobra.Command, args []string) error {
	country, _ := cmd.Flags().GetString("country")
	return withScheduler(cmd, func(ctx context.Context, sched *discovery.Scheduler) error {
		tracked, err := sched.Tracked(ctx, country)
		if err != nil {
			return err
		}
		return render(cmd, tracked, func(w io.Writer) error {
			rows := make([][]string, 0, len(tracked))
			for _, t := range tracked {
				rows = append(rows, []string{
					t.Keyword, strings.ToUpper(t.Country),
					strconv.Itoa(t.Popularity), strconv.Itoa(t.Difficulty), strconv.Itoa(t.Opportunity),
					t.CreatedAt.Local().Format("2006-01-02"),
				})
			}
			return writeTable(w, []string{"Keyword", "Country", "Pop", "Diff", "Opp", "Tracked"}, rows)
		})
	})
}

func writeJob(w io.Writer, job *discovery.Job) error {
	category := job.SeedCategory
	if category == "" {
		category = "-"
	}
	pairs := [][2]string{
		{"ID", job.ID},
		{"Name", job.Name},
		{"Status", statusLabel(job.Status)},
		{"Strategy", string(job.Strategy)},
		{"Category", category},
		{"Country", strings.ToUpper(job.Country)},
		{"Progress", fmt.Sprintf("%d/%d cycles, %d keywords", job.CurrentCycle, job.TotalCycles, job.TotalKeywords)},
		{"Schedule", fmt.Sprintf("%d keywords every %d min", job.SearchesPerCycle, job.IntervalMinutes)},
		{"Created", job.CreatedAt.Local().Format(time.RFC3339)},
	}
	if job.LastRunAt != nil {
		pairs = append(pairs, [2]string{"Last run", job.LastRunAt.Local().Format(time.RFC3339)})
	}
	if job.CompletedAt != nil {
		pairs = append(pairs, [2]string{"Completed", job.CompletedAt.Local().Format(time.RFC3339)})
	}
	if job.SessionTag != "" {
		pairs = append(pairs, [2]string{"Tag", job.SessionTag})
	}
	if job.Notes != "" {
		pairs = append(pairs, [2]string{"Notes", job.Notes})
	}

	for _, p := range pairs {
		if _, err := fmt.Fprintf(w, "%-10s %s\n", pterm.Bold.Sprint(p[0]), p[1]); err != nil {
			return err
		}
	}
	return nil
}

func writeJobTable(w io.Writer, jobs []*discovery.Job) error {
	rows := make([][]string, 0, len(jobs))
	for _, j := range jobs {
		rows = append(rows, []string{
			shortID(j.ID), truncate(j.Name, 24), statusLabel(j.Status), string(j.Strategy),
			strings.ToUpper(j.Country), fmt.Sprintf("%d/%d", j.CurrentCycle, j.TotalCycles),
			strconv.Itoa(j.TotalKeywords), j.SessionTag,
		})
	}
	return writeTable(w, []string{"ID", "Name", "Status", "Strategy", "Country", "Cycles", "Keywords", "Tag"}, rows)
}

func writeResultTable(w io.Writer, results []*discovery.Result, limit int) error {
	shown := results
	if limit > 0 && len(shown) > limit {
		shown = shown[:limit]
	}
	rows := make([][]string, 0, len(shown))
	for _, r := range shown {
		tracked := ""
		if r.Tracked {
			tracked = sym.Track
		}
		if r.Status == discovery.ResultError {
			rows = append(rows, []string{
				r.ID, truncate(r.Keyword, 32), strconv.Itoa(r.Cycle), "-", "-", "-",
				pterm.Red(truncate(r.ErrorMessage, 40)), tracked,
			})
			continue
		}
		rows = append(rows, []string{
			r.ID, truncate(r.Keyword, 32), strconv.Itoa(r.Cycle),
			strconv.Itoa(r.Popularity), strconv.Itoa(r.Difficulty), strconv.Itoa(r.Opportunity),
			truncate(strings.Join(r.TopApps, ", "), 40), tracked,
		})
	}
	if err := writeTable(w, []string{"Result", "Keyword", "Cycle", "Pop", "Diff", "Opp", "Top apps", ""}, rows); err != nil {
		return err
	}
	if len(shown) < len(results) {
		_, err := fmt.Fprintf(w, "%d of %d results shown (--limit 0 for all)\n", len(shown), len(results))
		return err
	}
	return nil
}

func statusLabel(s discovery.Status) string {
	switch s {
	case discovery.StatusRunning:
		return pterm.Green(string(s))
	case discovery.StatusPaused:
		return pterm.Yellow(string(s))
	case discovery.StatusCompleted:
		return pterm.Cyan(string(s))
	case discovery.StatusFailed:
		return pterm.Red(string(s))
	}
	return string(s)
}
