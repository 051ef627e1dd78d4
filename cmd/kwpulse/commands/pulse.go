package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/teranos/kwpulse/am"
	"github.com/teranos/kwpulse/logger"
	"github.com/teranos/kwpulse/pulse/discovery"
	"github.com/teranos/kwpulse/sym"
)

// PulseCmd represents the pulse command - the discovery scheduler daemon
var PulseCmd = &cobra.Command{
	Use:   "pulse",
	Short: sym.Pulse + " Run the discovery scheduler daemon",
	Long: sym.Pulse + ` Pulse daemon - runs discovery job cycles on their intervals.

The daemon:
- Resumes every job left running, starting with its next cycle
- Re-checks for running jobs periodically so jobs started from the CLI are picked up
- Serves Prometheus metrics
- Applies delay changes from config files without a restart
- Leaves running jobs running on shutdown, for the next start to resume

Example:
  kwpulse pulse start
  kwpulse pulse start --metrics-addr 0.0.0.0:9477`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// PulseStartCmd starts the daemon in the foreground
var PulseStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the pulse daemon in the foreground",
	RunE:  runPulseStart,
}

func init() {
	PulseStartCmd.Flags().String("metrics-addr", "", "Metrics listen address (overrides config)")
	PulseStartCmd.Flags().Bool("no-metrics", false, "Do not serve metrics")
	PulseCmd.AddCommand(PulseStartCmd)
}

func runPulseStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
		cfg.Metrics.Address = addr
	}
	if off, _ := cmd.Flags().GetBool("no-metrics"); off {
		cfg.Metrics.Enabled = false
	}

	database, err := openDatabase(cmd, cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.ComponentLogger("kwpulse")
	svc := buildServices(ctx, cfg, database, log)
	defer svc.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	sched := newScheduler(database, svc, cfg, discovery.NewMetrics(reg), log.Named("pulse.discovery"))

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s Starting pulse daemon (database %s)\n", sym.Pulse, cfg.GetDatabasePath())

	summary, err := sched.Reconcile(ctx)
	if err != nil {
		sched.Shutdown()
		return err
	}
	fmt.Fprintf(out, "%s Resumed %d job(s), completed %d\n", sym.PulseOpen, len(summary.Resumed), len(summary.Completed))

	var srv *http.Server
	if cfg.Metrics.Enabled {
		srv = serveMetrics(cfg.Metrics.Address, reg, log)
		fmt.Fprintf(out, "  Metrics: http://%s/metrics\n", cfg.Metrics.Address)
	}

	if files := am.LoadedFiles(); len(files) > 0 {
		if watcher, err := am.NewConfigWatcher(files...); err != nil {
			log.Warnw("Config hot-reload disabled", logger.FieldError, err)
		} else {
			watcher.OnReload(applyReload(sched, svc))
			watcher.Start()
			am.SetGlobalWatcher(watcher)
			defer watcher.Stop()
		}
	}

	if interval := cfg.ReconcileInterval(); interval > 0 {
		go reconcileLoop(ctx, sched, interval, log)
		fmt.Fprintf(out, "  Reconcile interval: %v\n", interval)
	}
	if verbosity, _ := cmd.Flags().GetCount("verbose"); logger.ShouldOutput(verbosity, logger.OutputConfig) {
		fmt.Fprintf(out, "  Config: %s\n", cfg)
		fmt.Fprintf(out, "  Delays: keyword %v, provider %v, catalog %v\n",
			cfg.KeywordDelay(), cfg.ProviderDelay(), cfg.CatalogDelay())
		fmt.Fprintf(out, "  Output: %s\n", logger.VerbosityDescription(verbosity))
	}
	fmt.Fprintf(out, "\n%s Press Ctrl+C to stop; running jobs resume on next start\n\n", sym.Pulse)

	<-ctx.Done()
	fmt.Fprintf(out, "\n%s Shutting down...\n", sym.PulseClose)

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warnw("Metrics server shutdown", logger.FieldError, err)
		}
		cancel()
	}
	sched.Shutdown()

	fmt.Fprintf(out, "%s Pulse daemon stopped\n", sym.PulseClose)
	return nil
}

func serveMetrics(addr string, reg *prometheus.Registry, log *zap.SugaredLogger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorw("Metrics server failed", logger.FieldAddress, addr, logger.FieldError, err)
		}
	}()
	return srv
}

// reconcileLoop picks up jobs other processes marked running.
func reconcileLoop(ctx context.Context, sched *discovery.Scheduler, interval time.Duration, log *zap.SugaredLogger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			summary, err := sched.Reconcile(ctx)
			if err != nil {
				log.Warnw("Periodic reconcile failed", logger.FieldError, err)
				continue
			}
			if len(summary.Resumed)+len(summary.Completed) > 0 {
				log.Infow("Periodic reconcile",
					"resumed", len(summary.Resumed),
					"completed", len(summary.Completed))
			}
		}
	}
}

// applyReload pushes delays and budget limits from a reloaded config into
// the running components. Other settings need a restart.
func applyReload(sched *discovery.Scheduler, svc *services) am.ReloadCallback {
	return func(cfg *am.Config) error {
		sched.SetKeywordDelay(cfg.KeywordDelay())
		svc.generator.SetProviderDelay(cfg.ProviderDelay())
		svc.itunes.SetDelay(cfg.CatalogDelay())
		if svc.budget != nil {
			svc.budget.SetLimits(budgetConfig(cfg))
		}
		logger.Infow("Applied reloaded delays",
			"keyword_delay", cfg.KeywordDelay().String(),
			"provider_delay", cfg.ProviderDelay().String(),
			"catalog_delay", cfg.CatalogDelay().String())
		return nil
	}
}
