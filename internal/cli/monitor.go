package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/pulseguard/internal/alert"
	"github.com/ppiankov/pulseguard/internal/config"
	"github.com/ppiankov/pulseguard/internal/gateway"
	"github.com/ppiankov/pulseguard/internal/journal"
	"github.com/ppiankov/pulseguard/internal/metrics"
	"github.com/ppiankov/pulseguard/internal/monitor"
	"github.com/ppiankov/pulseguard/internal/sensor"
	"github.com/ppiankov/pulseguard/internal/server"
)

// shutdownWait bounds how long shutdown waits for an in-flight intervention.
const shutdownWait = 5 * time.Second

var (
	monitorSensorURL       string
	monitorInterval        time.Duration
	monitorInterventionURL string
	monitorMetricsAddr     string
	monitorHealthAddr      string
)

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().StringVar(&monitorSensorURL, "sensor-url", "", "Heart-rate sensor endpoint (overrides monitor.sensor_url)")
	monitorCmd.Flags().DurationVar(&monitorInterval, "interval", 0, "Polling interval (overrides monitor.interval)")
	monitorCmd.Flags().StringVar(&monitorInterventionURL, "intervention-url", "", "POST /intervene endpoint (overrides intervention.url)")
	monitorCmd.Flags().StringVar(&monitorMetricsAddr, "metrics-addr", "", "Ops listener for /metrics and /status (overrides ops.metrics_addr)")
	monitorCmd.Flags().StringVar(&monitorHealthAddr, "health-addr", "", "gRPC health listener (overrides ops.health_addr)")
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Poll the heart-rate sensor and trigger interventions",
	Long:  "Runs the telemetry monitor. Breaches are posted to the intervention service; at most one\nintervention is in flight and breaches during it are suppressed. Thresholds and interval hot-reload from the config file.",
	RunE:  runMonitor,
}

func applyMonitorFlags(cfg *config.Config) {
	if monitorSensorURL != "" {
		cfg.Monitor.SensorURL = monitorSensorURL
	}
	if monitorInterval > 0 {
		cfg.Monitor.Interval = monitorInterval
	}
	if monitorInterventionURL != "" {
		cfg.Intervention.URL = monitorInterventionURL
	}
	if monitorMetricsAddr != "" {
		cfg.Ops.MetricsAddr = monitorMetricsAddr
	}
	if monitorHealthAddr != "" {
		cfg.Ops.HealthAddr = monitorHealthAddr
	}
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	applyMonitorFlags(cfg)

	ctx, cancel := signalContext(cmd.Context(), "monitor")
	defer cancel()

	gw := gateway.NewHTTP(cfg.Intervention.URL,
		gateway.WithTimeout(cfg.Intervention.Timeout),
		gateway.WithLogger(logger),
	)
	printBanner("pulseguard monitor polling %s every %s", cfg.Monitor.SensorURL, cfg.Monitor.Interval)
	printBanner("Interventions: %s (timeout %s)", cfg.Intervention.URL, cfg.Intervention.Timeout)
	return runMonitorWith(ctx, cfg, logger, gw, metrics.NewHealth())
}

// runMonitorWith runs the monitor, its ops listeners and the config
// reloader until ctx ends.
func runMonitorWith(ctx context.Context, cfg *config.Config, logger *slog.Logger, gw gateway.Gateway, health *metrics.Health) error {
	var (
		recorder monitor.Recorder
		reader   server.JournalReader
	)
	if cfg.Journal.Path != "" {
		store, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			logger.Warn("intervention journal disabled", "path", cfg.Journal.Path, "error", err)
		} else {
			defer store.Close()
			recorder, reader = store, store
		}
	}

	dispatcher := alert.NewDispatcher(cfg.Alerts, cfg.AlertsPerMinute, logger)
	defer dispatcher.Wait()

	mon, err := monitor.New(monitor.Config{
		Interval:        cfg.Monitor.Interval,
		Thresholds:      cfg.Monitor.Thresholds,
		HistoryCapacity: cfg.Monitor.HistoryCapacity,
		Subject:         cfg.Monitor.Subject,
		Alerts:          dispatcher,
		Journal:         recorder,
		Logger:          logger,
	}, sensor.NewHTTPSource(cfg.Monitor.SensorURL, cfg.Monitor.FetchTimeout), gw)
	if err != nil {
		return fmt.Errorf("failed to create monitor: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return mon.Run(ctx) })

	if cfg.Ops.MetricsAddr != "" {
		ops := server.NewOps(mon, reader, logger)
		g.Go(func() error { return ops.Run(ctx, cfg.Ops.MetricsAddr) })
		printBanner("Ops: http://%s/status and /metrics", cfg.Ops.MetricsAddr)
	}
	if cfg.Ops.HealthAddr != "" {
		g.Go(func() error { return health.Serve(ctx, cfg.Ops.HealthAddr) })
	}

	if path := reloadPath(); path != "" {
		reloader, err := config.NewReloader(path, func(next *config.Config) error {
			if err := mon.SetThresholds(next.Monitor.Thresholds); err != nil {
				return err
			}
			return mon.SetInterval(next.Monitor.Interval)
		}, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: hot-reload disabled: %v\n", err)
		} else {
			g.Go(func() error { return reloader.Run(ctx) })
			printBanner("Config: %s (hot-reload enabled)", path)
		}
	}
	printBanner("Press Ctrl+C to stop\n")

	err = g.Wait()
	// The journal closes on return; let in-flight interventions record first.
	if !mon.WaitTimeout(shutdownWait) {
		logger.Warn("intervention still running at shutdown", "waited", shutdownWait)
	}

	fmt.Fprintln(os.Stderr)
	fmt.Fprintf(os.Stderr, "Triggered %d intervention(s), suppressed %d breach(es).\n", mon.TriggeredCount(), mon.SuppressedCount())
	if mon.Pending() {
		fmt.Fprintln(os.Stderr, "An intervention was still in flight; its outcome was not recorded.")
	}
	return err
}
