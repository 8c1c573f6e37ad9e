package cli

import (
	"github.com/spf13/cobra"

	"github.com/ppiankov/pulseguard/internal/gateway"
	"github.com/ppiankov/pulseguard/internal/metrics"
	"github.com/ppiankov/pulseguard/internal/session"
)

var runConsole string

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runConsole, "console", "", "Session console: auto, tui, headless (overrides intervention.console)")
	runCmd.Flags().StringVar(&monitorSensorURL, "sensor-url", "", "Heart-rate sensor endpoint (overrides monitor.sensor_url)")
	runCmd.Flags().DurationVar(&monitorInterval, "interval", 0, "Polling interval (overrides monitor.interval)")
	runCmd.Flags().StringVar(&monitorMetricsAddr, "metrics-addr", "", "Ops listener for /metrics and /status (overrides ops.metrics_addr)")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Monitor and intervene in one process",
	Long:  "Runs the telemetry monitor with an in-process intervention service instead of POST /intervene.\nThe intervention timeout still bounds every session.",
	RunE:  runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	applyMonitorFlags(cfg)
	if runConsole != "" {
		cfg.Intervention.Console = runConsole
	}

	ctx, cancel := signalContext(cmd.Context(), "pulseguard")
	defer cancel()

	health := metrics.NewHealth()
	a, err := newAssistant(ctx, cfg, logger, health)
	if err != nil {
		return err
	}
	defer a.Close()

	console, consoleName := pickConsole(cfg.Intervention.Console, logger)
	svc := session.NewService(a.sessionOptions(), console)
	gw := gateway.NewLocal(svc.Intervene,
		gateway.WithTimeout(cfg.Intervention.Timeout),
		gateway.WithLogger(logger),
	)

	printBanner("pulseguard polling %s every %s", cfg.Monitor.SensorURL, cfg.Monitor.Interval)
	printBanner("Interventions: in-process, console %s (timeout %s)", consoleName, cfg.Intervention.Timeout)
	return runMonitorWith(ctx, cfg, logger, gw, health)
}
