package cli

import (
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/pulseguard/internal/metrics"
	"github.com/ppiankov/pulseguard/internal/server"
	"github.com/ppiankov/pulseguard/internal/session"
)

var (
	serveListen  string
	serveConsole string
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "Listen address for POST /intervene (overrides intervention.listen)")
	serveCmd.Flags().StringVar(&serveConsole, "console", "", "Session console: auto, tui, headless (overrides intervention.console)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the intervention service",
	Long:  "Accepts breach contexts on POST /intervene and runs one interactive session per breach.\nThe assistant answers through the completion API and calls the configured tool providers.",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if serveListen != "" {
		cfg.Intervention.Listen = serveListen
	}
	if serveConsole != "" {
		cfg.Intervention.Console = serveConsole
	}

	ctx, cancel := signalContext(cmd.Context(), "intervention service")
	defer cancel()

	health := metrics.NewHealth()
	a, err := newAssistant(ctx, cfg, logger, health)
	if err != nil {
		return err
	}
	defer a.Close()

	console, consoleName := pickConsole(cfg.Intervention.Console, logger)
	svc := session.NewService(a.sessionOptions(), console)
	srv := server.NewIntervention(svc, logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(ctx, cfg.Intervention.Listen) })
	if cfg.Ops.HealthAddr != "" {
		g.Go(func() error { return health.Serve(ctx, cfg.Ops.HealthAddr) })
	}

	printBanner("pulseguard intervention service listening on %s", cfg.Intervention.Listen)
	printBanner("Console: %s, providers: %d", consoleName, len(cfg.Providers))
	printBanner("")
	return g.Wait()
}
