package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/ppiankov/pulseguard/internal/bridge"
	"github.com/ppiankov/pulseguard/internal/config"
	"github.com/ppiankov/pulseguard/internal/llm"
	"github.com/ppiankov/pulseguard/internal/metrics"
	"github.com/ppiankov/pulseguard/internal/orchestrator"
	"github.com/ppiankov/pulseguard/internal/registry"
	"github.com/ppiankov/pulseguard/internal/session"
	"github.com/ppiankov/pulseguard/internal/tui"
)

// assistant bundles the intervention side: loop bridge, provider registry,
// completion client and orchestrator.
type assistant struct {
	cfg      *config.Config
	logger   *slog.Logger
	bridge   *bridge.Bridge
	registry *registry.Registry
	llm      *llm.Client
	orch     *orchestrator.Orchestrator
}

// newAssistant wires the intervention side and starts connecting providers
// on the bridge. Turns submitted before the connect phase ends wait for it.
func newAssistant(ctx context.Context, cfg *config.Config, logger *slog.Logger, health *metrics.Health) (*assistant, error) {
	client, err := llm.New(cfg.LLM, logger)
	if err != nil {
		return nil, err
	}

	reg := registry.New(registry.Config{
		ClientName:    "pulseguard",
		ClientVersion: version,
		Launchers:     cfg.Launchers,
		MaxReconnects: cfg.Supervision.MaxReconnects,
		Logger:        logger,
		Health:        health,
	})
	a := &assistant{
		cfg:      cfg,
		logger:   logger,
		bridge:   bridge.New(logger),
		registry: reg,
		llm:      client,
		orch: orchestrator.New(orchestrator.Config{
			Registry:     reg,
			Completer:    client,
			SystemPrompt: session.AssistantPrompt,
			Logger:       logger,
		}),
	}
	a.bridge.Start()

	go func() {
		err := a.bridge.Initialize(ctx, a.connect)
		if err != nil {
			logger.Error("provider connect phase failed", "error", err)
			return
		}
		if cfg.Supervision.Interval > 0 {
			_, _ = bridge.Submit(ctx, a.bridge, "supervise", func(bctx context.Context) (struct{}, error) {
				reg.Supervise(bctx, cfg.Supervision.Interval)
				return struct{}{}, nil
			})
		}
	}()
	return a, nil
}

// connect runs on the scheduler. Provider failures are logged; the
// assistant still answers without their tools.
func (a *assistant) connect(ctx context.Context) error {
	names, errs := a.registry.ConnectAll(ctx, a.cfg.Providers)
	a.registry.Seal()
	for _, err := range errs {
		a.logger.Error("provider connect failed", "error", err)
	}
	a.logger.Info("tool providers ready", "connected", len(names), "failed", len(errs))
	return nil
}

func (a *assistant) sessionOptions() session.Options {
	return session.Options{
		Bridge:            a.bridge,
		Planner:           a.orch,
		Completer:         a.llm,
		CounselingTool:    a.cfg.Intervention.CounselingTool,
		TerminateKeywords: a.cfg.Intervention.TerminateKeywords,
		SessionLogDir:     a.cfg.Intervention.SessionLogDir,
		Logger:            a.logger,
	}
}

// Close stops the scheduler, then the provider processes.
func (a *assistant) Close() {
	a.bridge.Close()
	if err := a.registry.Close(); err != nil {
		a.logger.Warn("closing providers", "error", err)
	}
}

// pickConsole maps the console setting to an implementation. "auto" uses
// the terminal window when stdin is a terminal.
func pickConsole(mode string, logger *slog.Logger) (session.Console, string) {
	switch mode {
	case config.ConsoleTUI:
		return tui.Console{AltScreen: true, Logger: logger}, config.ConsoleTUI
	case config.ConsoleHeadless:
		return session.Headless{Logger: logger}, config.ConsoleHeadless
	}
	if tui.Interactive() {
		return tui.Console{AltScreen: true, Logger: logger}, config.ConsoleTUI
	}
	return session.Headless{Logger: logger}, config.ConsoleHeadless
}

func printBanner(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}
