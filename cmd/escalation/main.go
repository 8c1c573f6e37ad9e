// escalation is the built-in tool provider for pulseguard. It speaks MCP
// over stdio and exposes notify_contact and counseling_decision.
//
// Register it in the pulseguard config with an extensionless path:
//
//	providers:
//	  - path: /usr/local/bin/escalation
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ppiankov/pulseguard/internal/cli"
	"github.com/ppiankov/pulseguard/internal/logging"
	"github.com/ppiankov/pulseguard/internal/mcp"
)

func main() {
	logger, err := logging.Setup(logging.Config{
		Level:  os.Getenv("ESCALATION_LOG_LEVEL"),
		Format: os.Getenv("ESCALATION_LOG_FORMAT"),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "escalation: %v\n", err)
		os.Exit(2)
	}

	cfg := mcp.ConfigFromEnv()
	cfg.Version = cli.Version()
	cfg.Logger = logger

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := mcp.New(cfg).Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "escalation: %v\n", err)
		os.Exit(1)
	}
}
