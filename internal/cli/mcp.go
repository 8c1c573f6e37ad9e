package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/pulseguard/internal/logging"
	escalation "github.com/ppiankov/pulseguard/internal/mcp"
)

var escalationContact string

func init() {
	rootCmd.AddCommand(escalationCmd)
	escalationCmd.Flags().StringVar(&escalationContact, "contact", "", "Name of the escalation contact (overrides ESCALATION_CONTACT)")
}

var escalationCmd = &cobra.Command{
	Use:   "escalation",
	Short: "Start the built-in escalation tool provider",
	Long:  "Runs the escalation MCP server over stdio.\nExposes tools: notify_contact (posts to ESCALATION_WEBHOOK_URL) and counseling_decision.",
	RunE:  runEscalation,
}

func runEscalation(cmd *cobra.Command, args []string) error {
	// stdout carries the protocol; logs go to stderr only.
	logger, err := logging.Setup(logging.Config{Level: logLevel, Format: logFormat})
	if err != nil {
		return err
	}

	cfg := escalation.ConfigFromEnv()
	if escalationContact != "" {
		cfg.Contact = escalationContact
	}
	cfg.Version = version
	cfg.Logger = logger
	srv := escalation.New(cfg)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if cfg.Webhook.URL == "" {
		fmt.Fprintf(os.Stderr, "escalation: %s not set, notify_contact will fail\n", escalation.EnvWebhookURL)
	}
	return srv.Run(ctx)
}
