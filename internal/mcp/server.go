// Package mcp implements the built-in escalation tool provider, an MCP
// server on stdio that the intervention assistant can call.
package mcp

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/pulseguard/internal/alert"
)

// Environment variables read by ConfigFromEnv.
const (
	EnvWebhookURL    = "ESCALATION_WEBHOOK_URL"
	EnvWebhookFormat = "ESCALATION_WEBHOOK_FORMAT"
	EnvContact       = "ESCALATION_CONTACT"
)

// Tool names exposed by the provider.
const (
	ToolNotifyContact      = "notify_contact"
	ToolCounselingDecision = "counseling_decision"
)

// Config holds escalation provider configuration.
type Config struct {
	// Webhook receives notify_contact escalations. Empty URL disables sending.
	Webhook alert.AlertConfig
	// Contact names who the webhook reaches, for tool output.
	Contact string
	Version string
	Logger  *slog.Logger
}

// ConfigFromEnv builds a Config from the ESCALATION_* variables.
func ConfigFromEnv() Config {
	format := os.Getenv(EnvWebhookFormat)
	if format == "" {
		format = "generic"
	}
	return Config{
		Webhook: alert.AlertConfig{
			URL:    os.Getenv(EnvWebhookURL),
			Format: format,
		},
		Contact: os.Getenv(EnvContact),
	}
}

// Server wraps the MCP SDK server with the escalation tools.
type Server struct {
	mcpServer *mcpsdk.Server
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time
	notified  atomic.Int64
}

// New creates the escalation server with its tools registered.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.Contact == "" {
		cfg.Contact = "emergency contact"
	}
	s := &Server{
		cfg:    cfg,
		logger: cfg.Logger,
		now:    time.Now,
	}

	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "escalation",
			Version: cfg.Version,
		},
		nil,
	)

	s.registerTools()
	return s
}

// Run starts the MCP server on stdio transport. Blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// Connect serves one session on t, for in-process use and tests.
func (s *Server) Connect(ctx context.Context, t mcpsdk.Transport) (*mcpsdk.ServerSession, error) {
	return s.mcpServer.Connect(ctx, t, nil)
}

// NotifiedCount returns how many escalations were delivered.
func (s *Server) NotifiedCount() int64 { return s.notified.Load() }

func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        ToolNotifyContact,
		Description: "Notify the user's emergency contact that their heart rate is abnormal. Use when the user asks for help, does not respond sensibly, or reports feeling unwell.",
	}, s.handleNotify)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        ToolCounselingDecision,
		Description: "Decide whether the user would benefit from a counseling conversation, based on heart rate and what the user said about how they feel.",
	}, s.handleCounselingDecision)
}
