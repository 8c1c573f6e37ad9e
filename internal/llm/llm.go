// Package llm talks to an OpenAI-compatible chat completion API.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/ppiankov/neurorouter"
	openai "github.com/sashabaranov/go-openai"
)

const (
	DefaultBaseURL = "https://api.deepseek.com"
	DefaultModel   = "deepseek-chat"
)

// Roles used in Message.Role.
const (
	RoleSystem    = openai.ChatMessageRoleSystem
	RoleUser      = openai.ChatMessageRoleUser
	RoleAssistant = openai.ChatMessageRoleAssistant
)

// ErrNoChoices is returned when the API answers with an empty choice list.
var ErrNoChoices = errors.New("completion returned no choices")

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ToolSpec advertises one callable function to the model.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  any
}

// ToolCall is a function call requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// Request is a completion request.
type Request struct {
	Messages    []Message
	Tools       []ToolSpec
	Temperature float32
	MaxTokens   int
}

// Completion is the first choice of a completion response.
type Completion struct {
	Content   string
	ToolCalls []ToolCall
}

// Completer is the completion API as seen by the orchestrator and counselor.
type Completer interface {
	Complete(ctx context.Context, req Request) (Completion, error)
}

// Config selects the endpoint and model.
type Config struct {
	BaseURL     string  `yaml:"base_url" json:"base_url"`
	Model       string  `yaml:"model" json:"model"`
	APIKey      string  `yaml:"-" json:"-"`
	Temperature float32 `yaml:"temperature" json:"temperature"`
	MaxTokens   int     `yaml:"max_tokens" json:"max_tokens"`
}

// APIKeyFromEnv returns the first non-empty key among the supported variables.
func APIKeyFromEnv() string {
	for _, name := range []string{"PULSEGUARD_API_KEY", "DEEPSEEK_API_KEY", "OPENAI_API_KEY"} {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v
		}
	}
	return ""
}

// Client implements Completer with go-openai.
type Client struct {
	api    *openai.Client
	cfg    Config
	logger *slog.Logger
}

// New creates a client. An empty APIKey falls back to the environment.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.APIKey == "" {
		cfg.APIKey = APIKeyFromEnv()
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("no API key: set PULSEGUARD_API_KEY, DEEPSEEK_API_KEY or OPENAI_API_KEY")
	}
	if logger == nil {
		logger = slog.Default()
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	logger.Info("completion client configured", "base_url", oc.BaseURL, "model", cfg.Model)
	return &Client{
		api:    openai.NewClientWithConfig(oc),
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Complete sends the request and returns the first choice.
func (c *Client) Complete(ctx context.Context, req Request) (Completion, error) {
	creq := openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(req.Messages)),
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	}
	if req.Temperature != 0 {
		creq.Temperature = req.Temperature
	}
	if req.MaxTokens != 0 {
		creq.MaxTokens = req.MaxTokens
	}
	for _, m := range req.Messages {
		creq.Messages = append(creq.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	for _, t := range req.Tools {
		creq.Tools = append(creq.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	c.logger.Debug("requesting completion", "model", c.cfg.Model, "messages", len(creq.Messages), "tools", len(creq.Tools))
	resp, err := c.api.CreateChatCompletion(ctx, creq)
	if err != nil {
		c.logger.Error("completion call failed", "error", err)
		return Completion{}, classify(err)
	}
	if len(resp.Choices) == 0 {
		return Completion{}, ErrNoChoices
	}

	msg := resp.Choices[0].Message
	out := Completion{Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out, nil
}

// classify maps HTTP 429 onto neurorouter.ErrRateLimited so callers can
// back off with errors.Is.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %s", neurorouter.ErrRateLimited, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %v", neurorouter.ErrRateLimited, reqErr.Err)
	}
	return fmt.Errorf("completion request: %w", err)
}
