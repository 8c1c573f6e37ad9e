// Package orchestrator turns a user query into a completion request over
// the aggregate tool catalog and executes the tool calls the model asks for.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/pulseguard/internal/llm"
	"github.com/ppiankov/pulseguard/internal/model"
	"github.com/ppiankov/pulseguard/internal/registry"
)

// Registry is what the orchestrator needs from the session registry.
type Registry interface {
	Lister
	CallTool(ctx context.Context, ns, name string, args map[string]any) (registry.Result, error)
}

// Config wires the orchestrator's collaborators.
type Config struct {
	Registry     Registry
	Completer    llm.Completer
	SystemPrompt string
	Logger       *slog.Logger
}

// Orchestrator is safe for concurrent use.
type Orchestrator struct {
	reg    Registry
	llm    llm.Completer
	system string
	logger *slog.Logger
}

// New creates an orchestrator.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		reg:    cfg.Registry,
		llm:    cfg.Completer,
		system: cfg.SystemPrompt,
		logger: logger.With("component", "orchestrator"),
	}
}

// Plan is the model's answer to a query: free text plus requested calls.
type Plan struct {
	Query   string
	Content string
	Calls   []model.ToolCall
	Catalog *Catalog
}

// Outcome is the result of executing a plan.
type Outcome struct {
	Content string             `json:"raw_message,omitempty"`
	Results []model.ToolResult `json:"tool_results"`
	Errors  []model.ToolError  `json:"errors"`
	Summary string             `json:"result_str"`
}

// Catalog builds the current aggregate catalog.
func (o *Orchestrator) Catalog(ctx context.Context) *Catalog {
	return BuildCatalog(ctx, o.reg, o.logger)
}

// Plan asks the completion API what to do about query.
func (o *Orchestrator) Plan(ctx context.Context, query string) (Plan, error) {
	cat := o.Catalog(ctx)

	req := llm.Request{}
	if o.system != "" {
		req.Messages = append(req.Messages, llm.Message{Role: llm.RoleSystem, Content: o.system})
	}
	req.Messages = append(req.Messages, llm.Message{Role: llm.RoleUser, Content: query})
	for _, t := range cat.Tools {
		req.Tools = append(req.Tools, llm.ToolSpec{
			Name:        t.Key.String(),
			Description: t.Description,
			Parameters:  t.Schema,
		})
	}

	comp, err := o.llm.Complete(ctx, req)
	if err != nil {
		return Plan{}, fmt.Errorf("plan: %w", err)
	}

	p := Plan{Query: query, Content: comp.Content, Catalog: cat}
	for _, tc := range comp.ToolCalls {
		p.Calls = append(p.Calls, model.ToolCall{ID: tc.ID, Key: tc.Name, Arguments: tc.Arguments})
	}
	o.logger.Debug("plan ready", "tools", cat.Len(), "calls", len(p.Calls))
	return p, nil
}

// slot holds exactly one of a result or an error for one requested call.
type slot struct {
	res *model.ToolResult
	err *model.ToolError
}

// Execute runs every call in the plan. Calls to the same namespace run in
// request order; different namespaces run concurrently. Every call yields
// exactly one result or one error, reported in request order.
func (o *Orchestrator) Execute(ctx context.Context, p Plan) Outcome {
	slots := make([]slot, len(p.Calls))
	groups := map[string][]int{}
	var order []string

	for i, call := range p.Calls {
		k, err := ParseKey(call.Key)
		if err != nil {
			slots[i].err = &model.ToolError{Key: call.Key, Message: err.Error()}
			continue
		}
		if _, seen := groups[k.Namespace]; !seen {
			order = append(order, k.Namespace)
		}
		groups[k.Namespace] = append(groups[k.Namespace], i)
	}

	var g errgroup.Group
	for _, ns := range order {
		idx := groups[ns]
		g.Go(func() error {
			for _, i := range idx {
				slots[i] = o.call(ctx, p.Calls[i])
			}
			return nil
		})
	}
	_ = g.Wait()

	out := Outcome{
		Content: p.Content,
		Results: []model.ToolResult{},
		Errors:  []model.ToolError{},
	}
	var sb strings.Builder
	if p.Content != "" {
		sb.WriteString(p.Content)
		sb.WriteString("\n")
	}
	for _, s := range slots {
		if s.res != nil {
			out.Results = append(out.Results, *s.res)
			fmt.Fprintf(&sb, "Tool %s result: %s\n", s.res.Key, s.res.Output)
			continue
		}
		out.Errors = append(out.Errors, *s.err)
		sb.WriteString(s.err.Message)
		sb.WriteString("\n")
	}
	out.Summary = sb.String()
	return out
}

func (o *Orchestrator) call(ctx context.Context, call model.ToolCall) slot {
	k, _ := ParseKey(call.Key)
	log := o.logger.With("namespace", k.Namespace, "tool", call.Key)

	args, err := decodeArgs(call.Arguments)
	if err != nil {
		log.Warn("bad tool arguments", "error", err)
		return slot{err: &model.ToolError{
			Key: call.Key, Namespace: k.Namespace, Name: k.Name,
			Message: fmt.Sprintf("Error executing tool %s: %v", call.Key, err),
		}}
	}

	start := time.Now()
	res, err := o.reg.CallTool(ctx, k.Namespace, k.Name, args)
	if err != nil {
		msg := fmt.Sprintf("Error executing tool %s: %v", call.Key, err)
		if errors.Is(err, registry.ErrUnknownNamespace) {
			msg = fmt.Sprintf("Server %s not found for tool %s", k.Namespace, call.Key)
		}
		log.Warn("tool call failed", "error", err, "elapsed", time.Since(start))
		return slot{err: &model.ToolError{
			Key: call.Key, Namespace: k.Namespace, Name: k.Name, Args: args, Message: msg,
		}}
	}

	log.Info("tool call completed", "elapsed", time.Since(start))
	output := res.Text
	if output == "" {
		output = "No result"
	}
	return slot{res: &model.ToolResult{
		Key:       call.Key,
		Namespace: k.Namespace,
		Name:      k.Name,
		Args:      args,
		Output:    output,
		Raw:       res.Structured,
	}}
}

func decodeArgs(raw string) (map[string]any, error) {
	args := map[string]any{}
	if strings.TrimSpace(raw) == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("decode arguments: %w", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

// Process plans and executes one query.
func (o *Orchestrator) Process(ctx context.Context, query string) (Outcome, error) {
	p, err := o.Plan(ctx, query)
	if err != nil {
		return Outcome{}, err
	}
	return o.Execute(ctx, p), nil
}
