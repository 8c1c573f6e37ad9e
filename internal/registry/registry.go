// Package registry owns the persistent MCP sessions to tool providers.
// Sessions are opened once during initialization, keyed by namespace, and
// then looked up without locking for the life of the process.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/pulseguard/internal/metrics"
)

var (
	ErrUnknownNamespace   = errors.New("unknown provider namespace")
	ErrDuplicateNamespace = errors.New("duplicate provider namespace")
	ErrSessionDead        = errors.New("provider session dead")
	ErrNotConnected       = errors.New("provider not connected")
	ErrClosed             = errors.New("registry closed")
	ErrSealed             = errors.New("registry sealed")
)

// ToolError is a tool-level failure reported by the provider itself.
type ToolError struct {
	Namespace string
	Tool      string
	Text      string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s%s%s failed: %s", e.Namespace, Separator, e.Tool, e.Text)
}

// Descriptor is one tool advertised by a provider.
type Descriptor struct {
	Namespace   string
	Name        string
	Description string
	Schema      any
}

// Result is the payload of a successful tool call.
type Result struct {
	Text       string
	Structured json.RawMessage
}

// HealthReporter receives provider liveness changes.
type HealthReporter interface {
	SetProvider(namespace string, up bool)
}

// Config controls how sessions are opened and supervised.
type Config struct {
	ClientName     string
	ClientVersion  string
	Launchers      map[string]string
	Dial           DialFunc
	ConnectTimeout time.Duration
	MaxReconnects  int
	Logger         *slog.Logger
	Health         HealthReporter
}

type table struct {
	byNS  map[string]*Session
	order []string
}

// Registry maps namespaces to sessions.
type Registry struct {
	cfg    Config
	client *mcpsdk.Client
	logger *slog.Logger

	mu     sync.Mutex // serializes writers during the connect phase
	tab    atomic.Pointer[table]
	sealed atomic.Bool
	closed atomic.Bool
}

// New creates an empty registry.
func New(cfg Config) *Registry {
	if cfg.ClientName == "" {
		cfg.ClientName = "pulseguard"
	}
	if cfg.ClientVersion == "" {
		cfg.ClientVersion = "dev"
	}
	if cfg.Launchers == nil {
		cfg.Launchers = DefaultLaunchers()
	}
	if cfg.Dial == nil {
		cfg.Dial = CommandDial
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}
	if cfg.MaxReconnects < 0 {
		cfg.MaxReconnects = 0
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	r := &Registry{
		cfg: cfg,
		client: mcpsdk.NewClient(&mcpsdk.Implementation{
			Name:    cfg.ClientName,
			Version: cfg.ClientVersion,
		}, nil),
		logger: cfg.Logger.With("component", "registry"),
	}
	r.tab.Store(&table{byNS: map[string]*Session{}})
	return r
}

// Connect launches one provider, completes the MCP handshake and registers
// the session. It returns the namespace.
func (r *Registry) Connect(ctx context.Context, p Provider) (string, error) {
	l, err := Resolve(p, r.cfg.Launchers)
	if err != nil {
		return "", err
	}
	if err := r.checkWritable(l.Namespace); err != nil {
		return "", err
	}
	conn, err := r.open(ctx, l)
	if err != nil {
		return "", err
	}
	if err := r.register(l, conn); err != nil {
		_ = conn.Close()
		return "", err
	}
	return l.Namespace, nil
}

// ConnectAll opens every provider concurrently. Individual failures are
// logged and returned; the rest of the providers stay connected. Sessions
// are registered in configuration order.
func (r *Registry) ConnectAll(ctx context.Context, providers []Provider) ([]string, []error) {
	type opened struct {
		launch Launch
		conn   *mcpsdk.ClientSession
		err    error
	}
	results := make([]opened, len(providers))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range providers {
		g.Go(func() error {
			l, err := Resolve(p, r.cfg.Launchers)
			if err != nil {
				results[i] = opened{err: err}
				return nil
			}
			conn, err := r.open(gctx, l)
			results[i] = opened{launch: l, conn: conn, err: err}
			return nil
		})
	}
	_ = g.Wait()

	var (
		names []string
		errs  []error
	)
	for i, res := range results {
		err := res.err
		if err == nil {
			if err = r.register(res.launch, res.conn); err != nil {
				_ = res.conn.Close()
			}
		}
		if err != nil {
			r.logger.Error("provider connect failed", "path", providers[i].Path, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", providers[i].Path, err))
			continue
		}
		names = append(names, res.launch.Namespace)
	}
	return names, errs
}

func (r *Registry) open(ctx context.Context, l Launch) (*mcpsdk.ClientSession, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ConnectTimeout)
	defer cancel()

	t, err := r.cfg.Dial(ctx, l)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", l.Namespace, err)
	}
	conn, err := r.client.Connect(ctx, t, nil)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", l.Namespace, err)
	}
	return conn, nil
}

func (r *Registry) checkWritable(ns string) error {
	if r.closed.Load() {
		return ErrClosed
	}
	if r.sealed.Load() {
		return ErrSealed
	}
	if _, ok := r.tab.Load().byNS[ns]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateNamespace, ns)
	}
	return nil
}

func (r *Registry) register(l Launch, conn *mcpsdk.ClientSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkWritable(l.Namespace); err != nil {
		return err
	}

	old := r.tab.Load()
	next := &table{
		byNS:  make(map[string]*Session, len(old.byNS)+1),
		order: append(append([]string(nil), old.order...), l.Namespace),
	}
	for k, v := range old.byNS {
		next.byNS[k] = v
	}
	next.byNS[l.Namespace] = newSession(l, r.cfg.Dial, r.client, conn, r.cfg.Logger)
	r.tab.Store(next)

	r.cfg.setHealth(l.Namespace, true)
	r.logger.Info("provider connected", "namespace", l.Namespace, "command", l.Command)
	return nil
}

// Seal ends the connect phase. Later Connect calls fail with ErrSealed.
func (r *Registry) Seal() { r.sealed.Store(true) }

// Namespaces lists connected namespaces in registration order.
func (r *Registry) Namespaces() []string {
	return append([]string(nil), r.tab.Load().order...)
}

// Session returns the session for a namespace.
func (r *Registry) Session(ns string) (*Session, bool) {
	s, ok := r.tab.Load().byNS[ns]
	return s, ok
}

// ListTools returns the tools advertised by one provider. On failure the
// error is recorded on the session and an empty list is returned with it.
func (r *Registry) ListTools(ctx context.Context, ns string) ([]Descriptor, error) {
	s, ok := r.Session(ns)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNamespace, ns)
	}
	tools, err := s.listTools(ctx)
	if err != nil {
		s.record(err)
		r.logger.Warn("list tools failed", "namespace", ns, "error", err)
		return nil, err
	}

	out := make([]Descriptor, 0, len(tools))
	for _, t := range tools {
		if t == nil {
			continue
		}
		out = append(out, Descriptor{
			Namespace:   ns,
			Name:        t.Name,
			Description: t.Description,
			Schema:      t.InputSchema,
		})
	}
	return out, nil
}

// CallTool routes one call to the provider session for ns.
func (r *Registry) CallTool(ctx context.Context, ns, name string, args map[string]any) (Result, error) {
	s, ok := r.Session(ns)
	if !ok {
		metrics.ToolCallsTotal.WithLabelValues(ns, "unknown_namespace").Inc()
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownNamespace, ns)
	}

	res, err := s.callTool(ctx, name, args)
	if err != nil {
		s.record(err)
		metrics.ToolCallsTotal.WithLabelValues(ns, "error").Inc()
		return Result{}, fmt.Errorf("call %s%s%s: %w", ns, Separator, name, err)
	}

	out := Result{Text: contentText(res.Content)}
	if res.StructuredContent != nil {
		if raw, err := json.Marshal(res.StructuredContent); err == nil {
			out.Structured = raw
		}
	}
	if res.IsError {
		metrics.ToolCallsTotal.WithLabelValues(ns, "tool_error").Inc()
		return out, &ToolError{Namespace: ns, Tool: name, Text: out.Text}
	}
	metrics.ToolCallsTotal.WithLabelValues(ns, "ok").Inc()
	return out, nil
}

func contentText(content []mcpsdk.Content) string {
	var parts []string
	for _, c := range content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// Statuses reports the state of every session.
func (r *Registry) Statuses() map[string]Status {
	tab := r.tab.Load()
	out := make(map[string]Status, len(tab.byNS))
	for ns, s := range tab.byNS {
		out[ns] = s.Status()
	}
	return out
}

// CheckAll pings every session once, reconnecting where needed.
func (r *Registry) CheckAll(ctx context.Context) {
	tab := r.tab.Load()
	for _, ns := range tab.order {
		st := tab.byNS[ns].check(ctx, r.cfg.MaxReconnects)
		r.cfg.setHealth(ns, st == StatusUp)
	}
}

// Supervise runs CheckAll on every tick until ctx is cancelled.
func (r *Registry) Supervise(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if r.closed.Load() {
				return
			}
			checkCtx, cancel := context.WithTimeout(ctx, interval)
			r.CheckAll(checkCtx)
			cancel()
		}
	}
}

// Close terminates every session.
func (r *Registry) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	tab := r.tab.Load()
	var errs []error
	for _, ns := range tab.order {
		if err := tab.byNS[ns].close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", ns, err))
		}
		r.cfg.setHealth(ns, false)
	}
	return errors.Join(errs...)
}

func (c Config) setHealth(ns string, up bool) {
	if c.Health != nil {
		c.Health.SetProvider(ns, up)
	}
}
