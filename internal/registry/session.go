package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Status describes the connection state of one provider session.
type Status string

const (
	StatusUp           Status = "up"
	StatusReconnecting Status = "reconnecting"
	StatusDead         Status = "dead"
	StatusClosed       Status = "closed"
)

// Session is the persistent channel to one provider. Calls on a session are
// served one at a time in the order they queued.
type Session struct {
	launch Launch
	dial   DialFunc
	client *mcpsdk.Client
	logger *slog.Logger

	// turn is a FIFO lock: blocked senders are queued in arrival order.
	turn chan struct{}

	mu       sync.Mutex
	conn     *mcpsdk.ClientSession
	status   Status
	failures int
	lastErr  error
}

func newSession(l Launch, dial DialFunc, client *mcpsdk.Client, conn *mcpsdk.ClientSession, logger *slog.Logger) *Session {
	return &Session{
		launch: l,
		dial:   dial,
		client: client,
		logger: logger.With("namespace", l.Namespace),
		turn:   make(chan struct{}, 1),
		conn:   conn,
		status: StatusUp,
	}
}

// Namespace returns the provider namespace.
func (s *Session) Namespace() string { return s.launch.Namespace }

// Status returns the current connection state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// LastError returns the most recent failure seen on this session.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Session) acquire(ctx context.Context) error {
	select {
	case s.turn <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) release() { <-s.turn }

// current returns the live connection or the reason there is none.
func (s *Session) current() (*mcpsdk.ClientSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.status {
	case StatusDead:
		return nil, fmt.Errorf("%w: %s", ErrSessionDead, s.launch.Namespace)
	case StatusClosed:
		return nil, fmt.Errorf("%w: %s", ErrClosed, s.launch.Namespace)
	}
	if s.conn == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotConnected, s.launch.Namespace)
	}
	return s.conn, nil
}

func (s *Session) record(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

// listTools pages through the provider's tool list.
func (s *Session) listTools(ctx context.Context) ([]*mcpsdk.Tool, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()

	conn, err := s.current()
	if err != nil {
		return nil, err
	}

	var tools []*mcpsdk.Tool
	params := &mcpsdk.ListToolsParams{}
	for {
		res, err := conn.ListTools(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("list tools on %s: %w", s.launch.Namespace, err)
		}
		tools = append(tools, res.Tools...)
		if res.NextCursor == "" {
			return tools, nil
		}
		params = &mcpsdk.ListToolsParams{Cursor: res.NextCursor}
	}
}

func (s *Session) callTool(ctx context.Context, name string, args map[string]any) (*mcpsdk.CallToolResult, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()

	conn, err := s.current()
	if err != nil {
		return nil, err
	}
	return conn.CallTool(ctx, &mcpsdk.CallToolParams{Name: name, Arguments: args})
}

// check pings the provider and reconnects after a failed ping. It returns
// the resulting status.
func (s *Session) check(ctx context.Context, maxReconnects int) Status {
	conn, err := s.current()
	if err == nil {
		if err = conn.Ping(ctx, &mcpsdk.PingParams{}); err == nil {
			s.mu.Lock()
			s.failures = 0
			s.mu.Unlock()
			return StatusUp
		}
	}

	s.mu.Lock()
	if s.status == StatusDead || s.status == StatusClosed {
		st := s.status
		s.mu.Unlock()
		return st
	}
	s.lastErr = err
	s.failures++
	if s.failures > maxReconnects {
		s.status = StatusDead
		old := s.conn
		s.conn = nil
		s.mu.Unlock()
		if old != nil {
			_ = old.Close()
		}
		s.logger.Error("provider session dead", "failures", maxReconnects+1, "error", err)
		return StatusDead
	}
	attempt := s.failures
	s.status = StatusReconnecting
	s.mu.Unlock()

	s.logger.Warn("provider ping failed, reconnecting", "attempt", attempt, "error", err)
	if err := s.reconnect(ctx); err != nil {
		s.record(err)
		s.logger.Warn("reconnect failed", "attempt", attempt, "error", err)
		return StatusReconnecting
	}
	return StatusUp
}

// reconnect replaces the underlying connection. Queued calls wait for it.
func (s *Session) reconnect(ctx context.Context) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	t, err := s.dial(ctx, s.launch)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.launch.Namespace, err)
	}
	conn, err := s.client.Connect(ctx, t, nil)
	if err != nil {
		return fmt.Errorf("connect %s: %w", s.launch.Namespace, err)
	}

	s.mu.Lock()
	if s.status == StatusClosed {
		s.mu.Unlock()
		_ = conn.Close()
		return ErrClosed
	}
	old := s.conn
	s.conn = conn
	s.status = StatusUp
	s.lastErr = nil
	s.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	s.logger.Info("provider reconnected")
	return nil
}

func (s *Session) close() error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.status = StatusClosed
	s.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}
