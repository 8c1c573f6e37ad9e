package session

import (
	"context"
	"errors"
	"log/slog"
)

// Console renders a session and feeds it user events until it closes.
type Console interface {
	Converse(ctx context.Context, s *Session) error
}

// ConsoleFunc adapts a function to Console.
type ConsoleFunc func(ctx context.Context, s *Session) error

// Converse calls f.
func (f ConsoleFunc) Converse(ctx context.Context, s *Session) error { return f(ctx, s) }

// Headless answers the greeting with one empty reply and closes.
type Headless struct {
	Logger *slog.Logger
}

// Converse implements Console.
func (h Headless) Converse(ctx context.Context, s *Session) error {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("headless session", "intervention_id", s.Breach().ID, "greeting", s.Greeting())

	reply, err := s.Send(ctx, "")
	if err != nil && !errors.Is(err, ErrClosed) {
		logger.Warn("headless turn failed", "error", err)
	}
	if reply.Text != "" {
		logger.Info("assistant reply", "speaker", reply.Speaker, "text", reply.Text)
	}
	for _, n := range reply.Notices {
		logger.Info("session notice", "text", n)
	}
	if reply.Closed {
		return nil
	}

	final, err := s.Close(ctx)
	for _, n := range final.Notices {
		logger.Info("session notice", "text", n)
	}
	if errors.Is(err, ErrClosed) {
		return nil
	}
	return err
}
