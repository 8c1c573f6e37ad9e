package session

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/ppiankov/pulseguard/internal/metrics"
	"github.com/ppiankov/pulseguard/internal/model"
)

// Service runs one session per breach. Sessions are serialized: a second
// breach waits for the console to free up or for its context to end.
type Service struct {
	opts    Options
	console Console
	logger  *slog.Logger
	slot    chan struct{}
}

// NewService creates a Service that drives sessions through console.
func NewService(opts Options, console Console) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if console == nil {
		console = Headless{Logger: opts.Logger}
	}
	return &Service{
		opts:    opts,
		console: console,
		logger:  opts.Logger,
		slot:    make(chan struct{}, 1),
	}
}

// Intervene opens a session for b, hands it to the console and returns the
// outcome once the session closes. It matches gateway.HandlerFunc.
func (svc *Service) Intervene(ctx context.Context, b model.Breach) (model.Outcome, error) {
	select {
	case svc.slot <- struct{}{}:
	case <-ctx.Done():
		return model.Outcome{InterventionID: b.ID, Status: model.OutcomeTimeout, Detail: "console busy"}, ctx.Err()
	}
	defer func() { <-svc.slot }()

	start := time.Now()
	svc.logger.Info("intervention session started",
		"intervention_id", b.ID,
		"heart_rate", b.HeartRate,
		"risk", b.Risk,
	)

	s := New(b, svc.opts)
	err := svc.console.Converse(ctx, s)
	if s.State() != StateClosed {
		_, _ = s.Close(context.WithoutCancel(ctx))
	}

	out := s.Outcome()
	if err != nil {
		out.Status = model.OutcomeFailed
		out.Detail = err.Error()
	}
	metrics.SessionsTotal.WithLabelValues(string(out.Status), strconv.FormatBool(out.Counseling)).Inc()
	svc.logger.Info("intervention session finished",
		"intervention_id", b.ID,
		"status", out.Status,
		"counseling", out.Counseling,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	if err != nil {
		return out, fmt.Errorf("console: %w", err)
	}
	return out, nil
}
