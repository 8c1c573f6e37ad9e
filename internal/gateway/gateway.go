// Package gateway hands a breach to the interactive intervention service
// and waits, with a hard upper bound, for its outcome.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ppiankov/pulseguard/internal/model"
)

// ErrTimeout is returned when an intervention exceeds its bound. The
// accompanying Outcome has status timeout.
var ErrTimeout = errors.New("intervention timed out")

// Gateway obtains an outcome for a breach.
type Gateway interface {
	Intervene(ctx context.Context, b model.Breach) (model.Outcome, error)
}

// HandlerFunc runs an intervention in-process.
type HandlerFunc func(ctx context.Context, b model.Breach) (model.Outcome, error)

func timeoutOutcome(b model.Breach, d time.Duration) model.Outcome {
	return model.Outcome{
		InterventionID: b.ID,
		Status:         model.OutcomeTimeout,
		Detail:         fmt.Sprintf("no outcome after %s", d),
	}
}

func failedOutcome(b model.Breach, err error) model.Outcome {
	return model.Outcome{
		InterventionID: b.ID,
		Status:         model.OutcomeFailed,
		Detail:         err.Error(),
	}
}

// HTTP posts breaches to a remote /intervene endpoint.
type HTTP struct {
	url string
	cfg gatewayConfig
}

// NewHTTP creates a gateway for url.
func NewHTTP(url string, opts ...Option) *HTTP {
	return &HTTP{url: url, cfg: buildConfig(opts)}
}

// Intervene posts the breach and decodes the outcome.
func (g *HTTP) Intervene(ctx context.Context, b model.Breach) (model.Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.timeout)
	defer cancel()

	body, err := json.Marshal(b)
	if err != nil {
		return failedOutcome(b, err), fmt.Errorf("encode breach: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return failedOutcome(b, err), fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.cfg.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return timeoutOutcome(b, g.cfg.timeout), ErrTimeout
		}
		return failedOutcome(b, err), fmt.Errorf("post %s: %w", g.url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return timeoutOutcome(b, g.cfg.timeout), ErrTimeout
		}
		return failedOutcome(b, err), fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("intervention service returned %d: %s", resp.StatusCode, truncate(string(data), 200))
		return failedOutcome(b, err), err
	}

	var out model.Outcome
	if err := json.Unmarshal(data, &out); err != nil {
		return failedOutcome(b, err), fmt.Errorf("decode outcome: %w", err)
	}
	if out.InterventionID == "" {
		out.InterventionID = b.ID
	}
	if out.Status == "" {
		out.Status = model.OutcomeCompleted
	}
	return out, nil
}

// Local runs interventions in-process. The caller is released when the
// bound expires; the handler keeps running in the background.
type Local struct {
	handler HandlerFunc
	cfg     gatewayConfig
}

// NewLocal wraps an in-process handler.
func NewLocal(h HandlerFunc, opts ...Option) *Local {
	return &Local{handler: h, cfg: buildConfig(opts)}
}

type localResult struct {
	out model.Outcome
	err error
}

// Intervene runs the handler with the configured bound.
func (g *Local) Intervene(ctx context.Context, b model.Breach) (model.Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.timeout)
	done := make(chan localResult, 1)
	go func() {
		defer cancel()
		out, err := g.handler(ctx, b)
		done <- localResult{out: out, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			if errors.Is(r.err, context.DeadlineExceeded) {
				return timeoutOutcome(b, g.cfg.timeout), ErrTimeout
			}
			return failedOutcome(b, r.err), r.err
		}
		if r.out.InterventionID == "" {
			r.out.InterventionID = b.ID
		}
		return r.out, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			g.cfg.logger.Warn("intervention still running after bound, releasing caller",
				slog.String("intervention_id", b.ID), slog.Duration("timeout", g.cfg.timeout))
			return timeoutOutcome(b, g.cfg.timeout), ErrTimeout
		}
		return failedOutcome(b, ctx.Err()), ctx.Err()
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
