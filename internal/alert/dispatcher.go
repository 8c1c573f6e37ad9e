package alert

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"
)

// Dispatcher fans out alert events to matching webhook configurations.
type Dispatcher struct {
	configs []AlertConfig
	limiter *rate.Limiter
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// NewDispatcher creates a Dispatcher from webhook configurations.
// perMinute caps deliveries across all webhooks (0 means 30/min, burst 5).
// Returns nil if configs is empty; a nil Dispatcher drops every event.
func NewDispatcher(configs []AlertConfig, perMinute int, logger *slog.Logger) *Dispatcher {
	if len(configs) == 0 {
		return nil
	}
	if perMinute <= 0 {
		perMinute = 30
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		configs: configs,
		limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60), 5),
		logger:  logger.With("component", "alert"),
	}
}

// Dispatch sends the event to all webhooks whose Events list matches.
// Delivery runs in the background; events over the rate limit are dropped
// and logged.
func (d *Dispatcher) Dispatch(event AlertEvent) {
	if d == nil {
		return
	}
	for _, cfg := range d.configs {
		if !matches(cfg.Events, event) {
			continue
		}
		if !d.limiter.Allow() {
			d.logger.Warn("alert dropped by rate limit", "type", event.Type, "url", cfg.URL)
			continue
		}
		d.wg.Add(1)
		go func(cfg AlertConfig) {
			defer d.wg.Done()
			if err := Send(context.Background(), cfg, event); err != nil {
				d.logger.Error("alert delivery failed", "type", event.Type, "url", cfg.URL, "error", err)
			}
		}(cfg)
	}
}

// Wait blocks until in-flight deliveries finish.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}

func matches(events []string, event AlertEvent) bool {
	if len(events) == 0 {
		return true
	}
	for _, e := range events {
		if e == event.Type {
			return true
		}
	}
	return false
}
