package gateway

import (
	"log/slog"
	"net/http"
	"time"
)

// DefaultTimeout bounds a single intervention.
const DefaultTimeout = 600 * time.Second

// Option configures a gateway at creation time.
type Option func(*gatewayConfig)

type gatewayConfig struct {
	timeout time.Duration
	client  *http.Client
	logger  *slog.Logger
}

func buildConfig(opts []Option) gatewayConfig {
	cfg := gatewayConfig{timeout: DefaultTimeout}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.timeout <= 0 {
		cfg.timeout = DefaultTimeout
	}
	if cfg.client == nil {
		cfg.client = &http.Client{}
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	return cfg
}

// WithTimeout sets the upper bound on one intervention.
func WithTimeout(d time.Duration) Option {
	return func(c *gatewayConfig) { c.timeout = d }
}

// WithHTTPClient replaces the HTTP client used by the remote gateway.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *gatewayConfig) { c.client = hc }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *gatewayConfig) { c.logger = l }
}
