// Package config loads the pulseguard YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/pulseguard/internal/alert"
	"github.com/ppiankov/pulseguard/internal/llm"
	"github.com/ppiankov/pulseguard/internal/logging"
	"github.com/ppiankov/pulseguard/internal/monitor"
	"github.com/ppiankov/pulseguard/internal/registry"
	"github.com/ppiankov/pulseguard/internal/risk"
)

// Console modes for the interactive session.
const (
	ConsoleAuto     = "auto"
	ConsoleTUI      = "tui"
	ConsoleHeadless = "headless"
)

// MonitorConfig configures the telemetry monitor.
type MonitorConfig struct {
	SensorURL       string          `yaml:"sensor_url"`
	Interval        time.Duration   `yaml:"interval"`
	Thresholds      risk.Thresholds `yaml:",inline"`
	HistoryCapacity int             `yaml:"history_capacity"`
	FetchTimeout    time.Duration   `yaml:"fetch_timeout"`
	Subject         monitor.Subject `yaml:"subject"`
}

// InterventionConfig configures both sides of the /intervene boundary.
type InterventionConfig struct {
	URL               string        `yaml:"url"`
	Timeout           time.Duration `yaml:"timeout"`
	Listen            string        `yaml:"listen"`
	Console           string        `yaml:"console"`
	SessionLogDir     string        `yaml:"session_log_dir"`
	TerminateKeywords []string      `yaml:"terminate_keywords"`
	CounselingTool    string        `yaml:"counseling_tool"`
}

// SupervisionConfig controls provider liveness checks.
type SupervisionConfig struct {
	Interval      time.Duration `yaml:"interval"`
	MaxReconnects int           `yaml:"max_reconnects"`
}

// JournalConfig locates the intervention journal.
type JournalConfig struct {
	Path string `yaml:"path"`
}

// OpsConfig sets the operator listeners. Empty addresses disable them.
type OpsConfig struct {
	MetricsAddr string `yaml:"metrics_addr"`
	HealthAddr  string `yaml:"health_addr"`
}

// Config is the whole configuration file.
type Config struct {
	Monitor         MonitorConfig       `yaml:"monitor"`
	Intervention    InterventionConfig  `yaml:"intervention"`
	LLM             llm.Config          `yaml:"llm"`
	Providers       []registry.Provider `yaml:"providers"`
	Launchers       map[string]string   `yaml:"launchers"`
	Supervision     SupervisionConfig   `yaml:"supervision"`
	Alerts          []alert.AlertConfig `yaml:"alerts"`
	AlertsPerMinute int                 `yaml:"alerts_per_minute"`
	Journal         JournalConfig       `yaml:"journal"`
	Ops             OpsConfig           `yaml:"ops"`
	Logging         logging.Config      `yaml:"logging"`
}

// DefaultTerminateKeywords end an interactive session.
func DefaultTerminateKeywords() []string {
	return []string{"end", "stop", "结束", "终止"}
}

// Default returns a configuration with every default filled in.
func Default() *Config {
	return &Config{
		Monitor: MonitorConfig{
			SensorURL:       "http://127.0.0.1:8080/heart-rate",
			Interval:        monitor.DefaultInterval,
			Thresholds:      risk.DefaultThresholds(),
			HistoryCapacity: 1000,
			FetchTimeout:    10 * time.Second,
		},
		Intervention: InterventionConfig{
			URL:               "http://127.0.0.1:5005/intervene",
			Timeout:           600 * time.Second,
			Listen:            "127.0.0.1:5005",
			Console:           ConsoleAuto,
			SessionLogDir:     filepath.Join(homeDir(), "sessions"),
			TerminateKeywords: DefaultTerminateKeywords(),
			CounselingTool:    "counseling_decision",
		},
		LLM: llm.Config{
			BaseURL:     llm.DefaultBaseURL,
			Model:       llm.DefaultModel,
			Temperature: 0.7,
			MaxTokens:   1000,
		},
		Launchers: registry.DefaultLaunchers(),
		Supervision: SupervisionConfig{
			Interval:      30 * time.Second,
			MaxReconnects: 3,
		},
		AlertsPerMinute: 30,
		Journal:         JournalConfig{Path: filepath.Join(homeDir(), "journal.db")},
		Ops:             OpsConfig{MetricsAddr: "127.0.0.1:9464"},
		Logging:         logging.Config{Level: "info", Format: "text"},
	}
}

// DefaultPath is ~/.pulseguard/config.yaml.
func DefaultPath() string {
	return filepath.Join(homeDir(), "config.yaml")
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".pulseguard"
	}
	return filepath.Join(home, ".pulseguard")
}

// Load reads path over the defaults. An empty path tries DefaultPath; a
// missing default file yields the defaults, a missing explicit file is an error.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var errs []error
	if err := c.Monitor.Thresholds.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Monitor.Interval <= 0 {
		errs = append(errs, fmt.Errorf("monitor.interval must be positive"))
	}
	if c.Monitor.HistoryCapacity <= 0 {
		errs = append(errs, fmt.Errorf("monitor.history_capacity must be positive"))
	}
	if c.Monitor.FetchTimeout <= 0 {
		errs = append(errs, fmt.Errorf("monitor.fetch_timeout must be positive"))
	}
	if c.Intervention.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("intervention.timeout must be positive"))
	}
	switch c.Intervention.Console {
	case ConsoleAuto, ConsoleTUI, ConsoleHeadless:
	default:
		errs = append(errs, fmt.Errorf("intervention.console must be auto, tui or headless, got %q", c.Intervention.Console))
	}
	if c.Supervision.MaxReconnects < 0 {
		errs = append(errs, fmt.Errorf("supervision.max_reconnects must not be negative"))
	}

	seen := map[string]string{}
	for _, p := range c.Providers {
		l, err := registry.Resolve(p, c.Launchers)
		if err != nil {
			errs = append(errs, fmt.Errorf("provider %q: %w", p.Path, err))
			continue
		}
		if prev, ok := seen[l.Namespace]; ok {
			errs = append(errs, fmt.Errorf("providers %q and %q share namespace %q", prev, p.Path, l.Namespace))
		}
		seen[l.Namespace] = p.Path
	}
	for ext := range c.Launchers {
		if !strings.HasPrefix(ext, ".") {
			errs = append(errs, fmt.Errorf("launcher key %q must start with a dot", ext))
		}
	}
	return errors.Join(errs...)
}
