package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/pulseguard/internal/registry"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

func TestDefaultsValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5*time.Second, cfg.Monitor.Interval)
	assert.Equal(t, 120.0, cfg.Monitor.Thresholds.Emergency)
	assert.Equal(t, 100.0, cfg.Monitor.Thresholds.Warning)
	assert.Equal(t, 50.0, cfg.Monitor.Thresholds.Bradycardia)
	assert.Equal(t, 600*time.Second, cfg.Intervention.Timeout)
	assert.Equal(t, "127.0.0.1:5005", cfg.Intervention.Listen)
	assert.Equal(t, "python3", cfg.Launchers[".py"])
}

func TestLoadMissingDefaultFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Monitor, cfg.Monitor)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadOverridesOnlyGivenFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, `
monitor:
  sensor_url: http://10.0.0.5:8080/heart-rate
  interval: 2s
  emergency_threshold: 130
  subject:
    name: Ana
    age: "34"
intervention:
  timeout: 90s
  console: headless
providers:
  - path: /opt/tools/email_sender.py
  - path: /usr/local/bin/escalation
launchers:
  .rb: ruby
alerts:
  - url: https://hooks.example/x
    format: slack
    events: [emergency, suppressed]
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.5:8080/heart-rate", cfg.Monitor.SensorURL)
	assert.Equal(t, 2*time.Second, cfg.Monitor.Interval)
	assert.Equal(t, 130.0, cfg.Monitor.Thresholds.Emergency)
	assert.Equal(t, 100.0, cfg.Monitor.Thresholds.Warning)
	assert.Equal(t, "Ana", cfg.Monitor.Subject.Name)
	assert.Equal(t, 90*time.Second, cfg.Intervention.Timeout)
	assert.Equal(t, ConsoleHeadless, cfg.Intervention.Console)
	assert.Equal(t, DefaultTerminateKeywords(), cfg.Intervention.TerminateKeywords)
	assert.Len(t, cfg.Providers, 2)
	assert.Equal(t, "ruby", cfg.Launchers[".rb"])
	assert.Equal(t, "node", cfg.Launchers[".js"])
	require.Len(t, cfg.Alerts, 1)
	assert.Equal(t, []string{"emergency", "suppressed"}, cfg.Alerts[0].Events)
}

func TestValidateRejects(t *testing.T) {
	tests := map[string]func(*Config){
		"inverted thresholds": func(c *Config) { c.Monitor.Thresholds.Warning = 130 },
		"zero interval":       func(c *Config) { c.Monitor.Interval = 0 },
		"zero capacity":       func(c *Config) { c.Monitor.HistoryCapacity = 0 },
		"bad console":         func(c *Config) { c.Intervention.Console = "gtk" },
		"unsupported ext":     func(c *Config) { c.Providers = append(c.Providers, registryProvider("/x/tool.rb")) },
		"separator":           func(c *Config) { c.Providers = append(c.Providers, registryProvider("/x/mail__v2.py")) },
		"duplicate ns":        func(c *Config) { c.Providers = append(c.Providers, registryProvider("/a/m.py"), registryProvider("/b/m.js")) },
		"launcher key":        func(c *Config) { c.Launchers["rb"] = "ruby" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "monitor:\n  warning_threshold: 150\n")
	_, err := Load(path)
	assert.ErrorContains(t, err, "invalid config")
}

func TestReloaderAppliesEdits(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, "monitor:\n  emergency_threshold: 120\n")

	var got atomic.Value
	r, err := NewReloader(path, func(c *Config) error {
		got.Store(c.Monitor.Thresholds.Emergency)
		return nil
	}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = r.Run(ctx) }()

	writeFile(t, filepath.Join(dir, "other.yaml"), "x: 1\n")
	writeFile(t, path, "monitor:\n  emergency_threshold: 140\n")

	require.Eventually(t, func() bool {
		v, ok := got.Load().(float64)
		return ok && v == 140
	}, 5*time.Second, 20*time.Millisecond)
}

func TestReloaderKeepsConfigOnBadEdit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, "monitor:\n  emergency_threshold: 120\n")

	var applied atomic.Int32
	r, err := NewReloader(path, func(*Config) error { applied.Add(1); return nil }, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = r.Run(ctx) }()

	writeFile(t, path, "monitor: [not, a, map\n")
	time.Sleep(reloadDebounce + 300*time.Millisecond)
	assert.Zero(t, applied.Load())
}

func registryProvider(path string) registry.Provider { return registry.Provider{Path: path} }
