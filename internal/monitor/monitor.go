package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/pulseguard/internal/alert"
	"github.com/ppiankov/pulseguard/internal/gateway"
	"github.com/ppiankov/pulseguard/internal/history"
	"github.com/ppiankov/pulseguard/internal/journal"
	"github.com/ppiankov/pulseguard/internal/metrics"
	"github.com/ppiankov/pulseguard/internal/model"
	"github.com/ppiankov/pulseguard/internal/risk"
	"github.com/ppiankov/pulseguard/internal/sensor"
)

// DefaultInterval is the polling cadence.
const DefaultInterval = 5 * time.Second

// Subject identifies the monitored person in breach contexts.
type Subject struct {
	Name string `yaml:"name" json:"name"`
	Age  string `yaml:"age" json:"age"`
}

// Recorder persists intervention attempts. *journal.Store implements it.
type Recorder interface {
	Begin(ctx context.Context, b model.Breach) error
	Finish(ctx context.Context, id, status, detail string, out *model.Outcome, at time.Time) error
}

// Config holds monitor configuration.
type Config struct {
	Interval        time.Duration
	Thresholds      risk.Thresholds
	HistoryCapacity int
	Subject         Subject
	Alerts          *alert.Dispatcher
	Journal         Recorder
	Logger          *slog.Logger
}

type resolution struct {
	seq     uint64
	mark    model.Mark
	outcome model.Outcome
}

// Monitor polls a sensor, classifies each sample and triggers at most one
// intervention at a time.
type Monitor struct {
	cfg     Config
	source  sensor.Source
	gateway gateway.Gateway
	history *history.Store
	logger  *slog.Logger

	thresholds atomic.Pointer[risk.Thresholds]
	interval   atomic.Int64
	reload     chan struct{}

	pending     atomic.Bool
	suppressed  atomic.Int64
	triggered   atomic.Int64
	lastOutcome atomic.Pointer[model.Outcome]
	resolutions chan resolution
	inflight    sync.WaitGroup

	now func() time.Time
}

// New creates a Monitor.
func New(cfg Config, source sensor.Source, gw gateway.Gateway) (*Monitor, error) {
	if source == nil || gw == nil {
		return nil, errors.New("monitor needs a sensor source and a gateway")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Thresholds == (risk.Thresholds{}) {
		cfg.Thresholds = risk.DefaultThresholds()
	}
	if err := cfg.Thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("invalid thresholds: %w", err)
	}
	if cfg.HistoryCapacity <= 0 {
		cfg.HistoryCapacity = history.DefaultCapacity
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	m := &Monitor{
		cfg:         cfg,
		source:      source,
		gateway:     gw,
		history:     history.New(cfg.HistoryCapacity),
		logger:      cfg.Logger.With("component", "monitor"),
		reload:      make(chan struct{}, 1),
		resolutions: make(chan resolution, 4),
		now:         time.Now,
	}
	t := cfg.Thresholds
	m.thresholds.Store(&t)
	m.interval.Store(int64(cfg.Interval))
	return m, nil
}

// Run starts the polling loop. Blocks until ctx is cancelled; fetch and
// intervention errors never stop it.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.Interval())
	defer ticker.Stop()

	m.logger.Info("monitor started", "interval", m.Interval())
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("monitor stopped", "suppressed", m.SuppressedCount())
			return nil
		case r := <-m.resolutions:
			m.apply(r)
		case <-m.reload:
			ticker.Reset(m.Interval())
			m.logger.Info("polling interval changed", "interval", m.Interval())
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

// Tick performs one poll: fetch, classify, record and maybe trigger.
func (m *Monitor) Tick(ctx context.Context) {
	m.drain()

	sample, err := m.source.Fetch(ctx)
	if err != nil {
		reason := "network"
		if errors.Is(err, sensor.ErrMalformedPayload) {
			reason = "malformed"
		}
		metrics.FetchErrorsTotal.WithLabelValues(reason).Inc()
		m.logger.Warn("sensor fetch failed", "reason", reason, "error", err)
		return
	}

	verdict := risk.Classify(sample, *m.thresholds.Load())
	metrics.SamplesTotal.WithLabelValues(string(verdict.Risk)).Inc()
	metrics.HeartRate.Set(sample.HeartRate)

	if !verdict.Risk.IsBreach() {
		m.history.Append(sample, verdict, model.MarkNone)
		m.logger.Debug("sample", "heart_rate", sample.HeartRate, "risk", verdict.Risk)
		return
	}

	if !m.pending.CompareAndSwap(false, true) {
		rec := m.history.Append(sample, verdict, model.MarkSuppressed)
		n := m.suppressed.Add(1)
		metrics.BreachesSuppressedTotal.Inc()
		m.logger.Warn("breach suppressed, intervention already in flight",
			"heart_rate", sample.HeartRate, "risk", verdict.Risk, "seq", rec.Seq, "suppressed", n)
		m.cfg.Alerts.Dispatch(m.alertEvent(alert.EventSuppressed, "", verdict))
		return
	}

	rec := m.history.Append(sample, verdict, model.MarkTriggered)
	b := m.breach(sample, verdict)
	m.triggered.Add(1)
	m.logger.Warn("breach, triggering intervention",
		"intervention_id", b.ID, "heart_rate", sample.HeartRate, "risk", verdict.Risk)
	m.cfg.Alerts.Dispatch(m.alertEvent(string(verdict.Risk), b.ID, verdict))

	m.inflight.Add(1)
	go m.intervene(ctx, rec.Seq, b)
}

func (m *Monitor) breach(s model.Sample, v model.Verdict) model.Breach {
	return model.Breach{
		ID:        uuid.NewString(),
		Type:      model.BreachType,
		Timestamp: m.now().UTC(),
		HeartRate: s.HeartRate,
		Risk:      v.Risk,
		Message:   v.Message,
		Sample:    s,
		UserName:  m.cfg.Subject.Name,
		UserAge:   m.cfg.Subject.Age,
	}
}

// intervene runs on its own goroutine. Every path ends by publishing a
// resolution and clearing the pending flag.
func (m *Monitor) intervene(ctx context.Context, seq uint64, b model.Breach) {
	defer m.inflight.Done()
	log := m.logger.With("intervention_id", b.ID)
	start := m.now()

	if m.cfg.Journal != nil {
		if err := m.cfg.Journal.Begin(ctx, b); err != nil {
			log.Error("journal begin failed", "error", err)
		}
	}

	out, err := m.gateway.Intervene(ctx, b)
	elapsed := m.now().Sub(start)
	metrics.InterventionDuration.Observe(elapsed.Seconds())

	mark, status, result := model.MarkCompleted, journal.StatusOK, "completed"
	switch {
	case errors.Is(err, gateway.ErrTimeout):
		mark, status, result = model.MarkTimeout, journal.StatusTimeout, "timeout"
		log.Error("intervention timed out", "elapsed", elapsed)
		m.cfg.Alerts.Dispatch(m.resolvedEvent(alert.EventInterventionTimeout, b))
	case err != nil:
		mark, status, result = model.MarkFailed, journal.StatusFailed, "failed"
		log.Error("intervention failed", "error", err, "elapsed", elapsed)
		m.cfg.Alerts.Dispatch(m.resolvedEvent(alert.EventInterventionFailed, b))
	default:
		log.Info("intervention completed", "status", out.Status, "elapsed", elapsed)
	}
	metrics.InterventionsTotal.WithLabelValues(result).Inc()
	if out.InterventionID == "" {
		out.InterventionID = b.ID
	}

	if m.cfg.Journal != nil {
		detail := out.Detail
		if err != nil && detail == "" {
			detail = err.Error()
		}
		if jerr := m.cfg.Journal.Finish(context.WithoutCancel(ctx), b.ID, status, detail, &out, m.now()); jerr != nil {
			log.Error("journal finish failed", "error", jerr)
		}
	}

	m.lastOutcome.Store(&out)
	r := resolution{seq: seq, mark: mark, outcome: out}
	select {
	case m.resolutions <- r:
	default:
		// Queue full: nothing is draining, so annotate here.
		m.apply(r)
	}
	m.pending.Store(false)
}

func (m *Monitor) drain() {
	for {
		select {
		case r := <-m.resolutions:
			m.apply(r)
		default:
			return
		}
	}
}

func (m *Monitor) apply(r resolution) {
	if !m.history.Annotate(r.seq, r.mark) {
		m.logger.Debug("resolved record already evicted", "seq", r.seq)
	}
}

func (m *Monitor) alertEvent(typ, id string, v model.Verdict) alert.AlertEvent {
	return alert.AlertEvent{
		Timestamp:      m.now().UTC().Format(time.RFC3339),
		Type:           typ,
		InterventionID: id,
		RiskLevel:      string(v.Risk),
		HeartRate:      v.HeartRate,
		Message:        v.Message,
		Subject:        m.cfg.Subject.Name,
		Suppressed:     m.suppressed.Load(),
	}
}

func (m *Monitor) resolvedEvent(typ string, b model.Breach) alert.AlertEvent {
	return alert.AlertEvent{
		Timestamp:      m.now().UTC().Format(time.RFC3339),
		Type:           typ,
		InterventionID: b.ID,
		RiskLevel:      string(b.Risk),
		HeartRate:      b.HeartRate,
		Message:        b.Message,
		Subject:        m.cfg.Subject.Name,
	}
}

// Wait blocks until in-flight interventions finish.
func (m *Monitor) Wait() { m.inflight.Wait() }

// WaitTimeout is Wait bounded by d. It reports whether every in-flight
// intervention finished.
func (m *Monitor) WaitTimeout(d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		m.inflight.Wait()
		close(done)
	}()
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-done:
		return true
	case <-t.C:
		return false
	}
}

// Pending reports whether an intervention is in flight.
func (m *Monitor) Pending() bool { return m.pending.Load() }

// SuppressedCount returns breaches that did not trigger because one was in flight.
func (m *Monitor) SuppressedCount() int64 { return m.suppressed.Load() }

// TriggeredCount returns interventions started.
func (m *Monitor) TriggeredCount() int64 { return m.triggered.Load() }

// History returns a snapshot of the history ring, oldest first.
func (m *Monitor) History() []model.Record {
	return m.history.Snapshot()
}

// Thresholds returns the active thresholds.
func (m *Monitor) Thresholds() risk.Thresholds { return *m.thresholds.Load() }

// SetThresholds swaps thresholds for subsequent ticks.
func (m *Monitor) SetThresholds(t risk.Thresholds) error {
	if err := t.Validate(); err != nil {
		return err
	}
	m.thresholds.Store(&t)
	m.logger.Info("thresholds updated", "emergency", t.Emergency, "warning", t.Warning, "bradycardia", t.Bradycardia)
	return nil
}

// Interval returns the polling cadence.
func (m *Monitor) Interval() time.Duration { return time.Duration(m.interval.Load()) }

// SetInterval changes the polling cadence of a running loop.
func (m *Monitor) SetInterval(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("interval must be positive, got %s", d)
	}
	if time.Duration(m.interval.Swap(int64(d))) == d {
		return nil
	}
	select {
	case m.reload <- struct{}{}:
	default:
	}
	return nil
}
