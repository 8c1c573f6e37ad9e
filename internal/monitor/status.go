package monitor

import (
	"time"

	"github.com/ppiankov/pulseguard/internal/history"
	"github.com/ppiankov/pulseguard/internal/model"
)

// Status states.
const (
	StateNoData = "no_data"
	StateActive = "active"
)

// Status is a point-in-time summary of the monitor.
type Status struct {
	State       string          `json:"status"`
	LastUpdate  *time.Time      `json:"last_update,omitempty"`
	HeartRate   float64         `json:"current_heart_rate,omitempty"`
	Risk        model.RiskLevel `json:"risk_level,omitempty"`
	Message     string          `json:"message,omitempty"`
	Pending     bool            `json:"intervention_pending"`
	Triggered   int64           `json:"interventions_triggered"`
	Suppressed  int64           `json:"breaches_suppressed"`
	HistorySize int             `json:"history_size"`
	LastOutcome *model.Outcome  `json:"last_outcome,omitempty"`
}

// Status summarizes the latest record and counters.
func (m *Monitor) Status() Status {
	st := Status{
		State:       StateNoData,
		Pending:     m.Pending(),
		Triggered:   m.TriggeredCount(),
		Suppressed:  m.SuppressedCount(),
		HistorySize: m.history.Len(),
		LastOutcome: m.lastOutcome.Load(),
	}
	rec, ok := m.history.Latest()
	if !ok {
		return st
	}
	ts := rec.Timestamp
	st.State = StateActive
	st.LastUpdate = &ts
	st.HeartRate = rec.Sample.HeartRate
	st.Risk = rec.Verdict.Risk
	st.Message = rec.Verdict.Message
	return st
}

// Trend summarizes heart rates received within window.
func (m *Monitor) Trend(window time.Duration) history.TrendSummary {
	return m.history.Trend(m.now(), window)
}
