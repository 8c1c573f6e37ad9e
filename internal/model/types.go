package model

import (
	"fmt"
	"time"
)

// RiskLevel classifies a heart-rate sample.
type RiskLevel string

const (
	Normal    RiskLevel = "normal"
	Warning   RiskLevel = "warning"
	Emergency RiskLevel = "emergency"
)

// RiskRank maps risk to a comparable integer for escalation checks.
var RiskRank = map[RiskLevel]int{
	Normal:    0,
	Warning:   1,
	Emergency: 2,
}

// IsBreach reports whether the level should trigger an intervention.
func (r RiskLevel) IsBreach() bool {
	return r == Warning || r == Emergency
}

// Action is the follow-up suggested by a verdict.
type Action string

const (
	ContinueMonitoring    Action = "continue_monitoring"
	GentleIntervention    Action = "gentle_intervention"
	ImmediateIntervention Action = "immediate_intervention"
)

// Sample is one reading from the sensor feed. Immutable once received.
type Sample struct {
	HeartRate  float64   `json:"current_heart_rate"`
	Status     string    `json:"status"`
	DeviceTime time.Time `json:"device_timestamp"`
	ReceivedAt time.Time `json:"received_timestamp"`
}

// Verdict is the classification of a Sample.
type Verdict struct {
	HeartRate float64   `json:"heart_rate"`
	Status    string    `json:"status"`
	Risk      RiskLevel `json:"risk_level"`
	Message   string    `json:"message"`
	Action    Action    `json:"suggested_action"`
}

// Mark records what happened to the intervention a breach asked for.
type Mark string

const (
	MarkNone       Mark = ""
	MarkTriggered  Mark = "triggered"
	MarkSuppressed Mark = "suppressed"
	MarkCompleted  Mark = "completed"
	MarkFailed     Mark = "intervention_failed"
	MarkTimeout    Mark = "intervention_timeout"
)

// Record pairs a sample with its verdict in the history ring.
type Record struct {
	Seq          uint64    `json:"seq"`
	Timestamp    time.Time `json:"timestamp"`
	Sample       Sample    `json:"raw_data"`
	Verdict      Verdict   `json:"analysis"`
	Intervention Mark      `json:"intervention,omitempty"`
}

// FormatBPM renders a heart rate the way log lines and messages show it.
func FormatBPM(hr float64) string {
	return fmt.Sprintf("%.1f BPM", hr)
}
