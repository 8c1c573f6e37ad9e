package alert

// Event types a webhook can subscribe to.
const (
	EventWarning             = "warning"
	EventEmergency           = "emergency"
	EventSuppressed          = "suppressed"
	EventInterventionFailed  = "intervention_failed"
	EventInterventionTimeout = "intervention_timeout"
	EventEscalation          = "escalation"
)

// AlertConfig defines a webhook alert destination.
type AlertConfig struct {
	URL     string            `yaml:"url" json:"url"`
	Format  string            `yaml:"format" json:"format"` // "generic", "slack", "pagerduty"
	Events  []string          `yaml:"events" json:"events"` // empty means all events
	Headers map[string]string `yaml:"headers" json:"headers"`
}

// AlertEvent is the payload sent to webhook endpoints.
type AlertEvent struct {
	Timestamp      string  `json:"timestamp"`
	Type           string  `json:"type"`
	InterventionID string  `json:"intervention_id,omitempty"`
	RiskLevel      string  `json:"risk_level"`
	HeartRate      float64 `json:"heart_rate"`
	Message        string  `json:"message"`
	Subject        string  `json:"subject,omitempty"`
	Suppressed     int64   `json:"suppressed_total,omitempty"`
}
