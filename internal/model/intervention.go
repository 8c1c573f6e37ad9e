package model

import (
	"encoding/json"
	"time"
)

// BreachType is the only breach kind the monitor emits today.
const BreachType = "heart_rate_emergency"

// Breach is the context handed to an intervention.
type Breach struct {
	ID        string    `json:"intervention_id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	HeartRate float64   `json:"heart_rate"`
	Risk      RiskLevel `json:"risk_level"`
	Message   string    `json:"message"`
	Sample    Sample    `json:"raw_data"`
	UserName  string    `json:"user_name,omitempty"`
	UserAge   string    `json:"user_age,omitempty"`
}

// OutcomeStatus is how an intervention ended.
type OutcomeStatus string

const (
	OutcomeCompleted OutcomeStatus = "completed"
	OutcomeAbandoned OutcomeStatus = "abandoned"
	OutcomeFailed    OutcomeStatus = "failed"
	OutcomeTimeout   OutcomeStatus = "timeout"
)

// Outcome is what an intervention session returns to the monitor.
type Outcome struct {
	InterventionID string        `json:"intervention_id"`
	Status         OutcomeStatus `json:"status"`
	UserInput      string        `json:"user_input,omitempty"`
	AIResponse     string        `json:"ai_response,omitempty"`
	ToolResults    []ToolResult  `json:"tool_results,omitempty"`
	Errors         []ToolError   `json:"errors,omitempty"`
	Counseling     bool          `json:"counseling,omitempty"`
	SessionLog     string        `json:"session_log,omitempty"`
	Detail         string        `json:"detail,omitempty"`
}

// ToolCall is one function call requested by the completion API.
type ToolCall struct {
	ID        string `json:"id,omitempty"`
	Key       string `json:"tool_name"`
	Arguments string `json:"arguments"`
}

// ToolResult is a successful tool invocation.
type ToolResult struct {
	Key       string          `json:"tool_name"`
	Namespace string          `json:"server_name"`
	Name      string          `json:"actual_tool_name"`
	Args      map[string]any  `json:"args"`
	Output    string          `json:"result"`
	Raw       json.RawMessage `json:"structured,omitempty"`
}

// ToolError is a tool invocation that did not produce a result.
type ToolError struct {
	Key       string         `json:"tool_name"`
	Namespace string         `json:"server_name,omitempty"`
	Name      string         `json:"actual_tool_name,omitempty"`
	Args      map[string]any `json:"args,omitempty"`
	Message   string         `json:"error"`
}
