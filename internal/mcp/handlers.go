package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/pulseguard/internal/alert"
	"github.com/ppiankov/pulseguard/internal/model"
)

// ErrNoWebhook is returned by notify_contact when no webhook is configured.
var ErrNoWebhook = errors.New("no escalation webhook configured")

// --- Input/Output types ---

// NotifyInput defines parameters for the notify_contact tool.
type NotifyInput struct {
	Message        string  `json:"message" jsonschema:"short description of the situation for the contact"`
	HeartRate      float64 `json:"heart_rate,omitempty" jsonschema:"current heart rate in BPM"`
	RiskLevel      string  `json:"risk_level,omitempty" jsonschema:"risk level (normal/warning/emergency)"`
	InterventionID string  `json:"intervention_id,omitempty" jsonschema:"intervention id, if known"`
	Subject        string  `json:"subject,omitempty" jsonschema:"name of the monitored person"`
}

// NotifyOutput confirms delivery.
type NotifyOutput struct {
	Sent      bool   `json:"sent"`
	Contact   string `json:"contact"`
	Timestamp string `json:"timestamp"`
}

// CounselingInput defines parameters for the counseling_decision tool.
type CounselingInput struct {
	HeartRate float64 `json:"heart_rate" jsonschema:"current heart rate in BPM"`
	UserState string  `json:"user_state,omitempty" jsonschema:"what the user said about how they feel"`
	RiskLevel string  `json:"risk_level,omitempty" jsonschema:"risk level (normal/warning/emergency)"`
}

// CounselingOutput is the recommendation.
type CounselingOutput struct {
	Recommended bool     `json:"recommended"`
	Reasons     []string `json:"reasons"`
	Advice      string   `json:"advice"`
}

// Heart-rate bounds beyond which counseling is recommended regardless of
// what the user says.
const (
	highHeartRate = 120
	lowHeartRate  = 50
)

var distressTerms = []string{
	"anxious", "anxiety", "panic", "scared", "afraid", "stressed", "stress",
	"sad", "depressed", "overwhelmed", "upset", "angry", "lonely", "hopeless",
	"can't sleep", "worried", "nervous", "cry",
	"焦虑", "紧张", "害怕", "难过", "压力", "失眠", "抑郁", "烦",
}

// --- Handlers ---

func (s *Server) handleNotify(ctx context.Context, _ *mcpsdk.CallToolRequest, input NotifyInput) (*mcpsdk.CallToolResult, NotifyOutput, error) {
	if s.cfg.Webhook.URL == "" {
		return nil, NotifyOutput{}, ErrNoWebhook
	}
	msg := strings.TrimSpace(input.Message)
	if msg == "" {
		msg = "Heart rate alert: the monitored person may need help."
	}
	if input.HeartRate > 0 {
		msg = fmt.Sprintf("%s (heart rate %s)", msg, model.FormatBPM(input.HeartRate))
	}

	ts := s.now().UTC().Format(time.RFC3339)
	event := alert.AlertEvent{
		Timestamp:      ts,
		Type:           alert.EventEscalation,
		InterventionID: input.InterventionID,
		RiskLevel:      input.RiskLevel,
		HeartRate:      input.HeartRate,
		Message:        msg,
		Subject:        input.Subject,
	}
	if err := alert.Send(ctx, s.cfg.Webhook, event); err != nil {
		s.logger.Error("escalation webhook failed", "intervention_id", input.InterventionID, "error", err)
		return nil, NotifyOutput{}, fmt.Errorf("notify %s: %w", s.cfg.Contact, err)
	}

	s.notified.Add(1)
	s.logger.Info("escalation sent", "intervention_id", input.InterventionID, "heart_rate", input.HeartRate)
	return nil, NotifyOutput{Sent: true, Contact: s.cfg.Contact, Timestamp: ts}, nil
}

func (s *Server) handleCounselingDecision(_ context.Context, _ *mcpsdk.CallToolRequest, input CounselingInput) (*mcpsdk.CallToolResult, CounselingOutput, error) {
	return nil, decideCounseling(input), nil
}

func decideCounseling(in CounselingInput) CounselingOutput {
	var reasons []string
	switch {
	case in.HeartRate >= highHeartRate:
		reasons = append(reasons, fmt.Sprintf("heart rate %s is above %d", model.FormatBPM(in.HeartRate), highHeartRate))
	case in.HeartRate > 0 && in.HeartRate < lowHeartRate:
		reasons = append(reasons, fmt.Sprintf("heart rate %s is below %d", model.FormatBPM(in.HeartRate), lowHeartRate))
	}
	if model.RiskLevel(strings.ToLower(in.RiskLevel)) == model.Emergency && len(reasons) == 0 {
		reasons = append(reasons, "risk level is emergency")
	}

	state := strings.ToLower(in.UserState)
	for _, term := range distressTerms {
		if strings.Contains(state, term) {
			reasons = append(reasons, fmt.Sprintf("user reports %q", term))
			break
		}
	}

	if len(reasons) == 0 {
		return CounselingOutput{
			Recommended: false,
			Reasons:     []string{},
			Advice:      "No counseling needed right now. Suggest rest, slow breathing and staying hydrated.",
		}
	}
	return CounselingOutput{
		Recommended: true,
		Reasons:     reasons,
		Advice:      "Start a counseling conversation to help the user talk through how they feel.",
	}
}
