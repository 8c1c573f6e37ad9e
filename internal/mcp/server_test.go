package mcp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/pulseguard/internal/alert"
)

func connect(t *testing.T, s *Server) *mcpsdk.ClientSession {
	t.Helper()
	ctx := context.Background()
	clientT, serverT := mcpsdk.NewInMemoryTransports()
	ss, err := s.Connect(ctx, serverT)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test", Version: "test"}, nil)
	cs, err := client.Connect(ctx, clientT, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func textOf(t *testing.T, res *mcpsdk.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(*mcpsdk.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestListTools(t *testing.T) {
	cs := connect(t, New(Config{}))
	res, err := cs.ListTools(context.Background(), &mcpsdk.ListToolsParams{})
	require.NoError(t, err)

	names := make([]string, 0, len(res.Tools))
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
		assert.NotNil(t, tool.InputSchema, tool.Name)
	}
	assert.ElementsMatch(t, []string{ToolNotifyContact, ToolCounselingDecision}, names)
}

func TestNotifyContactPostsWebhook(t *testing.T) {
	var (
		mu   sync.Mutex
		body []byte
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		body, _ = io.ReadAll(r.Body)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	s := New(Config{Webhook: alert.AlertConfig{URL: ts.URL, Format: "generic"}, Contact: "Alex"})
	cs := connect(t, s)

	res, err := cs.CallTool(context.Background(), &mcpsdk.CallToolParams{
		Name: ToolNotifyContact,
		Arguments: map[string]any{
			"message":         "User reports chest pain",
			"heart_rate":      134,
			"risk_level":      "emergency",
			"intervention_id": "iv-7",
		},
	})
	require.NoError(t, err)
	require.False(t, res.IsError, textOf(t, res))

	var out NotifyOutput
	require.NoError(t, json.Unmarshal([]byte(textOf(t, res)), &out))
	assert.True(t, out.Sent)
	assert.Equal(t, "Alex", out.Contact)
	assert.Equal(t, int64(1), s.NotifiedCount())

	mu.Lock()
	defer mu.Unlock()
	var event alert.AlertEvent
	require.NoError(t, json.Unmarshal(body, &event))
	assert.Equal(t, alert.EventEscalation, event.Type)
	assert.Equal(t, "iv-7", event.InterventionID)
	assert.Equal(t, "User reports chest pain (heart rate 134.0 BPM)", event.Message)
}

func TestNotifyContactWithoutWebhook(t *testing.T) {
	cs := connect(t, New(Config{}))
	res, err := cs.CallTool(context.Background(), &mcpsdk.CallToolParams{
		Name:      ToolNotifyContact,
		Arguments: map[string]any{"message": "help"},
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, textOf(t, res), "no escalation webhook configured")
}

func TestNotifyContactRejected(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer ts.Close()

	s := New(Config{Webhook: alert.AlertConfig{URL: ts.URL}})
	cs := connect(t, s)
	res, err := cs.CallTool(context.Background(), &mcpsdk.CallToolParams{
		Name:      ToolNotifyContact,
		Arguments: map[string]any{"message": "help"},
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Zero(t, s.NotifiedCount())
}

func TestCounselingDecisionTool(t *testing.T) {
	cs := connect(t, New(Config{}))
	res, err := cs.CallTool(context.Background(), &mcpsdk.CallToolParams{
		Name:      ToolCounselingDecision,
		Arguments: map[string]any{"heart_rate": 95, "user_state": "I feel so anxious about work"},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)

	var out CounselingOutput
	require.NoError(t, json.Unmarshal([]byte(textOf(t, res)), &out))
	assert.True(t, out.Recommended)
	assert.Contains(t, out.Reasons[0], "anxious")
}

func TestDecideCounseling(t *testing.T) {
	tests := []struct {
		name string
		in   CounselingInput
		want bool
	}{
		{"calm normal", CounselingInput{HeartRate: 80, UserState: "I'm fine, just ran upstairs"}, false},
		{"high rate", CounselingInput{HeartRate: 125}, true},
		{"low rate", CounselingInput{HeartRate: 45}, true},
		{"zero rate unknown", CounselingInput{}, false},
		{"emergency risk", CounselingInput{HeartRate: 110, RiskLevel: "EMERGENCY"}, true},
		{"distress words", CounselingInput{HeartRate: 105, UserState: "有点焦虑"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := decideCounseling(tt.in)
			assert.Equal(t, tt.want, got.Recommended)
			assert.NotEmpty(t, got.Advice)
		})
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv(EnvWebhookURL, "https://hooks.example.com/x")
	t.Setenv(EnvWebhookFormat, "")
	t.Setenv(EnvContact, "Jordan")

	cfg := ConfigFromEnv()
	assert.Equal(t, "https://hooks.example.com/x", cfg.Webhook.URL)
	assert.Equal(t, "generic", cfg.Webhook.Format)
	assert.Equal(t, "Jordan", cfg.Contact)
}
