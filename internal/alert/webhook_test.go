package alert

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func countingServer(t *testing.T, status int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var called atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called.Add(1)
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, &called
}

func fastRetries(t *testing.T) {
	t.Helper()
	old := retryBackoff
	retryBackoff = time.Millisecond
	t.Cleanup(func() { retryBackoff = old })
}

func TestDispatchMatchesEvents(t *testing.T) {
	srv, called := countingServer(t, http.StatusOK)
	d := NewDispatcher([]AlertConfig{
		{URL: srv.URL, Format: "generic", Events: []string{EventEmergency}},
	}, 0, quietLogger())

	d.Dispatch(AlertEvent{Type: EventEmergency, HeartRate: 130})
	d.Dispatch(AlertEvent{Type: EventWarning, HeartRate: 105})
	d.Wait()

	assert.Equal(t, int32(1), called.Load())
}

func TestDispatchEmptyEventsMatchesAll(t *testing.T) {
	srv, called := countingServer(t, http.StatusOK)
	d := NewDispatcher([]AlertConfig{{URL: srv.URL}}, 0, quietLogger())

	d.Dispatch(AlertEvent{Type: EventSuppressed})
	d.Dispatch(AlertEvent{Type: EventInterventionTimeout})
	d.Wait()

	assert.Equal(t, int32(2), called.Load())
}

func TestDispatchMultipleWebhooks(t *testing.T) {
	srv1, called1 := countingServer(t, http.StatusOK)
	srv2, called2 := countingServer(t, http.StatusOK)
	d := NewDispatcher([]AlertConfig{
		{URL: srv1.URL, Events: []string{EventEmergency}},
		{URL: srv2.URL, Events: []string{EventEmergency, EventWarning}},
	}, 0, quietLogger())

	d.Dispatch(AlertEvent{Type: EventEmergency})
	d.Wait()

	assert.Equal(t, int32(1), called1.Load())
	assert.Equal(t, int32(1), called2.Load())
}

func TestDispatchRateLimited(t *testing.T) {
	srv, called := countingServer(t, http.StatusOK)
	d := NewDispatcher([]AlertConfig{{URL: srv.URL}}, 1, quietLogger())

	for i := 0; i < 20; i++ {
		d.Dispatch(AlertEvent{Type: EventWarning})
	}
	d.Wait()

	assert.Equal(t, int32(5), called.Load())
}

func TestNilDispatcherIsNoop(t *testing.T) {
	d := NewDispatcher(nil, 0, nil)
	assert.Nil(t, d)
	d.Dispatch(AlertEvent{Type: EventEmergency})
	d.Wait()
}

func TestRetryOnServerError(t *testing.T) {
	fastRetries(t)
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := Send(context.Background(), AlertConfig{URL: srv.URL}, AlertEvent{Type: EventEmergency})
	require.NoError(t, err)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestNoRetryOnClientError(t *testing.T) {
	fastRetries(t)
	srv, called := countingServer(t, http.StatusBadRequest)

	err := Send(context.Background(), AlertConfig{URL: srv.URL}, AlertEvent{Type: EventEmergency})
	require.Error(t, err)
	assert.Equal(t, int32(1), called.Load())
}

func TestSendHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer x", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	err := Send(context.Background(), AlertConfig{URL: srv.URL, Headers: map[string]string{"Authorization": "Bearer x"}}, AlertEvent{})
	assert.NoError(t, err)
}

func TestFormatGenericJSON(t *testing.T) {
	event := AlertEvent{
		Timestamp:      "2026-01-15T14:00:00Z",
		Type:           EventEmergency,
		InterventionID: "iv-123",
		RiskLevel:      "emergency",
		HeartRate:      131,
		Message:        "heart rate too high: 131.0 BPM",
	}

	data, err := FormatPayload("generic", event)
	require.NoError(t, err)

	var parsed AlertEvent
	require.NoError(t, json.Unmarshal(data, &parsed))
	assert.Equal(t, event, parsed)
}

func TestFormatSlackBlockKit(t *testing.T) {
	data, err := FormatPayload("slack", AlertEvent{Type: EventWarning, HeartRate: 105, InterventionID: "iv-1"})
	require.NoError(t, err)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(data, &parsed))
	blocks, ok := parsed["blocks"].([]any)
	require.True(t, ok)
	require.Len(t, blocks, 2)

	header, _ := blocks[0].(map[string]any)
	assert.Equal(t, "header", header["type"])
	section, _ := blocks[1].(map[string]any)
	fields, _ := section["fields"].([]any)
	assert.Len(t, fields, 4)
}

func TestFormatPagerDutySeverity(t *testing.T) {
	tests := map[string]string{
		EventEmergency:           "critical",
		EventInterventionTimeout: "critical",
		EventWarning:             "warning",
		EventSuppressed:          "info",
	}
	for typ, want := range tests {
		data, err := FormatPayload("pagerduty", AlertEvent{Type: typ})
		require.NoError(t, err)
		var parsed map[string]any
		require.NoError(t, json.Unmarshal(data, &parsed))
		assert.Equal(t, "trigger", parsed["event_action"])
		payload := parsed["payload"].(map[string]any)
		assert.Equal(t, want, payload["severity"], typ)
		assert.Equal(t, "pulseguard", payload["source"])
	}
}
