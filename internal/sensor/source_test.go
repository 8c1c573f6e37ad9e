package sensor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var received = time.Date(2026, 1, 15, 14, 0, 0, 0, time.UTC)

func TestDecodeValid(t *testing.T) {
	s, err := Decode([]byte(`{"current_heart_rate": 88.5, "status": "normal"}`), received)
	require.NoError(t, err)
	assert.Equal(t, 88.5, s.HeartRate)
	assert.Equal(t, "normal", s.Status)
	assert.Equal(t, received, s.ReceivedAt)
	assert.Equal(t, received, s.DeviceTime, "device time defaults to receipt time")
}

func TestDecodeDeviceTimestamp(t *testing.T) {
	s, err := Decode([]byte(`{"current_heart_rate": 70, "status": "ok", "timestamp": 1768485600}`), received)
	require.NoError(t, err)
	assert.Equal(t, time.Unix(1768485600, 0).UTC(), s.DeviceTime)

	s, err = Decode([]byte(`{"current_heart_rate": 70, "status": "ok", "timestamp": "2026-01-15T13:59:58Z"}`), received)
	require.NoError(t, err)
	assert.Equal(t, received.Add(-2*time.Second), s.DeviceTime)
}

func TestDecodeMalformed(t *testing.T) {
	for name, body := range map[string]string{
		"not json":       `<html>`,
		"missing rate":   `{"status": "ok"}`,
		"missing status": `{"current_heart_rate": 80}`,
		"string rate":    `{"current_heart_rate": "80", "status": "ok"}`,
		"bad timestamp":  `{"current_heart_rate": 80, "status": "ok", "timestamp": "yesterday"}`,
		"array":          `[1,2,3]`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(body), received)
			assert.ErrorIs(t, err, ErrMalformedPayload)
		})
	}
}

func TestHTTPSourceFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/heart-rate", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"current_heart_rate": 101, "status": "elevated"}`))
	}))
	defer srv.Close()

	src := NewHTTPSource(srv.URL+"/heart-rate", time.Second)
	s, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 101.0, s.HeartRate)
	assert.Equal(t, "elevated", s.Status)
	assert.False(t, s.ReceivedAt.IsZero())
}

func TestHTTPSourceServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "device offline", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewHTTPSource(srv.URL, time.Second).Fetch(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMalformedPayload)
	assert.Contains(t, err.Error(), "503")
}

func TestHTTPSourceUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewHTTPSource(url, 200*time.Millisecond).Fetch(context.Background())
	assert.Error(t, err)
}
