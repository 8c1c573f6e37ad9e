package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/pulseguard/internal/model"
)

func testBreach() model.Breach {
	return model.Breach{
		ID:        "iv-1",
		Type:      model.BreachType,
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		HeartRate: 130,
		Risk:      model.Emergency,
		Message:   "heart rate too high: 130.0 BPM",
	}
}

func TestHTTPIntervene(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var b model.Breach
		require.NoError(t, json.NewDecoder(r.Body).Decode(&b))
		assert.Equal(t, "iv-1", b.ID)
		assert.Equal(t, 130.0, b.HeartRate)
		_ = json.NewEncoder(w).Encode(model.Outcome{UserInput: "fine", AIResponse: "ok"})
	}))
	defer srv.Close()

	out, err := NewHTTP(srv.URL+"/intervene").Intervene(context.Background(), testBreach())
	require.NoError(t, err)
	assert.Equal(t, "iv-1", out.InterventionID)
	assert.Equal(t, model.OutcomeCompleted, out.Status)
	assert.Equal(t, "fine", out.UserInput)
}

func TestHTTPInterveneServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "console busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	out, err := NewHTTP(srv.URL).Intervene(context.Background(), testBreach())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrTimeout))
	assert.Equal(t, model.OutcomeFailed, out.Status)
	assert.Contains(t, err.Error(), "503")
}

func TestHTTPInterveneTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	timeout := 100 * time.Millisecond
	start := time.Now()
	out, err := NewHTTP(srv.URL, WithTimeout(timeout)).Intervene(context.Background(), testBreach())
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, model.OutcomeTimeout, out.Status)
	assert.Equal(t, "iv-1", out.InterventionID)
	assert.Less(t, elapsed, timeout+time.Second)
}

func TestHTTPInterveneUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	out, err := NewHTTP(url, WithTimeout(time.Second)).Intervene(context.Background(), testBreach())
	require.Error(t, err)
	assert.Equal(t, model.OutcomeFailed, out.Status)
}

func TestLocalIntervene(t *testing.T) {
	g := NewLocal(func(ctx context.Context, b model.Breach) (model.Outcome, error) {
		return model.Outcome{Status: model.OutcomeCompleted, AIResponse: "hi"}, nil
	})
	out, err := g.Intervene(context.Background(), testBreach())
	require.NoError(t, err)
	assert.Equal(t, "iv-1", out.InterventionID)
	assert.Equal(t, "hi", out.AIResponse)
}

func TestLocalTimeoutReleasesCaller(t *testing.T) {
	finished := make(chan struct{})
	g := NewLocal(func(ctx context.Context, b model.Breach) (model.Outcome, error) {
		defer close(finished)
		time.Sleep(300 * time.Millisecond)
		return model.Outcome{Status: model.OutcomeCompleted}, nil
	}, WithTimeout(50*time.Millisecond))

	start := time.Now()
	out, err := g.Intervene(context.Background(), testBreach())
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, model.OutcomeTimeout, out.Status)
	assert.Less(t, time.Since(start), 250*time.Millisecond)

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not keep running in the background")
	}
}

func TestLocalHandlerError(t *testing.T) {
	g := NewLocal(func(ctx context.Context, b model.Breach) (model.Outcome, error) {
		return model.Outcome{}, errors.New("console crashed")
	})
	out, err := g.Intervene(context.Background(), testBreach())
	assert.EqualError(t, err, "console crashed")
	assert.Equal(t, model.OutcomeFailed, out.Status)
}
