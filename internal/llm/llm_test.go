package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ppiankov/neurorouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestCompleteWithToolCalls(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "c1", "object": "chat.completion", "model": "deepseek-chat",
			"choices": [{"index": 0, "finish_reason": "tool_calls", "message": {
				"role": "assistant", "content": "calling",
				"tool_calls": [{"id": "t1", "type": "function",
					"function": {"name": "mail__send", "arguments": "{\"to\":\"a\"}"}}]
			}}]
		}`)
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, APIKey: "sk-test"}, quietLogger())
	require.NoError(t, err)

	out, err := c.Complete(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Content: "hello"}},
		Tools: []ToolSpec{{
			Name:        "mail__send",
			Description: "[mail] send mail",
			Parameters:  map[string]any{"type": "object"},
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, "calling", out.Content)
	require.Len(t, out.ToolCalls, 1)
	assert.Equal(t, "mail__send", out.ToolCalls[0].Name)
	assert.JSONEq(t, `{"to":"a"}`, out.ToolCalls[0].Arguments)

	assert.Equal(t, DefaultModel, got["model"])
	tools, ok := got["tools"].([]any)
	require.True(t, ok)
	assert.Len(t, tools, 1)
}

func TestCompleteRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"message":"slow down","type":"rate_limit"}}`)
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, APIKey: "sk-test"}, quietLogger())
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "x"}}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, neurorouter.ErrRateLimited))
}

func TestCompleteNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"c","choices":[]}`)
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, APIKey: "sk-test"}, quietLogger())
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "x"}}})
	assert.ErrorIs(t, err, ErrNoChoices)
}

func TestAPIKeyFromEnvOrder(t *testing.T) {
	t.Setenv("PULSEGUARD_API_KEY", "")
	t.Setenv("DEEPSEEK_API_KEY", "ds")
	t.Setenv("OPENAI_API_KEY", "oa")
	assert.Equal(t, "ds", APIKeyFromEnv())

	t.Setenv("PULSEGUARD_API_KEY", "pg")
	assert.Equal(t, "pg", APIKeyFromEnv())
}

func TestNewRequiresKey(t *testing.T) {
	t.Setenv("PULSEGUARD_API_KEY", "")
	t.Setenv("DEEPSEEK_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	_, err := New(Config{}, quietLogger())
	assert.Error(t, err)
}
