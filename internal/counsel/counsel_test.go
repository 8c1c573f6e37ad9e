package counsel

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/pulseguard/internal/llm"
)

type scriptedLLM struct {
	mu    sync.Mutex
	reply func(req llm.Request) (string, error)
	reqs  []llm.Request
}

func (s *scriptedLLM) Complete(_ context.Context, req llm.Request) (llm.Completion, error) {
	s.mu.Lock()
	s.reqs = append(s.reqs, req)
	s.mu.Unlock()
	text, err := s.reply(req)
	return llm.Completion{Content: text}, err
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestNewSeedsPersonaAndWelcome(t *testing.T) {
	c := New(&scriptedLLM{}, UserInfo{Name: "Ana", Age: "34"}, quietLogger())
	msgs := c.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, llm.RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "Name: Ana")
	assert.Contains(t, msgs[0].Content, "Session: #1")
	assert.Equal(t, llm.RoleAssistant, msgs[1].Role)
	assert.Equal(t, c.Welcome(), msgs[1].Content)
	assert.Contains(t, c.Welcome(), "Ana")
}

func TestConsultRecordsTurns(t *testing.T) {
	s := &scriptedLLM{reply: func(req llm.Request) (string, error) {
		last := req.Messages[len(req.Messages)-1]
		return "heard: " + last.Content, nil
	}}
	c := New(s, UserInfo{}, quietLogger())

	reply, err := c.Consult(context.Background(), "I feel tense")
	require.NoError(t, err)
	assert.Equal(t, "heard: I feel tense", reply)

	log := c.Log()
	assert.Equal(t, 1, log.TotalTurns)
	assert.Equal(t, "I feel tense", log.SessionHistory[0].User)
	assert.Equal(t, float32(replyTemperature), s.reqs[0].Temperature)
	assert.Len(t, c.Messages(), 4)
}

func TestConsultFailureReturnsApology(t *testing.T) {
	s := &scriptedLLM{reply: func(llm.Request) (string, error) { return "", errors.New("503") }}
	c := New(s, UserInfo{}, quietLogger())

	reply, err := c.Consult(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, reply, "cannot respond")
	assert.Zero(t, c.Log().TotalTurns)
}

func TestContextTrimmedWithSummary(t *testing.T) {
	long := strings.Repeat("x", 1400)
	var summaries int
	s := &scriptedLLM{reply: func(req llm.Request) (string, error) {
		if req.MaxTokens == summaryMaxTokens {
			summaries++
			return "they are stressed about work", nil
		}
		return long, nil
	}}
	c := New(s, UserInfo{}, quietLogger())

	for i := 0; i < 12; i++ {
		_, err := c.Consult(context.Background(), long)
		require.NoError(t, err)
	}

	msgs := c.Messages()
	assert.LessOrEqual(t, len(msgs), keepRecent+1+2)
	assert.Equal(t, llm.RoleSystem, msgs[0].Role)
	assert.Greater(t, summaries, 0)
	assert.Contains(t, msgs[0].Content, "they are stressed about work")
	assert.Equal(t, 12, c.Log().TotalTurns)
}

func TestTrimWithoutSummaryWhenFewMessages(t *testing.T) {
	huge := strings.Repeat("y", 40000)
	var summaries int
	s := &scriptedLLM{reply: func(req llm.Request) (string, error) {
		if req.MaxTokens == summaryMaxTokens {
			summaries++
		}
		return "ok", nil
	}}
	c := New(s, UserInfo{}, quietLogger())
	_, err := c.Consult(context.Background(), huge)
	require.NoError(t, err)
	assert.Zero(t, summaries)
	assert.Len(t, c.Messages(), 4)
}

func TestProgressCountsAsTurn(t *testing.T) {
	s := &scriptedLLM{reply: func(llm.Request) (string, error) { return "report", nil }}
	c := New(s, UserInfo{}, quietLogger())
	out, err := c.Progress(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "report", out)
	assert.Equal(t, 1, c.Log().TotalTurns)
}

func TestSaveLog(t *testing.T) {
	s := &scriptedLLM{reply: func(llm.Request) (string, error) { return "I hear you", nil }}
	c := New(s, UserInfo{Name: "Ana", Topic: "stress"}, quietLogger())
	_, err := c.Consult(context.Background(), "rough day")
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "sessions")
	path, err := c.SaveLog(dir, "iv-9")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "_iv-9.json"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, k := range []string{"user_info", "start_time", "end_time", "session_history", "total_turns"} {
		assert.Contains(t, raw, k)
	}
	assert.Equal(t, float64(1), raw["total_turns"])
	info := raw["user_info"].(map[string]any)
	assert.Equal(t, "Ana", info["name"])
}
