// Package counsel runs a counseling conversation over the completion API.
// A Counselor is used by one session at a time.
package counsel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ppiankov/pulseguard/internal/llm"
)

const (
	// tokenBudget is the estimated prompt size (chars/4) that triggers trimming.
	tokenBudget = 8000
	// keepRecent is how many trailing messages survive a trim.
	keepRecent = 16
	// summarizeAfter is the message count above which a trim is preceded by a summary.
	summarizeAfter = 20

	replyTemperature   = 0.7
	replyMaxTokens     = 2000
	summaryTemperature = 0.3
	summaryMaxTokens   = 500
)

const framework = `Five-step counseling framework:
1. Listen and empathize: understand the person's emotions and situation
2. Analyze: identify the core problem and recurring patterns
3. Set goals: agree on what the conversation should achieve
4. Explore strategies: look for solutions together
5. Plan: agree on concrete next steps`

const summaryRequest = "Summarize the counseling session so far in about 300 words: " +
	"the person's main concerns, emotional state, important events and the solutions discussed. Stay objective and professional."

const progressRequest = `As the counselor, summarize warmly and professionally:
1. The main progress and breakthroughs of this session
2. The person's core emotional issues and patterns
3. The solutions discussed that seemed helpful
4. Concrete suggestions and an action plan for next steps

Present it as a short counseling report.`

// UserInfo describes the person being counseled.
type UserInfo struct {
	Name         string `json:"name"`
	Age          string `json:"age"`
	Topic        string `json:"topic"`
	SessionCount int    `json:"session_count"`
}

func (u UserInfo) withDefaults() UserInfo {
	if u.Name == "" {
		u.Name = "friend"
	}
	if u.Age == "" {
		u.Age = "not provided"
	}
	if u.Topic == "" {
		u.Topic = "emotional support"
	}
	if u.SessionCount <= 0 {
		u.SessionCount = 1
	}
	return u
}

// Turn is one exchange.
type Turn struct {
	Timestamp time.Time `json:"timestamp"`
	User      string    `json:"user"`
	Assistant string    `json:"assistant"`
}

// Log is the session record written when the conversation ends.
type Log struct {
	UserInfo       UserInfo  `json:"user_info"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	SessionHistory []Turn    `json:"session_history"`
	TotalTurns     int       `json:"total_turns"`
}

// Counselor holds the conversation state.
type Counselor struct {
	llm    llm.Completer
	info   UserInfo
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	messages []llm.Message
	history  []Turn
	start    time.Time
}

// New starts a conversation with the persona prompt and a welcome message.
func New(c llm.Completer, info UserInfo, logger *slog.Logger) *Counselor {
	if logger == nil {
		logger = slog.Default()
	}
	info = info.withDefaults()
	co := &Counselor{
		llm:    c,
		info:   info,
		logger: logger.With("component", "counsel"),
		now:    time.Now,
	}
	co.start = co.now()
	co.messages = []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt(info)},
		{Role: llm.RoleAssistant, Content: welcome(info)},
	}
	return co
}

func systemPrompt(u UserInfo) string {
	return fmt.Sprintf(`# Role
You are Ms. Lee, a senior counselor at a wellbeing support service.

# Background
- Licensed counselor
- Eight years of emotional counseling
- Focus on relationships, emotion regulation and personal growth

# Framework
%s

# Person
Name: %s
Age: %s
Topic: %s
Session: #%d

# Principles
- Every reply shows professionalism and empathy
- Remember important relationships and events the person mentions
- Keep the conversation continuous and moving forward
- Summarize progress when appropriate`, framework, u.Name, u.Age, u.Topic, u.SessionCount)
}

func welcome(u UserInfo) string {
	return fmt.Sprintf("Hello %s, I'm Ms. Lee. I'm glad to talk with you. Let's talk about %s; tell me how things have been lately.", u.Name, u.Topic)
}

// Welcome returns the opening assistant message.
func (c *Counselor) Welcome() string { return welcome(c.info) }

// Consult sends the user's message and returns the reply. When the API call
// fails the returned text is an apology suitable for display and err is set.
func (c *Counselor) Consult(ctx context.Context, input string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.messages = append(c.messages, llm.Message{Role: llm.RoleUser, Content: input})
	comp, err := c.llm.Complete(ctx, llm.Request{
		Messages:    append([]llm.Message(nil), c.messages...),
		Temperature: replyTemperature,
		MaxTokens:   replyMaxTokens,
	})
	if err != nil {
		msg := fmt.Sprintf("The counseling service cannot respond right now, please try again shortly. (%v)", err)
		c.messages = append(c.messages, llm.Message{Role: llm.RoleAssistant, Content: msg})
		c.logger.Error("counseling reply failed", "error", err)
		return msg, err
	}

	reply := comp.Content
	c.messages = append(c.messages, llm.Message{Role: llm.RoleAssistant, Content: reply})
	c.history = append(c.history, Turn{Timestamp: c.now(), User: input, Assistant: reply})
	c.manageContext(ctx)
	return reply, nil
}

// Progress asks for a closing counseling report. It counts as a turn.
func (c *Counselor) Progress(ctx context.Context) (string, error) {
	return c.Consult(ctx, progressRequest)
}

func estimateTokens(msgs []llm.Message) int {
	n := 0
	for _, m := range msgs {
		n += len(m.Content)
	}
	return n / 4
}

// manageContext trims the prompt to the system message plus the most recent
// messages once it grows past the budget. Caller holds c.mu.
func (c *Counselor) manageContext(ctx context.Context) {
	if estimateTokens(c.messages) <= tokenBudget {
		return
	}
	if len(c.messages) > summarizeAfter {
		c.summarize(ctx)
	}
	system := c.messages[0]
	recent := c.messages[len(c.messages)-min(keepRecent, len(c.messages)-1):]
	c.messages = append([]llm.Message{system}, recent...)
	c.logger.Debug("counseling context trimmed", "messages", len(c.messages))
}

// summarize folds a summary of the session into the system message.
// Failures are logged and otherwise ignored.
func (c *Counselor) summarize(ctx context.Context) {
	comp, err := c.llm.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			c.messages[0],
			{Role: llm.RoleUser, Content: summaryRequest},
		},
		Temperature: summaryTemperature,
		MaxTokens:   summaryMaxTokens,
	})
	if err != nil {
		c.logger.Warn("session summary failed", "error", err)
		return
	}
	c.messages[0].Content += fmt.Sprintf("\n\n# Session notes\nSummary (%s): %s", c.now().Format("15:04"), comp.Content)
}

// Messages returns a copy of the current prompt.
func (c *Counselor) Messages() []llm.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]llm.Message(nil), c.messages...)
}

// Log returns the session record as of now.
func (c *Counselor) Log() Log {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Log{
		UserInfo:       c.info,
		StartTime:      c.start,
		EndTime:        c.now(),
		SessionHistory: append([]Turn{}, c.history...),
		TotalTurns:     len(c.history),
	}
}

// SaveLog writes the session record into dir and returns the file path.
func (c *Counselor) SaveLog(dir, id string) (string, error) {
	rec := c.Log()
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create session log dir: %w", err)
	}
	name := "counseling_session_" + rec.StartTime.Format("20060102_150405")
	if id = strings.TrimSpace(id); id != "" {
		name += "_" + id
	}
	path := filepath.Join(dir, name+".json")

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal session log: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("write session log: %w", err)
	}
	return path, nil
}
