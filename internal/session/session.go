// Package session drives one interactive intervention as a state machine.
// A console (terminal window, headless driver) feeds it user messages and
// renders its replies; all completion and tool traffic goes through the
// loop bridge.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/ppiankov/pulseguard/internal/bridge"
	"github.com/ppiankov/pulseguard/internal/counsel"
	"github.com/ppiankov/pulseguard/internal/llm"
	"github.com/ppiankov/pulseguard/internal/model"
	"github.com/ppiankov/pulseguard/internal/orchestrator"
)

// State of a session.
type State string

const (
	StateAwaitingInput      State = "awaiting_input"
	StateDispatching        State = "dispatching"
	StateAwaitingToolResult State = "awaiting_tool_result"
	StateClosed             State = "closed"
)

// Mode is who answers the user.
type Mode string

const (
	ModeAssistant  Mode = "assistant"
	ModeCounseling Mode = "counseling"
)

var (
	// ErrClosed is returned for events on a closed session.
	ErrClosed = errors.New("session closed")
	// ErrIllegalEvent is returned for an event the current state does not accept.
	ErrIllegalEvent = errors.New("illegal session event")
)

// Planner is the orchestrator as the session uses it.
type Planner interface {
	Plan(ctx context.Context, query string) (orchestrator.Plan, error)
	Execute(ctx context.Context, p orchestrator.Plan) orchestrator.Outcome
}

// Options configures a session.
type Options struct {
	Bridge            *bridge.Bridge
	Planner           Planner
	Completer         llm.Completer
	CounselingTool    string
	TerminateKeywords []string
	SessionLogDir     string
	Logger            *slog.Logger
}

// Reply is what the session shows after a user message.
type Reply struct {
	Speaker           string             `json:"speaker"`
	Text              string             `json:"text"`
	ToolResults       []model.ToolResult `json:"tool_results,omitempty"`
	Errors            []model.ToolError  `json:"errors,omitempty"`
	Notices           []string           `json:"notices,omitempty"`
	CounselingStarted bool               `json:"counseling_started,omitempty"`
	Closed            bool               `json:"closed,omitempty"`
}

// Speakers shown in transcripts.
const (
	SpeakerAssistant = "assistant"
	SpeakerCounselor = "counselor"
	SpeakerSystem    = "system"
)

// AssistantPrompt is the system message for assistant-mode turns.
const AssistantPrompt = `You are a calm emotional-support assistant attached to a heart-rate monitor.
The user's heart rate has left the normal range. Each message tells you the current heart rate and what the user replied.
Answer briefly and kindly. Use the available tools when they help: notify the user's contact if they may be in danger,
and ask for a counseling decision when the user sounds distressed.`

// Session is safe for use by one console goroutine plus concurrent Close.
type Session struct {
	breach model.Breach
	opts   Options
	logger *slog.Logger

	mu        sync.Mutex
	state     State
	mode      Mode
	counselor *counsel.Counselor
	outcome   model.Outcome
	turns     int
}

// New creates a session for a breach, awaiting the user's first message.
func New(b model.Breach, opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if len(opts.TerminateKeywords) == 0 {
		opts.TerminateKeywords = []string{"end", "stop", "结束", "终止"}
	}
	if opts.CounselingTool == "" {
		opts.CounselingTool = "counseling_decision"
	}
	s := &Session{
		breach: b,
		opts:   opts,
		logger: opts.Logger.With("intervention_id", b.ID),
		state:  StateAwaitingInput,
		mode:   ModeAssistant,
	}
	s.outcome = model.Outcome{InterventionID: b.ID, Status: model.OutcomeAbandoned}
	return s
}

// Breach returns the breach this session answers.
func (s *Session) Breach() model.Breach { return s.breach }

// Greeting is the first assistant line.
func (s *Session) Greeting() string {
	return fmt.Sprintf("I noticed your heart rate is unusual (%s). How are you feeling right now?", model.FormatBPM(s.breach.HeartRate))
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Mode returns who is answering.
func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

func (s *Session) transition(from []State, to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return ErrClosed
	}
	for _, f := range from {
		if s.state == f {
			s.state = to
			return nil
		}
	}
	return fmt.Errorf("%w: cannot move from %s to %s", ErrIllegalEvent, s.state, to)
}

// Send delivers one user message and returns the reply. It is only legal
// while awaiting input.
func (s *Session) Send(ctx context.Context, text string) (Reply, error) {
	if err := s.transition([]State{StateAwaitingInput}, StateDispatching); err != nil {
		return Reply{}, err
	}
	text = strings.TrimSpace(text)

	s.mu.Lock()
	mode := s.mode
	s.turns++
	s.mu.Unlock()

	var (
		reply Reply
		err   error
	)
	if mode == ModeCounseling {
		reply, err = s.counsel(ctx, text)
	} else {
		reply, err = s.assist(ctx, text)
	}

	if reply.Closed {
		return reply, err
	}
	if terr := s.transition([]State{StateDispatching, StateAwaitingToolResult}, StateAwaitingInput); terr != nil {
		if errors.Is(terr, ErrClosed) {
			reply.Closed = true
		}
		return reply, errors.Join(err, terr)
	}
	return reply, err
}

func (s *Session) assist(ctx context.Context, text string) (Reply, error) {
	query := fmt.Sprintf("User heart rate: %v, user reply: %s", s.breach.HeartRate, text)

	plan, err := bridge.SubmitReady(ctx, s.opts.Bridge, "plan", func(ctx context.Context) (orchestrator.Plan, error) {
		return s.opts.Planner.Plan(ctx, query)
	})
	if err != nil {
		s.logger.Error("assistant turn failed", "error", err)
		return Reply{Speaker: SpeakerSystem, Text: fmt.Sprintf("The assistant could not answer: %v", err)}, err
	}

	out := orchestrator.Outcome{Content: plan.Content, Summary: plan.Content}
	if len(plan.Calls) > 0 {
		if err := s.transition([]State{StateDispatching}, StateAwaitingToolResult); err != nil {
			return Reply{Closed: errors.Is(err, ErrClosed)}, err
		}
		out, err = bridge.SubmitReady(ctx, s.opts.Bridge, "execute", func(ctx context.Context) (orchestrator.Outcome, error) {
			return s.opts.Planner.Execute(ctx, plan), nil
		})
		if err != nil {
			s.logger.Error("tool execution failed", "error", err)
			return Reply{Speaker: SpeakerSystem, Text: fmt.Sprintf("Tools could not run: %v", err)}, err
		}
	}

	reply := Reply{
		Speaker:     SpeakerAssistant,
		Text:        strings.TrimRight(out.Summary, "\n"),
		ToolResults: out.Results,
		Errors:      out.Errors,
	}

	s.mu.Lock()
	s.outcome.UserInput = text
	s.outcome.AIResponse = reply.Text
	s.outcome.ToolResults = append(s.outcome.ToolResults, out.Results...)
	s.outcome.Errors = append(s.outcome.Errors, out.Errors...)
	s.mu.Unlock()

	for _, r := range out.Results {
		if r.Name == s.opts.CounselingTool {
			reply.Notices = append(reply.Notices, fmt.Sprintf("Counseling recommendation: %s", r.Output))
			if s.startCounseling() {
				reply.CounselingStarted = true
				reply.Notices = append(reply.Notices,
					fmt.Sprintf("Counseling conversation started. Type %q at any time to finish.", s.opts.TerminateKeywords[0]),
					s.counselorWelcome())
			}
		}
	}

	if s.terminates(text) || s.replyTerminates(out.Content) {
		final, cerr := s.Close(ctx)
		reply.Closed = true
		reply.Notices = append(reply.Notices, final.Notices...)
		return reply, cerr
	}
	return reply, nil
}

func (s *Session) startCounseling() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode == ModeCounseling || s.opts.Completer == nil {
		return false
	}
	s.counselor = counsel.New(s.opts.Completer, counsel.UserInfo{
		Name:         s.breach.UserName,
		Age:          s.breach.UserAge,
		Topic:        "emotional support",
		SessionCount: 1,
	}, s.opts.Logger)
	s.mode = ModeCounseling
	s.outcome.Counseling = true
	s.logger.Info("switched to counseling mode")
	return true
}

func (s *Session) counselorWelcome() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counselor.Welcome()
}

func (s *Session) counsel(ctx context.Context, text string) (Reply, error) {
	s.mu.Lock()
	c := s.counselor
	s.mu.Unlock()

	answer, err := bridge.SubmitReady(ctx, s.opts.Bridge, "counsel", func(ctx context.Context) (string, error) {
		return c.Consult(ctx, text)
	})
	if err != nil && answer == "" {
		answer = fmt.Sprintf("The counselor could not answer: %v", err)
	}
	reply := Reply{Speaker: SpeakerCounselor, Text: answer}

	if s.terminates(text) || s.replyTerminates(answer) {
		final, cerr := s.Close(ctx)
		reply.Closed = true
		reply.Notices = append(reply.Notices, final.Notices...)
		return reply, errors.Join(err, cerr)
	}
	return reply, err
}

// terminates reports whether the user's text contains any terminate keyword.
func (s *Session) terminates(text string) bool {
	return s.matchKeyword(text, false)
}

// replyTerminates checks an assistant or counselor reply. Only non-ASCII
// keywords count: "end" and "stop" are common in ordinary replies.
func (s *Session) replyTerminates(text string) bool {
	return s.matchKeyword(text, true)
}

func (s *Session) matchKeyword(text string, nonASCIIOnly bool) bool {
	lower := strings.ToLower(text)
	for _, kw := range s.opts.TerminateKeywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" || (nonASCIIOnly && isASCIIWord(kw)) {
			continue
		}
		if containsWord(lower, kw) {
			return true
		}
	}
	return false
}

// containsWord matches ASCII keywords on word boundaries so that "end" does
// not fire on "friend"; other keywords match as substrings.
func containsWord(text, kw string) bool {
	if !isASCIIWord(kw) {
		return strings.Contains(text, kw)
	}
	for i := 0; ; {
		j := strings.Index(text[i:], kw)
		if j < 0 {
			return false
		}
		start, end := i+j, i+j+len(kw)
		if (start == 0 || !isWordByte(text[start-1])) && (end == len(text) || !isWordByte(text[end])) {
			return true
		}
		i = start + 1
	}
}

func isASCIIWord(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isWordByte(s[i]) {
			return false
		}
	}
	return s != ""
}

func isWordByte(c byte) bool {
	return c == '_' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}

// Close ends the session. In counseling mode it asks for a progress report
// and writes the session log. Closing twice returns ErrClosed.
func (s *Session) Close(ctx context.Context) (Reply, error) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return Reply{Closed: true}, ErrClosed
	}
	s.state = StateClosed
	c := s.counselor
	if s.turns > 0 {
		s.outcome.Status = model.OutcomeCompleted
	}
	s.mu.Unlock()

	reply := Reply{Speaker: SpeakerSystem, Closed: true}
	if c == nil {
		s.logger.Info("session closed")
		return reply, nil
	}

	var errs []error
	report, err := bridge.SubmitReady(ctx, s.opts.Bridge, "progress", func(ctx context.Context) (string, error) {
		return c.Progress(ctx)
	})
	if err != nil {
		errs = append(errs, fmt.Errorf("progress report: %w", err))
	}
	if report != "" {
		reply.Notices = append(reply.Notices, "Counseling summary: "+report)
	}

	if s.opts.SessionLogDir != "" {
		path, err := c.SaveLog(s.opts.SessionLogDir, s.breach.ID)
		if err != nil {
			errs = append(errs, err)
			reply.Notices = append(reply.Notices, fmt.Sprintf("Session log could not be saved: %v", err))
		} else {
			reply.Notices = append(reply.Notices, "Session saved to: "+path)
			s.mu.Lock()
			s.outcome.SessionLog = path
			s.mu.Unlock()
		}
	}
	s.logger.Info("counseling session closed", "turns", c.Log().TotalTurns)
	return reply, errors.Join(errs...)
}

// Outcome returns the accumulated outcome.
func (s *Session) Outcome() model.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.outcome
	out.ToolResults = append([]model.ToolResult(nil), s.outcome.ToolResults...)
	out.Errors = append([]model.ToolError(nil), s.outcome.Errors...)
	return out
}
