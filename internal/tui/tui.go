// Package tui is the terminal conversation window for intervention
// sessions.
package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/ppiankov/pulseguard/internal/model"
	"github.com/ppiankov/pulseguard/internal/session"
)

// Interactive reports whether stdin is a terminal.
func Interactive() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Console runs a bubbletea program per session.
type Console struct {
	In        io.Reader
	Out       io.Writer
	AltScreen bool
	Logger    *slog.Logger
}

// Converse implements session.Console. It returns when the session closes,
// the user quits or ctx ends.
func (c Console) Converse(ctx context.Context, s *session.Session) error {
	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if c.In != nil {
		opts = append(opts, tea.WithInput(c.In))
	}
	if c.Out != nil {
		opts = append(opts, tea.WithOutput(c.Out))
	}
	if c.AltScreen {
		opts = append(opts, tea.WithAltScreen())
	}

	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("terminal console opened", "intervention_id", s.Breach().ID)

	m := newModel(ctx, s)
	_, err := tea.NewProgram(m, opts...).Run()
	if err != nil && errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		logger.Warn("terminal console closed by deadline", "intervention_id", s.Breach().ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("terminal console: %w", err)
	}
	return nil
}

type theme struct {
	header   lipgloss.Style
	status   lipgloss.Style
	errText  lipgloss.Style
	notice   lipgloss.Style
	help     lipgloss.Style
	speakers map[string]lipgloss.Style
}

func newTheme() theme {
	red := lipgloss.Color("#ff5f87")
	blue := lipgloss.Color("#5fafff")
	mint := lipgloss.Color("#5fffaf")
	muted := lipgloss.Color("#8a8aa8")

	return theme{
		header: lipgloss.NewStyle().
			Bold(true).
			Foreground(red).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(red).
			Padding(0, 1),
		status:  lipgloss.NewStyle().Foreground(blue),
		errText: lipgloss.NewStyle().Foreground(red).Bold(true),
		notice:  lipgloss.NewStyle().Foreground(muted).Italic(true),
		help:    lipgloss.NewStyle().Foreground(muted),
		speakers: map[string]lipgloss.Style{
			"you":                    lipgloss.NewStyle().Foreground(mint).Bold(true),
			session.SpeakerAssistant: lipgloss.NewStyle().Foreground(blue).Bold(true),
			session.SpeakerCounselor: lipgloss.NewStyle().Foreground(lipgloss.Color("#ffd75f")).Bold(true),
			session.SpeakerSystem:    lipgloss.NewStyle().Foreground(muted).Bold(true),
		},
	}
}

type replyMsg struct {
	reply session.Reply
	err   error
}

type closedMsg struct {
	reply session.Reply
	err   error
}

type chatModel struct {
	ctx     context.Context
	sess    *session.Session
	theme   theme
	input   textinput.Model
	view    viewport.Model
	spinner spinner.Model

	lines   []string
	busy    bool
	closed  bool
	lastErr error
	width   int
	height  int
}

func newModel(ctx context.Context, s *session.Session) chatModel {
	input := textinput.New()
	input.Prompt = "❯ "
	input.CharLimit = 2000
	input.Placeholder = "Tell me how you feel..."
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := chatModel{
		ctx:     ctx,
		sess:    s,
		theme:   newTheme(),
		input:   input,
		view:    viewport.New(80, 20),
		spinner: sp,
	}
	m.appendLine(session.SpeakerAssistant, s.Greeting())
	return m
}

func (m chatModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

func (m *chatModel) appendLine(speaker, text string) {
	style, ok := m.theme.speakers[speaker]
	if !ok {
		style = m.theme.speakers[session.SpeakerSystem]
	}
	m.lines = append(m.lines, style.Render(speaker+":")+" "+text)
	m.refresh()
}

func (m *chatModel) appendNotice(text string) {
	m.lines = append(m.lines, m.theme.notice.Render("("+text+")"))
	m.refresh()
}

func (m *chatModel) refresh() {
	width := m.view.Width
	if width <= 0 {
		width = 80
	}
	m.view.SetContent(lipgloss.NewStyle().Width(width).Render(strings.Join(m.lines, "\n\n")))
	m.view.GotoBottom()
}

func (m *chatModel) resize() {
	headerHeight := 3
	footerHeight := 4
	m.view.Width = max(20, m.width)
	m.view.Height = max(3, m.height-headerHeight-footerHeight)
	m.input.Width = max(10, m.width-4)
	m.refresh()
}

func (m chatModel) send(text string) tea.Cmd {
	return func() tea.Msg {
		reply, err := m.sess.Send(m.ctx, text)
		return replyMsg{reply: reply, err: err}
	}
}

func (m chatModel) close() tea.Cmd {
	return func() tea.Msg {
		reply, err := m.sess.Close(context.WithoutCancel(m.ctx))
		return closedMsg{reply: reply, err: err}
	}
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case replyMsg:
		m.busy = false
		m.lastErr = msg.err
		if msg.reply.Text != "" {
			m.appendLine(msg.reply.Speaker, msg.reply.Text)
		}
		for _, n := range msg.reply.Notices {
			m.appendNotice(n)
		}
		if msg.reply.Closed {
			m.closed = true
			m.input.Blur()
			m.appendNotice("Session closed. Press Enter to exit.")
		}

	case closedMsg:
		for _, n := range msg.reply.Notices {
			m.appendNotice(n)
		}
		return m, tea.Quit

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			if m.closed {
				return m, tea.Quit
			}
			m.busy = true
			return m, m.close()
		case "enter":
			if m.closed {
				return m, tea.Quit
			}
			if m.busy {
				return m, nil
			}
			text := strings.TrimSpace(m.input.Value())
			if text == "" {
				return m, nil
			}
			m.input.Reset()
			m.appendLine("you", text)
			m.busy = true
			return m, m.send(text)
		}
		if !m.closed {
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			cmds = append(cmds, cmd)
		}

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.view, cmd = m.view.Update(msg)
		cmds = append(cmds, cmd)

	default:
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

func (m chatModel) statusLine() string {
	b := m.sess.Breach()
	state := string(m.sess.State())
	if m.busy {
		state = m.spinner.View() + " " + state
	}
	line := fmt.Sprintf("%s · %s · mode %s · %s", model.FormatBPM(b.HeartRate), b.Risk, m.sess.Mode(), state)
	if m.lastErr != nil {
		return m.theme.status.Render(line) + "  " + m.theme.errText.Render(m.lastErr.Error())
	}
	return m.theme.status.Render(line)
}

func (m chatModel) View() string {
	header := m.theme.header.Render("Heart rate alert")
	footer := m.theme.help.Render("Enter to send · Esc to end the session")
	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.view.View(),
		m.input.View(),
		m.statusLine(),
		footer,
	)
}
