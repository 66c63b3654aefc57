// Package console is an interactive chat console over a session
// synchronizer. Everything it draws is a projection of the synchronizer's
// state; input is turned into synchronizer and controller operations.
package console

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/ldi/delegate/internal/delegation"
	"github.com/ldi/delegate/internal/session"
	"github.com/ldi/delegate/internal/ui/components"
	"github.com/ldi/delegate/pkg/models"
)

var (
	headerTextStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			Padding(0, 1)

	statsStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Italic(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	noticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	sessionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	currentSessionStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("86")).
				Bold(true)
)

// changedMsg reports that the synchronizer state changed.
type changedMsg struct{}

// noticeMsg is a one-line message for the status bar.
type noticeMsg struct {
	text string
	err  bool
}

type Model struct {
	sync *session.Synchronizer
	ctrl *delegation.Controller

	changes     <-chan struct{}
	unsubscribe func()
	notices     chan noticeMsg

	state      session.State
	input      textinput.Model
	transcript *components.Transcript
	board      *components.TaskBoard
	notice     noticeMsg

	width        int
	height       int
	sidebarWidth int
	ready        bool
	quitting     bool
}

func New(sync *session.Synchronizer, ctrl *delegation.Controller) *Model {
	input := textinput.New()
	input.Placeholder = "Describe a project, or /help"
	input.Prompt = "> "
	input.CharLimit = 2000
	input.Focus()

	changes, unsubscribe := sync.Subscribe()
	m := &Model{
		sync:        sync,
		ctrl:        ctrl,
		changes:     changes,
		unsubscribe: unsubscribe,
		notices:     make(chan noticeMsg, 32),
		input:       input,
		transcript:  components.NewTranscript(80, 10),
		board:       components.NewTaskBoard(80),
	}
	m.transcript.Placeholder = "No messages yet. Describe a project to get a plan."
	m.refresh()
	return m
}

// Close stops listening for state changes.
func (m *Model) Close() {
	m.unsubscribe()
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.bootstrap(),
		waitForChange(m.changes),
		waitForNotice(m.notices),
	)
}

func (m *Model) bootstrap() tea.Cmd {
	return func() tea.Msg {
		if err := m.sync.Bootstrap(context.Background()); err != nil {
			return noticeMsg{text: err.Error(), err: true}
		}
		return changedMsg{}
	}
}

func waitForChange(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return changedMsg{}
	}
}

func waitForNotice(ch <-chan noticeMsg) tea.Cmd {
	return func() tea.Msg {
		return <-ch
	}
}

// post queues a notice from an operation's goroutine. Notices are dropped
// when the queue is full.
func (m *Model) post(n noticeMsg) {
	select {
	case m.notices <- n:
	default:
	}
}

func (m *Model) setNotice(text string, isErr bool) {
	m.notice = noticeMsg{text: text, err: isErr}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "enter":
			line := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			if cmd := m.submit(line); cmd != nil {
				return m, cmd
			}
			return m, nil
		case "pgup", "pgdown":
			return m, m.transcript.Update(msg)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.recalculateLayout()
		return m, nil

	case changedMsg:
		m.refresh()
		return m, waitForChange(m.changes)

	case noticeMsg:
		m.notice = msg
		return m, waitForNotice(m.notices)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// submit runs a slash command or sends line to the current session.
func (m *Model) submit(line string) tea.Cmd {
	if line == "" {
		return nil
	}
	if strings.HasPrefix(line, "/") {
		return m.runCommand(line)
	}

	op := m.sync.SendMessage(m.state.CurrentID, line, callbacks[*models.Exchange](m, ""))
	if op.Skipped() {
		m.setNotice("Still waiting for the previous reply", true)
	}
	return nil
}

// refresh reprojects the synchronizer state into the widgets.
func (m *Model) refresh() {
	m.state = m.sync.State()

	var turns []components.Turn
	var goal *models.Goal
	if cur := m.state.Current; cur != nil {
		for _, e := range cur.Exchanges {
			turns = append(turns, components.Turn{User: true, Text: e.UserText})
			turns = append(turns, components.Turn{Text: e.AIText})
		}
		goal = cur.Goal
	}
	m.transcript.SetTurns(turns)
	m.board.SetGoal(goal)
	m.recalculateLayout()
}

func (m *Model) recalculateLayout() {
	if !m.ready {
		return
	}

	m.sidebarWidth = m.width / 4
	if m.sidebarWidth < 20 {
		m.sidebarWidth = 20
	}
	mainWidth := m.width - m.sidebarWidth
	m.board.Width = mainWidth - 1
	m.input.Width = m.width - 4

	available := m.bodyHeight()
	boardHeight := lipgloss.Height(m.board.View())
	if boardHeight > available/2 && available > 10 {
		boardHeight = available / 2
	}
	transcriptHeight := available - boardHeight
	if transcriptHeight < 3 {
		transcriptHeight = 3
	}
	m.transcript.SetSize(mainWidth-1, transcriptHeight)
}

// bodyHeight is the height left after the header and the three footer
// lines.
func (m *Model) bodyHeight() int {
	h := m.height - 4
	if h < 5 {
		h = 5
	}
	return h
}

func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "Starting console..."
	}

	available := m.bodyHeight()

	sidebar := lipgloss.NewStyle().
		Width(m.sidebarWidth-1).
		Height(available).
		Border(lipgloss.NormalBorder(), false, true, false, false).
		BorderForeground(lipgloss.Color("240")).
		Render(m.renderSessions())

	mainWidth := m.width - m.sidebarWidth
	board := m.board.View()
	if lines := strings.Split(board, "\n"); len(lines) > available-m.transcript.Height() {
		keep := max(available-m.transcript.Height(), 0)
		board = strings.Join(lines[:keep], "\n")
	}
	main := lipgloss.NewStyle().
		Width(mainWidth).
		Height(available).
		Render(m.transcript.View() + "\n" + board)

	body := lipgloss.JoinHorizontal(lipgloss.Top, sidebar, main)
	return m.renderHeader() + "\n" + body + "\n" + m.renderNotice() + "\n" + m.input.View() + "\n" + helpStyle.Render("enter to send · /help for commands · esc to quit")
}

func (m *Model) renderHeader() string {
	title := "No session"
	if cur := m.state.Current; cur != nil {
		title = fmt.Sprintf("%s · %s", cur.Title, cur.State())
	}

	var status []string
	if m.state.Sending {
		status = append(status, "waiting for reply")
	} else if m.state.Loading {
		status = append(status, "syncing")
	}
	status = append(status, fmt.Sprintf("%d members", len(m.state.Members)))

	return headerTextStyle.Render("Delegate | "+title) + " " + statsStyle.Render(strings.Join(status, " · "))
}

func (m *Model) renderSessions() string {
	if len(m.state.Sessions) == 0 {
		return statsStyle.Render("No sessions")
	}
	var sb strings.Builder
	for i, s := range m.state.Sessions {
		line := fmt.Sprintf("%d. %s", i+1, s.Title)
		if s.ID == m.state.CurrentID {
			sb.WriteString(currentSessionStyle.Render("> " + line))
		} else {
			sb.WriteString(sessionStyle.Render("  " + line))
		}
		sb.WriteString("\n")
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

func (m *Model) renderNotice() string {
	if m.notice.text == "" {
		if m.state.Err != nil {
			return errorStyle.Render(m.state.Err.Error())
		}
		return ""
	}
	if m.notice.err {
		return errorStyle.Render(m.notice.text)
	}
	return noticeStyle.Render(m.notice.text)
}

// Run runs the console until the user quits or ctx is done.
func Run(ctx context.Context, sync *session.Synchronizer, ctrl *delegation.Controller) error {
	m := New(sync, ctrl)
	defer m.Close()

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
