package components

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	assistantStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")).
			Bold(true)

	outputStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	emptyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)

	scrollbarTrackStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("236"))

	scrollbarHandleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("241"))
)

// Turn is one side of a conversation.
type Turn struct {
	User bool
	Text string
}

// Transcript renders a conversation in a scrolling viewport.
type Transcript struct {
	viewport    viewport.Model
	turns       []Turn
	ready       bool
	width       int
	height      int
	Placeholder string
}

func NewTranscript(width, height int) *Transcript {
	return &Transcript{
		viewport:    viewport.New(width, height),
		width:       width,
		height:      height,
		Placeholder: "No messages yet",
	}
}

func (t *Transcript) SetSize(width, height int) {
	t.width = width
	t.height = height
	vpWidth := width
	if width > 0 {
		vpWidth = width - 1
	}
	if !t.ready {
		t.viewport = viewport.New(vpWidth, height)
		t.ready = true
	} else {
		t.viewport.Width = vpWidth
		t.viewport.Height = height
	}
	t.updateContent()
}

// SetTurns replaces the conversation and scrolls to the latest turn.
func (t *Transcript) SetTurns(turns []Turn) {
	t.turns = turns
	t.updateContent()
}

func (t *Transcript) Len() int {
	return len(t.turns)
}

func (t *Transcript) render() string {
	if len(t.turns) == 0 {
		return emptyStyle.Render(t.Placeholder)
	}

	var sb strings.Builder
	for i, turn := range t.turns {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		if turn.User {
			sb.WriteString(userStyle.Render("You"))
		} else {
			sb.WriteString(assistantStyle.Render("Delegate"))
		}
		sb.WriteString("\n")
		sb.WriteString(turn.Text)
	}
	return sb.String()
}

func (t *Transcript) updateContent() {
	width := t.viewport.Width
	content := t.render()
	if width > 0 {
		content = outputStyle.Width(width).Render(content)
	} else {
		content = outputStyle.Render(content)
	}
	t.viewport.SetContent(content)
	t.viewport.GotoBottom()
}

func (t *Transcript) Update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	t.viewport, cmd = t.viewport.Update(msg)
	return cmd
}

func (t *Transcript) View() string {
	if !t.ready {
		return ""
	}

	if t.viewport.TotalLineCount() <= t.viewport.Height {
		return t.viewport.View()
	}

	h := t.viewport.Height
	handlePos := int(float64(h-1) * t.viewport.ScrollPercent())

	var sb strings.Builder
	for i := 0; i < h; i++ {
		if i == handlePos {
			sb.WriteString(scrollbarHandleStyle.Render("┃"))
		} else {
			sb.WriteString(scrollbarTrackStyle.Render("│"))
		}
		if i < h-1 {
			sb.WriteString("\n")
		}
	}

	return lipgloss.JoinHorizontal(lipgloss.Top, t.viewport.View(), sb.String())
}

func (t *Transcript) Height() int {
	return t.viewport.Height
}
