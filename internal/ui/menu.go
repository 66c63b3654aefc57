package ui

import (
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	logoStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	itemStyle         = lipgloss.NewStyle().PaddingLeft(2)
	selectedItemStyle = lipgloss.NewStyle().PaddingLeft(2).Foreground(lipgloss.Color("12")).Bold(true)
	summaryStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	hintStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

const logo = `
     _      _                  _
  __| | ___| | ___  __ _  __ _| |_ ___
 / _' |/ _ \ |/ _ \/ _' |/ _' | __/ _ \
| (_| |  __/ |  __/ (_| | (_| | ||  __/
 \__,_|\___|_|\___|\__, |\__,_|\__\___|
                   |___/
`

// MenuItem is a launcher entry. Command is the subcommand it runs.
type MenuItem struct {
	Command string
	Summary string
}

// Items are the launcher entries in display order.
var Items = []MenuItem{
	{Command: "console", Summary: "Describe a project and shape its plan with your team"},
	{Command: "serve", Summary: "Serve sessions and goals over HTTP"},
	{Command: "mcp", Summary: "Expose sessions and tasks as MCP tools on stdio"},
	{Command: "sessions", Summary: "List sessions, most recent first"},
	{Command: "team", Summary: "Show who tasks can be delegated to"},
	{Command: "init", Summary: "Create .delegate/ with a config, database and sample team"},
}

// MenuModel picks a command when delegate runs without arguments. Until the
// project is initialized the cursor starts on init.
type MenuModel struct {
	items       []MenuItem
	cursor      int
	selected    string
	initialized bool
	quitting    bool
}

func NewMenuModel(initialized bool) MenuModel {
	m := MenuModel{items: Items, initialized: initialized}
	if !initialized {
		m.cursor = m.indexOf("init")
	}
	return m
}

func (m MenuModel) indexOf(command string) int {
	for i, item := range m.items {
		if item.Command == command {
			return i
		}
	}
	return 0
}

func (m MenuModel) Init() tea.Cmd {
	return nil
}

func (m MenuModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch k := key.String(); k {
	case "ctrl+c", "q", "esc":
		m.quitting = true
		return m, tea.Quit

	case "up", "k":
		m.cursor = (m.cursor - 1 + len(m.items)) % len(m.items)

	case "down", "j", "tab":
		m.cursor = (m.cursor + 1) % len(m.items)

	case "home", "g":
		m.cursor = 0

	case "end", "G":
		m.cursor = len(m.items) - 1

	case "enter":
		m.selected = m.items[m.cursor].Command
		return m, tea.Quit

	default:
		// Number keys pick an entry directly.
		if n, err := strconv.Atoi(k); err == nil && n >= 1 && n <= len(m.items) {
			m.cursor = n - 1
			m.selected = m.items[m.cursor].Command
			return m, tea.Quit
		}
	}

	return m, nil
}

func (m MenuModel) View() string {
	if m.quitting {
		return ""
	}

	var s strings.Builder

	s.WriteString(logoStyle.Render(logo))
	s.WriteString("\n")
	s.WriteString(summaryStyle.Render("Turn project requests into delegated task plans."))
	s.WriteString("\n\n")

	width := 0
	for _, item := range m.items {
		width = max(width, len(item.Command))
	}
	for i, item := range m.items {
		line := fmt.Sprintf("%d. %-*s  ", i+1, width, item.Command)
		if m.cursor == i {
			s.WriteString(selectedItemStyle.Render("> " + line))
		} else {
			s.WriteString(itemStyle.Render("  " + line))
		}
		s.WriteString(summaryStyle.Render(item.Summary))
		s.WriteString("\n")
	}

	if !m.initialized {
		s.WriteString("\n")
		s.WriteString(hintStyle.Render("No .delegate/ directory here yet. Run init to set up the project."))
		s.WriteString("\n")
	}

	s.WriteString("\n(arrows or j/k to move, 1-6 or enter to select, q to quit)\n")

	return s.String()
}

func (m MenuModel) Selected() string {
	return m.selected
}

// RunMenu shows the launcher and returns the chosen command, or "" when
// the user quits.
func RunMenu(initialized bool) (string, error) {
	p := tea.NewProgram(NewMenuModel(initialized))
	finalModel, err := p.Run()
	if err != nil {
		return "", err
	}
	return finalModel.(MenuModel).Selected(), nil
}
