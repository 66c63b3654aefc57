package console

import (
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/ldi/delegate/internal/session"
	"github.com/ldi/delegate/pkg/models"
)

const helpText = "/new [title] · /sessions · /open N · /rename title · /drop N · /approve · " +
	"/assign N member · /priority N level · /delete N · /suggest N · /draft text · /quit"

// command is a parsed slash command.
type command struct {
	name string
	args []string
}

func parseCommand(line string) (command, error) {
	fields := strings.Fields(strings.TrimPrefix(strings.TrimSpace(line), "/"))
	if len(fields) == 0 {
		return command{}, fmt.Errorf("empty command, try /help")
	}
	return command{name: strings.ToLower(fields[0]), args: fields[1:]}, nil
}

// rest joins the arguments from i on.
func (c command) rest(i int) string {
	if i >= len(c.args) {
		return ""
	}
	return strings.Join(c.args[i:], " ")
}

// index parses the 1-based position argument i against a list of n items.
func (c command) index(i, n int, what string) (int, error) {
	if i >= len(c.args) {
		return 0, fmt.Errorf("/%s needs a %s number", c.name, what)
	}
	v, err := strconv.Atoi(c.args[i])
	if err != nil || v < 1 || v > n {
		return 0, fmt.Errorf("no %s %s", what, c.args[i])
	}
	return v - 1, nil
}

func (m *Model) runCommand(line string) tea.Cmd {
	cmd, err := parseCommand(line)
	if err != nil {
		m.setNotice(err.Error(), true)
		return nil
	}

	switch cmd.name {
	case "quit", "exit":
		m.quitting = true
		return tea.Quit
	case "help":
		m.setNotice(helpText, false)
	case "new":
		m.sync.CreateSession(cmd.rest(0), callbacks[*models.Session](m, "Session created"))
	case "sessions":
		m.sync.LoadSessions(callbacks[[]*models.Session](m, ""))
	case "open":
		i, err := cmd.index(0, len(m.state.Sessions), "session")
		if err != nil {
			m.setNotice(err.Error(), true)
			return nil
		}
		m.sync.Select(m.state.Sessions[i].ID, callbacks[*models.Session](m, ""))
	case "rename":
		if m.state.CurrentID == "" {
			m.setNotice("No session selected", true)
			return nil
		}
		m.sync.UpdateSessionTitle(m.state.CurrentID, cmd.rest(0), callbacks[struct{}](m, "Session renamed"))
	case "drop":
		i, err := cmd.index(0, len(m.state.Sessions), "session")
		if err != nil {
			m.setNotice(err.Error(), true)
			return nil
		}
		target := m.state.Sessions[i]
		m.sync.DeleteSession(target.ID, callbacks[struct{}](m, fmt.Sprintf("Deleted session %q", target.Title)))
	case "delete":
		m.deleteTask(cmd)
	case "approve":
		goal, ok := m.goal()
		if !ok {
			return nil
		}
		m.ctrl.Approve(goal, callbacks[*models.Goal](m, "Goal approved, tasks are now tracked"))
	case "assign":
		m.assign(cmd)
	case "priority":
		goal, task, ok := m.task(cmd)
		if !ok {
			return nil
		}
		m.ctrl.SetPriority(goal, task.ID, cmd.rest(1), callbacks[*models.Task](m, ""))
	case "suggest":
		goal, task, ok := m.task(cmd)
		if !ok {
			return nil
		}
		if best := m.ctrl.SuggestAssignee(goal, task.ID); best != nil {
			m.setNotice(fmt.Sprintf("Best match for %q: %s (%s)", task.Title, best.Name, best.Role), false)
		} else {
			m.setNotice("No team members to suggest", true)
		}
	case "draft":
		g, err := m.ctrl.Draft(cmd.rest(0))
		if err != nil {
			m.setNotice(err.Error(), true)
			return nil
		}
		m.setNotice(fmt.Sprintf("Draft: %s, %d tasks, %dh (%s)", g.Title, len(g.Tasks), g.TotalHours, g.EstimatedDuration), false)
	default:
		m.setNotice(fmt.Sprintf("Unknown command /%s, try /help", cmd.name), true)
	}
	return nil
}

// goal returns the live goal of the current session.
func (m *Model) goal() (*models.Goal, bool) {
	if m.state.Current == nil || m.state.Current.Goal == nil {
		m.setNotice("This session has no goal yet", true)
		return nil, false
	}
	return m.state.Current.Goal, true
}

// task resolves the task number in the first argument.
func (m *Model) task(cmd command) (*models.Goal, *models.Task, bool) {
	goal, ok := m.goal()
	if !ok {
		return nil, nil, false
	}
	i, err := cmd.index(0, len(goal.Tasks), "task")
	if err != nil {
		m.setNotice(err.Error(), true)
		return nil, nil, false
	}
	return goal, goal.Tasks[i], true
}

func (m *Model) deleteTask(cmd command) {
	goal, task, ok := m.task(cmd)
	if !ok {
		return
	}
	m.ctrl.RemoveTask(goal, task.ID, callbacks[struct{}](m, fmt.Sprintf("Deleted %q", task.Title)))
}

// assign accepts a member name or id. "none" clears the assignment.
func (m *Model) assign(cmd command) {
	goal, task, ok := m.task(cmd)
	if !ok {
		return
	}
	who := cmd.rest(1)
	if who == "" {
		m.setNotice("/assign needs a member name", true)
		return
	}

	memberID := ""
	if !strings.EqualFold(who, "none") {
		member := findMember(m.sync.Members(), who)
		if member == nil {
			m.setNotice(fmt.Sprintf("No team member %q", who), true)
			return
		}
		memberID = member.ID
	}
	m.ctrl.Assign(goal, task.ID, memberID, callbacks[*models.Task](m, ""))
}

func findMember(roster []*models.TeamMember, who string) *models.TeamMember {
	if m := models.FindMember(roster, who); m != nil {
		return m
	}
	for _, m := range roster {
		if strings.EqualFold(m.Name, who) {
			return m
		}
	}
	return nil
}

// callbacks reports failures, and success when a message is given, on
// the notice line.
func callbacks[T any](m *Model, success string) session.Callbacks[T] {
	return session.Callbacks[T]{
		OnSuccess: func(T) {
			if success != "" {
				m.post(noticeMsg{text: success})
			}
		},
		OnError: func(err error) {
			m.post(noticeMsg{text: err.Error(), err: true})
		},
	}
}
