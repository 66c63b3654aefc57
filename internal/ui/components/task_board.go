package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/ldi/delegate/pkg/models"
)

var (
	proposedGoalStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("214")).
				Border(lipgloss.NormalBorder()).
				BorderForeground(lipgloss.Color("214")).
				Padding(0, 1)

	approvedGoalStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("42")).
				Border(lipgloss.NormalBorder()).
				BorderForeground(lipgloss.Color("42")).
				Padding(0, 1)

	abandonedGoalStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240")).
				Border(lipgloss.NormalBorder()).
				BorderForeground(lipgloss.Color("240")).
				Padding(0, 1)

	boardHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("252")).
				Padding(0, 1)

	subTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1)

	taskLineStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	totalsStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Italic(true)

	placeholderStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240")).
				Italic(true).
				Padding(0, 1)

	priorityStyles = map[models.Priority]lipgloss.Style{
		models.PriorityHigh:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		models.PriorityMedium: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		models.PriorityLow:    lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	}
)

// TaskBoard renders a goal's tasks as a numbered list with assignees and
// totals.
type TaskBoard struct {
	Goal  *models.Goal
	Width int
	Title string
}

func NewTaskBoard(width int) *TaskBoard {
	return &TaskBoard{
		Width: width,
		Title: "Goal",
	}
}

func (b *TaskBoard) SetGoal(g *models.Goal) {
	b.Goal = g
}

func (b *TaskBoard) View() string {
	var content string
	if b.Goal == nil {
		content = placeholderStyle.Render("No goal yet. Describe a project to get a plan.")
	} else {
		content = b.renderBox()
	}

	if b.Title != "" {
		return boardHeaderStyle.Render(b.Title) + "\n" + content
	}
	return content
}

func (b *TaskBoard) style() lipgloss.Style {
	switch b.Goal.Status {
	case models.GoalStatusApproved:
		return approvedGoalStyle
	case models.GoalStatusAbandoned:
		return abandonedGoalStyle
	}
	return proposedGoalStyle
}

func (b *TaskBoard) renderBox() string {
	g := b.Goal
	style := b.style()

	subTitle := subTitleStyle.Foreground(style.GetForeground()).
		Render(fmt.Sprintf("%s (%s)", g.Title, g.Status))

	innerWidth := b.Width - 4
	if innerWidth < 0 {
		innerWidth = 0
	}
	// "NN. " prefix on the first line, matching indent below it.
	textWidth := innerWidth - 4
	if textWidth < 0 {
		textWidth = 0
	}

	var lines []string
	for i, t := range g.Tasks {
		wrapped := taskLineStyle.Width(textWidth).Render(describeTask(t))
		for j, line := range strings.Split(wrapped, "\n") {
			if j == 0 {
				lines = append(lines, fmt.Sprintf("%2d. %s", i+1, line))
			} else {
				lines = append(lines, fmt.Sprintf("    %s", line))
			}
		}
	}
	if len(g.Tasks) == 0 {
		lines = append(lines, "No tasks")
	}
	lines = append(lines, totalsStyle.Render(fmt.Sprintf("Total %dh · %s", g.TotalHours, g.EstimatedDuration)))

	body := strings.Join(lines, "\n")
	return style.Width(max(b.Width-2, 0)).Render(subTitle + "\n" + body)
}

func describeTask(t *models.Task) string {
	badge := strings.ToUpper(string(t.Priority))
	if s, ok := priorityStyles[t.Priority]; ok {
		badge = s.Render(badge)
	}

	assignee := "unassigned"
	if t.AssignedTo != nil {
		assignee = t.AssignedTo.Name
		if assignee == "" {
			assignee = t.AssignedTo.MemberID
		}
	}
	return fmt.Sprintf("%s %s · %dh · %s", badge, t.Title, t.EstimatedHours, assignee)
}
