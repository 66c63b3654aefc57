package components

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/ldi/delegate/pkg/models"
)

func testGoal() *models.Goal {
	g := &models.Goal{
		Title:  "Website Development",
		Status: models.GoalStatusProposed,
		Tasks: []*models.Task{
			{Title: "Requirements & sitemap", Priority: models.PriorityHigh, EstimatedHours: 8,
				AssignedTo: &models.Assignment{MemberID: "m1", Name: "Priya", Role: "Product Manager"}},
			{Title: "Deployment & launch", Priority: models.PriorityMedium, EstimatedHours: 6},
		},
	}
	g.Recompute()
	return g
}

func TestTaskBoard(t *testing.T) {
	b := NewTaskBoard(80)
	b.SetGoal(testGoal())

	view := b.View()

	for _, want := range []string{
		"Goal",
		"Website Development (proposed)",
		" 1. HIGH Requirements & sitemap · 8h · Priya",
		" 2. MEDIUM Deployment & launch · 6h · unassigned",
		"Total 14h · 2 working days",
	} {
		if !strings.Contains(view, want) {
			t.Errorf("expected view to contain %q\n%s", want, view)
		}
	}
}

func TestTaskBoardEmptyState(t *testing.T) {
	b := NewTaskBoard(80)
	if view := b.View(); !strings.Contains(view, "No goal yet") {
		t.Errorf("expected placeholder when there is no goal")
	}

	g := testGoal()
	g.Tasks = nil
	g.Recompute()
	b.SetGoal(g)
	view := b.View()
	if !strings.Contains(view, "No tasks") || !strings.Contains(view, "Total 0h · 0 working days") {
		t.Errorf("expected empty goal to render no tasks and zero totals\n%s", view)
	}
}

func TestTaskBoardWidth(t *testing.T) {
	width := 30
	b := NewTaskBoard(width)
	b.SetGoal(testGoal())

	for _, line := range strings.Split(b.View(), "\n") {
		if w := lipgloss.Width(line); w > width {
			t.Errorf("line too wide: %d > %d. Line: %q", w, width, line)
		}
	}
}

func TestTranscript(t *testing.T) {
	tr := NewTranscript(80, 20)
	tr.SetSize(80, 20)

	if view := tr.View(); !strings.Contains(view, "No messages yet") {
		t.Errorf("expected placeholder for an empty transcript")
	}

	tr.SetTurns([]Turn{
		{User: true, Text: "We need a website"},
		{Text: "Here's a plan."},
	})

	view := tr.View()
	for _, want := range []string{"You", "We need a website", "Delegate", "Here's a plan."} {
		if !strings.Contains(view, want) {
			t.Errorf("expected view to contain %q", want)
		}
	}
	if strings.Index(view, "We need a website") > strings.Index(view, "Here's a plan.") {
		t.Errorf("expected turns in order")
	}
}

func TestTranscriptScrollbar(t *testing.T) {
	width, height := 20, 5
	tr := NewTranscript(width, height)
	tr.SetSize(width, height)

	turns := make([]Turn, 10)
	for i := range turns {
		turns[i] = Turn{User: i%2 == 0, Text: "line"}
	}
	tr.SetTurns(turns)

	view := tr.View()
	if !strings.Contains(view, "┃") {
		t.Errorf("expected view to contain scrollbar handle '┃'")
	}
	if !strings.Contains(view, "│") {
		t.Errorf("expected view to contain scrollbar track '│'")
	}
}

func TestTranscriptNoScrollbar(t *testing.T) {
	width, height := 20, 10
	tr := NewTranscript(width, height)
	tr.SetSize(width, height)
	tr.SetTurns([]Turn{{User: true, Text: "short"}})

	view := tr.View()
	if strings.Contains(view, "┃") || strings.Contains(view, "│") {
		t.Errorf("expected view to NOT contain scrollbar when content fits")
	}
}

func TestTranscriptWrapping(t *testing.T) {
	width, height := 20, 10
	tr := NewTranscript(width, height)
	tr.SetSize(width, height)

	tr.SetTurns([]Turn{{User: true, Text: "this is a very long line that should definitely wrap because it exceeds the width of twenty characters"}})

	lines := strings.Split(strings.TrimSpace(tr.View()), "\n")
	if len(lines) <= 2 {
		t.Errorf("expected content to wrap into multiple lines, but got %d lines", len(lines))
	}
	for i, line := range lines {
		if w := lipgloss.Width(line); w > width {
			t.Errorf("line %d is too wide: %d > %d. Content: %q", i, w, width, line)
		}
	}
}
