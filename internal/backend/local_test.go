package backend

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ldi/delegate/internal/db"
	"github.com/ldi/delegate/internal/roster"
	"github.com/ldi/delegate/pkg/models"
	"go.uber.org/zap"
)

func newTestLocal(t *testing.T) *Local {
	t.Helper()
	store, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("Failed to init database: %v", err)
	}
	team := []*models.TeamMember{
		{Name: "Priya", Role: "Product Manager", Skills: []string{"planning", "project management"}},
		{Name: "Diego", Role: "Designer", Skills: []string{"ui design", "ux research"}},
		{Name: "Mei", Role: "Engineer", Skills: []string{"frontend", "react", "backend api"}},
	}
	if _, err := roster.Seed(ctx, store, team); err != nil {
		t.Fatalf("Failed to seed roster: %v", err)
	}
	return NewLocal(store, nil, zap.NewNop())
}

func newTestSession(t *testing.T, l *Local) *models.Session {
	t.Helper()
	s, err := l.CreateSession(context.Background(), "Bakery")
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	return s
}

func TestCreateSessionDefaultsTitle(t *testing.T) {
	l := newTestLocal(t)
	s, err := l.CreateSession(context.Background(), "  ")
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	if s.Title != DefaultSessionTitle {
		t.Errorf("Expected default title, got %q", s.Title)
	}
}

func TestSendMessageProposesGoal(t *testing.T) {
	l := newTestLocal(t)
	ctx := context.Background()
	s := newTestSession(t, l)

	e, err := l.SendMessage(ctx, s.ID, "Build a website for our bakery")
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if e.Goal == nil {
		t.Fatal("Expected the exchange to embed a goal")
	}
	if e.Goal.Archetype != models.ArchetypeWebsite {
		t.Errorf("Expected website archetype, got %s", e.Goal.Archetype)
	}
	if e.Goal.TotalHours != 98 || e.Goal.EstimatedDuration != "13 working days" {
		t.Errorf("Unexpected aggregates: %d hours, %s", e.Goal.TotalHours, e.Goal.EstimatedDuration)
	}
	if e.GoalID != e.Goal.ID {
		t.Errorf("Expected exchange linked to goal")
	}
	if !strings.Contains(e.AIText, "Website Development") || !strings.Contains(e.AIText, "1. Requirements & sitemap") {
		t.Errorf("Reply does not describe the plan:\n%s", e.AIText)
	}
	if strings.Contains(e.AIText, "replaces") {
		t.Errorf("First plan must not claim to replace another:\n%s", e.AIText)
	}

	// The frontend task goes to the member with frontend skills.
	for _, task := range e.Goal.Tasks {
		if task.Title == "Frontend development" && (task.AssignedTo == nil || task.AssignedTo.Name != "Mei") {
			t.Errorf("Expected frontend work assigned to Mei, got %+v", task.AssignedTo)
		}
	}

	got, err := l.GetSession(ctx, s.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.State() != models.SessionStateGoalProposed {
		t.Errorf("Expected goal_proposed, got %s", got.State())
	}

	again, err := l.SendMessage(ctx, s.ID, "Actually, plan a marketing campaign")
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if !strings.Contains(again.AIText, "This replaces the previous unapproved plan.") {
		t.Errorf("Expected replacement notice:\n%s", again.AIText)
	}
}

func TestSendMessageClarifies(t *testing.T) {
	l := newTestLocal(t)
	s := newTestSession(t, l)

	e, err := l.SendMessage(context.Background(), s.ID, "hello there")
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if e.Goal != nil {
		t.Errorf("Expected no goal, got %+v", e.Goal)
	}
	if !strings.HasPrefix(e.AIText, "Got it.") {
		t.Errorf("Expected clarification reply, got %q", e.AIText)
	}
}

func TestSendMessageErrors(t *testing.T) {
	l := newTestLocal(t)
	ctx := context.Background()
	s := newTestSession(t, l)

	_, err := l.SendMessage(ctx, s.ID, "   ")
	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("Expected TransportError, got %v", err)
	}
	var verr *models.ValidationError
	if !errors.As(err, &verr) || verr.Field != "text" {
		t.Errorf("Expected validation error on text, got %v", err)
	}

	if _, err := l.SendMessage(ctx, "missing", "hi"); !errors.Is(err, ErrConflict) {
		t.Errorf("Expected ErrConflict, got %v", err)
	}
	if _, err := l.GetSession(ctx, "missing"); !errors.Is(err, ErrConflict) {
		t.Errorf("Expected ErrConflict, got %v", err)
	}
}

func TestApproveGoal(t *testing.T) {
	l := newTestLocal(t)
	ctx := context.Background()
	s := newTestSession(t, l)

	e, err := l.SendMessage(ctx, s.ID, "Plan the quarterly offsite")
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if e.Goal == nil || e.Goal.Archetype != models.ArchetypeGeneric {
		t.Fatalf("Expected a generic goal, got %+v", e.Goal)
	}

	g, err := l.ApproveGoal(ctx, e.Goal.ID)
	if err != nil {
		t.Fatalf("ApproveGoal failed: %v", err)
	}
	if g.Status != models.GoalStatusApproved {
		t.Errorf("Expected approved, got %s", g.Status)
	}
	for _, task := range g.Tasks {
		if task.Status != models.TaskStatusTodo {
			t.Errorf("Expected %s to be todo, got %s", task.Title, task.Status)
		}
	}

	if _, err := l.ApproveGoal(ctx, e.Goal.ID); err != nil {
		t.Errorf("Second approval should be a no-op, got %v", err)
	}

	// Tasks added after approval are tracked immediately.
	task, err := l.CreateTask(ctx, g.ID, models.TaskInput{Title: "Book venue", EstimatedHours: 2})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	if task.Status != models.TaskStatusTodo {
		t.Errorf("Expected todo, got %s", task.Status)
	}
}

func TestApproveAbandonedGoalConflicts(t *testing.T) {
	l := newTestLocal(t)
	ctx := context.Background()
	s := newTestSession(t, l)

	first, err := l.SendMessage(ctx, s.ID, "build a landing page")
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if _, err := l.SendMessage(ctx, s.ID, "build an ios app instead"); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	_, err = l.ApproveGoal(ctx, first.Goal.ID)
	if !errors.Is(err, ErrConflict) || !errors.Is(err, db.ErrGoalClosed) {
		t.Errorf("Expected conflict wrapping ErrGoalClosed, got %v", err)
	}
	if _, err := l.CreateTask(ctx, first.Goal.ID, models.TaskInput{Title: "late"}); !errors.Is(err, ErrConflict) {
		t.Errorf("Expected conflict adding to an abandoned goal, got %v", err)
	}
}

func TestAbandonedGoalTasksAreClosed(t *testing.T) {
	l := newTestLocal(t)
	ctx := context.Background()
	s := newTestSession(t, l)

	first, err := l.SendMessage(ctx, s.ID, "build a landing page")
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if _, err := l.SendMessage(ctx, s.ID, "build an ios app instead"); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	members, err := l.ListMembers(ctx)
	if err != nil {
		t.Fatalf("ListMembers failed: %v", err)
	}
	task := first.Goal.Tasks[0]

	if err := l.DeleteTask(ctx, task.ID); !errors.Is(err, ErrConflict) || !errors.Is(err, db.ErrGoalClosed) {
		t.Errorf("Expected conflict deleting from an abandoned goal, got %v", err)
	}
	if _, err := l.AssignTask(ctx, task.ID, members[1].ID); !errors.Is(err, ErrConflict) || !errors.Is(err, db.ErrGoalClosed) {
		t.Errorf("Expected conflict assigning in an abandoned goal, got %v", err)
	}
	if _, err := l.AssignTask(ctx, "missing", members[1].ID); !errors.Is(err, ErrConflict) || !errors.Is(err, db.ErrNotFound) {
		t.Errorf("Expected conflict assigning a missing task, got %v", err)
	}
	if err := l.DeleteTask(ctx, "missing"); !errors.Is(err, ErrConflict) {
		t.Errorf("Expected conflict deleting a missing task, got %v", err)
	}

	stored, err := l.store.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if stored == nil {
		t.Fatal("Expected the task of the abandoned goal to survive")
	}
	if stored.AssignedTo == nil || stored.AssignedTo.MemberID != task.AssignedTo.MemberID {
		t.Errorf("Expected the assignment to stay with %s, got %+v", task.AssignedTo.Name, stored.AssignedTo)
	}
}

func TestTaskOperations(t *testing.T) {
	l := newTestLocal(t)
	ctx := context.Background()
	s := newTestSession(t, l)

	e, err := l.SendMessage(ctx, s.ID, "launch a marketing campaign")
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	goal := e.Goal

	t.Run("create auto-assigns", func(t *testing.T) {
		task, err := l.CreateTask(ctx, goal.ID, models.TaskInput{
			Title:          "Design banners",
			Priority:       models.PriorityHigh,
			EstimatedHours: 5,
			RequiredSkills: []string{"design"},
			Dependencies:   []string{goal.Tasks[0].ID},
		})
		if err != nil {
			t.Fatalf("CreateTask failed: %v", err)
		}
		if task.AssignedTo == nil || task.AssignedTo.Name != "Diego" {
			t.Errorf("Expected Diego, got %+v", task.AssignedTo)
		}
		if task.Position != len(goal.Tasks) {
			t.Errorf("Expected position %d, got %d", len(goal.Tasks), task.Position)
		}
	})

	t.Run("create validates before storing", func(t *testing.T) {
		_, err := l.CreateTask(ctx, goal.ID, models.TaskInput{Title: "x", EstimatedHours: -1})
		var verr *models.ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("Expected validation error, got %v", err)
		}
		if _, err := l.CreateTask(ctx, goal.ID, models.TaskInput{Title: "x", AssigneeID: "ghost"}); !errors.Is(err, ErrConflict) {
			t.Errorf("Expected conflict for unknown assignee, got %v", err)
		}
		if _, err := l.CreateTask(ctx, "missing", models.TaskInput{Title: "x"}); !errors.Is(err, ErrConflict) {
			t.Errorf("Expected conflict for unknown goal, got %v", err)
		}
	})

	t.Run("update", func(t *testing.T) {
		hours := 30
		prio := models.PriorityLow
		task, err := l.UpdateTask(ctx, goal.Tasks[2].ID, models.TaskPatch{EstimatedHours: &hours, Priority: &prio})
		if err != nil {
			t.Fatalf("UpdateTask failed: %v", err)
		}
		if task.EstimatedHours != 30 || task.Priority != models.PriorityLow {
			t.Errorf("Patch not applied: %+v", task)
		}
		if task.Title != goal.Tasks[2].Title {
			t.Errorf("Unpatched fields must be kept, got title %q", task.Title)
		}

		forward := []string{goal.Tasks[3].ID}
		_, err = l.UpdateTask(ctx, goal.Tasks[0].ID, models.TaskPatch{Dependencies: &forward})
		var verr *models.ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("Expected validation error for forward edge, got %v", err)
		}
	})

	t.Run("assign and delete", func(t *testing.T) {
		members, _ := l.ListMembers(ctx)
		task, err := l.AssignTask(ctx, goal.Tasks[1].ID, members[0].ID)
		if err != nil {
			t.Fatalf("AssignTask failed: %v", err)
		}
		if task.AssignedTo.MemberID != members[0].ID {
			t.Errorf("Expected %s, got %+v", members[0].ID, task.AssignedTo)
		}

		if err := l.DeleteTask(ctx, goal.Tasks[5].ID); err != nil {
			t.Fatalf("DeleteTask failed: %v", err)
		}
		if err := l.DeleteTask(ctx, goal.Tasks[5].ID); !errors.Is(err, ErrConflict) {
			t.Errorf("Expected conflict deleting twice, got %v", err)
		}
	})
}
