package models

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// ParsePriority accepts any casing and surrounding whitespace.
func ParsePriority(s string) (Priority, error) {
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", &ValidationError{Field: "priority", Reason: fmt.Sprintf("must be low, medium or high, got %q", s)}
	}
	return p, nil
}

type TaskStatus string

const (
	TaskStatusProposed   TaskStatus = "proposed"
	TaskStatusTodo       TaskStatus = "todo"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusDone       TaskStatus = "done"
)

// Assignment binds a task to a team member. Name and Role are copied from
// the roster at assignment time for display.
type Assignment struct {
	MemberID string `json:"member_id"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}

func AssignmentFor(m *TeamMember) *Assignment {
	if m == nil {
		return nil
	}
	return &Assignment{MemberID: m.ID, Name: m.Name, Role: m.Role}
}

type Task struct {
	ID             string      `json:"id"`
	GoalID         string      `json:"goal_id"`
	Position       int         `json:"position"`
	Title          string      `json:"title"`
	Description    string      `json:"description"`
	Priority       Priority    `json:"priority"`
	EstimatedHours int         `json:"estimated_hours"`
	Dependencies   []string    `json:"dependencies"`
	RequiredSkills []string    `json:"required_skills"`
	Status         TaskStatus  `json:"status"`
	AssignedTo     *Assignment `json:"assigned_to,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	c.Dependencies = slices.Clone(t.Dependencies)
	c.RequiredSkills = slices.Clone(t.RequiredSkills)
	if t.AssignedTo != nil {
		a := *t.AssignedTo
		c.AssignedTo = &a
	}
	return &c
}

// TaskInput is the payload for creating a task in an existing goal.
type TaskInput struct {
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Priority       Priority `json:"priority"`
	EstimatedHours int      `json:"estimated_hours"`
	Dependencies   []string `json:"dependencies,omitempty"`
	RequiredSkills []string `json:"required_skills,omitempty"`
	AssigneeID     string   `json:"assignee_id,omitempty"`
}

func (in *TaskInput) Validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return &ValidationError{Field: "title", Reason: "is required"}
	}
	if in.Priority == "" {
		in.Priority = PriorityMedium
	}
	if !in.Priority.Valid() {
		return &ValidationError{Field: "priority", Reason: fmt.Sprintf("unknown priority %q", in.Priority)}
	}
	if in.EstimatedHours < 0 {
		return &ValidationError{Field: "estimated_hours", Reason: "must not be negative"}
	}
	return nil
}

// TaskPatch carries partial task edits. Nil fields are left unchanged.
type TaskPatch struct {
	Title          *string     `json:"title,omitempty"`
	Description    *string     `json:"description,omitempty"`
	Priority       *Priority   `json:"priority,omitempty"`
	EstimatedHours *int        `json:"estimated_hours,omitempty"`
	Dependencies   *[]string   `json:"dependencies,omitempty"`
	RequiredSkills *[]string   `json:"required_skills,omitempty"`
	Status         *TaskStatus `json:"status,omitempty"`
}

func (p *TaskPatch) Validate() error {
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return &ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if p.Priority != nil && !p.Priority.Valid() {
		return &ValidationError{Field: "priority", Reason: fmt.Sprintf("unknown priority %q", *p.Priority)}
	}
	if p.EstimatedHours != nil && *p.EstimatedHours < 0 {
		return &ValidationError{Field: "estimated_hours", Reason: "must not be negative"}
	}
	if p.Status != nil {
		switch *p.Status {
		case TaskStatusProposed, TaskStatusTodo, TaskStatusInProgress, TaskStatusDone:
		default:
			return &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", *p.Status)}
		}
	}
	return nil
}

func (p *TaskPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Priority == nil &&
		p.EstimatedHours == nil && p.Dependencies == nil && p.RequiredSkills == nil && p.Status == nil
}

// Apply copies the non-nil fields onto t.
func (p *TaskPatch) Apply(t *Task) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.EstimatedHours != nil {
		t.EstimatedHours = *p.EstimatedHours
	}
	if p.Dependencies != nil {
		t.Dependencies = slices.Clone(*p.Dependencies)
	}
	if p.RequiredSkills != nil {
		t.RequiredSkills = slices.Clone(*p.RequiredSkills)
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
}
