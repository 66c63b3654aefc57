package models

import (
	"fmt"
	"time"
)

type Archetype string

const (
	ArchetypeWebsite   Archetype = "website"
	ArchetypeMobile    Archetype = "mobile"
	ArchetypeMarketing Archetype = "marketing"
	ArchetypeGeneric   Archetype = "generic"
)

type GoalStatus string

const (
	GoalStatusProposed  GoalStatus = "proposed"
	GoalStatusApproved  GoalStatus = "approved"
	GoalStatusAbandoned GoalStatus = "abandoned"
)

// HoursPerWorkingDay converts estimated hours to working days.
const HoursPerWorkingDay = 8

type Goal struct {
	ID          string     `json:"id"`
	SessionID   string     `json:"session_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Archetype   Archetype  `json:"archetype"`
	Status      GoalStatus `json:"status"`
	Tasks       []*Task    `json:"tasks"`
	CreatedAt   time.Time  `json:"created_at"`
	ApprovedAt  *time.Time `json:"approved_at"`

	// Derived from Tasks by Recompute; never persisted.
	TotalHours        int    `json:"total_hours"`
	EstimatedDuration string `json:"estimated_duration"`
}

// EstimateDuration renders ceil(total/8) as working days.
func EstimateDuration(totalHours int) string {
	days := (totalHours + HoursPerWorkingDay - 1) / HoursPerWorkingDay
	return fmt.Sprintf("%d working days", days)
}

// Recompute refreshes TotalHours and EstimatedDuration from the task list.
func (g *Goal) Recompute() {
	total := 0
	for _, t := range g.Tasks {
		total += t.EstimatedHours
	}
	g.TotalHours = total
	g.EstimatedDuration = EstimateDuration(total)
}

func (g *Goal) Task(id string) *Task {
	for _, t := range g.Tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

func (g *Goal) Clone() *Goal {
	if g == nil {
		return nil
	}
	c := *g
	c.Tasks = make([]*Task, len(g.Tasks))
	for i, t := range g.Tasks {
		c.Tasks[i] = t.Clone()
	}
	if g.ApprovedAt != nil {
		at := *g.ApprovedAt
		c.ApprovedAt = &at
	}
	return &c
}

// CheckDependencies verifies that deps only name tasks created before
// taskID within this goal. An empty taskID stands for a task that has not
// been created yet, so every existing task is earlier than it.
func (g *Goal) CheckDependencies(taskID string, deps []string) error {
	limit := len(g.Tasks)
	if taskID != "" {
		limit = -1
		for i, t := range g.Tasks {
			if t.ID == taskID {
				limit = i
				break
			}
		}
		if limit < 0 {
			return fmt.Errorf("task %s is not part of goal %s", taskID, g.ID)
		}
	}

	seen := make(map[string]bool, len(deps))
	for _, dep := range deps {
		if dep == taskID {
			return &ValidationError{Field: "dependencies", Reason: "a task cannot depend on itself"}
		}
		if seen[dep] {
			return &ValidationError{Field: "dependencies", Reason: fmt.Sprintf("duplicate dependency %s", dep)}
		}
		seen[dep] = true

		idx := -1
		for i, t := range g.Tasks {
			if t.ID == dep {
				idx = i
				break
			}
		}
		if idx < 0 {
			return &ValidationError{Field: "dependencies", Reason: fmt.Sprintf("unknown task %s", dep)}
		}
		if idx >= limit {
			return &ValidationError{Field: "dependencies", Reason: fmt.Sprintf("task %s was created later", dep)}
		}
	}
	return nil
}

// ValidateGraph checks every task's dependencies against creation order.
func (g *Goal) ValidateGraph() error {
	for _, t := range g.Tasks {
		if err := g.CheckDependencies(t.ID, t.Dependencies); err != nil {
			return fmt.Errorf("task %q: %w", t.Title, err)
		}
	}
	return nil
}
