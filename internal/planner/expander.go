// Package planner expands a request into a goal with assigned tasks.
package planner

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ldi/delegate/internal/archetype"
	"github.com/ldi/delegate/internal/intent"
	"github.com/ldi/delegate/internal/skills"
	"github.com/ldi/delegate/pkg/models"
)

// Expander instantiates archetype templates. The zero value is usable.
type Expander struct {
	NewID func() string
	Now   func() time.Time
}

var defaultExpander Expander

// Expand builds a goal for id from its template.
func Expand(id models.Archetype, sourceText string, roster []*models.TeamMember) *models.Goal {
	return defaultExpander.Expand(id, sourceText, roster)
}

// Plan classifies text and expands the resulting archetype.
func Plan(text string, roster []*models.TeamMember) *models.Goal {
	return defaultExpander.Plan(text, roster)
}

func (e Expander) Plan(text string, roster []*models.TeamMember) *models.Goal {
	return e.Expand(intent.Classify(text), text, roster)
}

func (e Expander) Expand(id models.Archetype, sourceText string, roster []*models.TeamMember) *models.Goal {
	tmpl, _ := archetype.Lookup(id)
	now := e.now()

	goal := &models.Goal{
		ID:          e.newID(),
		Title:       tmpl.GoalTitle,
		Description: strings.TrimSpace(sourceText),
		Archetype:   tmpl.Archetype,
		Status:      models.GoalStatusProposed,
		Tasks:       make([]*models.Task, 0, len(tmpl.Tasks)),
		CreatedAt:   now,
	}

	for i, tt := range tmpl.Tasks {
		deps := make([]string, 0, len(tt.DependsOn))
		for _, idx := range tt.DependsOn {
			// Templates only point backwards, so the target already exists.
			deps = append(deps, goal.Tasks[idx].ID)
		}

		task := &models.Task{
			ID:             e.newID(),
			GoalID:         goal.ID,
			Position:       i,
			Title:          tt.Title,
			Description:    tt.Description,
			Priority:       tt.Priority,
			EstimatedHours: tt.EstimatedHours,
			Dependencies:   deps,
			RequiredSkills: slices.Clone(tt.RequiredSkills),
			Status:         models.TaskStatusProposed,
			AssignedTo:     models.AssignmentFor(skills.BestMatch(tt.RequiredSkills, roster)),
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		goal.Tasks = append(goal.Tasks, task)
	}

	goal.Recompute()
	return goal
}

func (e Expander) newID() string {
	if e.NewID != nil {
		return e.NewID()
	}
	return uuid.New().String()
}

func (e Expander) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now().UTC()
}
