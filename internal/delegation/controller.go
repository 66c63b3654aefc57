// Package delegation edits the tasks of a proposed or approved goal. Edits
// are checked locally, applied optimistically to the session view and
// dispatched through the synchronizer so that the view stays consistent
// with the backend.
package delegation

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/ldi/delegate/internal/backend"
	"github.com/ldi/delegate/internal/planner"
	"github.com/ldi/delegate/internal/session"
	"github.com/ldi/delegate/internal/skills"
	"github.com/ldi/delegate/pkg/models"
	"go.uber.org/zap"
)

type Controller struct {
	sync    *session.Synchronizer
	api     backend.API
	planner planner.Expander
	logger  *zap.Logger
}

// New returns a controller that dispatches through api and keeps the
// views of sync up to date.
func New(sync *session.Synchronizer, api backend.API, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{sync: sync, api: api, logger: logger}
}

// WithPlanner replaces the expander used by Draft.
func (c *Controller) WithPlanner(e planner.Expander) *Controller {
	c.planner = e
	return c
}

func (c *Controller) checkGoal(goal *models.Goal) error {
	if goal == nil {
		return &models.ValidationError{Field: "goal", Reason: "is required"}
	}
	if goal.Status == models.GoalStatusAbandoned {
		return &models.ValidationError{Field: "goal", Reason: "was replaced by a newer goal"}
	}
	return nil
}

func (c *Controller) checkTask(goal *models.Goal, taskID string) (*models.Task, error) {
	if err := c.checkGoal(goal); err != nil {
		return nil, err
	}
	t := goal.Task(taskID)
	if t == nil {
		return nil, &models.ValidationError{Field: "task", Reason: "is not part of the goal"}
	}
	return t, nil
}

// reconcile refetches the goal's session when the backend reports that
// something it refers to is gone.
func (c *Controller) reconcile(sessionID string, err error) {
	if errors.Is(err, backend.ErrConflict) {
		c.sync.AfterMutation(sessionID)
	}
}

// AddTask creates a task in goal. The view only changes once the backend
// has accepted the task.
func (c *Controller) AddTask(goal *models.Goal, in models.TaskInput, cb session.Callbacks[*models.Task]) *session.Op[*models.Task] {
	if err := c.checkGoal(goal); err != nil {
		return session.Fail(cb, err)
	}
	in.Title = strings.TrimSpace(in.Title)
	if err := in.Validate(); err != nil {
		return session.Fail(cb, err)
	}
	if err := goal.CheckDependencies("", in.Dependencies); err != nil {
		return session.Fail(cb, err)
	}

	goalID, sessionID := goal.ID, goal.SessionID
	return session.Run(c.sync, "create task", cb, func(ctx context.Context) (*models.Task, error) {
		return c.api.CreateTask(ctx, goalID, in)
	}, session.Hooks[*models.Task]{
		Commit: func(t *models.Task) {
			c.sync.PatchGoal(sessionID, goalID, func(g *models.Goal) {
				if g.Task(t.ID) == nil {
					g.Tasks = append(g.Tasks, t.Clone())
				}
			})
		},
		Rollback: func(err error) { c.reconcile(sessionID, err) },
		After:    func(*models.Task) { c.sync.AfterMutation(sessionID) },
	})
}

// EditTask applies patch to a task of goal.
func (c *Controller) EditTask(goal *models.Goal, taskID string, patch models.TaskPatch, cb session.Callbacks[*models.Task]) *session.Op[*models.Task] {
	if _, err := c.checkTask(goal, taskID); err != nil {
		return session.Fail(cb, err)
	}
	if patch.Empty() {
		return session.Fail(cb, &models.ValidationError{Field: "patch", Reason: "has no changes"})
	}
	if err := patch.Validate(); err != nil {
		return session.Fail(cb, err)
	}
	if patch.Dependencies != nil {
		if err := goal.CheckDependencies(taskID, *patch.Dependencies); err != nil {
			return session.Fail(cb, err)
		}
	}

	goalID, sessionID := goal.ID, goal.SessionID
	restore, _ := c.sync.PatchGoal(sessionID, goalID, func(g *models.Goal) {
		if t := g.Task(taskID); t != nil {
			patch.Apply(t)
		}
	})
	return session.Run(c.sync, "update task", cb, func(ctx context.Context) (*models.Task, error) {
		return c.api.UpdateTask(ctx, taskID, patch)
	}, optimistic[*models.Task](c, sessionID, restore))
}

// SetPriority is EditTask for the priority field. level accepts any casing.
func (c *Controller) SetPriority(goal *models.Goal, taskID, level string, cb session.Callbacks[*models.Task]) *session.Op[*models.Task] {
	p, err := models.ParsePriority(level)
	if err != nil {
		return session.Fail(cb, err)
	}
	return c.EditTask(goal, taskID, models.TaskPatch{Priority: &p}, cb)
}

// RemoveTask deletes a task of goal. Dependencies on it are dropped from
// the remaining tasks, as the backend does.
func (c *Controller) RemoveTask(goal *models.Goal, taskID string, cb session.Callbacks[struct{}]) *session.Op[struct{}] {
	if _, err := c.checkTask(goal, taskID); err != nil {
		return session.Fail(cb, err)
	}

	goalID, sessionID := goal.ID, goal.SessionID
	restore, _ := c.sync.PatchGoal(sessionID, goalID, func(g *models.Goal) {
		g.Tasks = slices.DeleteFunc(g.Tasks, func(t *models.Task) bool { return t.ID == taskID })
		for _, t := range g.Tasks {
			t.Dependencies = slices.DeleteFunc(t.Dependencies, func(d string) bool { return d == taskID })
		}
	})
	return session.Run(c.sync, "delete task", cb, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.api.DeleteTask(ctx, taskID)
	}, optimistic[struct{}](c, sessionID, restore))
}

// Assign replaces the assignee of a task. An empty memberID clears it.
func (c *Controller) Assign(goal *models.Goal, taskID, memberID string, cb session.Callbacks[*models.Task]) *session.Op[*models.Task] {
	if _, err := c.checkTask(goal, taskID); err != nil {
		return session.Fail(cb, err)
	}

	var next *models.Assignment
	if memberID != "" {
		members := c.sync.Members()
		if m := models.FindMember(members, memberID); m != nil {
			next = models.AssignmentFor(m)
		} else if len(members) > 0 {
			return session.Fail(cb, &models.ValidationError{Field: "member", Reason: "is not on the team"})
		} else {
			next = &models.Assignment{MemberID: memberID}
		}
	}

	goalID, sessionID := goal.ID, goal.SessionID
	restore, _ := c.sync.PatchGoal(sessionID, goalID, func(g *models.Goal) {
		if t := g.Task(taskID); t != nil {
			t.AssignedTo = next
		}
	})
	return session.Run(c.sync, "assign task", cb, func(ctx context.Context) (*models.Task, error) {
		return c.api.AssignTask(ctx, taskID, memberID)
	}, optimistic[*models.Task](c, sessionID, restore))
}

// optimistic returns hooks for an edit already applied to the view:
// restore it on error, refetch on success.
func optimistic[T any](c *Controller, sessionID string, restore func()) session.Hooks[T] {
	return session.Hooks[T]{
		Rollback: func(err error) {
			restore()
			c.reconcile(sessionID, err)
		},
		After: func(T) { c.sync.AfterMutation(sessionID) },
	}
}

// Approve approves goal. Its tasks become tracked work on the backend and
// the view is refetched to show them.
func (c *Controller) Approve(goal *models.Goal, cb session.Callbacks[*models.Goal]) *session.Op[*models.Goal] {
	if err := c.checkGoal(goal); err != nil {
		return session.Fail(cb, err)
	}
	return c.sync.ApproveGoal(goal, cb)
}

// Draft plans text against the current roster without contacting the
// backend. The result is a preview and is never stored.
func (c *Controller) Draft(text string) (*models.Goal, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &models.ValidationError{Field: "text", Reason: "is required"}
	}
	g := c.planner.Plan(text, c.sync.Members())
	c.logger.Debug("drafted goal", zap.String("archetype", string(g.Archetype)), zap.Int("tasks", len(g.Tasks)))
	return g, nil
}

// SuggestAssignee returns the best skill match on the roster for a task
// of goal, or nil when the roster is empty or the task is unknown.
func (c *Controller) SuggestAssignee(goal *models.Goal, taskID string) *models.TeamMember {
	if goal == nil {
		return nil
	}
	t := goal.Task(taskID)
	if t == nil {
		return nil
	}
	return skills.BestMatch(t.RequiredSkills, c.sync.Members())
}
