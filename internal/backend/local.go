package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/ldi/delegate/embed/prompts"
	"github.com/ldi/delegate/internal/db"
	"github.com/ldi/delegate/internal/intent"
	"github.com/ldi/delegate/internal/planner"
	"github.com/ldi/delegate/internal/roster"
	"github.com/ldi/delegate/internal/skills"
	"github.com/ldi/delegate/pkg/models"
	"go.uber.org/zap"
)

// DefaultSessionTitle names sessions created without a title.
const DefaultSessionTitle = "New session"

var (
	goalReply = template.Must(template.New("goal_reply").Funcs(template.FuncMap{
		"inc": func(i int) int { return i + 1 },
	}).Parse(prompts.GoalReply))
	clarifyReply = template.Must(template.New("clarify_reply").Parse(prompts.ClarifyReply))
)

// Local implements API on top of the SQLite store. It is also the AI
// responder: messages that ask for a plan get a goal expanded from the
// matching archetype.
type Local struct {
	store   *db.DB
	roster  roster.Provider
	planner planner.Expander
	logger  *zap.Logger
}

var _ API = (*Local)(nil)

// NewLocal returns a backend over store. A nil members provider uses the
// store's own roster.
func NewLocal(store *db.DB, members roster.Provider, logger *zap.Logger) *Local {
	if members == nil {
		members = store
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Local{store: store, roster: members, logger: logger}
}

// WithPlanner replaces the expander used for new goals.
func (l *Local) WithPlanner(e planner.Expander) *Local {
	l.planner = e
	return l
}

func (l *Local) fail(op string, err error) error {
	if errors.Is(err, db.ErrNotFound) || errors.Is(err, db.ErrGoalClosed) {
		err = Conflict(err)
	}
	l.logger.Warn("backend operation failed", zap.String("op", op), zap.Error(err))
	return &TransportError{Op: op, Err: err}
}

func (l *Local) ListMembers(ctx context.Context) ([]*models.TeamMember, error) {
	members, err := l.roster.ListMembers(ctx)
	if err != nil {
		return nil, l.fail("list members", err)
	}
	return members, nil
}

func (l *Local) ListSessions(ctx context.Context) ([]*models.Session, error) {
	sessions, err := l.store.ListSessions(ctx)
	if err != nil {
		return nil, l.fail("list sessions", err)
	}
	return sessions, nil
}

func (l *Local) CreateSession(ctx context.Context, title string) (*models.Session, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultSessionTitle
	}
	s := &models.Session{Title: title}
	if err := l.store.CreateSession(ctx, s); err != nil {
		return nil, l.fail("create session", err)
	}
	l.logger.Debug("session created", zap.String("session_id", s.ID))
	return s, nil
}

func (l *Local) GetSession(ctx context.Context, id string) (*models.Session, error) {
	s, err := l.store.GetSession(ctx, id)
	if err != nil {
		return nil, l.fail("get session", err)
	}
	if s == nil {
		return nil, l.fail("get session", fmt.Errorf("session %w: %s", db.ErrNotFound, id))
	}
	return s, nil
}

// SendMessage records the user's text and the generated reply. A message
// that asks for a plan produces a new proposed goal, which replaces any
// earlier goal of the session that was never approved.
func (l *Local) SendMessage(ctx context.Context, sessionID, text string) (*models.Exchange, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, l.fail("send message", &models.ValidationError{Field: "text", Reason: "must not be empty"})
	}

	s, err := l.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, l.fail("send message", err)
	}
	if s == nil {
		return nil, l.fail("send message", fmt.Errorf("session %w: %s", db.ErrNotFound, sessionID))
	}

	e := &models.Exchange{SessionID: sessionID, UserText: text}
	var goal *models.Goal
	var reply strings.Builder
	if intent.IsGoalRequest(text) {
		members, err := l.roster.ListMembers(ctx)
		if err != nil {
			return nil, l.fail("send message", err)
		}
		goal = l.planner.Plan(text, members)
		data := struct {
			Goal       *models.Goal
			Superseded bool
		}{
			Goal:       goal,
			Superseded: s.Goal != nil && s.Goal.Status == models.GoalStatusProposed,
		}
		err = goalReply.Execute(&reply, data)
		if err != nil {
			return nil, l.fail("send message", fmt.Errorf("failed to render reply: %w", err))
		}
	} else if err := clarifyReply.Execute(&reply, nil); err != nil {
		return nil, l.fail("send message", fmt.Errorf("failed to render reply: %w", err))
	}
	e.AIText = strings.TrimSpace(reply.String())

	superseded, err := l.store.RecordExchange(ctx, e, goal)
	if err != nil {
		return nil, l.fail("send message", err)
	}

	fields := []zap.Field{zap.String("session_id", sessionID), zap.String("exchange_id", e.ID)}
	if goal != nil {
		fields = append(fields, zap.String("goal_id", goal.ID), zap.String("archetype", string(goal.Archetype)), zap.Bool("superseded", superseded))
	}
	l.logger.Debug("message recorded", fields...)
	return e, nil
}

func (l *Local) DeleteSession(ctx context.Context, id string) error {
	if err := l.store.DeleteSession(ctx, id); err != nil {
		return l.fail("delete session", err)
	}
	l.logger.Debug("session deleted", zap.String("session_id", id))
	return nil
}

func (l *Local) UpdateSessionTitle(ctx context.Context, id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return l.fail("update session title", &models.ValidationError{Field: "title", Reason: "must not be empty"})
	}
	if err := l.store.UpdateSessionTitle(ctx, id, title); err != nil {
		return l.fail("update session title", err)
	}
	return nil
}

// openGoal loads a goal that may still be edited.
func (l *Local) openGoal(ctx context.Context, id string) (*models.Goal, error) {
	g, err := l.store.GetGoal(ctx, id)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, fmt.Errorf("goal %w: %s", db.ErrNotFound, id)
	}
	if g.Status == models.GoalStatusAbandoned {
		return nil, fmt.Errorf("goal %s: %w", id, db.ErrGoalClosed)
	}
	return g, nil
}

// openTask loads a task whose goal may still be edited.
func (l *Local) openTask(ctx context.Context, id string) (*models.Task, error) {
	t, err := l.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("task %w: %s", db.ErrNotFound, id)
	}
	if _, err := l.openGoal(ctx, t.GoalID); err != nil {
		return nil, err
	}
	return t, nil
}

// CreateTask appends a task to the goal. Without an explicit assignee the
// best skill match from the roster is used.
func (l *Local) CreateTask(ctx context.Context, goalID string, in models.TaskInput) (*models.Task, error) {
	if err := in.Validate(); err != nil {
		return nil, l.fail("create task", err)
	}
	g, err := l.openGoal(ctx, goalID)
	if err != nil {
		return nil, l.fail("create task", err)
	}

	t := &models.Task{
		GoalID:         goalID,
		Title:          strings.TrimSpace(in.Title),
		Description:    in.Description,
		Priority:       in.Priority,
		EstimatedHours: in.EstimatedHours,
		Dependencies:   in.Dependencies,
		RequiredSkills: in.RequiredSkills,
		Status:         models.TaskStatusProposed,
	}
	if g.Status == models.GoalStatusApproved {
		t.Status = models.TaskStatusTodo
	}

	if in.AssigneeID != "" {
		m, err := l.store.GetMember(ctx, in.AssigneeID)
		if err != nil {
			return nil, l.fail("create task", err)
		}
		if m == nil {
			return nil, l.fail("create task", fmt.Errorf("member %w: %s", db.ErrNotFound, in.AssigneeID))
		}
		t.AssignedTo = models.AssignmentFor(m)
	} else {
		members, err := l.roster.ListMembers(ctx)
		if err != nil {
			return nil, l.fail("create task", err)
		}
		t.AssignedTo = models.AssignmentFor(skills.BestMatch(in.RequiredSkills, members))
	}

	if err := l.store.CreateTask(ctx, t); err != nil {
		return nil, l.fail("create task", err)
	}
	return l.reloadTask(ctx, "create task", t.ID)
}

func (l *Local) UpdateTask(ctx context.Context, taskID string, patch models.TaskPatch) (*models.Task, error) {
	if err := patch.Validate(); err != nil {
		return nil, l.fail("update task", err)
	}
	t, err := l.openTask(ctx, taskID)
	if err != nil {
		return nil, l.fail("update task", err)
	}

	patch.Apply(t)
	if err := l.store.UpdateTask(ctx, t); err != nil {
		return nil, l.fail("update task", err)
	}
	return l.reloadTask(ctx, "update task", taskID)
}

func (l *Local) DeleteTask(ctx context.Context, taskID string) error {
	if _, err := l.openTask(ctx, taskID); err != nil {
		return l.fail("delete task", err)
	}
	if err := l.store.DeleteTask(ctx, taskID); err != nil {
		return l.fail("delete task", err)
	}
	return nil
}

func (l *Local) AssignTask(ctx context.Context, taskID, memberID string) (*models.Task, error) {
	if _, err := l.openTask(ctx, taskID); err != nil {
		return nil, l.fail("assign task", err)
	}
	if err := l.store.AssignTask(ctx, taskID, memberID); err != nil {
		return nil, l.fail("assign task", err)
	}
	return l.reloadTask(ctx, "assign task", taskID)
}

// ApproveGoal is idempotent for goals that are already approved.
func (l *Local) ApproveGoal(ctx context.Context, goalID string) (*models.Goal, error) {
	changed, err := l.store.ApproveGoal(ctx, goalID)
	if err != nil {
		return nil, l.fail("approve goal", err)
	}
	g, err := l.store.GetGoal(ctx, goalID)
	if err != nil {
		return nil, l.fail("approve goal", err)
	}
	if g == nil {
		return nil, l.fail("approve goal", fmt.Errorf("goal %w: %s", db.ErrNotFound, goalID))
	}
	l.logger.Debug("goal approved", zap.String("goal_id", goalID), zap.Bool("changed", changed))
	return g, nil
}

func (l *Local) reloadTask(ctx context.Context, op, id string) (*models.Task, error) {
	t, err := l.store.GetTask(ctx, id)
	if err != nil {
		return nil, l.fail(op, err)
	}
	if t == nil {
		return nil, l.fail(op, fmt.Errorf("task %w: %s", db.ErrNotFound, id))
	}
	return t, nil
}
