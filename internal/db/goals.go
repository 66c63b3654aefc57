package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/ldi/delegate/pkg/models"
)

// ErrGoalClosed is returned when approving a goal that was abandoned.
var ErrGoalClosed = errors.New("goal is no longer open")

// GetGoal retrieves a goal and its tasks. Aggregates are recomputed from
// the loaded tasks.
func (db *DB) GetGoal(ctx context.Context, id string) (*models.Goal, error) {
	return db.getGoal(ctx, db.DB, id)
}

func (db *DB) getGoal(ctx context.Context, exec executor, id string) (*models.Goal, error) {
	query := `
		SELECT id, session_id, title, description, archetype, status, created_at, approved_at
		FROM goals
		WHERE id = ?
	`
	g := &models.Goal{}
	err := exec.QueryRowContext(ctx, query, id).Scan(
		&g.ID, &g.SessionID, &g.Title, &g.Description, &g.Archetype, &g.Status, &g.CreatedAt, &g.ApprovedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get goal: %w", err)
	}

	if g.Tasks, err = db.listTasks(ctx, exec, g.ID); err != nil {
		return nil, err
	}
	g.Recompute()
	return g, nil
}

// ListGoals returns goals, optionally filtered by status, newest first.
func (db *DB) ListGoals(ctx context.Context, status *models.GoalStatus) ([]*models.Goal, error) {
	query := `SELECT id FROM goals WHERE 1=1`
	args := []any{}
	if status != nil {
		query += " AND status = ?"
		args = append(args, *status)
	}
	query += " ORDER BY created_at DESC"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list goals: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan goal: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	goals := make([]*models.Goal, 0, len(ids))
	for _, id := range ids {
		g, err := db.GetGoal(ctx, id)
		if err != nil {
			return nil, err
		}
		if g != nil {
			goals = append(goals, g)
		}
	}
	return goals, nil
}

// ApproveGoal turns a proposed goal into tracked work: the goal becomes
// approved and its proposed tasks become todo. Approving an approved goal
// is a no-op and reports changed=false.
func (db *DB) ApproveGoal(ctx context.Context, id string) (changed bool, err error) {
	err = db.inTx(ctx, func(tx *sql.Tx) error {
		var status models.GoalStatus
		err := tx.QueryRowContext(ctx, `SELECT status FROM goals WHERE id = ?`, id).Scan(&status)
		if err == sql.ErrNoRows {
			return notFound("goal", id)
		}
		if err != nil {
			return fmt.Errorf("failed to read goal status: %w", err)
		}

		switch status {
		case models.GoalStatusApproved:
			return nil
		case models.GoalStatusAbandoned:
			return fmt.Errorf("approve goal %s: %w", id, ErrGoalClosed)
		}

		at := now()
		if _, err := tx.ExecContext(ctx,
			`UPDATE goals SET status = ?, approved_at = ? WHERE id = ?`,
			models.GoalStatusApproved, at, id,
		); err != nil {
			return fmt.Errorf("failed to approve goal: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE tasks SET status = ?, updated_at = ? WHERE goal_id = ? AND status = ?`,
			models.TaskStatusTodo, at, id, models.TaskStatusProposed,
		); err != nil {
			return fmt.Errorf("failed to track goal tasks: %w", err)
		}
		changed = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if changed {
		db.triggerChange(ctx)
	}
	return changed, nil
}

// createGoal inserts g with all of its tasks and dependency edges.
func (db *DB) createGoal(ctx context.Context, exec executor, g *models.Goal) error {
	if g.ID == "" {
		g.ID = uuid.New().String()
	}
	if g.Status == "" {
		g.Status = models.GoalStatusProposed
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = now()
	}
	if err := g.ValidateGraph(); err != nil {
		return err
	}

	query := `
		INSERT INTO goals (id, session_id, title, description, archetype, status, created_at, approved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := exec.ExecContext(ctx, query,
		g.ID, g.SessionID, g.Title, g.Description, g.Archetype, g.Status, g.CreatedAt, g.ApprovedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create goal: %w", err)
	}

	for i, t := range g.Tasks {
		t.GoalID = g.ID
		t.Position = i
		if err := db.createTask(ctx, exec, t); err != nil {
			return fmt.Errorf("failed to create task %q: %w", t.Title, err)
		}
	}
	g.Recompute()
	return nil
}
