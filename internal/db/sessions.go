package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/ldi/delegate/pkg/models"
)

func (db *DB) CreateSession(ctx context.Context, s *models.Session) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	s.CreatedAt = now()
	s.LastActivityAt = s.CreatedAt

	query := `
		INSERT INTO sessions (id, title, created_at, last_activity_at)
		VALUES (?, ?, ?, ?)
	`
	if _, err := db.ExecContext(ctx, query, s.ID, s.Title, s.CreatedAt, s.LastActivityAt); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	s.Exchanges = []*models.Exchange{}

	db.triggerChange(ctx)
	return nil
}

// GetSession returns the session with its exchanges in creation order and
// its live goal, if any.
func (db *DB) GetSession(ctx context.Context, id string) (*models.Session, error) {
	query := `
		SELECT id, title, goal_id, created_at, last_activity_at
		FROM sessions
		WHERE id = ?
	`
	s := &models.Session{}
	var goalID sql.NullString
	err := db.QueryRowContext(ctx, query, id).Scan(&s.ID, &s.Title, &goalID, &s.CreatedAt, &s.LastActivityAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	if s.Exchanges, err = db.listExchanges(ctx, id); err != nil {
		return nil, err
	}

	if goalID.Valid {
		if s.Goal, err = db.GetGoal(ctx, goalID.String); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// ListSessions returns sessions without exchanges, most recently active first.
func (db *DB) ListSessions(ctx context.Context) ([]*models.Session, error) {
	query := `
		SELECT id, title, created_at, last_activity_at
		FROM sessions
		ORDER BY last_activity_at DESC, created_at DESC
	`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []*models.Session{}
	for rows.Next() {
		s := &models.Session{}
		if err := rows.Scan(&s.ID, &s.Title, &s.CreatedAt, &s.LastActivityAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return sessions, nil
}

func (db *DB) UpdateSessionTitle(ctx context.Context, id, title string) error {
	query := `UPDATE sessions SET title = ? WHERE id = ?`
	res, err := db.ExecContext(ctx, query, title, id)
	if err != nil {
		return fmt.Errorf("failed to update session title: %w", err)
	}
	if err := expectRows(res, "session", id); err != nil {
		return err
	}

	db.triggerChange(ctx)
	return nil
}

// DeleteSession removes the session along with its exchanges, goals and tasks.
func (db *DB) DeleteSession(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if err := expectRows(res, "session", id); err != nil {
		return err
	}

	db.triggerChange(ctx)
	return nil
}

// RecordExchange appends e to its session in one transaction. When goal is
// non-nil it becomes the session's live goal: it is stored with its tasks,
// linked from e, and any previously proposed goal of the session is marked
// abandoned. It reports whether a proposed goal was superseded.
func (db *DB) RecordExchange(ctx context.Context, e *models.Exchange, goal *models.Goal) (superseded bool, err error) {
	err = db.inTx(ctx, func(tx *sql.Tx) error {
		var prevGoal sql.NullString
		err := tx.QueryRowContext(ctx, `SELECT goal_id FROM sessions WHERE id = ?`, e.SessionID).Scan(&prevGoal)
		if err == sql.ErrNoRows {
			return notFound("session", e.SessionID)
		}
		if err != nil {
			return fmt.Errorf("failed to read session: %w", err)
		}

		if goal != nil {
			goal.SessionID = e.SessionID
			if err := db.createGoal(ctx, tx, goal); err != nil {
				return err
			}
			if prevGoal.Valid {
				res, err := tx.ExecContext(ctx,
					`UPDATE goals SET status = ? WHERE id = ? AND status = ?`,
					models.GoalStatusAbandoned, prevGoal.String, models.GoalStatusProposed,
				)
				if err != nil {
					return fmt.Errorf("failed to abandon goal: %w", err)
				}
				n, err := res.RowsAffected()
				if err != nil {
					return fmt.Errorf("failed to get rows affected: %w", err)
				}
				superseded = n > 0
			}
			e.GoalID = goal.ID
			e.Goal = goal
		}

		if e.ID == "" {
			e.ID = uuid.New().String()
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now()
		}

		var goalID any
		if e.GoalID != "" {
			goalID = e.GoalID
		}
		query := `
			INSERT INTO exchanges (id, session_id, seq, user_text, ai_text, goal_id, created_at)
			VALUES (?, ?, (SELECT COALESCE(MAX(seq) + 1, 0) FROM exchanges WHERE session_id = ?), ?, ?, ?, ?)
		`
		if _, err := tx.ExecContext(ctx, query,
			e.ID, e.SessionID, e.SessionID, e.UserText, e.AIText, goalID, e.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to record exchange: %w", err)
		}

		update := `UPDATE sessions SET last_activity_at = ? WHERE id = ?`
		args := []any{e.CreatedAt, e.SessionID}
		if goal != nil {
			update = `UPDATE sessions SET last_activity_at = ?, goal_id = ? WHERE id = ?`
			args = []any{e.CreatedAt, goal.ID, e.SessionID}
		}
		if _, err := tx.ExecContext(ctx, update, args...); err != nil {
			return fmt.Errorf("failed to touch session: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	db.triggerChange(ctx)
	return superseded, nil
}

func (db *DB) listExchanges(ctx context.Context, sessionID string) ([]*models.Exchange, error) {
	query := `
		SELECT id, session_id, user_text, ai_text, goal_id, created_at
		FROM exchanges
		WHERE session_id = ?
		ORDER BY seq ASC
	`
	rows, err := db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list exchanges: %w", err)
	}
	defer rows.Close()

	exchanges := []*models.Exchange{}
	for rows.Next() {
		e := &models.Exchange{}
		var goalID sql.NullString
		if err := rows.Scan(&e.ID, &e.SessionID, &e.UserText, &e.AIText, &goalID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan exchange: %w", err)
		}
		e.GoalID = goalID.String
		exchanges = append(exchanges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return exchanges, nil
}
