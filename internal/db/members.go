package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/ldi/delegate/pkg/models"
)

// CreateMember inserts a team member. If m.ID is empty a UUID is generated.
func (db *DB) CreateMember(ctx context.Context, m *models.TeamMember) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	skills, err := encodeStrings(m.Skills)
	if err != nil {
		return fmt.Errorf("failed to encode skills: %w", err)
	}

	m.CreatedAt = now()
	query := `
		INSERT INTO members (id, name, email, role, skills, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	if _, err := db.ExecContext(ctx, query, m.ID, m.Name, m.Email, m.Role, skills, m.CreatedAt); err != nil {
		return fmt.Errorf("failed to create member: %w", err)
	}

	db.triggerChange(ctx)
	return nil
}

func (db *DB) GetMember(ctx context.Context, id string) (*models.TeamMember, error) {
	return db.getMember(ctx, db.DB, `WHERE id = ?`, id)
}

func (db *DB) GetMemberByName(ctx context.Context, name string) (*models.TeamMember, error) {
	return db.getMember(ctx, db.DB, `WHERE name = ? COLLATE NOCASE`, name)
}

func (db *DB) getMember(ctx context.Context, exec executor, where string, arg any) (*models.TeamMember, error) {
	query := `SELECT id, name, email, role, skills, created_at FROM members ` + where
	m := &models.TeamMember{}
	var skills string
	err := exec.QueryRowContext(ctx, query, arg).Scan(&m.ID, &m.Name, &m.Email, &m.Role, &skills, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	if m.Skills, err = decodeStrings(skills); err != nil {
		return nil, fmt.Errorf("failed to decode skills for member %s: %w", m.ID, err)
	}
	return m, nil
}

// ListMembers returns the roster in creation order. The order matters:
// skill matching breaks ties by roster position.
func (db *DB) ListMembers(ctx context.Context) ([]*models.TeamMember, error) {
	query := `
		SELECT id, name, email, role, skills, created_at
		FROM members
		ORDER BY created_at ASC, rowid ASC
	`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []*models.TeamMember
	for rows.Next() {
		m := &models.TeamMember{}
		var skills string
		if err := rows.Scan(&m.ID, &m.Name, &m.Email, &m.Role, &skills, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		if m.Skills, err = decodeStrings(skills); err != nil {
			return nil, fmt.Errorf("failed to decode skills for member %s: %w", m.ID, err)
		}
		members = append(members, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return members, nil
}

func (db *DB) UpdateMember(ctx context.Context, m *models.TeamMember) error {
	skills, err := encodeStrings(m.Skills)
	if err != nil {
		return fmt.Errorf("failed to encode skills: %w", err)
	}

	query := `UPDATE members SET name = ?, email = ?, role = ?, skills = ? WHERE id = ?`
	res, err := db.ExecContext(ctx, query, m.Name, m.Email, m.Role, skills, m.ID)
	if err != nil {
		return fmt.Errorf("failed to update member: %w", err)
	}
	if err := expectRows(res, "member", m.ID); err != nil {
		return err
	}

	db.triggerChange(ctx)
	return nil
}

func (db *DB) DeleteMember(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM members WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete member: %w", err)
	}
	if err := expectRows(res, "member", id); err != nil {
		return err
	}

	db.triggerChange(ctx)
	return nil
}
