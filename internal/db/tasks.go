package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/ldi/delegate/pkg/models"
)

const taskColumns = `
	t.id, t.goal_id, t.position, t.title, t.description, t.priority, t.estimated_hours,
	t.required_skills, t.status, t.assignee_id, m.name, m.role, t.created_at, t.updated_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	t := &models.Task{}
	var skills string
	var assigneeID, assigneeName, assigneeRole sql.NullString
	err := row.Scan(
		&t.ID, &t.GoalID, &t.Position, &t.Title, &t.Description, &t.Priority, &t.EstimatedHours,
		&skills, &t.Status, &assigneeID, &assigneeName, &assigneeRole, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if t.RequiredSkills, err = decodeStrings(skills); err != nil {
		return nil, fmt.Errorf("failed to decode skills for task %s: %w", t.ID, err)
	}
	if assigneeID.Valid {
		t.AssignedTo = &models.Assignment{
			MemberID: assigneeID.String,
			Name:     assigneeName.String,
			Role:     assigneeRole.String,
		}
	}
	t.Dependencies = []string{}
	return t, nil
}

// CreateTask appends a task to its goal. Dependencies must name tasks that
// already exist in the same goal.
func (db *DB) CreateTask(ctx context.Context, t *models.Task) error {
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		var next int
		err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(position) + 1, 0) FROM tasks WHERE goal_id = ?`, t.GoalID,
		).Scan(&next)
		if err != nil {
			return fmt.Errorf("failed to compute task position: %w", err)
		}
		t.Position = next

		if err := checkDependencies(ctx, tx, t); err != nil {
			return err
		}
		return db.createTask(ctx, tx, t)
	})
	if err != nil {
		return err
	}

	db.triggerChange(ctx)
	return nil
}

// GetTask retrieves a task by its ID.
func (db *DB) GetTask(ctx context.Context, id string) (*models.Task, error) {
	return db.getTask(ctx, db.DB, id)
}

func (db *DB) getTask(ctx context.Context, exec executor, id string) (*models.Task, error) {
	query := `SELECT ` + taskColumns + `
		FROM tasks t
		LEFT JOIN members m ON t.assignee_id = m.id
		WHERE t.id = ?
	`
	t, err := scanTask(exec.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	deps, err := db.listDependencies(ctx, exec, `d.task_id = ?`, id)
	if err != nil {
		return nil, err
	}
	for _, d := range deps {
		t.Dependencies = append(t.Dependencies, d.DependsOnTaskID)
	}
	return t, nil
}

// ListTasks returns the tasks of a goal in creation order.
func (db *DB) ListTasks(ctx context.Context, goalID string) ([]*models.Task, error) {
	return db.listTasks(ctx, db.DB, goalID)
}

func (db *DB) listTasks(ctx context.Context, exec executor, goalID string) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + `
		FROM tasks t
		LEFT JOIN members m ON t.assignee_id = m.id
		WHERE t.goal_id = ?
		ORDER BY t.position ASC
	`
	rows, err := exec.QueryContext(ctx, query, goalID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []*models.Task{}
	byID := make(map[string]*models.Task)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
		byID[t.ID] = t
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	rows.Close()

	deps, err := db.listDependencies(ctx, exec, `t.goal_id = ?`, goalID)
	if err != nil {
		return nil, err
	}
	for _, d := range deps {
		if t, ok := byID[d.TaskID]; ok {
			t.Dependencies = append(t.Dependencies, d.DependsOnTaskID)
		}
	}
	return tasks, nil
}

// UpdateTask writes every editable field of t and replaces its dependencies.
func (db *DB) UpdateTask(ctx context.Context, t *models.Task) error {
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		current, err := db.getTask(ctx, tx, t.ID)
		if err != nil {
			return err
		}
		if current == nil {
			return notFound("task", t.ID)
		}
		t.GoalID = current.GoalID
		t.Position = current.Position

		if err := checkDependencies(ctx, tx, t); err != nil {
			return err
		}

		skills, err := encodeStrings(t.RequiredSkills)
		if err != nil {
			return fmt.Errorf("failed to encode skills: %w", err)
		}
		t.UpdatedAt = now()

		query := `
			UPDATE tasks
			SET title = ?, description = ?, priority = ?, estimated_hours = ?,
			    required_skills = ?, status = ?, updated_at = ?
			WHERE id = ?
		`
		_, err = tx.ExecContext(ctx, query,
			t.Title, t.Description, t.Priority, t.EstimatedHours, skills, t.Status, t.UpdatedAt, t.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update task: %w", err)
		}

		return db.replaceDependencies(ctx, tx, t.ID, t.Dependencies)
	})
	if err != nil {
		return err
	}

	db.triggerChange(ctx)
	return nil
}

// AssignTask sets the task's assignee. An empty memberID clears it.
func (db *DB) AssignTask(ctx context.Context, taskID, memberID string) error {
	var assignee any
	if memberID != "" {
		assignee = memberID
		m, err := db.GetMember(ctx, memberID)
		if err != nil {
			return err
		}
		if m == nil {
			return notFound("member", memberID)
		}
	}

	query := `UPDATE tasks SET assignee_id = ?, updated_at = ? WHERE id = ?`
	res, err := db.ExecContext(ctx, query, assignee, now(), taskID)
	if err != nil {
		return fmt.Errorf("failed to assign task: %w", err)
	}
	if err := expectRows(res, "task", taskID); err != nil {
		return err
	}

	db.triggerChange(ctx)
	return nil
}

// DeleteTask deletes a task by its ID. Edges to and from it go with it.
func (db *DB) DeleteTask(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if err := expectRows(res, "task", id); err != nil {
		return err
	}

	db.triggerChange(ctx)
	return nil
}

func (db *DB) createTask(ctx context.Context, exec executor, t *models.Task) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.Status == "" {
		t.Status = models.TaskStatusProposed
	}
	if t.Priority == "" {
		t.Priority = models.PriorityMedium
	}
	skills, err := encodeStrings(t.RequiredSkills)
	if err != nil {
		return fmt.Errorf("failed to encode skills: %w", err)
	}

	var assignee any
	if t.AssignedTo != nil && t.AssignedTo.MemberID != "" {
		assignee = t.AssignedTo.MemberID
	}

	if t.CreatedAt.IsZero() {
		t.CreatedAt = now()
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}

	query := `
		INSERT INTO tasks (id, goal_id, position, title, description, priority, estimated_hours,
		                   required_skills, status, assignee_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = exec.ExecContext(ctx, query,
		t.ID, t.GoalID, t.Position, t.Title, t.Description, t.Priority, t.EstimatedHours,
		skills, t.Status, assignee, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	for _, dep := range t.Dependencies {
		if err := db.createDependency(ctx, exec, t.ID, dep); err != nil {
			return err
		}
	}
	if t.Dependencies == nil {
		t.Dependencies = []string{}
	}
	return nil
}

// checkDependencies enforces that t only depends on tasks of the same goal
// that were created before it.
func checkDependencies(ctx context.Context, exec executor, t *models.Task) error {
	for _, dep := range t.Dependencies {
		if dep == t.ID {
			return &models.ValidationError{Field: "dependencies", Reason: "a task cannot depend on itself"}
		}
		var goalID string
		var position int
		err := exec.QueryRowContext(ctx,
			`SELECT goal_id, position FROM tasks WHERE id = ?`, dep,
		).Scan(&goalID, &position)
		if err == sql.ErrNoRows {
			return notFound("task", dep)
		}
		if err != nil {
			return fmt.Errorf("failed to look up dependency %s: %w", dep, err)
		}
		if goalID != t.GoalID {
			return &models.ValidationError{Field: "dependencies", Reason: fmt.Sprintf("task %s belongs to another goal", dep)}
		}
		if position >= t.Position {
			return &models.ValidationError{Field: "dependencies", Reason: fmt.Sprintf("task %s was created later", dep)}
		}
	}
	return nil
}
