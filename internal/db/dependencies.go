package db

import (
	"context"
	"fmt"

	"github.com/ldi/delegate/pkg/models"
)

func (db *DB) GetDependencies(ctx context.Context, taskID string) ([]*models.Task, error) {
	t, err := db.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, notFound("task", taskID)
	}

	deps := make([]*models.Task, 0, len(t.Dependencies))
	for _, id := range t.Dependencies {
		dep, err := db.GetTask(ctx, id)
		if err != nil {
			return nil, err
		}
		if dep != nil {
			deps = append(deps, dep)
		}
	}
	return deps, nil
}

// GetDependents returns the tasks that list taskID as a dependency.
func (db *DB) GetDependents(ctx context.Context, taskID string) ([]string, error) {
	deps, err := db.listDependencies(ctx, db.DB, `d.depends_on_task_id = ?`, taskID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(deps))
	for _, d := range deps {
		ids = append(ids, d.TaskID)
	}
	return ids, nil
}

// listDependencies returns edges ordered by the position of the prerequisite,
// so each task's dependency list comes back in creation order.
func (db *DB) listDependencies(ctx context.Context, exec executor, where string, arg any) ([]*models.Dependency, error) {
	query := `
		SELECT d.task_id, d.depends_on_task_id
		FROM dependencies d
		JOIN tasks t ON t.id = d.task_id
		JOIN tasks p ON p.id = d.depends_on_task_id
		WHERE ` + where + `
		ORDER BY t.position ASC, p.position ASC
	`
	rows, err := exec.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list dependencies: %w", err)
	}
	defer rows.Close()

	var deps []*models.Dependency
	for rows.Next() {
		d := &models.Dependency{}
		if err := rows.Scan(&d.TaskID, &d.DependsOnTaskID); err != nil {
			return nil, fmt.Errorf("failed to scan dependency: %w", err)
		}
		deps = append(deps, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return deps, nil
}

func (db *DB) replaceDependencies(ctx context.Context, exec executor, taskID string, dependsOn []string) error {
	if _, err := exec.ExecContext(ctx, `DELETE FROM dependencies WHERE task_id = ?`, taskID); err != nil {
		return fmt.Errorf("failed to clear dependencies: %w", err)
	}
	for _, dep := range dependsOn {
		if err := db.createDependency(ctx, exec, taskID, dep); err != nil {
			return err
		}
	}
	return nil
}

func (db *DB) createDependency(ctx context.Context, exec executor, taskID, dependsOnTaskID string) error {
	query := `INSERT INTO dependencies (task_id, depends_on_task_id) VALUES (?, ?)`
	_, err := exec.ExecContext(ctx, query, taskID, dependsOnTaskID)
	if err != nil {
		return fmt.Errorf("failed to create dependency: %w", err)
	}
	return nil
}
