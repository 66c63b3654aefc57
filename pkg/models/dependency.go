package models

// Dependency is a single edge of a goal's task graph: TaskID cannot start
// before DependsOnTaskID is done.
type Dependency struct {
	TaskID          string `json:"task_id"`
	DependsOnTaskID string `json:"depends_on_task_id"`
}
