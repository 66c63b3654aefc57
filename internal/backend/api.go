// Package backend defines the remote contract the pipeline talks to and a
// reference implementation of it over the local store.
package backend

import (
	"context"

	"github.com/ldi/delegate/pkg/models"
)

// API is the authoritative remote store for sessions, goals and tasks.
// Every failure is returned as a *TransportError.
type API interface {
	ListSessions(ctx context.Context) ([]*models.Session, error)
	CreateSession(ctx context.Context, title string) (*models.Session, error)
	GetSession(ctx context.Context, id string) (*models.Session, error)
	// SendMessage appends an exchange and returns it. When the message
	// produced a goal, the exchange embeds it.
	SendMessage(ctx context.Context, sessionID, text string) (*models.Exchange, error)
	DeleteSession(ctx context.Context, id string) error
	UpdateSessionTitle(ctx context.Context, id, title string) error

	CreateTask(ctx context.Context, goalID string, in models.TaskInput) (*models.Task, error)
	UpdateTask(ctx context.Context, taskID string, patch models.TaskPatch) (*models.Task, error)
	DeleteTask(ctx context.Context, taskID string) error
	// AssignTask replaces the task's assignment. An empty memberID clears it.
	AssignTask(ctx context.Context, taskID, memberID string) (*models.Task, error)
	ApproveGoal(ctx context.Context, goalID string) (*models.Goal, error)
}
