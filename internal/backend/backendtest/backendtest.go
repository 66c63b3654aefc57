// Package backendtest provides backends for tests: a Local backend over an
// in-memory store and a wrapper that injects failures and delays.
package backendtest

import (
	"context"
	"sync"
	"testing"

	"github.com/ldi/delegate/internal/backend"
	"github.com/ldi/delegate/internal/db"
	"github.com/ldi/delegate/internal/roster"
	"github.com/ldi/delegate/pkg/models"
	"go.uber.org/zap"
)

// Team is the roster seeded by NewLocal.
func Team() []*models.TeamMember {
	return []*models.TeamMember{
		{Name: "Priya", Role: "Product Manager", Skills: []string{"planning", "project management", "strategy"}},
		{Name: "Diego", Role: "Designer", Skills: []string{"ui design", "ux research", "content"}},
		{Name: "Mei", Role: "Engineer", Skills: []string{"frontend", "react", "backend", "api"}},
		{Name: "Sam", Role: "QA Engineer", Skills: []string{"qa", "testing", "review"}},
	}
}

// NewLocal returns a Local backend over a fresh in-memory store seeded
// with Team. The store is closed when the test ends.
func NewLocal(t testing.TB) (*backend.Local, *db.DB) {
	t.Helper()
	store, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("Failed to init database: %v", err)
	}
	if _, err := roster.Seed(ctx, store, Team()); err != nil {
		t.Fatalf("Failed to seed roster: %v", err)
	}
	return backend.NewLocal(store, nil, zap.NewNop()), store
}

// Faulty wraps an API. Operations named in a Fail call return the given
// error, wrapped as a TransportError, without reaching the inner API.
// Operations named in a Hold call block until released.
type Faulty struct {
	Inner interface {
		backend.API
		roster.Provider
	}

	mu    sync.Mutex
	fail  map[string]error
	gates map[string]chan struct{}
	calls map[string]int

	// Entered receives the op name each time a held operation reaches its
	// gate.
	Entered chan string
}

func NewFaulty(inner interface {
	backend.API
	roster.Provider
}) *Faulty {
	return &Faulty{
		Inner:   inner,
		fail:    make(map[string]error),
		gates:   make(map[string]chan struct{}),
		calls:   make(map[string]int),
		Entered: make(chan string, 16),
	}
}

// Fail makes op return err until Heal is called.
func (f *Faulty) Fail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[op] = err
}

func (f *Faulty) Heal(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.fail, op)
}

// Hold makes op block until the returned release func is called. Release
// is safe to call more than once.
func (f *Faulty) Hold(op string) (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.gates[op] = gate
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			if f.gates[op] == gate {
				delete(f.gates, op)
			}
			f.mu.Unlock()
			close(gate)
		})
	}
}

// Calls reports how many times op was invoked.
func (f *Faulty) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *Faulty) enter(ctx context.Context, op string) error {
	f.mu.Lock()
	f.calls[op]++
	failErr, failing := f.fail[op]
	gate := f.gates[op]
	f.mu.Unlock()

	if gate != nil {
		select {
		case f.Entered <- op:
		default:
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return &backend.TransportError{Op: op, Err: ctx.Err()}
		}
	}
	if failing {
		return &backend.TransportError{Op: op, Err: failErr}
	}
	return nil
}

func (f *Faulty) ListMembers(ctx context.Context) ([]*models.TeamMember, error) {
	if err := f.enter(ctx, "list members"); err != nil {
		return nil, err
	}
	return f.Inner.ListMembers(ctx)
}

func (f *Faulty) ListSessions(ctx context.Context) ([]*models.Session, error) {
	if err := f.enter(ctx, "list sessions"); err != nil {
		return nil, err
	}
	return f.Inner.ListSessions(ctx)
}

func (f *Faulty) CreateSession(ctx context.Context, title string) (*models.Session, error) {
	if err := f.enter(ctx, "create session"); err != nil {
		return nil, err
	}
	return f.Inner.CreateSession(ctx, title)
}

func (f *Faulty) GetSession(ctx context.Context, id string) (*models.Session, error) {
	if err := f.enter(ctx, "get session"); err != nil {
		return nil, err
	}
	return f.Inner.GetSession(ctx, id)
}

func (f *Faulty) SendMessage(ctx context.Context, sessionID, text string) (*models.Exchange, error) {
	if err := f.enter(ctx, "send message"); err != nil {
		return nil, err
	}
	return f.Inner.SendMessage(ctx, sessionID, text)
}

func (f *Faulty) DeleteSession(ctx context.Context, id string) error {
	if err := f.enter(ctx, "delete session"); err != nil {
		return err
	}
	return f.Inner.DeleteSession(ctx, id)
}

func (f *Faulty) UpdateSessionTitle(ctx context.Context, id, title string) error {
	if err := f.enter(ctx, "update session title"); err != nil {
		return err
	}
	return f.Inner.UpdateSessionTitle(ctx, id, title)
}

func (f *Faulty) CreateTask(ctx context.Context, goalID string, in models.TaskInput) (*models.Task, error) {
	if err := f.enter(ctx, "create task"); err != nil {
		return nil, err
	}
	return f.Inner.CreateTask(ctx, goalID, in)
}

func (f *Faulty) UpdateTask(ctx context.Context, taskID string, patch models.TaskPatch) (*models.Task, error) {
	if err := f.enter(ctx, "update task"); err != nil {
		return nil, err
	}
	return f.Inner.UpdateTask(ctx, taskID, patch)
}

func (f *Faulty) DeleteTask(ctx context.Context, taskID string) error {
	if err := f.enter(ctx, "delete task"); err != nil {
		return err
	}
	return f.Inner.DeleteTask(ctx, taskID)
}

func (f *Faulty) AssignTask(ctx context.Context, taskID, memberID string) (*models.Task, error) {
	if err := f.enter(ctx, "assign task"); err != nil {
		return nil, err
	}
	return f.Inner.AssignTask(ctx, taskID, memberID)
}

func (f *Faulty) ApproveGoal(ctx context.Context, goalID string) (*models.Goal, error) {
	if err := f.enter(ctx, "approve goal"); err != nil {
		return nil, err
	}
	return f.Inner.ApproveGoal(ctx, goalID)
}
