// Package session keeps the locally rendered view of sessions consistent
// with the backend while mutations are in flight.
//
// Per-session views live in one read-through cache keyed by session id.
// Mutations commit into that cache when they succeed, then invalidate it
// and refetch so the backend's version always wins.
package session

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/ldi/delegate/internal/backend"
	"github.com/ldi/delegate/internal/cache"
	"github.com/ldi/delegate/internal/roster"
	"github.com/ldi/delegate/pkg/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// maxTitleLen bounds titles derived from a first message.
const maxTitleLen = 48

// State is a point-in-time projection of the synchronizer.
type State struct {
	// Current is the selected session's cached view. It may be stale while
	// a refetch is in flight and is nil when nothing is selected or the
	// view has not loaded yet.
	Current   *models.Session
	CurrentID string
	Sessions  []*models.Session
	Members   []*models.TeamMember
	Loading   bool
	// Sending reports a message in flight for the current session.
	Sending bool
	Err     error
}

type Synchronizer struct {
	api     backend.API
	members roster.Provider
	logger  *zap.Logger
	views   *cache.Cache[*models.Session]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	current  string
	list     []*models.Session
	roster   []*models.TeamMember
	inflight int
	lastErr  error
	pending  map[string]bool
	subs     map[chan struct{}]struct{}
}

// New returns a synchronizer over api. members may be nil when no roster
// is needed.
func New(api backend.API, members roster.Provider, logger *zap.Logger) *Synchronizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Synchronizer{
		api:     api,
		members: members,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		pending: make(map[string]bool),
		subs:    make(map[chan struct{}]struct{}),
	}
	s.views = cache.New(func(ctx context.Context, id string) (*models.Session, error) {
		return api.GetSession(ctx, id)
	}, (*models.Session).Clone)
	return s
}

// Close cancels operations in flight and waits for them to finish.
func (s *Synchronizer) Close() {
	s.cancel()
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subs {
		close(ch)
		delete(s.subs, ch)
	}
}

// Subscribe returns a channel that receives a value whenever the state
// changes. Notifications coalesce; read State after each one.
func (s *Synchronizer) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[ch]; ok {
			delete(s.subs, ch)
			close(ch)
		}
	}
}

func (s *Synchronizer) notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifyLocked()
}

func (s *Synchronizer) notifyLocked() {
	for ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (s *Synchronizer) begin() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight++
	s.notifyLocked()
}

func (s *Synchronizer) end(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight--
	s.lastErr = err
	s.notifyLocked()
}

// State returns the current projection. Callers own the returned values.
func (s *Synchronizer) State() State {
	s.mu.Lock()
	st := State{
		CurrentID: s.current,
		Sessions:  cloneSessions(s.list),
		Members:   slices.Clone(s.roster),
		Loading:   s.inflight > 0,
		Sending:   s.pending[s.current],
		Err:       s.lastErr,
	}
	s.mu.Unlock()

	if st.CurrentID != "" {
		if v, ok := s.views.Peek(st.CurrentID); ok {
			st.Current = v
		}
	}
	return st
}

// Members returns the roster loaded by Bootstrap.
func (s *Synchronizer) Members() []*models.TeamMember {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.roster)
}

// View returns the cached view of a session without loading it.
func (s *Synchronizer) View(id string) (*models.Session, bool) {
	return s.views.Peek(id)
}

// Bootstrap loads the session list and the roster concurrently.
func (s *Synchronizer) Bootstrap(ctx context.Context) error {
	var sessions []*models.Session
	var members []*models.TeamMember

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sessions, err = s.api.ListSessions(gctx)
		return err
	})
	if s.members != nil {
		g.Go(func() error {
			var err error
			members, err = s.members.ListMembers(gctx)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		s.mu.Lock()
		s.lastErr = err
		s.notifyLocked()
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.list = sessions
	s.roster = members
	s.notifyLocked()
	return nil
}

// LoadSessions refetches the session list.
func (s *Synchronizer) LoadSessions(cb Callbacks[[]*models.Session]) *Op[[]*models.Session] {
	return Run(s, "list sessions", cb, s.api.ListSessions, Hooks[[]*models.Session]{
		Commit: func(sessions []*models.Session) {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.list = cloneSessions(sessions)
		},
	})
}

// Select makes id the current session and loads its view through the
// cache.
func (s *Synchronizer) Select(id string, cb Callbacks[*models.Session]) *Op[*models.Session] {
	s.mu.Lock()
	s.current = id
	s.notifyLocked()
	s.mu.Unlock()

	return Run(s, "get session", cb, func(ctx context.Context) (*models.Session, error) {
		return s.views.Get(ctx, id)
	}, Hooks[*models.Session]{
		Commit:   s.syncListEntry,
		Rollback: func(err error) { s.dropIfGone(id, err) },
	})
}

// Refresh invalidates a session's view and reloads it.
func (s *Synchronizer) Refresh(id string, cb Callbacks[*models.Session]) *Op[*models.Session] {
	s.views.Invalidate(id)
	return Run(s, "get session", cb, func(ctx context.Context) (*models.Session, error) {
		return s.views.Get(ctx, id)
	}, Hooks[*models.Session]{
		Commit:   s.syncListEntry,
		Rollback: func(err error) { s.dropIfGone(id, err) },
	})
}

// Invalidate marks a session's view stale. The next Select or Refresh
// reloads it.
func (s *Synchronizer) Invalidate(id string) {
	s.views.Invalidate(id)
	s.notify()
}

// refetch reloads a view after a successful mutation. Failures are
// recorded in State but do not fail the mutation.
func (s *Synchronizer) refetch(id string) {
	s.views.Invalidate(id)
	v, err := s.views.Get(s.ctx, id)
	if err != nil {
		s.logger.Warn("refetch failed", zap.String("session_id", id), zap.Error(err))
		s.dropIfGone(id, err)
		s.mu.Lock()
		s.lastErr = err
		s.notifyLocked()
		s.mu.Unlock()
		return
	}
	s.syncListEntry(v)
}

// syncListEntry copies list-level fields of a loaded view into the list.
func (s *Synchronizer) syncListEntry(v *models.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.list {
		if e.ID == v.ID {
			e.Title = v.Title
			e.LastActivityAt = v.LastActivityAt
		}
	}
	s.notifyLocked()
}

// dropIfGone forgets a session the backend no longer knows.
func (s *Synchronizer) dropIfGone(id string, err error) {
	if errors.Is(err, backend.ErrConflict) {
		s.forget(id)
	}
}

func (s *Synchronizer) forget(id string) {
	s.views.Evict(id)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.list = slices.DeleteFunc(s.list, func(e *models.Session) bool { return e.ID == id })
	if s.current == id {
		s.current = ""
	}
	s.notifyLocked()
}

// CreateSession creates a session, prepends it to the list and makes it
// current. Other sessions are untouched.
func (s *Synchronizer) CreateSession(title string, cb Callbacks[*models.Session]) *Op[*models.Session] {
	return Run(s, "create session", cb, func(ctx context.Context) (*models.Session, error) {
		return s.api.CreateSession(ctx, title)
	}, Hooks[*models.Session]{
		Commit: s.adopt,
	})
}

func (s *Synchronizer) adopt(created *models.Session) {
	view := created.Clone()
	if view.Exchanges == nil {
		view.Exchanges = []*models.Exchange{}
	}
	s.views.Set(created.ID, view)

	entry := created.Clone()
	entry.Exchanges = nil
	entry.Goal = nil

	s.mu.Lock()
	defer s.mu.Unlock()
	s.list = append([]*models.Session{entry}, s.list...)
	s.current = created.ID
	s.notifyLocked()
}

// SendMessage sends text to a session. An empty sessionID starts a new
// session titled after the text.
//
// At most one send is in flight per sessionID. A call made while another
// is pending for the same id is dropped: the returned Op is Skipped and no
// callback fires. On success the exchange is appended to the cached view
// before OnSuccess runs, and the view is refetched afterwards.
func (s *Synchronizer) SendMessage(sessionID, text string, cb Callbacks[*models.Exchange]) *Op[*models.Exchange] {
	text = strings.TrimSpace(text)
	if text == "" {
		return Fail(cb, &models.ValidationError{Field: "text", Reason: "must not be empty"})
	}

	s.mu.Lock()
	if s.pending[sessionID] {
		s.mu.Unlock()
		s.logger.Debug("send skipped, already pending", zap.String("session_id", sessionID))
		return skippedOp[*models.Exchange]()
	}
	s.pending[sessionID] = true
	s.notifyLocked()
	s.mu.Unlock()

	release := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.pending, sessionID)
	}

	var target string
	return Run(s, "send message", cb, func(ctx context.Context) (*models.Exchange, error) {
		target = sessionID
		if target == "" {
			created, err := s.api.CreateSession(ctx, TitleFromText(text))
			if err != nil {
				return nil, err
			}
			s.adopt(created)
			target = created.ID
			// The new session shares the guard of the path that created it
			// until the first exchange lands.
			s.mu.Lock()
			s.pending[target] = true
			s.mu.Unlock()
			defer func() {
				s.mu.Lock()
				delete(s.pending, target)
				s.mu.Unlock()
			}()
		}
		return s.api.SendMessage(ctx, target, text)
	}, Hooks[*models.Exchange]{
		Commit: func(e *models.Exchange) {
			release()
			s.appendExchange(target, e)
		},
		Rollback: func(err error) {
			release()
			if target != "" {
				s.dropIfGone(target, err)
			}
		},
		After: func(e *models.Exchange) {
			s.refetch(target)
		},
	})
}

func (s *Synchronizer) appendExchange(id string, e *models.Exchange) {
	stored := *e
	stored.Goal = e.Goal.Clone()
	s.views.Update(id, func(v *models.Session) *models.Session {
		v.Exchanges = append(v.Exchanges, &stored)
		if e.Goal != nil {
			if v.Goal != nil && v.Goal.Status == models.GoalStatusProposed {
				v.Goal.Status = models.GoalStatusAbandoned
			}
			v.Goal = e.Goal.Clone()
		}
		v.LastActivityAt = e.CreatedAt
		return v
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	idx := slices.IndexFunc(s.list, func(entry *models.Session) bool { return entry.ID == id })
	if idx >= 0 {
		entry := s.list[idx]
		entry.LastActivityAt = e.CreatedAt
		s.list = slices.Delete(s.list, idx, idx+1)
		s.list = append([]*models.Session{entry}, s.list...)
	}
	s.notifyLocked()
}

// DeleteSession deletes a session. On success it leaves the list, its view
// is evicted and, if it was current, nothing is current anymore.
func (s *Synchronizer) DeleteSession(id string, cb Callbacks[struct{}]) *Op[struct{}] {
	return Run(s, "delete session", cb, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.api.DeleteSession(ctx, id)
	}, Hooks[struct{}]{
		Commit:   func(struct{}) { s.forget(id) },
		Rollback: func(err error) { s.dropIfGone(id, err) },
	})
}

// UpdateSessionTitle renames a session optimistically and restores the
// previous title if the backend rejects it.
func (s *Synchronizer) UpdateSessionTitle(id, title string, cb Callbacks[struct{}]) *Op[struct{}] {
	title = strings.TrimSpace(title)
	if title == "" {
		return Fail(cb, &models.ValidationError{Field: "title", Reason: "must not be empty"})
	}

	var previous string
	s.mu.Lock()
	for _, e := range s.list {
		if e.ID == id {
			previous = e.Title
			e.Title = title
		}
	}
	s.mu.Unlock()
	s.views.Update(id, func(v *models.Session) *models.Session {
		if previous == "" {
			previous = v.Title
		}
		v.Title = title
		return v
	})
	s.notify()

	return Run(s, "update session title", cb, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.api.UpdateSessionTitle(ctx, id, title)
	}, Hooks[struct{}]{
		Rollback: func(err error) {
			if errors.Is(err, backend.ErrConflict) {
				s.forget(id)
				return
			}
			s.setTitle(id, title, previous)
		},
	})
}

// setTitle replaces title from with to, leaving newer edits alone.
func (s *Synchronizer) setTitle(id, from, to string) {
	s.views.Update(id, func(v *models.Session) *models.Session {
		if v.Title == from {
			v.Title = to
		}
		return v
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.list {
		if e.ID == id && e.Title == from {
			e.Title = to
		}
	}
	s.notifyLocked()
}

// ApproveGoal asks the backend to approve goal once. On success the
// owning session is refetched so its tasks show as tracked work.
func (s *Synchronizer) ApproveGoal(goal *models.Goal, cb Callbacks[*models.Goal]) *Op[*models.Goal] {
	if goal == nil {
		return Fail(cb, &models.ValidationError{Field: "goal", Reason: "is required"})
	}
	goalID, sessionID := goal.ID, goal.SessionID
	return Run(s, "approve goal", cb, func(ctx context.Context) (*models.Goal, error) {
		return s.api.ApproveGoal(ctx, goalID)
	}, Hooks[*models.Goal]{
		Commit: func(g *models.Goal) {
			s.views.Update(sessionID, func(v *models.Session) *models.Session {
				if v.Goal != nil && v.Goal.ID == g.ID {
					v.Goal = g.Clone()
				}
				return v
			})
			s.notify()
		},
		Rollback: func(err error) {
			if errors.Is(err, backend.ErrConflict) {
				s.refetch(sessionID)
			}
		},
		After: func(*models.Goal) { s.refetch(sessionID) },
	})
}

// PatchGoal applies fn to the cached goal of a session and recomputes its
// aggregates. It returns a func that restores the goal as it was, and
// false when the session has no cached goal with that id.
func (s *Synchronizer) PatchGoal(sessionID, goalID string, fn func(*models.Goal)) (restore func(), ok bool) {
	var before *models.Goal
	s.views.Update(sessionID, func(v *models.Session) *models.Session {
		if v.Goal == nil || v.Goal.ID != goalID {
			return v
		}
		before = v.Goal.Clone()
		fn(v.Goal)
		v.Goal.Recompute()
		ok = true
		return v
	})
	if !ok {
		return func() {}, false
	}
	s.notify()

	return func() {
		s.views.Update(sessionID, func(v *models.Session) *models.Session {
			if v.Goal != nil && v.Goal.ID == goalID {
				v.Goal = before.Clone()
			}
			return v
		})
		s.notify()
	}, true
}

// AfterMutation invalidates and refetches a session's view in the
// background. Task operations call it on success.
func (s *Synchronizer) AfterMutation(sessionID string) {
	s.refetch(sessionID)
}

// FindGoal returns the cached goal with id and its session id.
func (s *Synchronizer) FindGoal(goalID string) (*models.Goal, bool) {
	for _, key := range s.views.Keys() {
		if v, ok := s.views.Peek(key); ok && v.Goal != nil && v.Goal.ID == goalID {
			return v.Goal, true
		}
	}
	return nil, false
}

// TitleFromText derives a session title from the first line of a message.
func TitleFromText(text string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(text), "\n")
	line = strings.Join(strings.Fields(line), " ")
	if utf8.RuneCountInString(line) <= maxTitleLen {
		return line
	}
	runes := []rune(line)
	cut := string(runes[:maxTitleLen])
	if i := strings.LastIndex(cut, " "); i > maxTitleLen/2 {
		cut = cut[:i]
	}
	return cut + "..."
}

func cloneSessions(in []*models.Session) []*models.Session {
	out := make([]*models.Session, len(in))
	for i, e := range in {
		out[i] = e.Clone()
	}
	return out
}
