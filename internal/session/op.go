package session

import (
	"context"

	"go.uber.org/zap"
)

// Callbacks receive the outcome of an operation. Either may be nil. They
// run on the operation's goroutine, never while the synchronizer is locked.
type Callbacks[T any] struct {
	OnSuccess func(T)
	OnError   func(error)
}

// Op is the handle of an operation in flight.
type Op[T any] struct {
	done    chan struct{}
	val     T
	err     error
	skipped bool
}

func newOp[T any]() *Op[T] {
	return &Op[T]{done: make(chan struct{})}
}

// skippedOp is returned when the pending guard drops a call.
func skippedOp[T any]() *Op[T] {
	op := newOp[T]()
	op.skipped = true
	close(op.done)
	return op
}

// Fail returns a completed Op carrying err without dispatching anything.
// OnError runs before Fail returns.
func Fail[T any](cb Callbacks[T], err error) *Op[T] {
	op := newOp[T]()
	if cb.OnError != nil {
		cb.OnError(err)
	}
	op.err = err
	close(op.done)
	return op
}

func (o *Op[T]) finish(val T, err error) {
	o.val, o.err = val, err
	close(o.done)
}

// Done is closed once the operation and its callbacks have completed.
func (o *Op[T]) Done() <-chan struct{} {
	return o.done
}

// Skipped reports whether the call was dropped without being dispatched.
// A skipped Op is done, carries no error and fires no callbacks.
func (o *Op[T]) Skipped() bool {
	return o.skipped
}

// Wait blocks until the operation completes or ctx is done.
func (o *Op[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-o.done:
		return o.val, o.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Hooks adjust synchronizer state around an operation's callbacks.
// Commit runs before OnSuccess, Rollback before OnError and After once
// OnSuccess has returned.
type Hooks[T any] struct {
	Commit   func(T)
	Rollback func(error)
	After    func(T)
}

// Run dispatches call on its own goroutine and returns immediately.
func Run[T any](s *Synchronizer, name string, cb Callbacks[T], call func(context.Context) (T, error), h Hooks[T]) *Op[T] {
	if err := s.ctx.Err(); err != nil {
		return Fail(cb, err)
	}

	op := newOp[T]()
	s.begin()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		val, err := call(s.ctx)
		if err != nil {
			if h.Rollback != nil {
				h.Rollback(err)
			}
			s.end(err)
			s.logger.Warn("operation failed", zap.String("op", name), zap.Error(err))
			if cb.OnError != nil {
				cb.OnError(err)
			}
			op.finish(val, err)
			return
		}

		if h.Commit != nil {
			h.Commit(val)
		}
		s.end(nil)
		s.logger.Debug("operation succeeded", zap.String("op", name))
		if cb.OnSuccess != nil {
			cb.OnSuccess(val)
		}
		if h.After != nil {
			h.After(val)
		}
		op.finish(val, nil)
	}()
	return op
}
