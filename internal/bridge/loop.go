package bridge

import (
	"context"

	"go.uber.org/zap"
)

// taskBuffer bounds the loop queue. Background producers block when it is
// full, public callers block or give up with their context.
const taskBuffer = 1024

// run drains tasks until Close. Each task runs alone and to completion.
func (s *Supervisor) run() {
	defer close(s.done)
	for {
		select {
		case <-s.stopped:
			return
		case fn := <-s.tasks:
			s.exec(fn)
		}
	}
}

func (s *Supervisor) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Loop task panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	fn()
}

// do runs fn on the loop and waits for it
func (s *Supervisor) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	task := func() {
		defer close(finished)
		fn()
	}

	select {
	case s.tasks <- task:
	case <-s.stopped:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-finished:
		return nil
	case <-s.done:
		select {
		case <-finished:
			return nil
		default:
			return ErrClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post queues fn without waiting. Used by the realm sink, timers and the
// watchdog; never call it from the loop itself.
func (s *Supervisor) post(fn func()) {
	select {
	case s.tasks <- fn:
	case <-s.stopped:
	}
}
