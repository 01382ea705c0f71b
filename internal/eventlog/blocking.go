package eventlog

import (
	"context"
	"sync/atomic"
	"time"
)

// Future is a pending receive. It is completed exactly once: with a
// message, with nil on timeout, or with an error.
type Future struct {
	done      chan struct{}
	completed atomic.Bool
	deadline  time.Time
	msg       *Message
	err       error
}

func newFuture(deadline time.Time) *Future {
	return &Future{done: make(chan struct{}), deadline: deadline}
}

func failedFuture(err error) *Future {
	f := newFuture(time.Time{})
	f.complete(nil, err)
	return f
}

// complete resolves f. It returns false when f was already resolved, in
// which case msg was not consumed.
func (f *Future) complete(msg *Message, err error) bool {
	if !f.completed.CompareAndSwap(false, true) {
		return false
	}
	f.msg, f.err = msg, err
	close(f.done)
	return true
}

func (f *Future) isDone() bool { return f.completed.Load() }

// Done is closed once the future is resolved.
func (f *Future) Done() <-chan struct{} { return f.done }

// Result returns the outcome. It must only be called after Done is closed.
func (f *Future) Result() (*Message, error) { return f.msg, f.err }

// Cancel resolves a pending future with context.Canceled. It reports
// whether the future was still pending; a message already delivered to it
// stays there.
func (f *Future) Cancel() bool { return f.complete(nil, context.Canceled) }

// Wait blocks until the future resolves or ctx is done. When ctx ends first
// the future is cancelled, unless a message raced in, which is returned.
func (f *Future) Wait(ctx context.Context) (*Message, error) {
	select {
	case <-f.done:
		return f.Result()
	case <-ctx.Done():
		if f.complete(nil, ctx.Err()) {
			return nil, ctx.Err()
		}
		<-f.done
		return f.Result()
	}
}
