package eventlog

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rzbill/rawdata/internal/storage"
	logpkg "github.com/rzbill/rawdata/pkg/log"
)

// State is the consumer tailing state.
type State int32

const (
	StateInitializing State = iota
	StateTailing
	StateExhausted
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateTailing:
		return "tailing"
	case StateExhausted:
		return "exhausted"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Consumer tails one topic. A background tailer owns the read position and
// serves receive requests strictly in the order they were made. Receive,
// ReceiveAsync, Seek and Close must be serialised by the caller.
type Consumer struct {
	log    *Log
	topic  string
	logger logpkg.Logger
	r      *reader

	ctx    context.Context
	cancel context.CancelFunc
	reqCh  chan *Future
	seekCh chan seekRequest
	stop   chan struct{}
	done   chan struct{}
	state  atomic.Int32
	once   sync.Once
}

type seekRequest struct {
	cursor Cursor
	done   chan struct{}
}

// Consumer opens a consumer at the beginning of topic.
func (l *Log) Consumer(ctx context.Context, topic string) (*Consumer, error) {
	return l.newConsumer(topic, nil)
}

// ConsumerAt opens a consumer at cursor.
func (l *Log) ConsumerAt(ctx context.Context, topic string, cursor Cursor) (*Consumer, error) {
	return l.newConsumer(topic, &cursor)
}

// ConsumerFrom opens a consumer just after position, resolving it with
// CursorOf.
func (l *Log) ConsumerFrom(ctx context.Context, topic, position string, refTime time.Time, timeout time.Duration) (*Consumer, error) {
	cur, err := l.CursorOf(ctx, topic, position, false, refTime, timeout)
	if err != nil {
		return nil, err
	}
	return l.newConsumer(topic, &cur)
}

func (l *Log) newConsumer(topic string, start *Cursor) (*Consumer, error) {
	if err := storage.ValidateTopic(topic); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Consumer{
		log:    l,
		topic:  topic,
		logger: l.logger.With(logpkg.Str("topic", topic)),
		r:      newReader(l, topic),
		ctx:    ctx,
		cancel: cancel,
		reqCh:  make(chan *Future),
		seekCh: make(chan seekRequest),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	if start != nil {
		c.r.seek(*start)
	}
	if err := l.track(c); err != nil {
		cancel()
		return nil, err
	}
	go c.run()
	return c, nil
}

// Topic returns the consumer's topic.
func (c *Consumer) Topic() string { return c.topic }

// State returns the current tailing state.
func (c *Consumer) State() State { return State(c.state.Load()) }

// Receive returns the next message, or nil when none arrives within
// timeout. A non-positive timeout checks once without waiting.
func (c *Consumer) Receive(ctx context.Context, timeout time.Duration) (*Message, error) {
	f := newFuture(time.Now().Add(timeout))
	if err := c.enqueue(f); err != nil {
		return nil, err
	}
	return f.Wait(ctx)
}

// ReceiveAsync returns a future for the next message. Outstanding futures
// are fulfilled in the order they were requested. Close fails the ones still
// pending with ErrClosed.
func (c *Consumer) ReceiveAsync() *Future {
	f := newFuture(time.Time{})
	if err := c.enqueue(f); err != nil {
		f.complete(nil, err)
	}
	return f
}

// Seek repositions the consumer to the first message whose ID timestamp is
// at or after ms.
func (c *Consumer) Seek(ctx context.Context, ms int64) error {
	return c.SeekTo(ctx, CursorAt(ms))
}

// SeekTo repositions the consumer to cursor, dropping any read-ahead.
func (c *Consumer) SeekTo(ctx context.Context, cursor Cursor) error {
	req := seekRequest{cursor: cursor, done: make(chan struct{})}
	select {
	case c.seekCh <- req:
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-req.done:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// Close stops the tailer and releases the open segment. It is idempotent.
func (c *Consumer) Close() error {
	return c.shutdown(context.Background())
}

func (c *Consumer) shutdown(context.Context) error {
	c.once.Do(func() {
		c.cancel()
		close(c.stop)
		<-c.done
		c.r.close()
		c.state.Store(int32(StateClosed))
		c.log.untrack(c)
	})
	return nil
}

func (c *Consumer) enqueue(f *Future) error {
	select {
	case c.reqCh <- f:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

func (c *Consumer) run() {
	defer close(c.done)
	var queue []*Future
	for {
		select {
		case <-c.stop:
			failAll(queue)
			return
		case req := <-c.seekCh:
			c.r.seek(req.cursor)
			close(req.done)
		default:
		}

		changed := c.log.listing.Changed(c.topic)
		queue = pending(queue)
		if len(queue) > 0 {
			msg, ok, err := c.r.next(c.ctx)
			if c.ctx.Err() != nil {
				failAll(queue)
				return
			}
			if err != nil {
				c.logger.Debug("consumer.read_failed", logpkg.Err(err))
				queue[0].complete(nil, err)
				queue = queue[1:]
				continue
			}
			if ok {
				c.state.Store(int32(StateTailing))
				m := msg
				if queue[0].complete(&m, nil) {
					c.log.metrics.ObserveDelivery(c.topic)
				} else {
					c.r.unread()
				}
				queue = queue[1:]
				continue
			}
			c.state.Store(int32(StateExhausted))
			queue = expire(queue, time.Now())
		}

		var timeout <-chan time.Time
		var timer *time.Timer
		if len(queue) > 0 {
			wait := c.log.pollWait(c.topic, c.r.betweenSegments())
			if d, ok := earliest(queue); ok {
				if until := time.Until(d); until < wait {
					wait = until
				}
			}
			if wait < 0 {
				wait = 0
			}
			timer = time.NewTimer(wait)
			timeout = timer.C
		}
		select {
		case <-c.stop:
			stopTimer(timer)
			failAll(queue)
			return
		case req := <-c.seekCh:
			c.r.seek(req.cursor)
			close(req.done)
		case f := <-c.reqCh:
			queue = append(queue, f)
		case <-changed:
		case <-timeout:
		}
		stopTimer(timer)
	}
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}

// pending drops futures resolved from outside, such as cancelled waits.
func pending(queue []*Future) []*Future {
	out := queue[:0]
	for _, f := range queue {
		if !f.isDone() {
			out = append(out, f)
		}
	}
	return out
}

// expire resolves futures past their deadline with no message.
func expire(queue []*Future, now time.Time) []*Future {
	out := queue[:0]
	for _, f := range queue {
		if !f.deadline.IsZero() && !now.Before(f.deadline) {
			f.complete(nil, nil)
			continue
		}
		out = append(out, f)
	}
	return out
}

func earliest(queue []*Future) (time.Time, bool) {
	var d time.Time
	for _, f := range queue {
		if f.deadline.IsZero() {
			continue
		}
		if d.IsZero() || f.deadline.Before(d) {
			d = f.deadline
		}
	}
	return d, !d.IsZero()
}

func failAll(queue []*Future) {
	for _, f := range queue {
		f.complete(nil, ErrClosed)
	}
}
