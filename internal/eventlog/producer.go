package eventlog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rzbill/rawdata/internal/segment"
	"github.com/rzbill/rawdata/internal/storage"
	"github.com/rzbill/rawdata/pkg/id"
	logpkg "github.com/rzbill/rawdata/pkg/log"
)

// Producer appends to one topic. It owns at most one open segment at a
// time. Calls must not be made concurrently; the internal lock only
// serialises them against Log.Close.
type Producer struct {
	log     *Log
	topic   string
	session string
	logger  logpkg.Logger

	mu     sync.Mutex
	buffer []Message
	seq    uint32
	open   *openSegment
	closed bool
}

type openSegment struct {
	key      segment.Key
	app      storage.Appender
	w        *segment.Writer
	win      *segment.Window
	synced   bool
	lastSync time.Time
}

// Producer opens a producer session on topic. Nothing is written until the
// first publish.
func (l *Log) Producer(ctx context.Context, topic string) (*Producer, error) {
	if err := storage.ValidateTopic(topic); err != nil {
		return nil, err
	}
	session := uuid.NewString()
	p := &Producer{
		log:     l,
		topic:   topic,
		session: session,
		logger:  l.logger.With(logpkg.Str("topic", topic), logpkg.Str("producer", session)),
	}
	if err := l.track(p); err != nil {
		return nil, err
	}
	return p, nil
}

// Topic returns the producer's topic.
func (p *Producer) Topic() string { return p.topic }

// Buffer stages messages for a later Publish. Position uniqueness is the
// caller's responsibility.
func (p *Producer) Buffer(msgs ...Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.buffer = append(p.buffer, msgs...)
	return nil
}

// Buffered returns the number of staged messages.
func (p *Producer) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buffer)
}

// Publish writes the buffered messages with the given positions, in buffer
// order, as one block. The positions must name the oldest buffered messages,
// in any order. Nothing is written when a position was never buffered or
// when an earlier buffered message is left out.
func (p *Producer) Publish(ctx context.Context, positions ...string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	want := make(map[string]struct{}, len(positions))
	for _, pos := range positions {
		want[pos] = struct{}{}
	}
	buffered := make(map[string]struct{}, len(p.buffer))
	for _, m := range p.buffer {
		buffered[m.Position] = struct{}{}
	}
	for _, pos := range positions {
		if _, ok := buffered[pos]; !ok {
			return fmt.Errorf("%w: %q", ErrNotBuffered, pos)
		}
	}
	n := len(want)
	for _, m := range p.buffer[:n] {
		if _, ok := want[m.Position]; !ok {
			return fmt.Errorf("%w: %q is still buffered ahead of them", ErrNotPrefix, m.Position)
		}
	}
	if err := p.write(ctx, p.buffer[:n:n]); err != nil {
		return err
	}
	p.buffer = p.buffer[n:]
	return nil
}

// PublishMessages buffers and publishes msgs in one call. IDs assigned at
// publish time are written back into msgs.
func (p *Producer) PublishMessages(ctx context.Context, msgs ...Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	return p.write(ctx, msgs)
}

func (p *Producer) write(ctx context.Context, msgs []Message) error {
	if len(msgs) == 0 {
		return nil
	}
	start := time.Now()
	var bytes int64
	for i := range msgs {
		m := msgs[i]
		if m.ID.IsZero() {
			m.ID = p.log.ids.Next()
			msgs[i].ID = m.ID
		}
		now := p.log.now()
		// an idle segment past its age seals on the next write
		if p.open != nil && p.open.win.ShouldSeal(now) {
			if err := p.seal(ctx); err != nil {
				return err
			}
		}
		if p.open == nil {
			if err := p.openSegment(ctx, m.ID, now); err != nil {
				return err
			}
		}
		n, err := p.open.w.Append(m)
		if err != nil {
			return backendErr("append", p.topic, err)
		}
		p.open.win.Add(n)
		bytes += int64(n)
		if p.open.win.ShouldSeal(now) {
			if err := p.seal(ctx); err != nil {
				return err
			}
		}
	}
	if err := p.flush(ctx); err != nil {
		return err
	}
	p.log.metrics.ObservePublish(p.topic, len(msgs), bytes, time.Since(start))
	return nil
}

func (p *Producer) openSegment(ctx context.Context, first id.ID, now time.Time) error {
	key := segment.Key{First: first, Seq: p.seq}
	app, err := p.log.backend.CreateSegment(ctx, p.topic, key)
	if err != nil {
		return backendErr("create", p.topic, err)
	}
	w, err := segment.NewWriter(app, segment.WriterOptions{
		Compression: p.log.opts.Compression,
		BlockBytes:  p.log.opts.BlockBytes,
	})
	if err != nil {
		_ = app.Abort()
		return backendErr("create", p.topic, err)
	}
	p.seq++
	p.open = &openSegment{key: key, app: app, w: w, win: segment.NewWindow(p.log.opts.Window, now)}
	p.logger.Debug("segment.opened", logpkg.Str("key", key.String()))
	return nil
}

// flush writes pending records as a block and syncs it when due.
func (p *Producer) flush(ctx context.Context) error {
	o := p.open
	if o == nil {
		return nil
	}
	if _, err := o.w.Flush(); err != nil {
		return backendErr("write", p.topic, err)
	}
	now := p.log.now()
	interval := p.log.opts.SyncInterval
	if interval <= 0 || !o.synced || now.Sub(o.lastSync) >= interval {
		if err := o.app.Sync(ctx); err != nil {
			return backendErr("sync", p.topic, err)
		}
		first := !o.synced
		o.synced = true
		o.lastSync = now
		if first && p.log.tails {
			p.log.listing.Observe(p.topic, o.key)
		}
	}
	if p.log.tails {
		p.log.listing.Notify(p.topic)
	}
	return nil
}

// seal writes the trailer and publishes the open segment.
func (p *Producer) seal(ctx context.Context) error {
	o := p.open
	if o == nil {
		return nil
	}
	p.open = nil
	if err := o.w.Seal(); err != nil {
		_ = o.app.Abort()
		return backendErr("seal", p.topic, err)
	}
	if err := o.app.Commit(ctx); err != nil {
		_ = o.app.Abort()
		return backendErr("commit", p.topic, err)
	}
	p.log.listing.Observe(p.topic, o.key)
	p.log.listing.Notify(p.topic)
	age := p.log.now().Sub(o.win.OpenedAt())
	p.log.metrics.ObserveSeal(p.topic, o.win.Count(), o.win.Bytes(), age)
	p.logger.Debug("segment.sealed",
		logpkg.Str("key", o.key.String()),
		logpkg.Int("messages", o.win.Count()),
		logpkg.Int64("bytes", o.w.Offset()),
		logpkg.Duration("age", age))
	return nil
}

// Close seals and publishes the open segment. Messages still buffered are
// discarded and reported with ErrUnpublished. Close is idempotent.
func (p *Producer) Close(ctx context.Context) error {
	err := p.shutdown(ctx)
	p.log.untrack(p)
	return err
}

func (p *Producer) shutdown(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	var errs []error
	if n := len(p.buffer); n > 0 {
		errs = append(errs, fmt.Errorf("%w: %d messages on %s", ErrUnpublished, n, p.topic))
		p.buffer = nil
	}
	if err := p.seal(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
