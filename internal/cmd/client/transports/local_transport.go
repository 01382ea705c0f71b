package transports

import (
	"context"
	"errors"
	"time"

	"github.com/rzbill/rawdata/internal/eventlog"
	"github.com/rzbill/rawdata/internal/filter"
	"github.com/rzbill/rawdata/internal/runtime"
	"github.com/rzbill/rawdata/pkg/id"
)

// LocalTransport opens the configured storage in-process. Useful for
// inspecting buckets and folders without a server.
type LocalTransport struct {
	rt *runtime.Runtime
}

// NewLocalTransport wraps an opened runtime. Close closes the runtime.
func NewLocalTransport(rt *runtime.Runtime) *LocalTransport {
	return &LocalTransport{rt: rt}
}

func toMessage(m eventlog.Message) Message {
	return Message{
		ID:            m.ID.String(),
		Position:      m.Position,
		OrderingGroup: m.OrderingGroup,
		Sequence:      m.SequenceNumber,
		TimestampMs:   m.Timestamp(),
		Attributes:    m.Attributes,
	}
}

func notFound(err error) error {
	if errors.Is(err, eventlog.ErrNoSuchPosition) {
		return errors.Join(ErrNotFound, err)
	}
	return err
}

func (t *LocalTransport) Publish(ctx context.Context, topic string, msgs []Message) ([]string, error) {
	p, err := t.rt.Producer(ctx, topic)
	if err != nil {
		return nil, err
	}
	out := make([]eventlog.Message, 0, len(msgs))
	for _, m := range msgs {
		em := eventlog.Message{
			Position:       m.Position,
			OrderingGroup:  m.OrderingGroup,
			SequenceNumber: m.Sequence,
			Attributes:     m.Attributes,
		}
		if m.ID != "" {
			if em.ID, err = id.Parse(m.ID); err != nil {
				_ = p.Close(ctx)
				return nil, err
			}
		}
		out = append(out, em)
	}
	if err := p.PublishMessages(ctx, out...); err != nil {
		_ = p.Close(ctx)
		return nil, err
	}
	if err := p.Close(ctx); err != nil {
		return nil, err
	}
	ids := make([]string, len(out))
	for i, m := range out {
		ids[i] = m.ID.String()
	}
	return ids, nil
}

func (t *LocalTransport) Tail(ctx context.Context, req TailRequest, onMessage func(Message) error) error {
	f, err := filter.Compile(req.Filter)
	if err != nil {
		return err
	}
	var c *eventlog.Consumer
	switch {
	case req.Cursor != "":
		mid, perr := id.Parse(req.Cursor)
		if perr != nil {
			return perr
		}
		c, err = t.rt.ConsumerAt(ctx, req.Topic, eventlog.Cursor{ID: mid, Inclusive: req.Inclusive})
	case req.Position != "":
		var cur eventlog.Cursor
		cur, err = t.rt.CursorOf(ctx, req.Topic, req.Position, req.Inclusive, time.Now(), 5*time.Second)
		if err == nil {
			c, err = t.rt.ConsumerAt(ctx, req.Topic, cur)
		}
	case req.AtMs > 0:
		c, err = t.rt.ConsumerAt(ctx, req.Topic, eventlog.CursorAt(req.AtMs))
	default:
		c, err = t.rt.Consumer(ctx, req.Topic)
	}
	if err != nil {
		return notFound(err)
	}
	defer func() { _ = c.Close() }()

	sent := 0
	for req.Limit == 0 || sent < req.Limit {
		m, err := c.Receive(ctx, time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if m == nil || !f.Match(*m) {
			continue
		}
		if err := onMessage(toMessage(*m)); err != nil {
			return err
		}
		sent++
	}
	return nil
}

func (t *LocalTransport) Last(ctx context.Context, topic string) (Message, error) {
	m, err := t.rt.LastMessage(ctx, topic)
	if err != nil {
		return Message{}, err
	}
	if m == nil {
		return Message{}, ErrNotFound
	}
	return toMessage(*m), nil
}

func (t *LocalTransport) Cursor(ctx context.Context, req CursorRequest) (Cursor, error) {
	c, err := t.rt.CursorOf(ctx, req.Topic, req.Position, req.Inclusive, time.Now(), req.Timeout)
	if err != nil {
		return Cursor{}, notFound(err)
	}
	return Cursor{ID: c.ID.String(), Inclusive: c.Inclusive, TimestampMs: c.ID.Time()}, nil
}

func (t *LocalTransport) MetaGet(ctx context.Context, topic, key string) ([]byte, error) {
	store, err := t.rt.Metadata(ctx, topic)
	if err != nil {
		return nil, err
	}
	v, ok, err := store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

func (t *LocalTransport) MetaPut(ctx context.Context, topic, key string, value []byte) error {
	store, err := t.rt.Metadata(ctx, topic)
	if err != nil {
		return err
	}
	return store.Put(ctx, key, value)
}

func (t *LocalTransport) MetaRemove(ctx context.Context, topic, key string) error {
	store, err := t.rt.Metadata(ctx, topic)
	if err != nil {
		return err
	}
	return store.Remove(ctx, key)
}

func (t *LocalTransport) MetaKeys(ctx context.Context, topic string) ([]string, error) {
	store, err := t.rt.Metadata(ctx, topic)
	if err != nil {
		return nil, err
	}
	return store.Keys(ctx)
}

func (t *LocalTransport) Close(ctx context.Context) error { return t.rt.Close(ctx) }
