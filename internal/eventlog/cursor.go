package eventlog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rzbill/rawdata/internal/segment"
	"github.com/rzbill/rawdata/internal/storage"
	logpkg "github.com/rzbill/rawdata/pkg/log"
)

// CursorOf scans topic from the start for the message at position and
// returns its cursor. The position may belong to a message that is not yet
// visible, so the scan keeps tailing until refTime+timeout before failing
// with ErrNoSuchPosition. An empty topic fails the same way.
func (l *Log) CursorOf(ctx context.Context, topic, position string, inclusive bool, refTime time.Time, timeout time.Duration) (Cursor, error) {
	if err := storage.ValidateTopic(topic); err != nil {
		return Cursor{}, err
	}
	deadline := refTime.Add(timeout)
	r := newReader(l, topic)
	defer r.close()
	for {
		changed := l.listing.Changed(topic)
		m, ok, err := r.next(ctx)
		if err != nil {
			if errors.Is(err, ErrCorruptSegment) {
				continue
			}
			return Cursor{}, err
		}
		if ok {
			if m.Position == position {
				return Cursor{ID: m.ID, Inclusive: inclusive}, nil
			}
			continue
		}
		remaining := deadline.Sub(l.now())
		if remaining <= 0 {
			return Cursor{}, fmt.Errorf("%w: %q in %s", ErrNoSuchPosition, position, topic)
		}
		wait := l.pollWait(topic, r.betweenSegments())
		if remaining < wait {
			wait = remaining
		}
		if err := l.waitForChange(ctx, topic, changed, wait); err != nil {
			return Cursor{}, err
		}
	}
}

// LastMessage returns the last readable message of topic, or nil when the
// topic has none. Segments are probed from the newest; each is walked to its
// last complete block.
func (l *Log) LastMessage(ctx context.Context, topic string) (*Message, error) {
	if err := storage.ValidateTopic(topic); err != nil {
		return nil, err
	}
	keys, err := l.listing.Segments(ctx, topic)
	if err != nil {
		return nil, backendErr("list", topic, err)
	}
	for i := len(keys) - 1; i >= 0; i-- {
		m, err := l.lastInSegment(ctx, topic, keys[i])
		if errors.Is(err, segment.ErrCorrupt) {
			l.metrics.ObserveCorruptSegment(topic)
			l.logger.Warn("segment.corrupt", logpkg.Str("topic", topic), logpkg.Str("key", keys[i].String()), logpkg.Err(err))
			continue
		}
		if err != nil {
			return nil, backendErr("read", topic, err)
		}
		if m != nil {
			return m, nil
		}
	}
	return nil, nil
}

func (l *Log) lastInSegment(ctx context.Context, topic string, key segment.Key) (*Message, error) {
	src, err := l.backend.Segment(topic, key).Open(ctx)
	if err != nil {
		return nil, err
	}
	defer src.Close()
	limit, err := src.LastBlockOffset(ctx)
	if err != nil {
		return nil, err
	}
	blk, ok, err := segment.LastBlock(src, limit)
	if err != nil || !ok {
		return nil, err
	}
	m := blk.Messages[len(blk.Messages)-1]
	return &m, nil
}
