package eventlog

import (
	"context"
	"errors"
	"io"
	"sort"

	"github.com/rzbill/rawdata/internal/segment"
	"github.com/rzbill/rawdata/internal/storage"
	logpkg "github.com/rzbill/rawdata/pkg/log"
)

// reader walks the segments of one topic in key order. It is not safe for
// concurrent use; each consumer and query owns one.
type reader struct {
	log   *Log
	topic string

	// start is applied to the first messages read after a seek.
	start    Cursor
	hasStart bool

	cur    segment.Key
	hasCur bool
	src    storage.Source
	dec    *segment.Reader
	block  []Message
	idx    int
	// reprobed is set once the open segment was read again after a later
	// segment appeared.
	reprobed bool
}

func newReader(l *Log, topic string) *reader {
	return &reader{log: l, topic: topic}
}

// next returns the next message. ok is false when nothing more is readable
// yet. A CorruptSegmentError is returned once and the segment is skipped.
func (r *reader) next(ctx context.Context) (Message, bool, error) {
	for {
		if r.idx < len(r.block) {
			m := r.block[r.idx]
			r.idx++
			if r.hasStart {
				if !r.start.admits(m.ID) {
					continue
				}
				r.hasStart = false
			}
			return m, true, nil
		}
		if r.src == nil {
			ok, err := r.advance(ctx)
			if err != nil || !ok {
				return Message{}, false, err
			}
		}
		blk, err := r.readBlock(ctx)
		switch {
		case err == nil:
			r.block, r.idx = blk.Messages, 0
			r.reprobed = false
		case errors.Is(err, io.EOF):
			r.closeSegment()
		case errors.Is(err, segment.ErrIncomplete):
			skip, err := r.abandoned(ctx)
			if err != nil || !skip {
				return Message{}, false, err
			}
			r.log.logger.Warn("segment.abandoned",
				logpkg.Str("topic", r.topic), logpkg.Str("key", r.cur.String()), logpkg.Int64("offset", r.offset()))
			r.closeSegment()
		case errors.Is(err, segment.ErrCorrupt):
			cerr := &CorruptSegmentError{Topic: r.topic, Key: r.cur, Offset: r.offset(), Err: err}
			r.log.metrics.ObserveCorruptSegment(r.topic)
			r.log.logger.Error("segment.corrupt", logpkg.Str("topic", r.topic), logpkg.Str("key", r.cur.String()), logpkg.Err(err))
			r.closeSegment()
			return Message{}, false, cerr
		default:
			return Message{}, false, backendErr("read", r.topic, err)
		}
	}
}

// unread steps back over the message last returned by next.
func (r *reader) unread() {
	if r.idx > 0 {
		r.idx--
	}
}

// seek repositions to the first message admitted by c.
func (r *reader) seek(c Cursor) {
	r.closeSegment()
	r.hasCur = false
	r.start, r.hasStart = c, true
}

// betweenSegments reports whether the reader has no segment open.
func (r *reader) betweenSegments() bool { return r.src == nil }

func (r *reader) offset() int64 {
	if r.dec == nil {
		return 0
	}
	return r.dec.Offset()
}

// advance opens the segment after the current one.
func (r *reader) advance(ctx context.Context) (bool, error) {
	keys, err := r.log.listing.Segments(ctx, r.topic)
	if err != nil {
		return false, backendErr("list", r.topic, err)
	}
	var i int
	switch {
	case r.hasCur:
		i = sort.Search(len(keys), func(i int) bool { return keys[i].Compare(r.cur) > 0 })
	case r.hasStart:
		i = segment.StartIndex(keys, r.start.ID)
	}
	if i >= len(keys) {
		return false, nil
	}
	key := keys[i]
	src, err := r.log.backend.Segment(r.topic, key).Open(ctx)
	if err != nil {
		return false, backendErr("open", r.topic, err)
	}
	r.src = src
	r.cur, r.hasCur = key, true
	r.dec = nil
	r.reprobed = false
	return true, nil
}

func (r *reader) readBlock(ctx context.Context) (segment.Block, error) {
	limit, err := r.src.LastBlockOffset(ctx)
	if err != nil {
		return segment.Block{}, err
	}
	if r.dec == nil {
		dec, err := segment.NewReader(r.src, limit)
		if err != nil {
			return segment.Block{}, err
		}
		r.dec = dec
	}
	return r.dec.Next(limit)
}

// abandoned decides whether an unsealed segment with nothing more to read
// can be skipped. It needs a later segment to exist, one more read of the
// open segment, no writer of this process holding it, and the segment to be
// past a configured window age. Without a window age a producer may append
// to its segment at any time, so nothing is skipped.
func (r *reader) abandoned(ctx context.Context) (bool, error) {
	keys, err := r.log.listing.Segments(ctx, r.topic)
	if err != nil {
		return false, backendErr("list", r.topic, err)
	}
	if len(keys) == 0 || keys[len(keys)-1].Compare(r.cur) <= 0 {
		return false, nil
	}
	if !r.reprobed {
		r.reprobed = true
		return false, nil
	}
	maxAge := r.log.opts.Window.MaxAge
	if maxAge <= 0 {
		return false, nil
	}
	if ls, ok := r.src.(storage.LiveSource); ok && ls.Live() {
		return false, nil
	}
	openedMs := r.cur.First.Time()
	return r.log.now().UnixMilli()-openedMs >= maxAge.Milliseconds(), nil
}

func (r *reader) closeSegment() {
	if r.src != nil {
		_ = r.src.Close()
	}
	r.src, r.dec = nil, nil
	r.block, r.idx = nil, 0
}

func (r *reader) close() { r.closeSegment() }
