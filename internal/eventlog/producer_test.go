package eventlog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rzbill/rawdata/internal/storage"
)

func TestBufferedPublish(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b storage.Backend) {
		ctx := context.Background()
		l := newTestLog(t, b, Options{})
		p, err := l.Producer(ctx, "buffered")
		if err != nil {
			t.Fatal(err)
		}
		if err := p.Buffer(msg("a"), msg("b"), msg("c")); err != nil {
			t.Fatalf("buffer: %v", err)
		}
		if err := p.Publish(ctx, "a", "nope"); !errors.Is(err, ErrNotBuffered) {
			t.Fatalf("expected ErrNotBuffered, got %v", err)
		}
		if p.Buffered() != 3 {
			t.Fatalf("failed publish consumed the buffer: %d left", p.Buffered())
		}
		if err := p.Publish(ctx, "c"); !errors.Is(err, ErrNotPrefix) {
			t.Fatalf("expected ErrNotPrefix, got %v", err)
		}
		if err := p.Publish(ctx, "a", "c"); !errors.Is(err, ErrNotPrefix) {
			t.Fatalf("expected ErrNotPrefix, got %v", err)
		}
		if p.Buffered() != 3 {
			t.Fatalf("rejected publish consumed the buffer: %d left", p.Buffered())
		}
		// published in buffer order regardless of argument order
		if err := p.Publish(ctx, "b", "a"); err != nil {
			t.Fatalf("publish: %v", err)
		}
		if p.Buffered() != 1 {
			t.Fatalf("expected 1 buffered, got %d", p.Buffered())
		}
		err = p.Close(ctx)
		if !errors.Is(err, ErrUnpublished) {
			t.Fatalf("expected ErrUnpublished, got %v", err)
		}
		if err := p.Publish(ctx, "c"); !errors.Is(err, ErrClosed) {
			t.Fatalf("publish after close: %v", err)
		}

		c, _ := l.Consumer(ctx, "buffered")
		defer c.Close()
		if got := receiveN(t, c, 2); !equalStrings(got, []string{"a", "b"}) {
			t.Fatalf("read back %v", got)
		}
		if m, _ := c.Receive(ctx, 50*time.Millisecond); m != nil {
			t.Fatalf("unpublished message delivered: %s", m.Position)
		}
	})
}

func TestPublishAssignsIncreasingIDs(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b storage.Backend) {
		ctx := context.Background()
		l := newTestLog(t, b, Options{})
		publishAll(t, l, "ids", positions(20))
		c, _ := l.Consumer(ctx, "ids")
		defer c.Close()
		var prev *Message
		for i := 0; i < 20; i++ {
			m, err := c.Receive(ctx, time.Second)
			if err != nil || m == nil {
				t.Fatalf("receive %d: %v %v", i, m, err)
			}
			if m.ID.IsZero() {
				t.Fatalf("message %s has no id", m.Position)
			}
			if prev != nil && prev.ID.Compare(m.ID) >= 0 {
				t.Fatalf("ids not increasing: %s then %s", prev.ID, m.ID)
			}
			prev = m
		}
	})
}

func TestLogCloseSealsProducers(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b storage.Backend) {
		ctx := context.Background()
		l, err := Open(Options{Backend: b})
		if err != nil {
			t.Fatal(err)
		}
		p, _ := l.Producer(ctx, "t")
		if err := p.PublishMessages(ctx, msg("a")); err != nil {
			t.Fatal(err)
		}
		if err := l.Close(ctx); err != nil {
			t.Fatalf("close log: %v", err)
		}
		if _, err := l.Producer(ctx, "t"); !errors.Is(err, ErrClosed) {
			t.Fatalf("producer after close: %v", err)
		}
		other := newTestLog(t, b, Options{})
		last, err := other.LastMessage(ctx, "t")
		if err != nil || last == nil || last.Position != "a" {
			t.Fatalf("last message after log close: %v %v", last, err)
		}
	})
}

func TestInvalidTopicRejected(t *testing.T) {
	l := newTestLog(t, backends[0].open(t), Options{})
	for _, topic := range []string{"", "/abs", "a/../b", "a/metadata"} {
		if _, err := l.Producer(context.Background(), topic); err == nil {
			t.Fatalf("topic %q accepted", topic)
		}
	}
}
