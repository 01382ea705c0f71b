package eventlog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rzbill/rawdata/internal/storage"
)

func TestCursorOfInclusiveAndExclusive(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b storage.Backend) {
		ctx := context.Background()
		l := newTestLog(t, b, Options{})
		publishAll(t, l, "cur", []string{"a", "b", "c", "d"})

		cur, err := l.CursorOf(ctx, "cur", "d", true, time.Now(), time.Minute)
		if err != nil {
			t.Fatalf("cursorOf: %v", err)
		}
		c, _ := l.ConsumerAt(ctx, "cur", cur)
		if got := receiveN(t, c, 1); got[0] != "d" {
			t.Fatalf("inclusive cursor yielded %v", got)
		}
		c.Close()

		cur, err = l.CursorOf(ctx, "cur", "b", false, time.Now(), time.Minute)
		if err != nil {
			t.Fatalf("cursorOf: %v", err)
		}
		c, _ = l.ConsumerAt(ctx, "cur", cur)
		if got := receiveN(t, c, 2); !equalStrings(got, []string{"c", "d"}) {
			t.Fatalf("exclusive cursor yielded %v", got)
		}
		c.Close()

		c, err = l.ConsumerFrom(ctx, "cur", "a", time.Now(), time.Minute)
		if err != nil {
			t.Fatalf("consumer from position: %v", err)
		}
		defer c.Close()
		if got := receiveN(t, c, 1); got[0] != "b" {
			t.Fatalf("consumer from a yielded %v", got)
		}
	})
}

func TestCursorOfUnknownPositionTimesOut(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b storage.Backend) {
		ctx := context.Background()
		l := newTestLog(t, b, Options{})
		publishAll(t, l, "cur", []string{"a", "b"})

		start := time.Now()
		_, err := l.CursorOf(ctx, "cur", "zzz", true, start, 150*time.Millisecond)
		if !errors.Is(err, ErrNoSuchPosition) {
			t.Fatalf("expected ErrNoSuchPosition, got %v", err)
		}
		if elapsed := time.Since(start); elapsed < 150*time.Millisecond {
			t.Fatalf("returned before the timeout: %v", elapsed)
		}

		// an expired reference time fails after one scan
		_, err = l.CursorOf(ctx, "cur", "zzz", true, start.Add(-time.Hour), time.Minute)
		if !errors.Is(err, ErrNoSuchPosition) {
			t.Fatalf("expected ErrNoSuchPosition, got %v", err)
		}
	})
}

func TestCursorOfEmptyTopic(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b storage.Backend) {
		l := newTestLog(t, b, Options{})
		_, err := l.CursorOf(context.Background(), "empty", "a", false, time.Now(), 50*time.Millisecond)
		if !errors.Is(err, ErrNoSuchPosition) {
			t.Fatalf("expected ErrNoSuchPosition, got %v", err)
		}
	})
}

func TestCursorOfWaitsForLatePosition(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b storage.Backend) {
		ctx := context.Background()
		l := newTestLog(t, b, Options{})
		go func() {
			time.Sleep(100 * time.Millisecond)
			publishAll(t, l, "late", []string{"x"})
		}()
		cur, err := l.CursorOf(ctx, "late", "x", true, time.Now(), 5*time.Second)
		if err != nil {
			t.Fatalf("cursorOf: %v", err)
		}
		if cur.ID.IsZero() || !cur.Inclusive {
			t.Fatalf("unexpected cursor %v", cur)
		}
	})
}

func TestLastMessage(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b storage.Backend) {
		ctx := context.Background()
		l := newTestLog(t, b, Options{})
		if m, err := l.LastMessage(ctx, "last"); m != nil || err != nil {
			t.Fatalf("empty topic: %v %v", m, err)
		}

		p, _ := l.Producer(ctx, "last")
		if err := p.PublishMessages(ctx, msg("a"), msg("b")); err != nil {
			t.Fatal(err)
		}
		if err := p.PublishMessages(ctx, msg("c")); err != nil {
			t.Fatal(err)
		}
		if storage.TailsOpenSegments(b) {
			m, err := l.LastMessage(ctx, "last")
			if err != nil || m == nil || m.Position != "c" {
				t.Fatalf("open multi-block segment: %v %v", m, err)
			}
		}
		if err := p.Close(ctx); err != nil {
			t.Fatal(err)
		}
		m, err := l.LastMessage(ctx, "last")
		if err != nil || m == nil || m.Position != "c" {
			t.Fatalf("sealed multi-block segment: %v %v", m, err)
		}

		publishAll(t, l, "last", []string{"d"})
		if m, _ := l.LastMessage(ctx, "last"); m == nil || m.Position != "d" {
			t.Fatalf("expected d from the newest segment, got %v", m)
		}
	})
}
