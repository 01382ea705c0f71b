package eventlog

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rzbill/rawdata/internal/segment"
	"github.com/rzbill/rawdata/internal/storage"
	blobstore "github.com/rzbill/rawdata/internal/storage/blob"
	fsstore "github.com/rzbill/rawdata/internal/storage/fs"
	"gocloud.dev/blob/memblob"
)

type backendCase struct {
	name string
	open func(t *testing.T) storage.Backend
}

var backends = []backendCase{
	{"filesystem", func(t *testing.T) storage.Backend {
		b, err := fsstore.Open(fsstore.Options{Root: t.TempDir()})
		if err != nil {
			t.Fatalf("open fs backend: %v", err)
		}
		t.Cleanup(func() { _ = b.Close() })
		return b
	}},
	{"memblob", func(t *testing.T) storage.Backend {
		bucket := memblob.OpenBucket(nil)
		t.Cleanup(func() { _ = bucket.Close() })
		b, err := blobstore.New(bucket, blobstore.Options{TempDir: t.TempDir()})
		if err != nil {
			t.Fatalf("open blob backend: %v", err)
		}
		return b
	}},
}

func forEachBackend(t *testing.T, fn func(t *testing.T, b storage.Backend)) {
	for _, bc := range backends {
		t.Run(bc.name, func(t *testing.T) { fn(t, bc.open(t)) })
	}
}

func newTestLog(t *testing.T, b storage.Backend, opts Options) *Log {
	t.Helper()
	opts.Backend = b
	if opts.PollInterval == 0 {
		opts.PollInterval = 10 * time.Millisecond
	}
	l, err := Open(opts)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	t.Cleanup(func() { _ = l.Close(context.Background()) })
	return l
}

func msg(pos string) Message {
	return Message{Position: pos, Attributes: map[string][]byte{"payload": []byte(strings.Repeat(pos, 16))}}
}

func positions(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("pos-%04d", i)
	}
	return out
}

func publishAll(t *testing.T, l *Log, topic string, pos []string) {
	t.Helper()
	ctx := context.Background()
	p, err := l.Producer(ctx, topic)
	if err != nil {
		t.Fatalf("producer: %v", err)
	}
	for _, s := range pos {
		if err := p.PublishMessages(ctx, msg(s)); err != nil {
			t.Fatalf("publish %s: %v", s, err)
		}
	}
	if err := p.Close(ctx); err != nil {
		t.Fatalf("close producer: %v", err)
	}
}

func receiveN(t *testing.T, c *Consumer, n int) []string {
	t.Helper()
	out := make([]string, 0, n)
	for len(out) < n {
		m, err := c.Receive(context.Background(), 3*time.Second)
		if err != nil {
			t.Fatalf("receive: %v", err)
		}
		if m == nil {
			t.Fatalf("timed out after %d of %d messages", len(out), n)
		}
		out = append(out, m.Position)
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestReadBackOrderIndependentOfWindowing(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b storage.Backend) {
		ctx := context.Background()
		want := positions(120)

		small := newTestLog(t, b, Options{Window: segment.Policy{MaxBytes: 2048}})
		publishAll(t, small, "sized", want)
		big := newTestLog(t, b, Options{})
		publishAll(t, big, "single", want)

		keys, err := b.ListSegments(ctx, "sized")
		if err != nil || len(keys) < 2 {
			t.Fatalf("expected several segments, got %d (%v)", len(keys), err)
		}
		if keys, _ := b.ListSegments(ctx, "single"); len(keys) != 1 {
			t.Fatalf("expected one segment, got %d", len(keys))
		}

		for _, topic := range []string{"sized", "single"} {
			c, err := small.Consumer(ctx, topic)
			if err != nil {
				t.Fatalf("consumer: %v", err)
			}
			if got := receiveN(t, c, len(want)); !equalStrings(got, want) {
				t.Fatalf("%s: read back %v", topic, got)
			}
			if m, err := c.Receive(ctx, 50*time.Millisecond); m != nil || err != nil {
				t.Fatalf("%s: expected end of topic, got %v %v", topic, m, err)
			}
			c.Close()
		}
	})
}

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestTimeRolloverOneSegmentPerSpacedPublish(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b storage.Backend) {
		ctx := context.Background()
		clk := &stepClock{now: time.Now()}
		l := newTestLog(t, b, Options{Window: segment.Policy{MaxAge: time.Second}, Now: clk.Now})
		p, err := l.Producer(ctx, "timed")
		if err != nil {
			t.Fatal(err)
		}
		want := positions(4)
		for _, s := range want {
			if err := p.PublishMessages(ctx, msg(s)); err != nil {
				t.Fatalf("publish: %v", err)
			}
			clk.Advance(1100 * time.Millisecond)
		}
		if err := p.Close(ctx); err != nil {
			t.Fatalf("close: %v", err)
		}
		keys, err := b.ListSegments(ctx, "timed")
		if err != nil || len(keys) != len(want) {
			t.Fatalf("expected %d segments, got %d (%v)", len(want), len(keys), err)
		}
		c, _ := l.Consumer(ctx, "timed")
		defer c.Close()
		if got := receiveN(t, c, len(want)); !equalStrings(got, want) {
			t.Fatalf("read back %v", got)
		}
	})
}

func TestOversizedMessageGetsOwnSegment(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b storage.Backend) {
		ctx := context.Background()
		l := newTestLog(t, b, Options{Window: segment.Policy{MaxBytes: 64}})
		big := Message{Position: "big", Attributes: map[string][]byte{"blob": make([]byte, 1024)}}
		p, _ := l.Producer(ctx, "t")
		if err := p.PublishMessages(ctx, big, msg("after")); err != nil {
			t.Fatalf("publish: %v", err)
		}
		p.Close(ctx)
		keys, _ := b.ListSegments(ctx, "t")
		if len(keys) != 2 {
			t.Fatalf("expected 2 segments, got %d", len(keys))
		}
		c, _ := l.Consumer(ctx, "t")
		defer c.Close()
		if got := receiveN(t, c, 2); !equalStrings(got, []string{"big", "after"}) {
			t.Fatalf("read back %v", got)
		}
	})
}

func TestEmptySessionPublishesNothing(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b storage.Backend) {
		ctx := context.Background()
		l := newTestLog(t, b, Options{})
		p, err := l.Producer(ctx, "t")
		if err != nil {
			t.Fatal(err)
		}
		if err := p.Close(ctx); err != nil {
			t.Fatalf("close: %v", err)
		}
		if err := p.Close(ctx); err != nil {
			t.Fatalf("second close: %v", err)
		}
		if keys, _ := b.ListSegments(ctx, "t"); len(keys) != 0 {
			t.Fatalf("empty session published %d segments", len(keys))
		}
	})
}

func TestFanOut(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b storage.Backend) {
		ctx := context.Background()
		l := newTestLog(t, b, Options{Window: segment.Policy{MaxBytes: 512}})
		want := positions(30)
		publishAll(t, l, "fan", want)
		c1, _ := l.Consumer(ctx, "fan")
		c2, _ := l.Consumer(ctx, "fan")
		defer c1.Close()
		defer c2.Close()
		got1 := receiveN(t, c1, len(want))
		got2 := receiveN(t, c2, len(want))
		if !equalStrings(got1, want) || !equalStrings(got2, want) {
			t.Fatalf("fan-out mismatch:\n%v\n%v", got1, got2)
		}
	})
}

func TestTailFromEmptyTopicAcrossClients(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b storage.Backend) {
		ctx := context.Background()
		reader := newTestLog(t, b, Options{ListingInterval: 50 * time.Millisecond})
		writer := newTestLog(t, b, Options{})

		c, err := reader.Consumer(ctx, "late")
		if err != nil {
			t.Fatal(err)
		}
		defer c.Close()
		fut := c.ReceiveAsync()
		if m, err := c.Receive(ctx, 20*time.Millisecond); m != nil || err != nil {
			t.Fatalf("expected empty receive, got %v %v", m, err)
		}
		select {
		case <-fut.Done():
			t.Fatalf("future resolved on empty topic")
		default:
		}

		publishAll(t, writer, "late", []string{"x", "y"})

		m, err := fut.Wait(ctx)
		if err != nil || m == nil || m.Position != "x" {
			t.Fatalf("future: %v %v", m, err)
		}
		if got := receiveN(t, c, 1); got[0] != "y" {
			t.Fatalf("expected y, got %v", got)
		}
	})
}

func TestLiveTailOfOpenSegment(t *testing.T) {
	b := backends[0].open(t)
	ctx := context.Background()
	l := newTestLog(t, b, Options{})
	p, _ := l.Producer(ctx, "live")
	defer p.Close(ctx)
	c, _ := l.Consumer(ctx, "live")
	defer c.Close()

	for _, s := range []string{"a", "b", "c"} {
		if err := p.PublishMessages(ctx, msg(s)); err != nil {
			t.Fatalf("publish: %v", err)
		}
		if got := receiveN(t, c, 1); got[0] != s {
			t.Fatalf("expected %s, got %v", s, got)
		}
	}
	if keys, _ := b.ListSegments(ctx, "live"); len(keys) != 1 {
		t.Fatalf("expected a single open segment, got %d", len(keys))
	}
}
