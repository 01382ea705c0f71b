package blobstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"sort"
	"testing"

	"github.com/rzbill/rawdata/internal/segment"
	"github.com/rzbill/rawdata/internal/storage"
	"github.com/rzbill/rawdata/pkg/id"
	"gocloud.dev/blob/memblob"
)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	bucket := memblob.OpenBucket(nil)
	t.Cleanup(func() { _ = bucket.Close() })
	b, err := New(bucket, Options{TempDir: t.TempDir(), Prefix: "rawdata"})
	if err != nil {
		t.Fatalf("new backend: %v", err)
	}
	return b
}

func TestSegmentInvisibleUntilCommit(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	key := segment.Key{First: id.NewGenerator().Next(), Seq: 3}

	app, err := b.CreateSegment(ctx, "a/b", key)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := app.Write([]byte("payload")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := app.Sync(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if keys, _ := b.ListSegments(ctx, "a/b"); len(keys) != 0 {
		t.Fatalf("segment listed before commit: %v", keys)
	}
	if err := app.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
	keys, err := b.ListSegments(ctx, "a/b")
	if err != nil || len(keys) != 1 || keys[0] != key {
		t.Fatalf("expected %v, got %v %v", key, keys, err)
	}
	if _, err := app.Write([]byte("x")); !errors.Is(err, os.ErrClosed) {
		t.Fatalf("write after commit: %v", err)
	}

	src, err := b.Segment("a/b", key).Open(ctx)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer src.Close()
	size, err := src.LastBlockOffset(ctx)
	if err != nil || size != int64(len("payload")) {
		t.Fatalf("size %d err %v", size, err)
	}
	buf := make([]byte, 4)
	if _, err := src.ReadAt(buf, 3); err != nil || string(buf) != "load" {
		t.Fatalf("range read %q %v", buf, err)
	}
	long := make([]byte, 10)
	n, err := src.ReadAt(long, 3)
	if n != 4 || !errors.Is(err, io.EOF) {
		t.Fatalf("short read n=%d err=%v", n, err)
	}
}

func TestNestedTopicsAreSeparate(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	gen := id.NewGenerator()
	for _, topic := range []string{"a", "a/b"} {
		app, err := b.CreateSegment(ctx, topic, segment.Key{First: gen.Next()})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if err := app.Commit(ctx); err != nil {
			t.Fatalf("commit: %v", err)
		}
	}
	for _, topic := range []string{"a", "a/b"} {
		keys, err := b.ListSegments(ctx, topic)
		if err != nil || len(keys) != 1 {
			t.Fatalf("topic %s: %v %v", topic, keys, err)
		}
	}
}

func TestCopyFromRejectsExisting(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	key := segment.Key{First: id.NewGenerator().Next()}
	seg := b.Segment("t", key)
	for i, want := range []error{nil, storage.ErrExists} {
		f, err := os.CreateTemp(t.TempDir(), "seg")
		if err != nil {
			t.Fatal(err)
		}
		f.WriteString("data")
		f.Close()
		if err := seg.CopyFrom(ctx, f.Name()); !errors.Is(err, want) {
			t.Fatalf("copy %d: got %v want %v", i, err, want)
		}
	}
}

func TestOpenMissingSegment(t *testing.T) {
	b := newTestBackend(t)
	_, err := b.Segment("t", segment.Key{First: id.NewGenerator().Next()}).Open(context.Background())
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAbortLeavesNothing(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	app, err := b.CreateSegment(ctx, "t", segment.Key{First: id.NewGenerator().Next()})
	if err != nil {
		t.Fatal(err)
	}
	app.Write([]byte("x"))
	if err := app.Abort(); err != nil {
		t.Fatalf("abort: %v", err)
	}
	if keys, _ := b.ListSegments(ctx, "t"); len(keys) != 0 {
		t.Fatalf("aborted segment listed")
	}
	entries, _ := os.ReadDir(b.tmp)
	if len(entries) != 0 {
		t.Fatalf("staging not cleaned: %d files", len(entries))
	}
}

func TestMetadataArbitraryKeys(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	m, err := b.Metadata(ctx, "a/b")
	if err != nil {
		t.Fatalf("metadata: %v", err)
	}
	keys := []string{"plain", "with/slash", "..", ".", "a b?c#d", "ünïcødé"}
	for i, k := range keys {
		if err := m.Put(ctx, k, []byte{byte(i)}); err != nil {
			t.Fatalf("put %q: %v", k, err)
		}
	}
	for i, k := range keys {
		v, ok, err := m.Get(ctx, k)
		if err != nil || !ok || !bytes.Equal(v, []byte{byte(i)}) {
			t.Fatalf("get %q: %v %v %v", k, v, ok, err)
		}
	}
	got, err := m.Keys(ctx)
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	sort.Strings(got)
	want := append([]string(nil), keys...)
	sort.Strings(want)
	if len(got) != len(want) {
		t.Fatalf("keys %v want %v", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("keys %v want %v", got, want)
		}
	}

	if err := m.Remove(ctx, "with/slash"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := m.Remove(ctx, "never-set"); err != nil {
		t.Fatalf("remove missing: %v", err)
	}
	if _, ok, _ := m.Get(ctx, "with/slash"); ok {
		t.Fatalf("removed key still present")
	}
	// metadata objects never show up as segments
	if keys, _ := b.ListSegments(ctx, "a/b"); len(keys) != 0 {
		t.Fatalf("metadata listed as segments: %v", keys)
	}
}

func TestPing(t *testing.T) {
	if err := newTestBackend(t).Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}
