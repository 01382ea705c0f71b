package pebblestore

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingHook struct {
	mu    sync.Mutex
	ops   map[string]int
	bytes map[string]int
}

func (h *recordingHook) ObserveMetadata(op string, _ time.Duration, n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ops[op]++
	h.bytes[op] += n
}

func openDB(t *testing.T, mode FsyncMode) (*DB, *recordingHook) {
	t.Helper()
	hook := &recordingHook{ops: map[string]int{}, bytes: map[string]int{}}
	db, err := Open(Options{DataDir: t.TempDir(), Fsync: mode, FsyncInterval: time.Millisecond, Metrics: hook})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, hook
}

func TestOpenRequiresDir(t *testing.T) {
	if _, err := Open(Options{}); err == nil {
		t.Fatalf("expected error without DataDir")
	}
}

func TestSetGetDelete(t *testing.T) {
	for _, mode := range []FsyncMode{FsyncModeAlways, FsyncModeInterval, FsyncModeNever} {
		db, hook := openDB(t, mode)
		if err := db.Set([]byte("schema"), []byte("v1")); err != nil {
			t.Fatalf("mode %d: set: %v", mode, err)
		}
		got, err := db.Get([]byte("schema"))
		if err != nil || string(got) != "v1" {
			t.Fatalf("mode %d: get = %q, %v", mode, got, err)
		}
		if err := db.Delete([]byte("schema")); err != nil {
			t.Fatalf("mode %d: delete: %v", mode, err)
		}
		if _, err := db.Get([]byte("schema")); !errors.Is(err, ErrNotFound) {
			t.Fatalf("mode %d: get after delete: %v", mode, err)
		}
		if hook.ops[OpPut] != 1 || hook.ops[OpGet] != 1 || hook.ops[OpRemove] != 1 {
			t.Fatalf("mode %d: ops %v", mode, hook.ops)
		}
		if hook.bytes[OpPut] != len("schema")+len("v1") {
			t.Fatalf("mode %d: put bytes %d", mode, hook.bytes[OpPut])
		}
	}
}

func TestGetReturnsCopy(t *testing.T) {
	db, _ := openDB(t, FsyncModeAlways)
	if err := db.Set([]byte("k"), []byte("abc")); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, _ := db.Get([]byte("k"))
	v[0] = 'x'
	again, _ := db.Get([]byte("k"))
	if string(again) != "abc" {
		t.Fatalf("stored value mutated: %q", again)
	}
}

func TestKeysByPrefix(t *testing.T) {
	db, hook := openDB(t, FsyncModeAlways)
	for _, k := range []string{"a/2", "b", "a/1", "a/../c", "a\xff"} {
		if err := db.Set([]byte(k), nil); err != nil {
			t.Fatalf("set %q: %v", k, err)
		}
	}
	keys, err := db.Keys([]byte("a/"))
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	want := []string{"a/../c", "a/1", "a/2"}
	if len(keys) != len(want) {
		t.Fatalf("got %q want %q", keys, want)
	}
	for i := range want {
		if string(keys[i]) != want[i] {
			t.Fatalf("key %d = %q want %q", i, keys[i], want[i])
		}
	}
	all, err := db.Keys(nil)
	if err != nil || len(all) != 5 {
		t.Fatalf("all keys = %d, %v", len(all), err)
	}
	if hook.ops[OpKeys] != 2 {
		t.Fatalf("keys observed %d times", hook.ops[OpKeys])
	}
}

func TestUpperBound(t *testing.T) {
	cases := []struct {
		in   []byte
		want []byte
	}{
		{[]byte("ab"), []byte("ac")},
		{[]byte{'a', 0xff}, []byte("b")},
		{[]byte{0xff, 0xff}, nil},
		{nil, nil},
	}
	for _, c := range cases {
		if got := upperBound(c.in); string(got) != string(c.want) || (got == nil) != (c.want == nil) {
			t.Fatalf("upperBound(%q) = %q want %q", c.in, got, c.want)
		}
	}
}

func TestCloseTwice(t *testing.T) {
	db, err := Open(Options{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
