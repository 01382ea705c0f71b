package pebblestore

import (
	"errors"
	"time"

	"github.com/cockroachdb/pebble"
)

// FsyncMode selects when writes reach stable storage.
type FsyncMode int

const (
	FsyncModeUnspecified FsyncMode = iota
	// FsyncModeAlways syncs the WAL before a write returns.
	FsyncModeAlways
	// FsyncModeInterval lets Pebble group WAL syncs within FsyncInterval.
	FsyncModeInterval
	// FsyncModeNever leaves syncing to Pebble.
	FsyncModeNever
)

const defaultFsyncInterval = 5 * time.Millisecond

// Operation names reported to MetricsHook.
const (
	OpPut    = "put"
	OpGet    = "get"
	OpRemove = "remove"
	OpKeys   = "keys"
)

// ErrNotFound is returned by Get for missing keys.
var ErrNotFound = pebble.ErrNotFound

// MetricsHook observes each store operation.
type MetricsHook interface {
	ObserveMetadata(op string, elapsed time.Duration, bytes int)
}

type noopMetrics struct{}

func (noopMetrics) ObserveMetadata(string, time.Duration, int) {}

type Options struct {
	// DataDir is created by Pebble when missing.
	DataDir       string
	Fsync         FsyncMode
	FsyncInterval time.Duration
	// PebbleOptions is used as is when set; WALMinSyncInterval is overwritten
	// for FsyncModeInterval.
	PebbleOptions *pebble.Options
	Metrics       MetricsHook
}

// DB is a small key/value store on Pebble. Keys and values are opaque bytes.
type DB struct {
	inner   *pebble.DB
	write   *pebble.WriteOptions
	metrics MetricsHook
}

func Open(opts Options) (*DB, error) {
	if opts.DataDir == "" {
		return nil, errors.New("pebblestore: DataDir is required")
	}
	po := opts.PebbleOptions
	if po == nil {
		po = &pebble.Options{}
	}
	write := pebble.NoSync
	switch opts.Fsync {
	case FsyncModeAlways:
		write = pebble.Sync
	case FsyncModeNever:
	default:
		interval := opts.FsyncInterval
		if interval <= 0 {
			interval = defaultFsyncInterval
		}
		po.WALMinSyncInterval = func() time.Duration { return interval }
		write = pebble.Sync
	}
	inner, err := pebble.Open(opts.DataDir, po)
	if err != nil {
		return nil, err
	}
	db := &DB{inner: inner, write: write, metrics: opts.Metrics}
	if db.metrics == nil {
		db.metrics = noopMetrics{}
	}
	return db, nil
}

func (db *DB) Close() error {
	if db == nil || db.inner == nil {
		return nil
	}
	err := db.inner.Close()
	db.inner = nil
	return err
}

func (db *DB) Set(key, value []byte) error {
	start := time.Now()
	if err := db.inner.Set(key, value, db.write); err != nil {
		return err
	}
	db.metrics.ObserveMetadata(OpPut, time.Since(start), len(key)+len(value))
	return nil
}

func (db *DB) Delete(key []byte) error {
	start := time.Now()
	if err := db.inner.Delete(key, db.write); err != nil {
		return err
	}
	db.metrics.ObserveMetadata(OpRemove, time.Since(start), len(key))
	return nil
}

// Get returns a copy of the value stored under key.
func (db *DB) Get(key []byte) ([]byte, error) {
	start := time.Now()
	val, closer, err := db.inner.Get(key)
	if err != nil {
		return nil, err
	}
	out := append([]byte(nil), val...)
	if err := closer.Close(); err != nil {
		return nil, err
	}
	db.metrics.ObserveMetadata(OpGet, time.Since(start), len(out))
	return out, nil
}

// Keys lists the keys starting with prefix, in byte order. The result comes
// from a single snapshot.
func (db *DB) Keys(prefix []byte) ([][]byte, error) {
	start := time.Now()
	snap := db.inner.NewSnapshot()
	defer snap.Close()
	it, err := snap.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: upperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	var (
		keys  [][]byte
		total int
	)
	for ok := it.First(); ok; ok = it.Next() {
		k := append([]byte(nil), it.Key()...)
		total += len(k)
		keys = append(keys, k)
	}
	if err := it.Close(); err != nil {
		return nil, err
	}
	db.metrics.ObserveMetadata(OpKeys, time.Since(start), total)
	return keys, nil
}

// upperBound is the first key after every key with prefix; nil means none.
func upperBound(prefix []byte) []byte {
	for i := len(prefix) - 1; i >= 0; i-- {
		if prefix[i] != 0xff {
			end := append([]byte(nil), prefix[:i+1]...)
			end[i]++
			return end
		}
	}
	return nil
}
