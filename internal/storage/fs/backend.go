package fsstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/rzbill/rawdata/internal/segment"
	"github.com/rzbill/rawdata/internal/storage"
	pebblestore "github.com/rzbill/rawdata/internal/storage/pebble"
	logpkg "github.com/rzbill/rawdata/pkg/log"
)

// Options configures the filesystem backend.
type Options struct {
	// Root is the storage folder; topics are directories below it.
	Root string
	// TempDir holds staging files until their first durable flush.
	TempDir string
	// MetadataFsync is the fsync policy of the per-topic metadata databases.
	MetadataFsync pebblestore.FsyncMode
	// Metrics observes metadata database operations. Optional.
	Metrics pebblestore.MetricsHook
	Logger  logpkg.Logger
}

// Backend stores each segment as a file at {Root}/{topic}/{key}.
type Backend struct {
	root   string
	tmp    string
	opts   Options
	logger logpkg.Logger
	mu     sync.Mutex
	meta   map[string]*metadataStore
	closed bool

	// synced maps the path of each segment still held by an appender of
	// this process to its last synced size.
	syncedMu sync.Mutex
	synced   map[string]int64
}

var (
	_ storage.Backend    = (*Backend)(nil)
	_ storage.LiveSource = fileSource{}
)

// Open creates the root and staging folders.
func Open(opts Options) (*Backend, error) {
	if opts.Root == "" {
		return nil, errors.New("fsstore: Options.Root is required")
	}
	if opts.TempDir == "" {
		opts.TempDir = filepath.Join(opts.Root, ".staging")
	}
	for _, dir := range []string{opts.Root, opts.TempDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("fsstore: mkdir %s: %w", dir, err)
		}
	}
	if opts.MetadataFsync == pebblestore.FsyncModeUnspecified {
		opts.MetadataFsync = pebblestore.FsyncModeAlways
	}
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}
	return &Backend{
		root:   opts.Root,
		tmp:    opts.TempDir,
		opts:   opts,
		logger: logger.WithComponent("fsstore"),
		meta:   make(map[string]*metadataStore),
		synced: make(map[string]int64),
	}, nil
}

func (b *Backend) setSynced(path string, off int64) {
	b.syncedMu.Lock()
	b.synced[path] = off
	b.syncedMu.Unlock()
}

func (b *Backend) syncedSize(path string) (int64, bool) {
	b.syncedMu.Lock()
	defer b.syncedMu.Unlock()
	off, ok := b.synced[path]
	return off, ok
}

func (b *Backend) release(path string) {
	b.syncedMu.Lock()
	delete(b.synced, path)
	b.syncedMu.Unlock()
}

// Name implements storage.Backend.
func (b *Backend) Name() string { return "filesystem" }

// TailsOpenSegments implements storage.Tailable.
func (b *Backend) TailsOpenSegments() bool { return true }

// Root returns the storage folder.
func (b *Backend) Root() string { return b.root }

func (b *Backend) topicDir(topic string) string {
	return filepath.Join(b.root, filepath.FromSlash(topic))
}

// ListSegments implements storage.Backend. Directories and names that are not
// segment keys are skipped; a missing topic lists as empty.
func (b *Backend) ListSegments(ctx context.Context, topic string) ([]segment.Key, error) {
	if err := storage.ValidateTopic(topic); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(b.topicDir(topic))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("fsstore: list %s: %w", topic, err)
	}
	keys := make([]segment.Key, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		k, err := segment.ParseKey(e.Name())
		if err != nil {
			continue
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// Segment implements storage.Backend.
func (b *Backend) Segment(topic string, key segment.Key) storage.SegmentFile {
	return &segmentFile{b: b, topic: topic, key: key, path: filepath.Join(b.topicDir(topic), key.String())}
}

// CreateSegment implements storage.Backend. Bytes go to a staging file until
// the first Sync publishes it into the topic directory; later writes append
// to the published file so readers can tail it.
func (b *Backend) CreateSegment(ctx context.Context, topic string, key segment.Key) (storage.Appender, error) {
	if err := storage.ValidateTopic(topic); err != nil {
		return nil, err
	}
	f, err := storage.CreateStaging(b.tmp, key)
	if err != nil {
		return nil, err
	}
	return &appender{seg: b.Segment(topic, key).(*segmentFile), f: f, staging: f.Name()}, nil
}

// Ping implements storage.Backend.
func (b *Backend) Ping(ctx context.Context) error {
	info, err := os.Stat(b.root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("fsstore: %s is not a directory", b.root)
	}
	return nil
}

// Close closes the metadata databases.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	var first error
	for topic, m := range b.meta {
		if err := m.db.Close(); err != nil && first == nil {
			first = fmt.Errorf("fsstore: close metadata %s: %w", topic, err)
		}
	}
	b.meta = nil
	return first
}

type segmentFile struct {
	b     *Backend
	topic string
	key   segment.Key
	path  string
}

func (s *segmentFile) Topic() string    { return s.topic }
func (s *segmentFile) Key() segment.Key { return s.key }

func (s *segmentFile) Open(ctx context.Context) (storage.Source, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s/%s", storage.ErrNotFound, s.topic, s.key)
		}
		return nil, err
	}
	return fileSource{f: f, b: s.b, path: s.path}, nil
}

// CopyFrom renames localPath into place, falling back to a copy when the
// staging folder is on another device.
func (s *segmentFile) CopyFrom(ctx context.Context, localPath string) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("fsstore: mkdir %s: %w", dir, err)
	}
	if _, err := os.Lstat(s.path); err == nil {
		return fmt.Errorf("%w: %s/%s", storage.ErrExists, s.topic, s.key)
	}
	if err := os.Rename(localPath, s.path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return err
		}
		if err := copyFile(localPath, s.path); err != nil {
			return err
		}
	}
	s.b.logger.Debug("segment.published", logpkg.Str("topic", s.topic), logpkg.Str("key", s.key.String()))
	return syncDir(dir)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w: %s", storage.ErrExists, dst)
		}
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	// not every platform can fsync a directory
	_ = d.Sync()
	return nil
}

type fileSource struct {
	f    *os.File
	b    *Backend
	path string
}

func (s fileSource) ReadAt(p []byte, off int64) (int, error) { return s.f.ReadAt(p, off) }

// LastBlockOffset is the last synced size while an appender of this process
// holds the segment. Otherwise it is the file size and the codec trims a
// torn tail.
func (s fileSource) LastBlockOffset(context.Context) (int64, error) {
	info, err := s.f.Stat()
	if err != nil {
		return 0, err
	}
	if off, ok := s.b.syncedSize(s.path); ok && off < info.Size() {
		return off, nil
	}
	return info.Size(), nil
}

// Live implements storage.LiveSource.
func (s fileSource) Live() bool {
	_, ok := s.b.syncedSize(s.path)
	return ok
}

func (s fileSource) Close() error { return s.f.Close() }

type appender struct {
	seg       *segmentFile
	f         *os.File
	staging   string
	size      int64
	synced    int64
	published bool
	done      bool
}

func (a *appender) Write(p []byte) (int, error) {
	if a.done {
		return 0, os.ErrClosed
	}
	n, err := a.f.Write(p)
	a.size += int64(n)
	return n, err
}

func (a *appender) Sync(ctx context.Context) error {
	if a.done {
		return os.ErrClosed
	}
	if err := a.f.Sync(); err != nil {
		return err
	}
	a.synced = a.size
	if a.published {
		a.seg.b.setSynced(a.seg.path, a.synced)
		return nil
	}
	if err := a.f.Close(); err != nil {
		return err
	}
	if err := a.seg.CopyFrom(ctx, a.staging); err != nil {
		a.done = true
		_ = os.Remove(a.staging)
		return err
	}
	f, err := os.OpenFile(a.seg.path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		a.done = true
		return err
	}
	a.f = f
	a.published = true
	a.seg.b.setSynced(a.seg.path, a.synced)
	return nil
}

func (a *appender) Commit(ctx context.Context) error {
	if err := a.Sync(ctx); err != nil {
		return err
	}
	a.done = true
	err := a.f.Close()
	a.seg.b.release(a.seg.path)
	return err
}

// Abort removes an unpublished staging file. A published segment is cut back
// to its last synced size and left unsealed.
func (a *appender) Abort() error {
	if a.done {
		return nil
	}
	a.done = true
	if !a.published {
		err := a.f.Close()
		_ = os.Remove(a.staging)
		return err
	}
	err := a.f.Truncate(a.synced)
	if cerr := a.f.Close(); err == nil {
		err = cerr
	}
	a.seg.b.release(a.seg.path)
	return err
}
