package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rzbill/rawdata/internal/segment"
	"github.com/rzbill/rawdata/internal/storage"
	logpkg "github.com/rzbill/rawdata/pkg/log"
	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	// URL openers for OpenURL.
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
)

// Options configures the object-store backend.
type Options struct {
	// TempDir holds segments while they are being written.
	TempDir string
	// Prefix is prepended to every object key.
	Prefix string
	Logger logpkg.Logger
}

// Backend stores each sealed segment as one object at {prefix}{topic}/{key}.
// Open segments stay in a local staging file and become visible only when
// committed.
type Backend struct {
	bucket *blob.Bucket
	owned  bool
	tmp    string
	prefix string
	logger logpkg.Logger
}

var _ storage.Backend = (*Backend)(nil)

// New wraps an already opened bucket. The caller keeps ownership of it.
func New(bucket *blob.Bucket, opts Options) (*Backend, error) {
	if bucket == nil {
		return nil, errors.New("blobstore: nil bucket")
	}
	if opts.TempDir == "" {
		return nil, errors.New("blobstore: Options.TempDir is required")
	}
	if err := os.MkdirAll(opts.TempDir, 0o755); err != nil {
		return nil, fmt.Errorf("blobstore: mkdir %s: %w", opts.TempDir, err)
	}
	prefix := opts.Prefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}
	return &Backend{bucket: bucket, tmp: opts.TempDir, prefix: prefix, logger: logger.WithComponent("blobstore")}, nil
}

// OpenURL opens a bucket by URL (gs://, s3://, file://, mem://) and owns it.
func OpenURL(ctx context.Context, url string, opts Options) (*Backend, error) {
	bucket, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("blobstore: open %s: %w", url, err)
	}
	b, err := New(bucket, opts)
	if err != nil {
		bucket.Close()
		return nil, err
	}
	b.owned = true
	return b, nil
}

// Name implements storage.Backend.
func (b *Backend) Name() string { return "blob" }

// Bucket returns the underlying bucket.
func (b *Backend) Bucket() *blob.Bucket { return b.bucket }

func (b *Backend) topicPrefix(topic string) string { return b.prefix + topic + "/" }

// ListSegments implements storage.Backend.
func (b *Backend) ListSegments(ctx context.Context, topic string) ([]segment.Key, error) {
	if err := storage.ValidateTopic(topic); err != nil {
		return nil, err
	}
	prefix := b.topicPrefix(topic)
	it := b.bucket.List(&blob.ListOptions{Prefix: prefix, Delimiter: "/"})
	var keys []segment.Key
	for {
		obj, err := it.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("blobstore: list %s: %w", topic, err)
		}
		if obj.IsDir {
			continue
		}
		k, err := segment.ParseKey(strings.TrimPrefix(obj.Key, prefix))
		if err != nil {
			continue
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// Segment implements storage.Backend.
func (b *Backend) Segment(topic string, key segment.Key) storage.SegmentFile {
	return &segmentObject{b: b, topic: topic, key: key, object: b.topicPrefix(topic) + key.String()}
}

// CreateSegment implements storage.Backend.
func (b *Backend) CreateSegment(ctx context.Context, topic string, key segment.Key) (storage.Appender, error) {
	if err := storage.ValidateTopic(topic); err != nil {
		return nil, err
	}
	f, err := storage.CreateStaging(b.tmp, key)
	if err != nil {
		return nil, err
	}
	return &appender{seg: b.Segment(topic, key).(*segmentObject), f: f}, nil
}

// Ping implements storage.Backend.
func (b *Backend) Ping(ctx context.Context) error {
	ok, err := b.bucket.IsAccessible(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("blobstore: bucket not accessible")
	}
	return nil
}

// Close closes the bucket when the backend opened it.
func (b *Backend) Close() error {
	if !b.owned {
		return nil
	}
	return b.bucket.Close()
}

func notFound(err error) bool { return gcerrors.Code(err) == gcerrors.NotFound }

type segmentObject struct {
	b      *Backend
	topic  string
	key    segment.Key
	object string
}

func (s *segmentObject) Topic() string    { return s.topic }
func (s *segmentObject) Key() segment.Key { return s.key }

// Open checks the object exists. Reads are issued as range requests bound to
// ctx.
func (s *segmentObject) Open(ctx context.Context) (storage.Source, error) {
	attrs, err := s.b.bucket.Attributes(ctx, s.object)
	if err != nil {
		if notFound(err) {
			return nil, fmt.Errorf("%w: %s/%s", storage.ErrNotFound, s.topic, s.key)
		}
		return nil, err
	}
	return &objectSource{ctx: ctx, bucket: s.b.bucket, object: s.object, size: attrs.Size}, nil
}

// CopyFrom uploads localPath. Segment keys embed a fresh ULID, so the
// existence check only guards against replays of the same producer.
func (s *segmentObject) CopyFrom(ctx context.Context, localPath string) error {
	exists, err := s.b.bucket.Exists(ctx, s.object)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s/%s", storage.ErrExists, s.topic, s.key)
	}
	in, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer in.Close()
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()
	w, err := s.b.bucket.NewWriter(wctx, s.object, &blob.WriterOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, in); err != nil {
		// cancelling before Close aborts the upload
		cancel()
		_ = w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	s.b.logger.Debug("segment.published", logpkg.Str("topic", s.topic), logpkg.Str("key", s.key.String()))
	return nil
}

type objectSource struct {
	ctx    context.Context
	bucket *blob.Bucket
	object string
	size   int64
}

func (s *objectSource) ReadAt(p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	r, err := s.bucket.NewRangeReader(s.ctx, s.object, off, int64(len(p)), nil)
	if err != nil {
		return 0, err
	}
	defer r.Close()
	n, err := io.ReadFull(r, p)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = io.EOF
	}
	return n, err
}

// LastBlockOffset is the object size. Objects are only written whole, so it
// is fixed for the lifetime of a source.
func (s *objectSource) LastBlockOffset(context.Context) (int64, error) { return s.size, nil }

func (s *objectSource) Close() error { return nil }

type appender struct {
	seg  *segmentObject
	f    *os.File
	done bool
}

func (a *appender) Write(p []byte) (int, error) {
	if a.done {
		return 0, os.ErrClosed
	}
	return a.f.Write(p)
}

func (a *appender) Sync(context.Context) error {
	if a.done {
		return os.ErrClosed
	}
	return a.f.Sync()
}

func (a *appender) Commit(ctx context.Context) error {
	if a.done {
		return os.ErrClosed
	}
	a.done = true
	path := a.f.Name()
	defer os.Remove(path)
	if err := a.f.Sync(); err != nil {
		a.f.Close()
		return err
	}
	if err := a.f.Close(); err != nil {
		return err
	}
	return a.seg.CopyFrom(ctx, path)
}

func (a *appender) Abort() error {
	if a.done {
		return nil
	}
	a.done = true
	err := a.f.Close()
	_ = os.Remove(a.f.Name())
	return err
}
