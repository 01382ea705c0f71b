package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rzbill/rawdata/internal/segment"
)

var (
	// ErrNotFound is returned when a segment or metadata key does not exist.
	ErrNotFound = errors.New("storage: not found")
	// ErrExists is returned when publishing a segment key that already exists.
	ErrExists = errors.New("storage: already exists")
	// ErrInvalidTopic is returned for topic names that cannot map to a prefix.
	ErrInvalidTopic = errors.New("storage: invalid topic")
)

// MetadataDir is the reserved child of a topic holding its metadata store.
const MetadataDir = "metadata"

// Backend is one storage provider. Implementations must be safe for
// concurrent use.
type Backend interface {
	// Name identifies the provider in logs and metrics.
	Name() string
	// ListSegments returns every segment key currently visible for topic, in
	// any order.
	ListSegments(ctx context.Context, topic string) ([]segment.Key, error)
	// Segment returns a handle for one segment. It does not touch storage.
	Segment(topic string, key segment.Key) SegmentFile
	// CreateSegment starts a new segment owned by the caller.
	CreateSegment(ctx context.Context, topic string, key segment.Key) (Appender, error)
	// Metadata returns the topic's metadata store.
	Metadata(ctx context.Context, topic string) (MetadataStore, error)
	// Ping checks that the provider is reachable.
	Ping(ctx context.Context) error
	Close() error
}

// Tailable is implemented by backends whose open segments become listed and
// readable at their first Sync, before they are committed.
type Tailable interface {
	TailsOpenSegments() bool
}

// TailsOpenSegments reports whether b exposes open segments to readers.
func TailsOpenSegments(b Backend) bool {
	t, ok := b.(Tailable)
	return ok && t.TailsOpenSegments()
}

// SegmentFile is the handle of one segment.
type SegmentFile interface {
	Topic() string
	Key() segment.Key
	// Open returns a seekable view of the segment.
	Open(ctx context.Context) (Source, error)
	// CopyFrom publishes a locally built file as this segment. It fails with
	// ErrExists when the segment is already present.
	CopyFrom(ctx context.Context, localPath string) error
}

// Source is a readable view of a segment that may still be growing.
type Source interface {
	io.ReaderAt
	// LastBlockOffset returns the durable byte limit: no complete block ends
	// past it. Callers probe it before every read attempt.
	LastBlockOffset(ctx context.Context) (int64, error)
	Close() error
}

// LiveSource is a Source that knows whether a writer of this process still
// holds its segment open.
type LiveSource interface {
	Source
	Live() bool
}

// Appender receives the bytes of an open segment.
type Appender interface {
	io.Writer
	// Sync makes everything written so far durable. Backends that support
	// live segments also make it visible to readers.
	Sync(ctx context.Context) error
	// Commit syncs and publishes the segment; the Appender is done afterwards.
	Commit(ctx context.Context) error
	// Abort discards what has not been published.
	Abort() error
}

// MetadataStore is a per-topic key/value side channel. Put overwrites.
type MetadataStore interface {
	Topic() string
	Put(ctx context.Context, key string, value []byte) error
	// Get returns ok=false for missing keys.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Remove(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}

// ValidateTopic checks that a topic maps to a safe relative prefix. Topics
// may contain "/" separated parts.
func ValidateTopic(topic string) error {
	if topic == "" || strings.HasPrefix(topic, "/") || strings.HasSuffix(topic, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}
	for _, part := range strings.Split(topic, "/") {
		if part == "" || part == "." || part == ".." || part == MetadataDir || strings.ContainsRune(part, '\\') {
			return fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
		}
	}
	return nil
}

// CreateStaging creates a uniquely named staging file under dir.
func CreateStaging(dir string, key segment.Key) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: staging dir %s: %w", dir, err)
	}
	path := filepath.Join(dir, key.String()+"-"+uuid.NewString()+".seg")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("storage: staging file: %w", err)
	}
	return f, nil
}
