package transports

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned for empty topics, unknown positions and missing
// metadata keys.
var ErrNotFound = errors.New("not found")

// Message is the CLI view of a log message. Attribute values are raw bytes.
type Message struct {
	ID            string            `json:"id,omitempty"`
	Position      string            `json:"position"`
	OrderingGroup string            `json:"ordering_group,omitempty"`
	Sequence      uint64            `json:"sequence,omitempty"`
	TimestampMs   int64             `json:"ts_ms,omitempty"`
	Attributes    map[string][]byte `json:"attributes,omitempty"`
}

// Cursor is a resolved read position.
type Cursor struct {
	ID          string `json:"id"`
	Inclusive   bool   `json:"inclusive"`
	TimestampMs int64  `json:"ts_ms"`
}

// TailRequest describes a tail request. At most one of Cursor, Position and
// AtMs selects the start; none means the beginning of the topic.
type TailRequest struct {
	Topic     string
	Cursor    string
	Position  string
	Inclusive bool
	AtMs      int64
	Limit     int
	Filter    string
}

// CursorRequest describes a cursor lookup.
type CursorRequest struct {
	Topic     string
	Position  string
	Inclusive bool
	Timeout   time.Duration
}

// Transport abstracts how the CLI reaches the log: through a running server
// or by opening the storage directly.
type Transport interface {
	Publish(ctx context.Context, topic string, msgs []Message) (ids []string, err error)
	Tail(ctx context.Context, req TailRequest, onMessage func(Message) error) error
	Last(ctx context.Context, topic string) (Message, error)
	Cursor(ctx context.Context, req CursorRequest) (Cursor, error)
	MetaGet(ctx context.Context, topic, key string) ([]byte, error)
	MetaPut(ctx context.Context, topic, key string, value []byte) error
	MetaRemove(ctx context.Context, topic, key string) error
	MetaKeys(ctx context.Context, topic string) ([]string, error)
	Close(ctx context.Context) error
}
