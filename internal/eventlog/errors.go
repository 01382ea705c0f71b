package eventlog

import (
	"context"
	"errors"
	"fmt"

	"github.com/rzbill/rawdata/internal/segment"
)

var (
	// ErrNotBuffered is returned by Publish for a position never buffered.
	ErrNotBuffered = errors.New("eventlog: position not buffered")
	// ErrNotPrefix is returned by Publish when the named positions skip
	// over an earlier buffered message.
	ErrNotPrefix = errors.New("eventlog: positions are not a prefix of the buffer")
	// ErrNoSuchPosition is returned when a position cannot be resolved
	// before the deadline, including on an empty topic.
	ErrNoSuchPosition = errors.New("eventlog: no such position")
	// ErrBackendUnavailable matches every BackendError.
	ErrBackendUnavailable = errors.New("eventlog: backend unavailable")
	// ErrCorruptSegment matches every CorruptSegmentError.
	ErrCorruptSegment = errors.New("eventlog: corrupt segment")
	// ErrClosed is returned by operations on a closed session or log.
	ErrClosed = errors.New("eventlog: closed")
	// ErrUnpublished is returned by Producer.Close when buffered messages
	// were never published. They are discarded.
	ErrUnpublished = errors.New("eventlog: buffered messages not published")
)

// BackendError wraps a failed storage call.
type BackendError struct {
	Op    string
	Topic string
	Err   error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("eventlog: %s %s: %v", e.Op, e.Topic, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

func (e *BackendError) Is(target error) bool { return target == ErrBackendUnavailable }

// CorruptSegmentError reports a malformed segment. Reading continues with
// the next segment.
type CorruptSegmentError struct {
	Topic  string
	Key    segment.Key
	Offset int64
	Err    error
}

func (e *CorruptSegmentError) Error() string {
	return fmt.Sprintf("eventlog: corrupt segment %s/%s at %d: %v", e.Topic, e.Key, e.Offset, e.Err)
}

func (e *CorruptSegmentError) Unwrap() error { return e.Err }

func (e *CorruptSegmentError) Is(target error) bool { return target == ErrCorruptSegment }

// backendErr wraps err unless it is nil, a context error or already typed.
func backendErr(op, topic string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var be *BackendError
	if errors.As(err, &be) {
		return err
	}
	return &BackendError{Op: op, Topic: topic, Err: err}
}
