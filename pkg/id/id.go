package id

import (
	"crypto/rand"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ID is a 128-bit ULID.
type ID [16]byte

// Zero is the zero ID. It sorts before every generated ID.
var Zero ID

// Bytes returns the raw 16-byte representation.
func (i ID) Bytes() []byte {
	b := make([]byte, 16)
	copy(b, i[:])
	return b
}

// String returns the canonical base32 form.
func (i ID) String() string { return ulid.ULID(i).String() }

// Time returns the embedded Unix milliseconds.
func (i ID) Time() int64 { return int64(ulid.ULID(i).Time()) }

// IsZero reports whether i is the zero ID.
func (i ID) IsZero() bool { return i == Zero }

// Compare returns -1, 0, 1 based on lexical comparison.
func (i ID) Compare(other ID) int { return ulid.ULID(i).Compare(ulid.ULID(other)) }

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) { return ulid.ULID(i).MarshalText() }

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *ID) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

// Parse decodes the canonical string form.
func Parse(s string) (ID, error) {
	u, err := ulid.ParseStrict(s)
	if err != nil {
		return Zero, err
	}
	return ID(u), nil
}

// FromBytes copies a 16-byte slice into an ID.
func FromBytes(b []byte) (ID, error) {
	var i ID
	if len(b) != len(i) {
		return Zero, ulid.ErrDataSize
	}
	copy(i[:], b)
	return i, nil
}

// MinAt returns the smallest ID whose embedded time is ms.
func MinAt(ms int64) ID {
	if ms < 0 {
		ms = 0
	}
	var u ulid.ULID
	if err := u.SetTime(uint64(ms)); err != nil {
		_ = u.SetTime(ulid.MaxTime())
	}
	return ID(u)
}

// Generator produces monotonically increasing IDs per process.
type Generator struct {
	mu      sync.Mutex
	lastMs  int64
	entropy *ulid.MonotonicEntropy
}

// NewGenerator creates a new Generator backed by crypto/rand.
func NewGenerator() *Generator { return NewGeneratorWithEntropy(rand.Reader, 0) }

// NewGeneratorWithEntropy creates a Generator that reads entropy from r and
// increments within a millisecond by a random step in [1, inc].
func NewGeneratorWithEntropy(r io.Reader, inc uint64) *Generator {
	return &Generator{entropy: ulid.Monotonic(r, inc)}
}

// NowMs returns current time in milliseconds since Unix epoch.
var NowMs = func() int64 { return time.Now().UnixMilli() }

// Next returns a new ID. If clock goes backwards, it uses lastMs and keeps
// incrementing. If the entropy overflows within the same millisecond, it
// waits for the next ms.
func (g *Generator) Next() ID {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := NowMs()
	if ms < g.lastMs {
		ms = g.lastMs
	}

	for {
		var u ulid.ULID
		_ = u.SetTime(uint64(ms))
		err := g.entropy.MonotonicRead(uint64(ms), u[6:])
		if err == nil {
			g.lastMs = ms
			return ID(u)
		}
		if !errors.Is(err, ulid.ErrMonotonicOverflow) {
			// entropy source failed; fall back to the next millisecond
			// which resets the monotonic state
			time.Sleep(time.Millisecond)
		}
		for {
			next := NowMs()
			if next > ms {
				ms = next
				break
			}
			time.Sleep(time.Millisecond / 8)
		}
	}
}
