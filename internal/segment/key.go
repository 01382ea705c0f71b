package segment

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rzbill/rawdata/pkg/id"
)

// ErrBadKey is returned by ParseKey for names that are not segment keys.
var ErrBadKey = errors.New("segment: bad key")

// Key identifies a segment within a topic: the ULID of its first message and
// the producer's sequence number. Keys order by (First, Seq).
type Key struct {
	First id.ID
	Seq   uint32
}

// String returns "{ULID}-{seq}" with seq zero-padded to 8 digits so the
// lexical and logical orders agree.
func (k Key) String() string {
	return fmt.Sprintf("%s-%08d", k.First.String(), k.Seq)
}

// Compare orders keys by First, then Seq.
func (k Key) Compare(o Key) int {
	if c := k.First.Compare(o.First); c != 0 {
		return c
	}
	switch {
	case k.Seq < o.Seq:
		return -1
	case k.Seq > o.Seq:
		return 1
	}
	return 0
}

// Less reports whether k sorts before o.
func (k Key) Less(o Key) bool { return k.Compare(o) < 0 }

// ParseKey parses "{ULID}-{digits}".
func ParseKey(name string) (Key, error) {
	i := strings.LastIndexByte(name, '-')
	if i <= 0 || i == len(name)-1 {
		return Key{}, fmt.Errorf("%w: %q", ErrBadKey, name)
	}
	first, err := id.Parse(name[:i])
	if err != nil {
		return Key{}, fmt.Errorf("%w: %q: %v", ErrBadKey, name, err)
	}
	seq, err := strconv.ParseUint(name[i+1:], 10, 32)
	if err != nil {
		return Key{}, fmt.Errorf("%w: %q: %v", ErrBadKey, name, err)
	}
	return Key{First: first, Seq: uint32(seq)}, nil
}

// SortKeys sorts keys in place by (First, Seq).
func SortKeys(keys []Key) {
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
}

// MergeKeys returns the sorted, de-duplicated union of a and b. a must be
// sorted; b may be in any order.
func MergeKeys(a, b []Key) []Key {
	if len(b) == 0 {
		return a
	}
	out := make([]Key, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	SortKeys(out)
	w := 0
	for r := range out {
		if w > 0 && out[w-1] == out[r] {
			continue
		}
		out[w] = out[r]
		w++
	}
	return out[:w]
}

// StartIndex returns the index of the first segment that may contain a
// message with ID >= target: the segment before the first one whose first ID
// is >= target, so ties at the tail of the previous segment are not missed.
func StartIndex(keys []Key, target id.ID) int {
	i := sort.Search(len(keys), func(i int) bool { return keys[i].First.Compare(target) >= 0 })
	if i > 0 {
		return i - 1
	}
	return 0
}
