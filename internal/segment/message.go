package segment

import (
	"sort"

	"github.com/rzbill/rawdata/pkg/id"
)

// Message is one immutable log record.
type Message struct {
	ID             id.ID
	Position       string
	OrderingGroup  string
	SequenceNumber uint64
	Attributes     map[string][]byte
}

// Timestamp returns the Unix milliseconds embedded in the ID.
func (m Message) Timestamp() int64 { return m.ID.Time() }

// Keys returns the attribute names in sorted order.
func (m Message) Keys() []string {
	keys := make([]string, 0, len(m.Attributes))
	for k := range m.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the named attribute, or nil.
func (m Message) Get(key string) []byte { return m.Attributes[key] }

// Size approximates the in-memory payload size of the message.
func (m Message) Size() int {
	n := len(m.ID) + len(m.Position) + len(m.OrderingGroup) + 8
	for k, v := range m.Attributes {
		n += len(k) + len(v)
	}
	return n
}
