package segment

import (
	"encoding/binary"
	"fmt"

	"github.com/rzbill/rawdata/pkg/id"
	"github.com/vmihailenco/msgpack/v5"
)

// Record encoding inside a block payload: uvarint len | msgpack(record).

type wireRecord struct {
	ID             []byte            `msgpack:"u"`
	Position       string            `msgpack:"p"`
	OrderingGroup  string            `msgpack:"g,omitempty"`
	SequenceNumber uint64            `msgpack:"s,omitempty"`
	Attributes     map[string][]byte `msgpack:"a,omitempty"`
}

// AppendRecord encodes m and appends it, length-prefixed, to dst.
func AppendRecord(dst []byte, m Message) ([]byte, error) {
	b, err := msgpack.Marshal(&wireRecord{
		ID:             m.ID[:],
		Position:       m.Position,
		OrderingGroup:  m.OrderingGroup,
		SequenceNumber: m.SequenceNumber,
		Attributes:     m.Attributes,
	})
	if err != nil {
		return dst, fmt.Errorf("segment: encode %q: %w", m.Position, err)
	}
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], uint64(len(b)))
	dst = append(dst, tmp[:n]...)
	return append(dst, b...), nil
}

// DecodeRecord decodes one length-prefixed record from b and returns the
// number of bytes consumed.
func DecodeRecord(b []byte) (Message, int, error) {
	l, n := binary.Uvarint(b)
	if n <= 0 || uint64(len(b)-n) < l {
		return Message{}, 0, fmt.Errorf("%w: truncated record", ErrCorrupt)
	}
	var rec wireRecord
	if err := msgpack.Unmarshal(b[n:n+int(l)], &rec); err != nil {
		return Message{}, 0, fmt.Errorf("%w: record: %v", ErrCorrupt, err)
	}
	mid, err := id.FromBytes(rec.ID)
	if err != nil {
		return Message{}, 0, fmt.Errorf("%w: record id: %v", ErrCorrupt, err)
	}
	return Message{
		ID:             mid,
		Position:       rec.Position,
		OrderingGroup:  rec.OrderingGroup,
		SequenceNumber: rec.SequenceNumber,
		Attributes:     rec.Attributes,
	}, n + int(l), nil
}
