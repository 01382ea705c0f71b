package eventlog

import (
	"github.com/rzbill/rawdata/internal/segment"
	"github.com/rzbill/rawdata/pkg/id"
)

// Message is one log record. A zero ID is assigned at publish time.
type Message = segment.Message

// Cursor is a replay start point: the first message with an ID after ID, or
// at it when Inclusive.
type Cursor struct {
	ID        id.ID
	Inclusive bool
}

// CursorAt returns the cursor of the first message at or after the Unix
// millisecond timestamp ms.
func CursorAt(ms int64) Cursor { return Cursor{ID: id.MinAt(ms), Inclusive: true} }

func (c Cursor) admits(mid id.ID) bool {
	cmp := mid.Compare(c.ID)
	return cmp > 0 || (cmp == 0 && c.Inclusive)
}

func (c Cursor) String() string {
	if c.Inclusive {
		return "[" + c.ID.String()
	}
	return "(" + c.ID.String()
}
