package controllers

import (
	"github.com/rzbill/rawdata/internal/eventlog"
	"github.com/rzbill/rawdata/pkg/id"
)

// Common request/response types for HTTP controllers

// messageJSON is the wire form of a message. Attribute values are base64 in
// JSON.
type messageJSON struct {
	ID            string            `json:"id,omitempty"`
	Position      string            `json:"position"`
	OrderingGroup string            `json:"ordering_group,omitempty"`
	Sequence      uint64            `json:"sequence,omitempty"`
	TimestampMs   int64             `json:"ts_ms,omitempty"`
	Attributes    map[string][]byte `json:"attributes,omitempty"`
}

// publishReq represents a request to publish messages to a topic.
type publishReq struct {
	Messages []messageJSON `json:"messages"`
}

// publishResp lists the IDs assigned to the published messages.
type publishResp struct {
	IDs []string `json:"ids"`
}

// cursorResp represents a resolved cursor.
type cursorResp struct {
	ID          string `json:"id"`
	Inclusive   bool   `json:"inclusive"`
	TimestampMs int64  `json:"ts_ms"`
}

// metadataKeysResp lists the metadata keys of a topic.
type metadataKeysResp struct {
	Topic string   `json:"topic"`
	Keys  []string `json:"keys"`
}

func toJSON(m eventlog.Message) messageJSON {
	return messageJSON{
		ID:            m.ID.String(),
		Position:      m.Position,
		OrderingGroup: m.OrderingGroup,
		Sequence:      m.SequenceNumber,
		TimestampMs:   m.Timestamp(),
		Attributes:    m.Attributes,
	}
}

func fromJSON(j messageJSON) (eventlog.Message, error) {
	m := eventlog.Message{
		Position:       j.Position,
		OrderingGroup:  j.OrderingGroup,
		SequenceNumber: j.Sequence,
		Attributes:     j.Attributes,
	}
	if j.ID != "" {
		mid, err := id.Parse(j.ID)
		if err != nil {
			return eventlog.Message{}, err
		}
		m.ID = mid
	}
	return m, nil
}
