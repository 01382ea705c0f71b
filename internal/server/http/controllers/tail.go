package controllers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rzbill/rawdata/internal/eventlog"
	"github.com/rzbill/rawdata/internal/filter"
	"github.com/rzbill/rawdata/internal/runtime"
	"github.com/rzbill/rawdata/pkg/id"
	logpkg "github.com/rzbill/rawdata/pkg/log"
)

const (
	maxFilterLength   = 2048
	keepAliveInterval = 15 * time.Second
)

// TailController streams topic messages as Server-Sent Events.
type TailController struct {
	rt     *runtime.Runtime
	logger logpkg.Logger
}

// NewTailController creates a new tail controller.
func NewTailController(rt *runtime.Runtime, logger logpkg.Logger) *TailController {
	return &TailController{rt: rt, logger: logger.With(logpkg.Component("http.tail"))}
}

// RegisterRoutes registers tail routes with the given mux.
func (c *TailController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/tail", c.handleTail)
}

// handleTail handles GET /v1/tail?topic=...
//
// Start is chosen by at most one of:
//   - cursor=<ULID> (with inclusive=true to include it)
//   - position=<p> (with inclusive=true to include it)
//   - at=<ms or RFC3339>
//
// filter is an optional CEL expression; limit stops the stream after that
// many events.
func (c *TailController) handleTail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	topic, ok := requireTopic(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	expr := q.Get("filter")
	if len(expr) > maxFilterLength {
		writeError(w, http.StatusBadRequest, "filter too long")
		return
	}
	f, err := filter.Compile(expr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid filter: "+err.Error())
		return
	}
	limit := parseLimit(q.Get("limit"))

	ctx := r.Context()
	consumer, err := c.open(ctx, topic, q.Get("cursor"), q.Get("position"), q.Get("at"), parseBool(q.Get("inclusive")))
	if err != nil {
		if errors.Is(err, errBadCursor) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeLogError(w, err)
		return
	}
	defer consumer.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	sse := sseWriter{w: w}
	sse.Flush()

	sent := 0
	for limit == 0 || sent < limit {
		m, err := consumer.Receive(ctx, keepAliveInterval)
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Warn("tail stopped", logpkg.Str("topic", topic), logpkg.Err(err))
				_ = sse.Send("error", map[string]string{"error": err.Error()})
			}
			return
		}
		if m == nil {
			if sse.Comment("keep-alive") != nil {
				return
			}
			continue
		}
		if !f.Match(*m) {
			continue
		}
		if sse.Send("", toJSON(*m)) != nil {
			return
		}
		sent++
	}
}

var errBadCursor = errors.New("invalid cursor")

func (c *TailController) open(ctx context.Context, topic, cursor, position, at string, inclusive bool) (*eventlog.Consumer, error) {
	switch {
	case cursor != "":
		mid, err := id.Parse(cursor)
		if err != nil {
			return nil, errBadCursor
		}
		return c.rt.ConsumerAt(ctx, topic, eventlog.Cursor{ID: mid, Inclusive: inclusive})
	case position != "":
		cur, err := c.rt.CursorOf(ctx, topic, position, inclusive, time.Now(), defaultCursorTimeout)
		if err != nil {
			return nil, err
		}
		return c.rt.ConsumerAt(ctx, topic, cur)
	case at != "":
		ms := parseTimestamp(at)
		if ms <= 0 {
			return nil, errBadCursor
		}
		return c.rt.ConsumerAt(ctx, topic, eventlog.CursorAt(ms))
	default:
		return c.rt.Consumer(ctx, topic)
	}
}
