package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/rzbill/rawdata/internal/eventlog"
	"github.com/rzbill/rawdata/internal/runtime"
	logpkg "github.com/rzbill/rawdata/pkg/log"
)

// defaultCursorTimeout bounds how long a cursor lookup scans for a position.
const defaultCursorTimeout = 5 * time.Second

// MessagesController handles publish, last-message and cursor endpoints.
//
// Producers are kept per topic for the life of the controller so that
// consecutive publish requests share one open segment.
type MessagesController struct {
	rt     *runtime.Runtime
	logger logpkg.Logger

	mu        sync.Mutex
	producers map[string]*eventlog.Producer
}

// NewMessagesController creates a new messages controller.
func NewMessagesController(rt *runtime.Runtime, logger logpkg.Logger) *MessagesController {
	return &MessagesController{
		rt:        rt,
		logger:    logger.With(logpkg.Component("http.messages")),
		producers: make(map[string]*eventlog.Producer),
	}
}

// RegisterRoutes registers message routes with the given mux.
func (c *MessagesController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/messages", c.handlePublish)
	mux.HandleFunc("/v1/last", c.handleLast)
	mux.HandleFunc("/v1/cursor", c.handleCursor)
}

// Close seals every producer opened by the controller.
func (c *MessagesController) Close(ctx context.Context) error {
	c.mu.Lock()
	producers := c.producers
	c.producers = make(map[string]*eventlog.Producer)
	c.mu.Unlock()
	var errs []error
	for _, p := range producers {
		errs = append(errs, p.Close(ctx))
	}
	return errors.Join(errs...)
}

func (c *MessagesController) producer(ctx context.Context, topic string) (*eventlog.Producer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.producers[topic]; ok {
		return p, nil
	}
	p, err := c.rt.Producer(ctx, topic)
	if err != nil {
		return nil, err
	}
	c.producers[topic] = p
	return p, nil
}

func (c *MessagesController) drop(topic string, p *eventlog.Producer) {
	c.mu.Lock()
	if c.producers[topic] == p {
		delete(c.producers, topic)
	}
	c.mu.Unlock()
}

// handlePublish handles POST /v1/messages?topic=...
//
// The body is {"messages":[{"position":"a","attributes":{"k":"<base64>"}}]}.
// Messages are written as one block; the response lists their IDs.
func (c *MessagesController) handlePublish(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	topic, ok := requireTopic(w, r)
	if !ok {
		return
	}
	var req publishReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages is required")
		return
	}
	msgs := make([]eventlog.Message, 0, len(req.Messages))
	for _, j := range req.Messages {
		if j.Position == "" {
			writeError(w, http.StatusBadRequest, "position is required")
			return
		}
		m, err := fromJSON(j)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid id")
			return
		}
		msgs = append(msgs, m)
	}

	p, err := c.producer(r.Context(), topic)
	if err != nil {
		writeLogError(w, err)
		return
	}
	if err := p.PublishMessages(r.Context(), msgs...); err != nil {
		if errors.Is(err, eventlog.ErrClosed) {
			c.drop(topic, p)
		}
		c.logger.Warn("publish failed", logpkg.Str("topic", topic), logpkg.Err(err))
		writeLogError(w, err)
		return
	}
	resp := publishResp{IDs: make([]string, len(msgs))}
	for i, m := range msgs {
		resp.IDs[i] = m.ID.String()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(resp)
}

// handleLast handles GET /v1/last?topic=...
func (c *MessagesController) handleLast(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	topic, ok := requireTopic(w, r)
	if !ok {
		return
	}
	m, err := c.rt.LastMessage(r.Context(), topic)
	if err != nil {
		writeLogError(w, err)
		return
	}
	if m == nil {
		writeError(w, http.StatusNotFound, "topic is empty")
		return
	}
	writeJSON(w, toJSON(*m))
}

// handleCursor handles GET /v1/cursor?topic=...&position=...
//
// Optional parameters: inclusive (bool), ref (ms or RFC3339) and timeout_ms.
func (c *MessagesController) handleCursor(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	topic, ok := requireTopic(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	position := q.Get("position")
	if position == "" {
		writeError(w, http.StatusBadRequest, "position is required")
		return
	}
	ref := time.Now()
	if ms := parseTimestamp(q.Get("ref")); ms > 0 {
		ref = time.UnixMilli(ms)
	}
	timeout := parseDurationMs(q.Get("timeout_ms"), defaultCursorTimeout)
	cur, err := c.rt.CursorOf(r.Context(), topic, position, parseBool(q.Get("inclusive")), ref, timeout)
	if err != nil {
		writeLogError(w, err)
		return
	}
	writeJSON(w, cursorResp{ID: cur.ID.String(), Inclusive: cur.Inclusive, TimestampMs: cur.ID.Time()})
}
