package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rzbill/rawdata/internal/eventlog"
	"github.com/rzbill/rawdata/internal/storage"
)

type errorBody struct {
	Error string `json:"error"`
}

func respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSON(w http.ResponseWriter, v any) { respond(w, http.StatusOK, v) }

func writeError(w http.ResponseWriter, status int, message string) {
	respond(w, status, errorBody{Error: message})
}

func writeNoContent(w http.ResponseWriter) { w.WriteHeader(http.StatusNoContent) }

// errorStatus is checked in order; the first sentinel matched by errors.Is wins.
var errorStatus = []struct {
	err    error
	status int
}{
	{storage.ErrInvalidTopic, http.StatusBadRequest},
	{eventlog.ErrNotBuffered, http.StatusBadRequest},
	{eventlog.ErrNotPrefix, http.StatusBadRequest},
	{eventlog.ErrNoSuchPosition, http.StatusNotFound},
	{storage.ErrNotFound, http.StatusNotFound},
	{eventlog.ErrBackendUnavailable, http.StatusServiceUnavailable},
	{eventlog.ErrClosed, http.StatusServiceUnavailable},
}

func statusFor(err error) int {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

// writeLogError answers with the status matching err.
func writeLogError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}

func requireTopic(w http.ResponseWriter, r *http.Request) (string, bool) {
	if topic := r.URL.Query().Get("topic"); topic != "" {
		return topic, true
	}
	writeError(w, http.StatusBadRequest, "topic is required")
	return "", false
}

// parseLimit returns 0, meaning unlimited, unless s is a positive integer.
func parseLimit(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// parseTimestamp accepts Unix milliseconds or RFC 3339 and returns
// milliseconds, 0 when s is neither.
func parseTimestamp(s string) int64 {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ms
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0
	}
	return t.UnixMilli()
}

func parseDurationMs(s string, def time.Duration) time.Duration {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms < 0 {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}

func parseBool(s string) bool {
	b, _ := strconv.ParseBool(s)
	return b
}
