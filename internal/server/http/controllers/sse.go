package controllers

import (
	"encoding/json"
	"net/http"
)

// sseWriter formats messages as Server-Sent Events.
type sseWriter struct {
	w http.ResponseWriter
}

// Send writes one data event. The message is JSON-encoded after the
// "data: " prefix and terminated by a blank line.
func (s sseWriter) Send(event string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if event != "" {
		if _, err := s.w.Write([]byte("event: " + event + "\n")); err != nil {
			return err
		}
	}
	if _, err := s.w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := s.w.Write(b); err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("\n\n")); err != nil {
		return err
	}
	s.Flush()
	return nil
}

// Comment writes an SSE comment line, used as a keep-alive.
func (s sseWriter) Comment(text string) error {
	if _, err := s.w.Write([]byte(": " + text + "\n\n")); err != nil {
		return err
	}
	s.Flush()
	return nil
}

// Flush flushes the HTTP response writer if it supports flushing.
func (s sseWriter) Flush() {
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
}
