package transports

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// HTTPTransport talks to a rawdata server's REST API.
type HTTPTransport struct {
	base   string
	client *http.Client
}

// NewHTTPTransport returns a transport for the server at baseURL.
func NewHTTPTransport(baseURL string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPTransport{base: strings.TrimRight(baseURL, "/"), client: client}
}

func (t *HTTPTransport) url(path string, q url.Values) string {
	return t.base + path + "?" + q.Encode()
}

func (t *HTTPTransport) do(ctx context.Context, method, target string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode == http.StatusNotFound {
			return nil, ErrNotFound
		}
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error != "" {
			return nil, fmt.Errorf("http error: %s: %s", resp.Status, e.Error)
		}
		return nil, fmt.Errorf("http error: %s", resp.Status)
	}
	return resp, nil
}

func (t *HTTPTransport) getJSON(ctx context.Context, target string, out any) error {
	resp, err := t.do(ctx, http.MethodGet, target, nil, "")
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	return json.NewDecoder(resp.Body).Decode(out)
}

func (t *HTTPTransport) Publish(ctx context.Context, topic string, msgs []Message) ([]string, error) {
	b, err := json.Marshal(map[string]any{"messages": msgs})
	if err != nil {
		return nil, err
	}
	resp, err := t.do(ctx, http.MethodPost, t.url("/v1/messages", url.Values{"topic": {topic}}), bytes.NewReader(b), "application/json")
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	var out struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out.IDs, nil
}

func (t *HTTPTransport) Tail(ctx context.Context, req TailRequest, onMessage func(Message) error) error {
	q := url.Values{"topic": {req.Topic}}
	switch {
	case req.Cursor != "":
		q.Set("cursor", req.Cursor)
	case req.Position != "":
		q.Set("position", req.Position)
	case req.AtMs > 0:
		q.Set("at", strconv.FormatInt(req.AtMs, 10))
	}
	if req.Inclusive {
		q.Set("inclusive", "true")
	}
	if req.Limit > 0 {
		q.Set("limit", strconv.Itoa(req.Limit))
	}
	if req.Filter != "" {
		q.Set("filter", req.Filter)
	}
	resp, err := t.do(ctx, http.MethodGet, t.url("/v1/tail", q), nil, "")
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 64*1024), 16<<20)
	event := ""
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			event = ""
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data := []byte(strings.TrimPrefix(line, "data: "))
			if event == "error" {
				var e struct {
					Error string `json:"error"`
				}
				_ = json.Unmarshal(data, &e)
				return fmt.Errorf("tail: %s", e.Error)
			}
			var m Message
			if err := json.Unmarshal(data, &m); err != nil {
				return err
			}
			if err := onMessage(m); err != nil {
				return err
			}
		}
	}
	if err := sc.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func (t *HTTPTransport) Last(ctx context.Context, topic string) (Message, error) {
	var m Message
	err := t.getJSON(ctx, t.url("/v1/last", url.Values{"topic": {topic}}), &m)
	return m, err
}

func (t *HTTPTransport) Cursor(ctx context.Context, req CursorRequest) (Cursor, error) {
	q := url.Values{
		"topic":      {req.Topic},
		"position":   {req.Position},
		"timeout_ms": {strconv.FormatInt(req.Timeout.Milliseconds(), 10)},
	}
	if req.Inclusive {
		q.Set("inclusive", "true")
	}
	var c Cursor
	err := t.getJSON(ctx, t.url("/v1/cursor", q), &c)
	return c, err
}

func (t *HTTPTransport) MetaGet(ctx context.Context, topic, key string) ([]byte, error) {
	resp, err := t.do(ctx, http.MethodGet, t.url("/v1/metadata", url.Values{"topic": {topic}, "key": {key}}), nil, "")
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	return io.ReadAll(resp.Body)
}

func (t *HTTPTransport) MetaPut(ctx context.Context, topic, key string, value []byte) error {
	resp, err := t.do(ctx, http.MethodPut, t.url("/v1/metadata", url.Values{"topic": {topic}, "key": {key}}), bytes.NewReader(value), "application/octet-stream")
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

func (t *HTTPTransport) MetaRemove(ctx context.Context, topic, key string) error {
	resp, err := t.do(ctx, http.MethodDelete, t.url("/v1/metadata", url.Values{"topic": {topic}, "key": {key}}), nil, "")
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

func (t *HTTPTransport) MetaKeys(ctx context.Context, topic string) ([]string, error) {
	var out struct {
		Keys []string `json:"keys"`
	}
	err := t.getJSON(ctx, t.url("/v1/metadata", url.Values{"topic": {topic}}), &out)
	return out.Keys, err
}

func (t *HTTPTransport) Close(context.Context) error { return nil }
