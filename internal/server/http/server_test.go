package httpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	cfgpkg "github.com/rzbill/rawdata/internal/config"
	"github.com/rzbill/rawdata/internal/metrics"
	"github.com/rzbill/rawdata/internal/runtime"
	logpkg "github.com/rzbill/rawdata/pkg/log"
)

func newTestServer(t *testing.T) (*Server, *runtime.Runtime) {
	t.Helper()
	dir := t.TempDir()
	cfg := cfgpkg.Default()
	cfg.LocalTempFolder = filepath.Join(dir, "tmp")
	cfg.Filesystem.StorageFolder = filepath.Join(dir, "store")
	cfg.Consumer.PollIntervalMs = 10
	cfg.Listing.MinIntervalSeconds = 0
	logger, _ := logpkg.ApplyConfig(&logpkg.Config{Level: "error", Format: "text"})
	rt, err := runtime.Open(context.Background(), runtime.Options{Config: cfg, Logger: logger, Metrics: metrics.New()})
	if err != nil {
		t.Fatalf("rt open: %v", err)
	}
	s := New(rt, logger)
	t.Cleanup(func() {
		s.Close()
		_ = rt.Close(context.Background())
	})
	return s, rt
}

func do(s *Server, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthHandler(t *testing.T) {
	s, _ := newTestServer(t)
	w := do(s, http.MethodGet, "/v1/healthz", "")
	if w.Code != 200 {
		t.Fatalf("status: %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"filesystem"`) {
		t.Fatalf("body: %s", w.Body.String())
	}
}

func TestPublishAndLast(t *testing.T) {
	s, _ := newTestServer(t)
	body := `{"messages":[{"position":"a","attributes":{"payload":"aGVsbG8="}},{"position":"b"}]}`
	w := do(s, http.MethodPost, "/v1/messages?topic=orders", body)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status: %d %s", w.Code, w.Body.String())
	}
	var resp publishRespView
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || len(resp.IDs) != 2 {
		t.Fatalf("ids: %v %s", err, w.Body.String())
	}

	w = do(s, http.MethodGet, "/v1/last?topic=orders", "")
	if w.Code != 200 {
		t.Fatalf("last status: %d %s", w.Code, w.Body.String())
	}
	var last struct {
		ID       string `json:"id"`
		Position string `json:"position"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &last)
	if last.Position != "b" || last.ID != resp.IDs[1] {
		t.Fatalf("last: %+v", last)
	}
}

type publishRespView struct {
	IDs []string `json:"ids"`
}

func TestPublishValidation(t *testing.T) {
	s, _ := newTestServer(t)
	cases := []struct {
		name   string
		method string
		target string
		body   string
		want   int
	}{
		{"wrong method", http.MethodGet, "/v1/messages?topic=t", "", http.StatusMethodNotAllowed},
		{"missing topic", http.MethodPost, "/v1/messages", `{"messages":[{"position":"a"}]}`, http.StatusBadRequest},
		{"bad json", http.MethodPost, "/v1/messages?topic=t", `{`, http.StatusBadRequest},
		{"no messages", http.MethodPost, "/v1/messages?topic=t", `{"messages":[]}`, http.StatusBadRequest},
		{"no position", http.MethodPost, "/v1/messages?topic=t", `{"messages":[{}]}`, http.StatusBadRequest},
		{"bad topic", http.MethodPost, "/v1/messages?topic=../x", `{"messages":[{"position":"a"}]}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if w := do(s, tc.method, tc.target, tc.body); w.Code != tc.want {
				t.Fatalf("status %d want %d: %s", w.Code, tc.want, w.Body.String())
			}
		})
	}
}

func TestLastOnEmptyTopic(t *testing.T) {
	s, _ := newTestServer(t)
	if w := do(s, http.MethodGet, "/v1/last?topic=empty", ""); w.Code != http.StatusNotFound {
		t.Fatalf("status: %d", w.Code)
	}
}

func TestCursorHandler(t *testing.T) {
	s, _ := newTestServer(t)
	w := do(s, http.MethodPost, "/v1/messages?topic=t", `{"messages":[{"position":"a"},{"position":"b"}]}`)
	var resp publishRespView
	_ = json.Unmarshal(w.Body.Bytes(), &resp)

	w = do(s, http.MethodGet, "/v1/cursor?topic=t&position=b&inclusive=true&timeout_ms=1000", "")
	if w.Code != 200 {
		t.Fatalf("status: %d %s", w.Code, w.Body.String())
	}
	var cur struct {
		ID        string `json:"id"`
		Inclusive bool   `json:"inclusive"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &cur)
	if cur.ID != resp.IDs[1] || !cur.Inclusive {
		t.Fatalf("cursor: %+v", cur)
	}

	w = do(s, http.MethodGet, "/v1/cursor?topic=t&position=zzz&timeout_ms=0", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown position status: %d", w.Code)
	}
}

func TestMetadataHandlers(t *testing.T) {
	s, _ := newTestServer(t)
	key := "a/../b%20c"
	if w := do(s, http.MethodPut, "/v1/metadata?topic=t&key="+key, "v1"); w.Code != http.StatusNoContent {
		t.Fatalf("put: %d %s", w.Code, w.Body.String())
	}
	w := do(s, http.MethodGet, "/v1/metadata?topic=t&key="+key, "")
	if w.Code != 200 || w.Body.String() != "v1" {
		t.Fatalf("get: %d %q", w.Code, w.Body.String())
	}
	w = do(s, http.MethodGet, "/v1/metadata?topic=t", "")
	if !strings.Contains(w.Body.String(), `"a/../b c"`) {
		t.Fatalf("keys: %s", w.Body.String())
	}
	if w := do(s, http.MethodDelete, "/v1/metadata?topic=t&key="+key, ""); w.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", w.Code)
	}
	if w := do(s, http.MethodGet, "/v1/metadata?topic=t&key="+key, ""); w.Code != http.StatusNotFound {
		t.Fatalf("get after delete: %d", w.Code)
	}
}

func TestTailSSEWithFilterAndLimit(t *testing.T) {
	s, _ := newTestServer(t)
	body := `{"messages":[{"position":"a"},{"position":"skip"},{"position":"b"}]}`
	if w := do(s, http.MethodPost, "/v1/messages?topic=t", body); w.Code != http.StatusAccepted {
		t.Fatalf("publish: %d", w.Code)
	}
	// Seal the open segment so both backends would see it.
	if err := s.registry.Close(context.Background()); err != nil {
		t.Fatalf("close producers: %v", err)
	}

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	q := `/v1/tail?topic=t&limit=2&filter=` + strings.ReplaceAll(`position != "skip"`, " ", "%20")
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+q, nil)
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	defer res.Body.Close()
	if ct := res.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content-type %q", ct)
	}
	var got []string
	sc := bufio.NewScanner(res.Body)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var m struct {
			Position string `json:"position"`
		}
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &m); err != nil {
			t.Fatalf("decode: %v", err)
		}
		got = append(got, m.Position)
	}
	if strings.Join(got, ",") != "a,b" {
		t.Fatalf("positions: %v", got)
	}
}

func TestTailRejectsBadFilter(t *testing.T) {
	s, _ := newTestServer(t)
	if w := do(s, http.MethodGet, "/v1/tail?topic=t&filter=position%20%2B%201", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("status: %d", w.Code)
	}
	if w := do(s, http.MethodGet, "/v1/tail?topic=t&cursor=nope", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("cursor status: %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	do(s, http.MethodGet, "/v1/healthz", "")
	w := do(s, http.MethodGet, "/metrics", "")
	if w.Code != 200 {
		t.Fatalf("status: %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "rawdata_http_requests_total") {
		t.Fatalf("missing http metrics")
	}
}
