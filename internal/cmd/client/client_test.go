package client

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	cfgpkg "github.com/rzbill/rawdata/internal/config"
	"github.com/rzbill/rawdata/internal/runtime"
	httpserver "github.com/rzbill/rawdata/internal/server/http"
	logpkg "github.com/rzbill/rawdata/pkg/log"
)

func startServer(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfg := cfgpkg.Default()
	cfg.LocalTempFolder = filepath.Join(dir, "tmp")
	cfg.Filesystem.StorageFolder = filepath.Join(dir, "store")
	cfg.Consumer.PollIntervalMs = 10
	cfg.Listing.MinIntervalSeconds = 0
	logger, _ := logpkg.ApplyConfig(&logpkg.Config{Level: "error", Format: "text"})
	rt, err := runtime.Open(context.Background(), runtime.Options{Config: cfg, Logger: logger})
	if err != nil {
		t.Fatalf("rt open: %v", err)
	}
	s := httpserver.New(rt, logger)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		s.Close()
		_ = rt.Close(context.Background())
	})
	return ts.URL
}

func run(t *testing.T, baseURL string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRoot(func() string { return baseURL })
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestPublishTailLastOverHTTP(t *testing.T) {
	url := startServer(t)
	for _, pos := range []string{"a", "b", "c"} {
		out, err := run(t, url, "publish", "--topic", "orders", "--position", pos, "--data", `{"n":"`+pos+`"}`, "--attr", "source=cli")
		if err != nil {
			t.Fatalf("publish %s: %v", pos, err)
		}
		if !strings.Contains(out, `"ids"`) {
			t.Fatalf("publish output: %s", out)
		}
	}

	out, err := run(t, url, "tail", "--topic", "orders", "--position", "a", "--limit", "2")
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %s", len(lines), out)
	}
	var first map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if first["position"] != "b" {
		t.Fatalf("first position %v", first["position"])
	}
	attrs := first["attributes"].(map[string]any)
	if attrs["source"].(map[string]any)["text"] != "cli" {
		t.Fatalf("attributes: %v", attrs)
	}
	if _, ok := attrs["payload"].(map[string]any)["json"]; !ok {
		t.Fatalf("payload not decoded as json: %v", attrs["payload"])
	}

	out, err = run(t, url, "last", "--topic", "orders")
	if err != nil {
		t.Fatalf("last: %v", err)
	}
	if !strings.Contains(out, `"position": "c"`) {
		t.Fatalf("last output: %s", out)
	}
}

func TestCursorAndMetaOverHTTP(t *testing.T) {
	url := startServer(t)
	out, err := run(t, url, "publish", "--topic", "t", "--position", "p1")
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	var pub struct {
		IDs []string `json:"ids"`
	}
	_ = json.Unmarshal([]byte(out), &pub)

	out, err = run(t, url, "cursor", "--topic", "t", "--position", "p1", "--inclusive")
	if err != nil {
		t.Fatalf("cursor: %v", err)
	}
	if !strings.Contains(out, pub.IDs[0]) || !strings.Contains(out, `"inclusive":true`) {
		t.Fatalf("cursor output: %s", out)
	}
	if _, err := run(t, url, "cursor", "--topic", "t", "--position", "missing", "--timeout", "0s"); err == nil {
		t.Fatalf("expected error for unknown position")
	}

	if _, err := run(t, url, "meta", "put", "--topic", "t", "k/1", "--value", "v"); err != nil {
		t.Fatalf("meta put: %v", err)
	}
	if out, err := run(t, url, "meta", "get", "--topic", "t", "k/1"); err != nil || out != "v" {
		t.Fatalf("meta get: %q %v", out, err)
	}
	if out, err := run(t, url, "meta", "ls", "--topic", "t"); err != nil || strings.TrimSpace(out) != "k/1" {
		t.Fatalf("meta ls: %q %v", out, err)
	}
	if _, err := run(t, url, "meta", "rm", "--topic", "t", "k/1"); err != nil {
		t.Fatalf("meta rm: %v", err)
	}
	if _, err := run(t, url, "meta", "get", "--topic", "t", "k/1"); err == nil {
		t.Fatalf("expected not found")
	}
}

func TestLocalMode(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("RAWDATA_PROVIDER", "filesystem")
	t.Setenv("RAWDATA_FILESYSTEM_STORAGE_FOLDER", filepath.Join(dir, "store"))
	t.Setenv("RAWDATA_LOCAL_TEMP_FOLDER", filepath.Join(dir, "tmp"))
	t.Setenv("RAWDATA_LISTING_MIN_INTERVAL_SECONDS", "0")
	t.Setenv("RAWDATA_CONSUMER_POLL_INTERVAL_MS", "10")
	t.Setenv("RAWDATA_LOG_LEVEL", "error")
	noServer := func() string { return "http://127.0.0.1:1" }

	cmd := NewRoot(noServer)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--local", "publish", "--topic", "local", "--position", "x", "--data", "hello"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("publish: %v", err)
	}

	out, err := run(t, "http://127.0.0.1:1", "--local", "tail", "--topic", "local", "--limit", "1", "--filter", `position == "x"`)
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if !strings.Contains(out, `"text":"hello"`) {
		t.Fatalf("tail output: %s", out)
	}
	if _, err := run(t, "http://127.0.0.1:1", "--local", "last", "--topic", "empty"); err == nil {
		t.Fatalf("expected error for empty topic")
	}
}

func TestPublishRequiresFlags(t *testing.T) {
	if _, err := run(t, "http://127.0.0.1:1", "publish", "--topic", "t"); err == nil {
		t.Fatalf("expected error without --position")
	}
	if _, err := run(t, "http://127.0.0.1:1", "publish", "--topic", "t", "--position", "p", "--attr", "novalue"); err == nil {
		t.Fatalf("expected error for malformed --attr")
	}
}

func TestDecodedValue(t *testing.T) {
	cases := []struct {
		in   []byte
		kind string
	}{
		{[]byte(`{"a":1}`), "json"},
		{[]byte("plain"), "text"},
		{[]byte{0xff, 0xfe}, "b64"},
		{[]byte("{not json"), "text"},
	}
	for _, tc := range cases {
		got := decodedValue(tc.in)
		if _, ok := got[tc.kind]; !ok {
			t.Fatalf("%q: got %v want %s", tc.in, got, tc.kind)
		}
	}
}
