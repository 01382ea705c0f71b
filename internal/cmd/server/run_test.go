package serverrun

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	cfgpkg "github.com/rzbill/rawdata/internal/config"
)

func TestGetenvDefault(t *testing.T) {
	t.Setenv("RAWDATA_TEST_SET", "json")
	t.Setenv("RAWDATA_TEST_EMPTY", "")
	cases := map[string]string{
		"RAWDATA_TEST_SET":   "json",
		"RAWDATA_TEST_EMPTY": "text",
		"RAWDATA_TEST_UNSET": "text",
	}
	for key, want := range cases {
		if got := getenvDefault(key, "text"); got != want {
			t.Fatalf("%s: got %q want %q", key, got, want)
		}
	}
}

func TestProcessLoggerFallsBack(t *testing.T) {
	t.Setenv("RAWDATA_LOG_FORMAT", "xml")
	if processLogger() == nil {
		t.Fatalf("expected fallback logger")
	}
}

func TestLoadConfigDataDir(t *testing.T) {
	base := t.TempDir()
	cfg, err := loadConfig(Options{DataDir: base})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got, want := cfg.Filesystem.StorageFolder, filepath.Join(base, "store"); got != want {
		t.Fatalf("storage folder %s want %s", got, want)
	}
	if got, want := cfg.LocalTempFolder, filepath.Join(base, "tmp"); got != want {
		t.Fatalf("temp folder %s want %s", got, want)
	}
}

func TestLoadConfigEnvBeatsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rawdata.yaml")
	if err := os.WriteFile(path, []byte("provider: filesystem\nsegment:\n  maxSeconds: 30\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("RAWDATA_SEGMENT_MAX_SECONDS", "5")
	cfg, err := loadConfig(Options{ConfigPath: path, DataDir: dir})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Segment.MaxSeconds != 5 {
		t.Fatalf("max seconds %d want 5", cfg.Segment.MaxSeconds)
	}
}

func TestLoadConfigUnknownProvider(t *testing.T) {
	cfg := cfgpkg.Default()
	cfg.Provider = "tape"
	if _, err := loadConfig(Options{Config: &cfg}); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	if testing.Short() {
		t.Skip("starts a server")
	}
	t.Setenv("RAWDATA_LOG_LEVEL", "error")
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := Run(ctx, Options{DataDir: t.TempDir(), HTTPAddr: "127.0.0.1:0"}); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestRunReportsListenError(t *testing.T) {
	t.Setenv("RAWDATA_LOG_LEVEL", "error")
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer busy.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = Run(ctx, Options{DataDir: t.TempDir(), HTTPAddr: busy.Addr().String()})
	if err == nil || errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected listen error, got %v", err)
	}
}
