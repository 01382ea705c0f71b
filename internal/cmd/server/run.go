package serverrun

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	cfgpkg "github.com/rzbill/rawdata/internal/config"
	"github.com/rzbill/rawdata/internal/metrics"
	"github.com/rzbill/rawdata/internal/runtime"
	httpserver "github.com/rzbill/rawdata/internal/server/http"
	logpkg "github.com/rzbill/rawdata/pkg/log"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

type Options struct {
	// ConfigPath is a JSON or YAML file; empty means defaults.
	ConfigPath string
	// Config, when set, is used instead of ConfigPath.
	Config *cfgpkg.Config
	// DataDir, when set, places the filesystem store and temp folder under it.
	DataDir  string
	HTTPAddr string
	// DisableMetrics turns off the Prometheus registry and /metrics.
	DisableMetrics bool
}

// loadConfig resolves the effective configuration: file or explicit config,
// then RAWDATA_* overrides, then DataDir.
func loadConfig(opts Options) (cfgpkg.Config, error) {
	var cfg cfgpkg.Config
	if opts.Config != nil {
		cfg = *opts.Config
	} else {
		loaded, err := cfgpkg.Load(opts.ConfigPath)
		if err != nil {
			return cfgpkg.Config{}, err
		}
		cfg = loaded
	}
	cfgpkg.FromEnv(&cfg)
	if opts.DataDir != "" {
		cfg.Filesystem.StorageFolder = filepath.Join(opts.DataDir, "store")
		cfg.LocalTempFolder = filepath.Join(opts.DataDir, "tmp")
	}
	return cfg, cfg.Validate()
}

// processLogger reads RAWDATA_LOG_LEVEL and RAWDATA_LOG_FORMAT. An invalid
// setting is reported and replaced by the text/info default.
func processLogger() logpkg.Logger {
	cfg := &logpkg.Config{
		Level:  getenvDefault("RAWDATA_LOG_LEVEL", "info"),
		Format: getenvDefault("RAWDATA_LOG_FORMAT", "text"),
	}
	l, err := logpkg.ApplyConfig(cfg)
	if err == nil {
		return l
	}
	l = logpkg.NewLogger(logpkg.WithFormatter(&logpkg.TextFormatter{}))
	l.Warn("invalid log settings, using defaults", logpkg.Err(err))
	return l
}

func getenvDefault(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

// Run serves HTTP over a runtime until ctx is cancelled or SIGINT/SIGTERM
// arrives, then stops the listener and seals open segments.
func Run(ctx context.Context, opts Options) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(opts)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger := processLogger()
	logpkg.RedirectStdLog(logger)

	var m *metrics.Metrics
	if !opts.DisableMetrics {
		m = metrics.New()
	}
	rt, err := runtime.Open(ctx, runtime.Options{Config: cfg, Logger: logger, Metrics: m})
	if err != nil {
		return err
	}
	logger.Info("server.starting",
		logpkg.Str("http", opts.HTTPAddr),
		logpkg.Str("provider", cfg.Provider),
		logpkg.Int64("segment_max_seconds", cfg.Segment.MaxSeconds),
		logpkg.Int64("segment_max_bytes", cfg.Segment.MaxBytes),
		logpkg.Bool("metrics", m != nil))

	hsrv := httpserver.New(rt, logger)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hsrv.ListenAndServe(gctx, opts.HTTPAddr) })
	serveErr := g.Wait()
	if serveErr != nil {
		logger.Error("server.http", logpkg.Err(serveErr))
	}
	// the listener is down; nothing can publish while segments seal
	hsrv.Close()

	cctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := rt.Close(cctx); err != nil {
		logger.Error("server.close", logpkg.Err(err))
		return err
	}
	logger.Info("server.stopped")
	return serveErr
}
