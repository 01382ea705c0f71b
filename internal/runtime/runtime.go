package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	cfgpkg "github.com/rzbill/rawdata/internal/config"
	"github.com/rzbill/rawdata/internal/eventlog"
	"github.com/rzbill/rawdata/internal/listing"
	"github.com/rzbill/rawdata/internal/metrics"
	"github.com/rzbill/rawdata/internal/segment"
	"github.com/rzbill/rawdata/internal/storage"
	blobstore "github.com/rzbill/rawdata/internal/storage/blob"
	fsstore "github.com/rzbill/rawdata/internal/storage/fs"
	pebblestore "github.com/rzbill/rawdata/internal/storage/pebble"
	logpkg "github.com/rzbill/rawdata/pkg/log"
)

// Options for building the Runtime.
type Options struct {
	Config cfgpkg.Config
	Logger logpkg.Logger
	// Metrics is optional.
	Metrics *metrics.Metrics
	// Backend overrides the provider selected by Config. The caller keeps
	// ownership of it.
	Backend storage.Backend
}

// Runtime is one rawdata client: a backend selected from configuration, the
// shared listing cache and the log engine on top of them.
type Runtime struct {
	config  cfgpkg.Config
	logger  logpkg.Logger
	metrics *metrics.Metrics
	backend storage.Backend
	owned   bool
	listing *listing.Cache
	log     *eventlog.Log

	closeOnce sync.Once
	closeErr  error
}

// Open validates the configuration and opens the configured provider.
func Open(ctx context.Context, opts Options) (*Runtime, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}
	comp, err := segment.ParseCompression(cfg.Segment.Compression)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{config: cfg, logger: logger.WithComponent("runtime"), metrics: opts.Metrics}
	rt.backend = opts.Backend
	if rt.backend == nil {
		b, err := openBackend(ctx, cfg, logger, opts.Metrics)
		if err != nil {
			return nil, err
		}
		rt.backend, rt.owned = b, true
	}

	listOpts := listing.Options{MinInterval: cfg.ListingInterval()}
	logOpts := eventlog.Options{
		Backend:      rt.backend,
		Window:       segment.Policy{MaxAge: cfg.MaxSegmentAge(), MaxBytes: cfg.Segment.MaxBytes},
		Compression:  comp,
		BlockBytes:   cfg.Segment.BlockBytes,
		SyncInterval: cfg.SyncInterval(),
		PollInterval: cfg.PollInterval(),
		Logger:       logger,
	}
	if opts.Metrics != nil {
		listOpts.Metrics = opts.Metrics
		logOpts.Metrics = opts.Metrics
	}
	rt.listing = listing.New(rt.backend, listOpts)
	logOpts.Listing = rt.listing
	rt.log, err = eventlog.Open(logOpts)
	if err != nil {
		rt.closeBackend()
		return nil, err
	}
	rt.logger.Info("runtime.opened",
		logpkg.Str("provider", rt.backend.Name()),
		logpkg.Duration("max_segment_age", cfg.MaxSegmentAge()),
		logpkg.Int64("max_segment_bytes", cfg.Segment.MaxBytes),
		logpkg.Duration("listing_interval", cfg.ListingInterval()))
	return rt, nil
}

func openBackend(ctx context.Context, cfg cfgpkg.Config, logger logpkg.Logger, m *metrics.Metrics) (storage.Backend, error) {
	switch cfg.Provider {
	case cfgpkg.ProviderFilesystem:
		opts := fsstore.Options{
			Root:          cfg.Filesystem.StorageFolder,
			TempDir:       cfg.LocalTempFolder,
			MetadataFsync: pebblestore.FsyncModeAlways,
			Logger:        logger,
		}
		if m != nil {
			opts.Metrics = m
		}
		return fsstore.Open(opts)
	case cfgpkg.ProviderGCS:
		return blobstore.OpenGCS(ctx, cfg.GCS.BucketName, cfg.GCS.KeyFile, blobstore.Options{TempDir: cfg.LocalTempFolder, Logger: logger})
	case cfgpkg.ProviderBlob:
		return blobstore.OpenURL(ctx, cfg.Blob.BucketURL, blobstore.Options{TempDir: cfg.LocalTempFolder, Logger: logger})
	}
	return nil, fmt.Errorf("runtime: unknown provider %q", cfg.Provider)
}

// Producer opens a producer session on topic.
func (r *Runtime) Producer(ctx context.Context, topic string) (*eventlog.Producer, error) {
	return r.log.Producer(ctx, topic)
}

// Consumer opens a consumer at the beginning of topic.
func (r *Runtime) Consumer(ctx context.Context, topic string) (*eventlog.Consumer, error) {
	return r.log.Consumer(ctx, topic)
}

// ConsumerAt opens a consumer at cursor.
func (r *Runtime) ConsumerAt(ctx context.Context, topic string, cursor eventlog.Cursor) (*eventlog.Consumer, error) {
	return r.log.ConsumerAt(ctx, topic, cursor)
}

// ConsumerFrom opens a consumer just after position.
func (r *Runtime) ConsumerFrom(ctx context.Context, topic, position string, refTime time.Time, timeout time.Duration) (*eventlog.Consumer, error) {
	return r.log.ConsumerFrom(ctx, topic, position, refTime, timeout)
}

// LastMessage returns the last message of topic, or nil.
func (r *Runtime) LastMessage(ctx context.Context, topic string) (*eventlog.Message, error) {
	return r.log.LastMessage(ctx, topic)
}

// CursorOf resolves position to a cursor.
func (r *Runtime) CursorOf(ctx context.Context, topic, position string, inclusive bool, refTime time.Time, timeout time.Duration) (eventlog.Cursor, error) {
	return r.log.CursorOf(ctx, topic, position, inclusive, refTime, timeout)
}

// Metadata returns the metadata store of topic.
func (r *Runtime) Metadata(ctx context.Context, topic string) (storage.MetadataStore, error) {
	return r.backend.Metadata(ctx, topic)
}

// CheckHealth pings the backend.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.backend == nil {
		return errors.New("runtime: backend not open")
	}
	return r.backend.Ping(ctx)
}

// Close closes every open session, then the backend when the runtime
// opened it. Later calls return the first result.
func (r *Runtime) Close(ctx context.Context) error {
	r.closeOnce.Do(func() {
		r.closeErr = errors.Join(r.log.Close(ctx), r.closeBackend())
	})
	return r.closeErr
}

func (r *Runtime) closeBackend() error {
	if !r.owned || r.backend == nil {
		return nil
	}
	return r.backend.Close()
}

// Log returns the log engine.
func (r *Runtime) Log() *eventlog.Log { return r.log }

// Backend returns the storage backend.
func (r *Runtime) Backend() storage.Backend { return r.backend }

// Metrics returns the metrics registry, or nil.
func (r *Runtime) Metrics() *metrics.Metrics { return r.metrics }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }

// Logger returns the runtime logger.
func (r *Runtime) Logger() logpkg.Logger { return r.logger }
