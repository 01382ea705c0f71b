package eventlog

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rzbill/rawdata/internal/listing"
	"github.com/rzbill/rawdata/internal/segment"
	"github.com/rzbill/rawdata/internal/storage"
	"github.com/rzbill/rawdata/pkg/id"
	logpkg "github.com/rzbill/rawdata/pkg/log"
)

const defaultPollInterval = 200 * time.Millisecond

// Options configures a Log.
type Options struct {
	Backend storage.Backend
	// Listing is shared by every session of the log. When nil one is built
	// over Backend with ListingInterval.
	Listing         *listing.Cache
	ListingInterval time.Duration
	// Window decides when producers seal their segment.
	Window      segment.Policy
	Compression segment.Compression
	// BlockBytes cuts a block inside a large publish.
	BlockBytes int
	// SyncInterval is the minimum time between two fsyncs of an open
	// segment. Zero syncs every publish.
	SyncInterval time.Duration
	// PollInterval bounds how long an exhausted consumer sleeps before
	// probing the open segment again.
	PollInterval time.Duration
	Logger       logpkg.Logger
	Metrics      MetricsHook
	IDs          *id.Generator
	Now          func() time.Time
}

// Log is the entry point for producers, consumers and queries on one
// backend. It is safe for concurrent use.
type Log struct {
	backend storage.Backend
	listing *listing.Cache
	opts    Options
	logger  logpkg.Logger
	metrics MetricsHook
	ids     *id.Generator
	tails   bool

	mu       sync.Mutex
	sessions map[session]struct{}
	closed   bool
}

type session interface {
	shutdown(ctx context.Context) error
}

// Open builds a Log over opts.Backend.
func Open(opts Options) (*Log, error) {
	if opts.Backend == nil {
		return nil, errors.New("eventlog: Options.Backend is required")
	}
	if opts.Listing == nil {
		opts.Listing = listing.New(opts.Backend, listing.Options{MinInterval: opts.ListingInterval})
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.Logger == nil {
		opts.Logger = logpkg.NewNopLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = noopMetrics{}
	}
	if opts.IDs == nil {
		opts.IDs = id.NewGenerator()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Log{
		backend:  opts.Backend,
		listing:  opts.Listing,
		opts:     opts,
		logger:   opts.Logger.WithComponent("eventlog"),
		metrics:  opts.Metrics,
		ids:      opts.IDs,
		tails:    storage.TailsOpenSegments(opts.Backend),
		sessions: make(map[session]struct{}),
	}, nil
}

// Backend returns the storage backend.
func (l *Log) Backend() storage.Backend { return l.backend }

// Listing returns the shared listing cache.
func (l *Log) Listing() *listing.Cache { return l.listing }

func (l *Log) now() time.Time { return l.opts.Now() }

func (l *Log) track(s session) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	l.sessions[s] = struct{}{}
	return nil
}

func (l *Log) untrack(s session) {
	l.mu.Lock()
	delete(l.sessions, s)
	l.mu.Unlock()
}

// Close closes every open producer and consumer. Producers seal their open
// segment first.
func (l *Log) Close(ctx context.Context) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	open := make([]session, 0, len(l.sessions))
	for s := range l.sessions {
		open = append(open, s)
	}
	l.mu.Unlock()

	var errs []error
	for _, s := range open {
		if err := s.shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// waitForChange blocks until the topic listing changes, d elapses or ctx is
// done.
func (l *Log) waitForChange(ctx context.Context, topic string, changed <-chan struct{}, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-changed:
	case <-t.C:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// pollWait is how long a reader sleeps when it has nothing to deliver.
// Between segments nothing can appear before the next listing.
func (l *Log) pollWait(topic string, betweenSegments bool) time.Duration {
	wait := l.opts.PollInterval
	if betweenSegments {
		if next := l.listing.NextRefresh(topic); next > wait {
			wait = next
		}
	}
	return wait
}
