package listing

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rzbill/rawdata/internal/segment"
)

// Lister lists the segment keys of a topic in any order.
type Lister interface {
	ListSegments(ctx context.Context, topic string) ([]segment.Key, error)
}

// MetricsHook observes backend listings. Implementations must be cheap.
type MetricsHook interface {
	ObserveListing(topic string, elapsed time.Duration, keys int, err error)
}

// Options configures a Cache.
type Options struct {
	// MinInterval bounds how often one topic is listed. Zero lists on every
	// call.
	MinInterval time.Duration
	Metrics     MetricsHook
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Cache holds per-topic listing snapshots. It is safe for concurrent use.
type Cache struct {
	lister Lister
	opts   Options

	mu     sync.Mutex
	topics map[string]*topicState
}

type snapshot struct {
	keys        []segment.Key
	refreshedAt time.Time
}

type topicState struct {
	snap atomic.Pointer[snapshot]
	// lastAttempt is the unix nano time of the last backend listing, zero
	// before the first one.
	lastAttempt atomic.Int64

	notifyMu sync.Mutex
	notifyCh chan struct{}
}

// New returns an empty cache over lister.
func New(lister Lister, opts Options) *Cache {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MinInterval < 0 {
		opts.MinInterval = 0
	}
	return &Cache{lister: lister, opts: opts, topics: make(map[string]*topicState)}
}

func (c *Cache) state(topic string) *topicState {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.topics[topic]
	if !ok {
		st = &topicState{notifyCh: make(chan struct{})}
		st.snap.Store(&snapshot{})
		c.topics[topic] = st
	}
	return st
}

// Segments returns the sorted segment keys of topic, listing the backend
// first when the snapshot is older than MinInterval. Only the caller that
// claims the refresh lists; the others read the current snapshot, except
// before the first successful listing. A failed listing returns the error
// together with the last good snapshot. The returned slice must not be
// modified.
func (c *Cache) Segments(ctx context.Context, topic string) ([]segment.Key, error) {
	st := c.state(topic)
	last := st.lastAttempt.Load()
	now := c.opts.Now()
	if last != 0 && now.Sub(time.Unix(0, last)) < c.opts.MinInterval {
		return st.snap.Load().keys, nil
	}
	claimed := st.lastAttempt.CompareAndSwap(last, now.UnixNano())
	if !claimed && !st.snap.Load().refreshedAt.IsZero() {
		return st.snap.Load().keys, nil
	}
	return c.refresh(ctx, topic, st, now)
}

// Refresh lists the backend now, ignoring MinInterval.
func (c *Cache) Refresh(ctx context.Context, topic string) ([]segment.Key, error) {
	st := c.state(topic)
	now := c.opts.Now()
	st.lastAttempt.Store(now.UnixNano())
	return c.refresh(ctx, topic, st, now)
}

// refresh lists the backend. Concurrent refreshes are safe: each result is
// merged into whatever snapshot is current.
func (c *Cache) refresh(ctx context.Context, topic string, st *topicState, start time.Time) ([]segment.Key, error) {
	listed, err := c.lister.ListSegments(ctx, topic)
	if c.opts.Metrics != nil {
		c.opts.Metrics.ObserveListing(topic, c.opts.Now().Sub(start), len(listed), err)
	}
	if err != nil {
		return st.snap.Load().keys, err
	}
	grew := c.merge(st, listed, start)
	if grew {
		st.notify()
	}
	return st.snap.Load().keys, nil
}

// merge folds keys into the snapshot and reports whether it grew.
func (c *Cache) merge(st *topicState, keys []segment.Key, at time.Time) bool {
	for {
		old := st.snap.Load()
		merged := segment.MergeKeys(old.keys, keys)
		refreshedAt := old.refreshedAt
		if at.After(refreshedAt) {
			refreshedAt = at
		}
		if st.snap.CompareAndSwap(old, &snapshot{keys: merged, refreshedAt: refreshedAt}) {
			return len(merged) > len(old.keys)
		}
	}
}

// Observe records a segment published by this process, so local consumers
// see it before the next listing.
func (c *Cache) Observe(topic string, key segment.Key) {
	st := c.state(topic)
	if c.merge(st, []segment.Key{key}, time.Time{}) {
		st.notify()
	}
}

// Notify wakes consumers of topic without changing the snapshot. Producers
// call it after making more of an existing segment durable.
func (c *Cache) Notify(topic string) {
	c.state(topic).notify()
}

// Changed returns a channel closed at the next Observe, Notify or growing
// refresh of topic.
func (c *Cache) Changed(topic string) <-chan struct{} {
	st := c.state(topic)
	st.notifyMu.Lock()
	defer st.notifyMu.Unlock()
	return st.notifyCh
}

// NextRefresh returns how long until Segments lists the backend again.
func (c *Cache) NextRefresh(topic string) time.Duration {
	st := c.state(topic)
	last := st.lastAttempt.Load()
	if last == 0 {
		return 0
	}
	d := c.opts.MinInterval - c.opts.Now().Sub(time.Unix(0, last))
	if d < 0 {
		return 0
	}
	return d
}

// RefreshedAt returns when topic was last listed successfully.
func (c *Cache) RefreshedAt(topic string) time.Time {
	return c.state(topic).snap.Load().refreshedAt
}

func (st *topicState) notify() {
	st.notifyMu.Lock()
	close(st.notifyCh)
	st.notifyCh = make(chan struct{})
	st.notifyMu.Unlock()
}
