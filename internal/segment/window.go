package segment

import "time"

// Policy decides when an open segment is sealed. Zero limits are unbounded.
type Policy struct {
	MaxAge   time.Duration
	MaxBytes int64
}

// Window tracks one open segment against a Policy.
type Window struct {
	policy   Policy
	openedAt time.Time
	bytes    int64
	count    int
}

// NewWindow starts a window at now.
func NewWindow(p Policy, now time.Time) *Window {
	return &Window{policy: p, openedAt: now}
}

// Add records n bytes of one appended message.
func (w *Window) Add(n int) {
	w.bytes += int64(n)
	w.count++
}

// Bytes returns the bytes accumulated since open.
func (w *Window) Bytes() int64 { return w.bytes }

// Count returns the number of messages accumulated since open.
func (w *Window) Count() int { return w.count }

// OpenedAt returns when the window started.
func (w *Window) OpenedAt() time.Time { return w.openedAt }

// Expired reports whether the age limit has been reached at now.
func (w *Window) Expired(now time.Time) bool {
	return w.policy.MaxAge > 0 && now.Sub(w.openedAt) >= w.policy.MaxAge
}

// Full reports whether the size limit has been reached.
func (w *Window) Full() bool {
	return w.policy.MaxBytes > 0 && w.bytes >= w.policy.MaxBytes
}

// ShouldSeal reports whether either limit triggers at now. An empty window
// never seals.
func (w *Window) ShouldSeal(now time.Time) bool {
	if w.count == 0 {
		return false
	}
	return w.Expired(now) || w.Full()
}
