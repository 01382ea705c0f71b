package log

import (
	"context"
	"log/slog"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
)

// slogFatal keeps FatalLevel distinct from ErrorLevel inside slog.
const slogFatal = slog.LevelError + 4

const redacted = "[REDACTED]"

// handler is the slog.Handler behind BaseLogger. It is also what
// RedirectStdLog installs as the slog default.
type handler struct {
	level     *atomic.Int32
	formatter Formatter
	outputs   []Output
	attrs     []slog.Attr
	prefix    string
	redact    map[string]struct{}
	sample    *sampler
}

func (h *handler) Enabled(_ context.Context, level slog.Level) bool {
	return fromSlogLevel(level) >= Level(h.level.Load())
}

func (h *handler) Handle(_ context.Context, r slog.Record) error {
	if h.sample != nil && !h.sample.allow(r.Level, r.Message) {
		return nil
	}
	e := &Entry{
		Level:     fromSlogLevel(r.Level),
		Message:   r.Message,
		Timestamp: r.Time,
		Fields:    make(Fields, len(h.attrs)+r.NumAttrs()),
	}
	for _, a := range h.attrs {
		h.put(e, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		a.Key = h.prefix + a.Key
		h.put(e, a)
		return true
	})
	if r.PC != 0 {
		frame, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
		e.Caller = frame.File + ":" + strconv.Itoa(frame.Line)
	}
	b, err := h.formatter.Format(e)
	if err != nil {
		return err
	}
	for _, out := range h.outputs {
		_ = out.Write(e, b)
	}
	return nil
}

func (h *handler) put(e *Entry, a slog.Attr) {
	if _, ok := h.redact[a.Key]; ok {
		e.Fields[a.Key] = redacted
		return
	}
	v := a.Value.Any()
	if err, ok := v.(error); ok && a.Key == ErrorKey {
		e.Error = err
		v = err.Error()
	}
	e.Fields[a.Key] = v
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := *h
	nh.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	nh.attrs = append(nh.attrs, h.attrs...)
	for _, a := range attrs {
		a.Key = h.prefix + a.Key
		nh.attrs = append(nh.attrs, a)
	}
	return &nh
}

// WithGroup flattens groups into dotted key prefixes.
func (h *handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	nh := *h
	nh.prefix = h.prefix + name + "."
	return &nh
}

// sampler lets the first initial entries of each level+message through,
// then every thereafter-th.
type sampler struct {
	mu         sync.Mutex
	initial    uint64
	thereafter uint64
	seen       map[string]uint64
}

func newSampler(initial, thereafter int) *sampler {
	s := &sampler{thereafter: 1, seen: make(map[string]uint64)}
	if initial > 0 {
		s.initial = uint64(initial)
	}
	if thereafter > 0 {
		s.thereafter = uint64(thereafter)
	}
	return s
}

func (s *sampler) allow(level slog.Level, msg string) bool {
	key := level.String() + "|" + msg
	s.mu.Lock()
	n := s.seen[key]
	s.seen[key] = n + 1
	s.mu.Unlock()
	return n < s.initial || (n-s.initial)%s.thereafter == 0
}

func toSlogLevel(level Level) slog.Level {
	switch level {
	case DebugLevel:
		return slog.LevelDebug
	case WarnLevel:
		return slog.LevelWarn
	case ErrorLevel:
		return slog.LevelError
	case FatalLevel:
		return slogFatal
	default:
		return slog.LevelInfo
	}
}

func fromSlogLevel(level slog.Level) Level {
	switch {
	case level >= slogFatal:
		return FatalLevel
	case level >= slog.LevelError:
		return ErrorLevel
	case level >= slog.LevelWarn:
		return WarnLevel
	case level >= slog.LevelInfo:
		return InfoLevel
	default:
		return DebugLevel
	}
}
