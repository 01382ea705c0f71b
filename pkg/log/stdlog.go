package log

import (
	"bytes"
	stdlog "log"
	"log/slog"
)

// RedirectStdLog makes l, tagged component=stdlog, the target of both the
// standard log package and slog's default logger.
func RedirectStdLog(l Logger) {
	tagged := l.WithComponent("stdlog")
	if bl, ok := tagged.(*BaseLogger); ok {
		slog.SetDefault(slog.New(bl.handler))
		return
	}
	stdlog.SetFlags(0)
	stdlog.SetPrefix("")
	stdlog.SetOutput(lineWriter{tagged})
}

type lineWriter struct{ l Logger }

func (w lineWriter) Write(p []byte) (int, error) {
	w.l.Info(string(bytes.TrimRight(p, "\r\n")))
	return len(p), nil
}
