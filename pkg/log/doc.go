// Package log is the leveled, structured logger used throughout rawdata.
//
// Callers hold a Logger and attach context with Field helpers:
//
//	l := log.NewLogger(log.WithFormatter(&log.TextFormatter{}))
//	l = l.WithComponent("producer").With(log.Str("topic", "events"))
//	l.Info("segment sealed", log.Int64("bytes", 2048))
//
// Every entry becomes a slog.Record handled by the package's slog.Handler,
// which applies redaction and sampling, renders the entry with the configured
// Formatter (text or JSON) and hands it to each Output.
//
// ApplyConfig builds a Logger from the declarative Config found in the
// rawdata configuration file. RedirectStdLog points the standard log package
// and slog's default logger at a Logger so third-party output stays uniform.
package log
