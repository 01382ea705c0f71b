// Package httpserver provides a small REST gateway over the rawdata log:
// JSON publish, last-message and cursor endpoints, topic metadata, and SSE
// tailing with optional CEL filters.
//
// Example:
//
//	rt, _ := runtime.Open(ctx, runtime.Options{Config: config.Default()})
//	s := httpserver.New(rt, logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServe(ctx, ":8080")
package httpserver
