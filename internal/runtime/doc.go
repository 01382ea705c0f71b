// Package runtime wires configuration, a storage provider and the log
// engine into one rawdata client. The provider is picked from the provider
// key: "filesystem", "gcs" or "blob" (any gocloud bucket URL).
//
// Example:
//
//	cfg := config.Default()
//	rt, _ := runtime.Open(ctx, runtime.Options{Config: cfg})
//	defer rt.Close(ctx)
//	_ = rt.CheckHealth(ctx)
//	p, _ := rt.Producer(ctx, "orders")
//	_ = p.PublishMessages(ctx, eventlog.Message{Position: "o-1"})
//	_ = p.Close(ctx)
package runtime
