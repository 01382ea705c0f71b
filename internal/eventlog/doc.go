// Package eventlog implements the rawdata topic log on top of a
// storage.Backend.
//
// # Overview
//
// A topic is an append-only sequence of segments ordered by key
// ({first ULID}-{sequence}). Each segment has exactly one writer, a
// Producer, which appends blocks of messages to it until the window policy
// (maximum age or size) seals it. Consumers tail the ordered segment
// sequence from a Cursor and never observe a message from a block that is
// not fully durable.
//
// API surface
//
//	l, _ := eventlog.Open(eventlog.Options{Backend: backend})
//
//	p, _ := l.Producer(ctx, "orders")
//	_ = p.Buffer(eventlog.Message{Position: "a"}, eventlog.Message{Position: "b"})
//	_ = p.Publish(ctx, "a", "b")
//	_ = p.PublishMessages(ctx, eventlog.Message{Position: "c"})
//	_ = p.Close(ctx)
//
//	c, _ := l.Consumer(ctx, "orders")
//	msg, _ := c.Receive(ctx, time.Second) // nil on timeout
//	fut := c.ReceiveAsync()               // fulfilled in request order
//	_ = c.Seek(ctx, time.Now().Add(-time.Hour).UnixMilli())
//	_ = c.Close()
//
//	cur, _ := l.CursorOf(ctx, "orders", "b", true, time.Now(), time.Minute)
//	last, _ := l.LastMessage(ctx, "orders")
//
// # Ordering
//
// Messages are delivered in segment, block, in-block order. Message IDs come
// from one monotonic ULID generator per Log, so within a process this is
// also ID order. Segments written concurrently by different producers are
// ordered by key only.
//
// # Visibility
//
// On backends that tail open segments (the filesystem) a segment is listed
// at its first sync and every later block becomes readable as soon as it is
// written. On object stores a segment becomes visible when it is sealed.
package eventlog
