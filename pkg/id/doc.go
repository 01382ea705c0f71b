// Package id provides ULID message identifiers and a monotonic generator.
//
// # Format
//
// An ID is a 128-bit ULID: 48 bits of Unix milliseconds followed by 80 bits
// of entropy, big-endian. Byte-wise comparison preserves chronological order
// and the canonical 26-character Crockford base32 string sorts the same way.
//
// # Monotonicity
//
// The Generator ensures per-process monotonicity:
//   - If the system clock regresses, it pins to the last seen millisecond and
//     keeps incrementing the entropy of that millisecond.
//   - If the entropy would overflow within a millisecond, it waits for the
//     next millisecond before emitting the next ID.
//
// Usage
//
//	g := id.NewGenerator()
//	newID := g.Next()
//	ms := newID.Time()          // embedded Unix milliseconds
//	s := newID.String()         // 01J9Z6...
//	floor := id.MinAt(ms)       // smallest ID of that millisecond
package id
