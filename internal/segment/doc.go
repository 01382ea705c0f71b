// Package segment implements the on-storage unit of a topic: the block
// container codec, segment keys and the windowing policy that decides when a
// producer seals its open segment.
//
// # Overview
//
// A segment is written by exactly one producer. Each Flush appends one block
// (count, size, payload, crc32c, sync marker); Seal appends an empty trailer
// block after which the segment is immutable. Readers are given the current
// durable byte limit on every call and never return a block that ends past
// it, so an open segment can be tailed while it grows.
//
//	w, _ := segment.NewWriter(f, segment.WriterOptions{Compression: segment.CompressionZstd})
//	_, _ = w.Append(msg)
//	_, _ = w.Flush()     // one block
//	_ = w.Seal()         // trailer
//
//	r, _ := segment.NewReader(f, size)
//	for {
//	    blk, err := r.Next(size)
//	    if errors.Is(err, io.EOF) { break }           // sealed
//	    if errors.Is(err, segment.ErrIncomplete) { } // wait for more bytes
//	    _ = blk.Messages
//	}
//
// Keys are "{first ULID}-{seq}" and order by (ULID, seq).
package segment
