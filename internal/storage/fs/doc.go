// Package fsstore is the filesystem storage provider.
//
// A segment is staged in the local temp folder and moved to
// {root}/{topic}/{key} on its first durable flush; later blocks are appended
// to that file in place, so consumers can tail a segment while the producer
// still owns it. The durable limit reported to readers is the file size and
// the codec ignores a torn trailing block.
//
// Metadata lives in a Pebble database per topic at {root}/{topic}/metadata.
package fsstore
