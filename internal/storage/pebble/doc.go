// Package pebblestore is the key/value store behind the filesystem backend's
// per-topic metadata. It wraps a Pebble database with a durability mode
// (FsyncModeAlways, FsyncModeInterval, FsyncModeNever), snapshot-consistent
// key listing and an optional MetricsHook.
package pebblestore
