// Package storage defines the capabilities a backend provides to the log:
// listing segment keys, opening a segment for reading with a durable byte
// limit, creating a segment for append, publishing a locally staged file and
// a per-topic metadata store.
//
// Layout, for both providers:
//
//	{topic}/{first ULID}-{seq}   one object or file per segment
//	{topic}/metadata/...         metadata store
//
// Subpackages fs and blob implement the filesystem and object-store
// providers; pebble holds the key/value engine used by the filesystem
// metadata store.
package storage
