// Package blobstore implements storage.Backend on an object store through
// gocloud.dev/blob. Google Cloud Storage is the production provider; memblob
// and fileblob serve tests and local runs.
//
// Objects are immutable, so a segment is staged in a local file while it is
// open and uploaded once when sealed. Consumers therefore only see sealed
// segments on this backend.
package blobstore
