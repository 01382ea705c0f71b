// Package listing caches the segment listing of each topic.
//
// Listing a bucket is the most expensive read the log makes, so each topic
// keeps one immutable snapshot of its sorted segment keys and refreshes it
// from the backend at most once per minimum interval, however many
// consumers poll it. Producers in the same process publish their keys
// directly with Observe, which also wakes consumers waiting on Changed.
//
// Snapshots only grow: segments are never deleted, so a refresh is merged
// into the previous snapshot instead of replacing it.
package listing
