// Package client provides the `rawdata` command-line client.
//
// The CLI publishes, tails and inspects topics either through a running
// rawdata server (HTTP) or, with --local, by opening the configured storage
// in-process. It is primarily intended for developers and operators.
//
// # Address configuration
//
// The HTTP base URL comes from --server, then from the embedding
// application's BaseURLFunc, which for the standalone binary reads
// RAWDATA_HTTP and defaults to http://127.0.0.1:8080. With --local the
// storage is configured by --config (or RAWDATA_CONFIG) plus RAWDATA_*
// environment overrides.
//
// Usage
//
//	rawdata publish --topic orders --position order-1 \
//	    --data '{"amount":10}' --attr source=web
//
//	rawdata tail --topic orders --limit 10
//	rawdata tail --topic orders --position order-1 --inclusive
//	rawdata tail --topic orders --at 2025-09-20T12:00:00Z \
//	    --filter 'json.amount > 5'
//
//	rawdata last --topic orders
//	rawdata cursor --topic orders --position order-1 --timeout 10s
//
//	rawdata meta put --topic orders checkpoint --value 42
//	rawdata meta get --topic orders checkpoint
//	rawdata meta ls --topic orders
//	rawdata meta rm --topic orders checkpoint
//
//	# Inspect a bucket directly
//	RAWDATA_PROVIDER=blob RAWDATA_BLOB_BUCKET_URL=gs://my-bucket \
//	    rawdata --local last --topic orders
//
// Notes
//
//   - tail prints one JSON object per line. Attributes are rendered as
//     {"json":...}, {"text":...} or {"b64":...} depending on content.
//   - filter is a CEL expression evaluated per message, server-side over
//     HTTP and in-process with --local.
package client
