// Package archive batch-writes observed feed traffic to Postgres.
//
// The monitor node records every tick and vol message it receives, keyed by
// publishing peer and symbol, for offline analysis of feed quality. Writes
// are batched and flushed on size or interval.
package archive
