// Package source polls third-party spot-price APIs to seed feed producers.
//
// Each source backfills one hour of history into a syncing producer on
// startup (so volatility is meaningful immediately without flooding
// subscribers), then samples the live price on the producer's sample
// interval. Synthetic cross-rate symbols are derived by dividing two
// symbols' prices at matching sample indices. Poll failures are logged and
// skipped; the next sample retries naturally.
package source
