// Package feed distributes streaming price and volatility data between fleet
// nodes over the shared bus.
//
// Producers publish a tick message on a symbol's channel for every sample and
// a volatility message per symbol once a minute. Consumers subscribe to the
// symbols they care about, remember the latest value per (peer, symbol), and
// once a minute roll the per-peer snapshot up into a cross-peer average price
// and volatility band, discarding the snapshot afterwards so peers that have
// gone quiet fall out naturally.
package feed
