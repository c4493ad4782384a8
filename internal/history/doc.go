// Package history maintains bounded per-symbol price histories and derives
// annualized-style volatility from them.
//
// Conventions:
//   - Histories are ordered oldest first and hold at most one hour of samples
//     (ceil(3600 / sampleInterval) entries); inserts drop from the front.
//   - Volatility is the population standard deviation of log returns, scaled
//     by sqrt(targetInterval / sampleInterval). Fewer than two samples yields
//     NaN; callers tolerate that during warm-up.
package history
