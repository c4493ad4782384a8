package maker

import "github.com/shopspring/decimal"

// MarketState is the node's view of one market: the ledger's consensus price
// and the spot/premium targets derived from this node's own pricing inputs.
type MarketState struct {
	Consensus      decimal.Decimal
	TargetSpot     float64
	TargetPremiums map[int64]float64 // bucket seconds -> premium
}

// backingLedger tallies committed collateral per (market, duration bucket).
// It is recomputed every block pass and only touched under the engine's
// reentrancy guard. Lookups of unknown keys return zero, never an error.
type backingLedger map[string]map[int64]decimal.Decimal

func newBackingLedger() backingLedger {
	return make(backingLedger)
}

// get returns the tally for (market, bucket), defaulting to zero.
func (b backingLedger) get(market string, bucket int64) decimal.Decimal {
	return b[market][bucket]
}

// add accumulates an amount into (market, bucket).
func (b backingLedger) add(market string, bucket int64, amount decimal.Decimal) {
	byBucket, ok := b[market]
	if !ok {
		byBucket = make(map[int64]decimal.Decimal)
		b[market] = byBucket
	}
	byBucket[bucket] = byBucket[bucket].Add(amount)
}

// sub backs an amount out of (market, bucket), used when a quote is cancelled
// mid-pass so later quotes see the corrected figure.
func (b backingLedger) sub(market string, bucket int64, amount decimal.Decimal) {
	byBucket, ok := b[market]
	if !ok {
		return
	}
	byBucket[bucket] = byBucket[bucket].Sub(amount)
}
