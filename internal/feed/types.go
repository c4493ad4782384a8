package feed

import "time"

// Message cadences. Producers publish vol once a minute; consumers aggregate
// on the same cadence.
const (
	VolPublishInterval  = time.Minute
	AggregationInterval = time.Minute

	// TargetVolInterval is the interval volatility is scaled to when
	// published (15 minutes).
	TargetVolInterval = 900.0
)

// Message is the wire format on a symbol channel. Type is "tick" or "vol";
// exactly one of Tick or Vol is meaningful.
type Message struct {
	Type string  `json:"type"`
	UUID string  `json:"uuid"`
	Tick float64 `json:"tick,omitempty"`
	Vol  float64 `json:"vol,omitempty"`
}

// Message types.
const (
	TypeTick = "tick"
	TypeVol  = "vol"
)

// Stats is one symbol's cross-peer rollup for an aggregation cycle. Fields
// are nil when no peer reported the corresponding value this cycle.
type Stats struct {
	// Average is the unweighted mean of each live peer's latest tick.
	Average *float64

	// Vol is the midpoint of the highest and lowest latest vol reported.
	Vol *float64
}
