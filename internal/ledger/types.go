package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountInfo is one page of an account query.
type AccountInfo struct {
	Balance           decimal.Decimal
	ActiveQuotes      []string
	ActiveTrades      []string
	TotalActiveQuotes int
	TotalActiveTrades int
	Limit             int
}

// Quote is a transient read-only copy of a ledger quote. The ledger owns it;
// the reconciliation engine holds it for at most one pass.
type Quote struct {
	ID            string
	Market        string
	DurationLabel string
	Backing       Coin
	PremiumAsCall Coin
	PremiumAsPut  Coin
	Modified      time.Time
	CanModify     time.Time
}

// Stale reports whether the quote has gone unrefreshed for more than
// staleFraction of its duration bucket.
func (q Quote) Stale(now time.Time, bucketSeconds int64, staleFraction float64) bool {
	return now.Sub(q.Modified).Seconds() > staleFraction*float64(bucketSeconds)
}

// Frozen reports whether the quote is still inside the ledger's modification
// cooldown.
func (q Quote) Frozen(now time.Time) bool {
	return now.Before(q.CanModify)
}

// MinPremium returns the smaller of the call and put premiums.
func (q Quote) MinPremium() decimal.Decimal {
	if q.PremiumAsCall.Amount.LessThan(q.PremiumAsPut.Amount) {
		return q.PremiumAsCall.Amount
	}
	return q.PremiumAsPut.Amount
}

// Trade is a transient read-only copy of a ledger trade. Only settlement past
// expiration mutates it, and that happens on the ledger.
type Trade struct {
	ID            string
	Market        string
	DurationLabel string
	Backing       Coin
	Expiration    time.Time
}

// Block is a ledger block notification. It carries no payload guarantee
// beyond "state may have changed".
type Block struct {
	Height int64     `json:"height"`
	Time   time.Time `json:"time"`
}

// ConsensusTick is the ledger's externally sourced reference price for a
// market.
type ConsensusTick struct {
	Market    string
	Consensus decimal.Decimal
}

// Wire formats.

type accountInfoWire struct {
	Balance           string   `json:"balance"`
	ActiveQuotes      []string `json:"activeQuotes"`
	ActiveTrades      []string `json:"activeTrades"`
	TotalActiveQuotes int      `json:"totalActiveQuotes"`
	TotalActiveTrades int      `json:"totalActiveTrades"`
	Limit             int      `json:"limit"`
}

type quoteWire struct {
	ID            string `json:"id"`
	Market        string `json:"market"`
	Duration      string `json:"duration"`
	Backing       string `json:"backing"`
	PremiumAsCall string `json:"premiumAsCall"`
	PremiumAsPut  string `json:"premiumAsPut"`
	Modified      int64  `json:"modified"`  // unix seconds
	CanModify     int64  `json:"canModify"` // unix seconds
}

type tradeWire struct {
	ID         string `json:"id"`
	Market     string `json:"market"`
	Duration   string `json:"duration"`
	Backing    string `json:"backing"`
	Expiration int64  `json:"expiration"` // unix seconds
}

type createQuoteWire struct {
	Market   string `json:"market"`
	Duration string `json:"duration"`
	Backing  string `json:"backing"`
	Spot     string `json:"spot"`
	Premium  string `json:"premium"`
}

type updateQuoteWire struct {
	Spot    string `json:"spot"`
	Premium string `json:"premium"`
}

func (w quoteWire) toQuote() (Quote, error) {
	backing, err := ParseCoin(w.Backing)
	if err != nil {
		return Quote{}, err
	}
	call, err := ParseCoin(w.PremiumAsCall)
	if err != nil {
		return Quote{}, err
	}
	put, err := ParseCoin(w.PremiumAsPut)
	if err != nil {
		return Quote{}, err
	}

	return Quote{
		ID:            w.ID,
		Market:        w.Market,
		DurationLabel: w.Duration,
		Backing:       backing,
		PremiumAsCall: call,
		PremiumAsPut:  put,
		Modified:      time.Unix(w.Modified, 0),
		CanModify:     time.Unix(w.CanModify, 0),
	}, nil
}

func (w tradeWire) toTrade() (Trade, error) {
	backing, err := ParseCoin(w.Backing)
	if err != nil {
		return Trade{}, err
	}

	return Trade{
		ID:            w.ID,
		Market:        w.Market,
		DurationLabel: w.Duration,
		Backing:       backing,
		Expiration:    time.Unix(w.Expiration, 0),
	}, nil
}
