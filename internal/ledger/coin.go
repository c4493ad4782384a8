package ledger

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// CoinPrecision is the fixed number of fractional digits on the wire.
const CoinPrecision = 6

// Well-known unit suffixes. Backing uses the ledger's base asset denom;
// spot and premium are dimensioned quantities of their own.
const (
	DenomSpot    = "spot"
	DenomPremium = "premium"
)

// Coin is a decimal quantity with a unit, used for every amount that crosses
// the ledger boundary.
type Coin struct {
	Amount decimal.Decimal
	Denom  string
}

// NewCoin creates a Coin from a decimal amount.
func NewCoin(amount decimal.Decimal, denom string) Coin {
	return Coin{Amount: amount, Denom: denom}
}

// NewCoinFromFloat creates a Coin from a float64 input (feed-side values are
// floats; they become decimal here, at the boundary, before any formatting).
func NewCoinFromFloat(amount float64, denom string) Coin {
	return Coin{Amount: decimal.NewFromFloat(amount), Denom: denom}
}

// String formats the coin as a fixed six-fractional-digit quantity with its
// unit suffix, e.g. "10.500000dai".
func (c Coin) String() string {
	return c.Amount.StringFixed(CoinPrecision) + c.Denom
}

// IsZero reports whether the amount is zero.
func (c Coin) IsZero() bool {
	return c.Amount.IsZero()
}

// ParseCoin parses a wire quantity of the form "<decimal><denom>".
func ParseCoin(s string) (Coin, error) {
	s = strings.TrimSpace(s)

	split := len(s)
	for i, r := range s {
		if (r < '0' || r > '9') && r != '.' && r != '-' {
			split = i
			break
		}
	}
	if split == 0 || split == len(s) {
		return Coin{}, fmt.Errorf("malformed coin %q", s)
	}

	amount, err := decimal.NewFromString(s[:split])
	if err != nil {
		return Coin{}, fmt.Errorf("malformed coin amount %q: %w", s, err)
	}

	return Coin{Amount: amount, Denom: s[split:]}, nil
}
