package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestCoinString(t *testing.T) {
	tests := []struct {
		name   string
		amount string
		denom  string
		want   string
	}{
		{"whole number", "10", "dai", "10.000000dai"},
		{"fractional", "10.5", "dai", "10.500000dai"},
		{"truncates past precision", "1.23456789", "dai", "1.234568dai"},
		{"spot denom", "42000.25", DenomSpot, "42000.250000spot"},
		{"zero", "0", DenomPremium, "0.000000premium"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amount, err := decimal.NewFromString(tt.amount)
			if err != nil {
				t.Fatalf("bad test amount: %v", err)
			}
			got := NewCoin(amount, tt.denom).String()
			if got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseCoin(t *testing.T) {
	tests := []struct {
		name       string
		in         string
		wantAmount string
		wantDenom  string
		wantErr    bool
	}{
		{"simple", "10.500000dai", "10.5", "dai", false},
		{"spot", "42000.250000spot", "42000.25", "spot", false},
		{"negative", "-1.000000dai", "-1", "dai", false},
		{"whitespace trimmed", "  3.000000dai ", "3", "dai", false},
		{"missing denom", "10.5", "", "", true},
		{"missing amount", "dai", "", "", true},
		{"empty", "", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := ParseCoin(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseCoin(%q) = %v, want error", tt.in, c)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCoin(%q) error: %v", tt.in, err)
			}
			if c.Amount.String() != tt.wantAmount {
				t.Errorf("Amount = %s, want %s", c.Amount, tt.wantAmount)
			}
			if c.Denom != tt.wantDenom {
				t.Errorf("Denom = %q, want %q", c.Denom, tt.wantDenom)
			}
		})
	}
}

func TestParseCoinRoundTrip(t *testing.T) {
	c := NewCoinFromFloat(12.345678, "dai")
	parsed, err := ParseCoin(c.String())
	if err != nil {
		t.Fatalf("ParseCoin round trip: %v", err)
	}
	if !parsed.Amount.Equal(c.Amount) || parsed.Denom != c.Denom {
		t.Errorf("round trip %v != %v", parsed, c)
	}
}
