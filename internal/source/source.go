package source

import (
	"context"
	"net/http"
	"time"
)

// Producer is the feed surface a source drives.
type Producer interface {
	// Update records a price sample and returns the recorded value.
	Update(symbol string, price float64) float64

	// UpdateString records a textual price sample.
	UpdateString(symbol, price string) float64

	// SetSyncing toggles backfill mode; while syncing, samples are
	// recorded but not published.
	SetSyncing(v bool)
}

// Ratio defines a synthetic cross-rate symbol computed as Numerator's price
// divided by Denominator's at matching sample indices.
type Ratio struct {
	Symbol      string
	Numerator   string
	Denominator string
}

// BackfillWindow is how much history a source seeds on startup.
const BackfillWindow = time.Hour

// newHTTPClient builds the client shared by the pollers.
func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// runSampler invokes sample on the producer's cadence until ctx ends.
func runSampler(ctx context.Context, interval time.Duration, sample func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Sample immediately on start.
	sample(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sample(ctx)
		}
	}
}

// applyRatios records each ratio symbol from the just-sampled values.
func applyRatios(p Producer, ratios []Ratio, cache map[string]float64) {
	for _, r := range ratios {
		num, okn := cache[r.Numerator]
		den, okd := cache[r.Denominator]
		if okn && okd && den != 0 {
			p.Update(r.Symbol, num/den)
		}
	}
}

// backfillRatios replays full ratio series from matching backfill samples.
func backfillRatios(p Producer, ratios []Ratio, cache map[string][]float64) {
	for _, r := range ratios {
		num := cache[r.Numerator]
		den := cache[r.Denominator]
		if len(num) != len(den) {
			continue
		}
		for i := range num {
			if den[i] != 0 {
				p.Update(r.Symbol, num[i]/den[i])
			}
		}
	}
}
