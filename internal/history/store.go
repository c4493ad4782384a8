package history

import (
	"math"
	"strconv"
	"sync"
)

// Store holds rolling price histories for a producer's symbols. It is owned
// and mutated only by that producer.
type Store struct {
	sampleInterval float64
	maxSamples     int

	mu   sync.RWMutex
	hist map[string][]float64
}

// NewStore creates a store sized to retain one hour of samples per symbol.
func NewStore(sampleInterval float64) *Store {
	return &Store{
		sampleInterval: sampleInterval,
		maxSamples:     int(math.Ceil(3600 / sampleInterval)),
		hist:           make(map[string][]float64),
	}
}

// SampleInterval returns the seconds between samples.
func (s *Store) SampleInterval() float64 { return s.sampleInterval }

// MaxSamples returns the per-symbol capacity.
func (s *Store) MaxSamples() int { return s.maxSamples }

// Update appends a price to the symbol's history, dropping the oldest entries
// once capacity is reached. Returns the recorded value so callers can chain
// ratio computations for synthetic cross-rate symbols.
func (s *Store) Update(symbol string, price float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := append(s.hist[symbol], price)
	if len(h) > s.maxSamples {
		h = h[len(h)-s.maxSamples:]
	}
	s.hist[symbol] = h
	return price
}

// UpdateString coerces a textual price (as delivered by spot-price APIs) and
// records it. Returns NaN without recording when the text does not parse.
func (s *Store) UpdateString(symbol, price string) float64 {
	f, err := strconv.ParseFloat(price, 64)
	if err != nil {
		return math.NaN()
	}
	return s.Update(symbol, f)
}

// Samples returns a copy of the symbol's history, oldest first.
func (s *Store) Samples(symbol string) []float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h := s.hist[symbol]
	out := make([]float64, len(h))
	copy(out, h)
	return out
}

// Symbols returns all symbols with recorded history.
func (s *Store) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.hist))
	for sym := range s.hist {
		out = append(out, sym)
	}
	return out
}

// Len returns the number of samples held for a symbol.
func (s *Store) Len(symbol string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.hist[symbol])
}
