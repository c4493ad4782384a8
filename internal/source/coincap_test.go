package source

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubProducer records updates and syncing transitions.
type stubProducer struct {
	mu        sync.Mutex
	updates   map[string][]float64
	syncFlags []bool
}

func newStubProducer() *stubProducer {
	return &stubProducer{updates: make(map[string][]float64)}
}

func (s *stubProducer) Update(symbol string, price float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates[symbol] = append(s.updates[symbol], price)
	return price
}

func (s *stubProducer) UpdateString(symbol, price string) float64 {
	f, err := strconv.ParseFloat(price, 64)
	if err != nil {
		return math.NaN()
	}
	return s.Update(symbol, f)
}

func (s *stubProducer) SetSyncing(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncFlags = append(s.syncFlags, v)
}

func (s *stubProducer) samples(symbol string) []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float64(nil), s.updates[symbol]...)
}

func (s *stubProducer) transitions() []bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]bool(nil), s.syncFlags...)
}

func coincapServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/assets/bitcoin/history", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[
			{"priceUsd":"42000","time":1},
			{"priceUsd":"42100","time":2},
			{"priceUsd":"42050","time":3}
		]}`)
	})
	mux.HandleFunc("/assets/ethereum/history", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[
			{"priceUsd":"2100","time":1},
			{"priceUsd":"2105","time":2},
			{"priceUsd":"2102.5","time":3}
		]}`)
	})
	mux.HandleFunc("/assets", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[
			{"id":"bitcoin","priceUsd":"42075"},
			{"id":"ethereum","priceUsd":"2103"}
		]}`)
	})
	return httptest.NewServer(mux)
}

func TestCoinCapBackfillAndSample(t *testing.T) {
	server := coincapServer(t)
	defer server.Close()

	producer := newStubProducer()
	src := NewCoinCap(CoinCapConfig{
		BaseURL:        server.URL,
		SampleInterval: 30, // two samples per minute candle
		Symbols: map[string]string{
			"XBTUSD": "bitcoin",
			"ETHUSD": "ethereum",
		},
		Ratios: []Ratio{{Symbol: "XBTETH", Numerator: "XBTUSD", Denominator: "ETHUSD"}},
	}, producer, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, src.Start(ctx))
	defer src.Stop()

	// Backfill fans each of the 3 minute candles out twice, and the live
	// sampler fires immediately on start: at least 7 samples per symbol.
	require.Eventually(t, func() bool {
		return len(producer.samples("XBTETH")) >= 7
	}, 2*time.Second, 10*time.Millisecond)

	xbt := producer.samples("XBTUSD")
	assert.Equal(t, []float64{42000, 42000, 42100, 42100, 42050, 42050}, xbt[:6])
	assert.Equal(t, 42075.0, xbt[6], "live sample follows backfill")

	// Ratio series replayed across the matching backfill samples.
	ratio := producer.samples("XBTETH")
	require.GreaterOrEqual(t, len(ratio), 6)
	assert.InDelta(t, 42000.0/2100.0, ratio[0], 1e-12)
	assert.InDelta(t, 42075.0/2103.0, ratio[6], 1e-12)

	// Syncing cleared exactly once, after the backfill.
	assert.Equal(t, []bool{false}, producer.transitions())
}

func TestCoinCapBackfillFailureIsFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	producer := newStubProducer()
	src := NewCoinCap(CoinCapConfig{
		BaseURL:        server.URL,
		SampleInterval: 30,
		Symbols:        map[string]string{"XBTUSD": "bitcoin"},
	}, producer, nil)

	err := src.Start(context.Background())
	require.Error(t, err)
	assert.Empty(t, producer.transitions(), "must not clear syncing on failed backfill")
	src.Stop()
}
