package maker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/microquote/fleet/internal/config"
	"github.com/microquote/fleet/internal/ledger"
)

// mockLedger records every mutating call and serves canned reads.
type mockLedger struct {
	mu sync.Mutex

	account ledger.AccountInfo
	quotes  map[string]*ledger.Quote
	trades  map[string]*ledger.Trade

	creates []ledger.Coin // backing of each CreateQuote
	updates []string
	cancels []string
	settles []string

	accountGate chan struct{} // when set, GetAccountInfo blocks until closed
}

func newMockLedger() *mockLedger {
	return &mockLedger{
		account: ledger.AccountInfo{Balance: decimal.NewFromInt(1000)},
		quotes:  make(map[string]*ledger.Quote),
		trades:  make(map[string]*ledger.Trade),
	}
}

func (m *mockLedger) GetAccountInfo(ctx context.Context, account string, offset, limit int) (*ledger.AccountInfo, error) {
	if m.accountGate != nil {
		<-m.accountGate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	info := m.account
	return &info, nil
}

func (m *mockLedger) GetLiveQuote(ctx context.Context, id string) (*ledger.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := *m.quotes[id]
	return &q, nil
}

func (m *mockLedger) GetLiveTrade(ctx context.Context, id string) (*ledger.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := *m.trades[id]
	return &t, nil
}

func (m *mockLedger) CreateQuote(ctx context.Context, market, durationLabel string, backing, spot, premium ledger.Coin) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates = append(m.creates, backing)
	return nil
}

func (m *mockLedger) UpdateQuote(ctx context.Context, id string, spot, premium ledger.Coin) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, id)
	return nil
}

func (m *mockLedger) CancelQuote(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancels = append(m.cancels, id)
	return nil
}

func (m *mockLedger) SettleTrade(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settles = append(m.settles, id)
	return nil
}

// stubConfig is a fixed configuration source.
type stubConfig struct {
	cfg *config.Config
}

func (s *stubConfig) Current() *config.Config { return s.cfg }

func testConfig() *config.Config {
	return &config.Config{
		Ledger: config.LedgerConfig{
			Account:   "maker1",
			Denom:     "dai",
			BlockTime: 5 * time.Second,
		},
		Maker: config.MakerConfig{
			MinBalance:       config.DecInt(100),
			MinBacking:       config.DecInt(50),
			MaxBacking:       config.DecInt(300),
			StaticMarkup:     1.0,
			DynamicMarkup:    0.5,
			PremiumThreshold: 0.5,
			StaleFraction:    0.25,
			TargetBacking: map[int64]config.Decimal{
				900: config.DecInt(500),
			},
			Durations: []config.Duration{
				{Seconds: 300, Label: "5minute"},
				{Seconds: 900, Label: "15minute"},
			},
		},
	}
}

func premiums900(p float64) map[int64]float64 {
	return map[int64]float64{900: p}
}

func TestTargetPassCapsCreatesAtMaxBacking(t *testing.T) {
	api := newMockLedger()
	engine := NewEngine(&stubConfig{testConfig()}, api, nil)
	ctx := context.Background()

	// Block pass establishes funding and empty backing tallies.
	if !engine.OnBlock(ctx) {
		t.Fatal("OnBlock dropped unexpectedly")
	}

	// Target 500 with max_backing 300: first pass creates 300, the next
	// tops up the remaining 200.
	engine.OnTarget(ctx, "XBTUSD", 42000, premiums900(2.0))
	engine.OnTarget(ctx, "XBTUSD", 42000, premiums900(2.0))

	if len(api.creates) != 2 {
		t.Fatalf("creates = %d, want 2", len(api.creates))
	}
	if api.creates[0].Amount.String() != "300" {
		t.Errorf("first create backing = %s, want 300", api.creates[0].Amount)
	}
	if api.creates[1].Amount.String() != "200" {
		t.Errorf("second create backing = %s, want 200", api.creates[1].Amount)
	}
	if api.creates[0].Denom != "dai" {
		t.Errorf("create denom = %q, want dai", api.creates[0].Denom)
	}

	// Bucket is at target now; a third pass must not create.
	engine.OnTarget(ctx, "XBTUSD", 42000, premiums900(2.0))
	if len(api.creates) != 2 {
		t.Errorf("creates after converged pass = %d, want 2", len(api.creates))
	}
}

func TestTargetPassSkipsDust(t *testing.T) {
	cfg := testConfig()
	cfg.Maker.TargetBacking[900] = config.DecInt(280)
	api := newMockLedger()
	engine := NewEngine(&stubConfig{cfg}, api, nil)
	ctx := context.Background()

	engine.OnBlock(ctx)
	engine.OnTarget(ctx, "XBTUSD", 42000, premiums900(2.0)) // creates 280

	// Raise the target by less than min_backing: the 20 shortfall is dust.
	cfg.Maker.TargetBacking[900] = config.DecInt(300)
	engine.OnTarget(ctx, "XBTUSD", 42000, premiums900(2.0))

	if len(api.creates) != 1 {
		t.Fatalf("creates = %d, want 1 (dust shortfall skipped)", len(api.creates))
	}
}

func TestTargetPassRequiresFunds(t *testing.T) {
	api := newMockLedger()
	api.account.Balance = decimal.NewFromInt(10) // below min_balance
	engine := NewEngine(&stubConfig{testConfig()}, api, nil)
	ctx := context.Background()

	engine.OnBlock(ctx)
	engine.OnTarget(ctx, "XBTUSD", 42000, premiums900(2.0))

	if len(api.creates) != 0 {
		t.Errorf("creates = %d, want 0 when out of funds", len(api.creates))
	}
}

func TestTargetPassRequiresSpotTarget(t *testing.T) {
	api := newMockLedger()
	engine := NewEngine(&stubConfig{testConfig()}, api, nil)
	ctx := context.Background()

	engine.OnBlock(ctx)
	engine.OnTarget(ctx, "XBTUSD", 0, premiums900(2.0))

	if len(api.creates) != 0 {
		t.Errorf("creates = %d, want 0 without a spot target", len(api.creates))
	}
}

func TestReentrancyDropsTriggers(t *testing.T) {
	api := newMockLedger()
	api.accountGate = make(chan struct{})
	engine := NewEngine(&stubConfig{testConfig()}, api, nil)
	ctx := context.Background()

	started := make(chan bool)
	go func() {
		started <- true
		engine.OnBlock(ctx)
	}()
	<-started
	// Give the pass time to reach the gated account fetch.
	time.Sleep(20 * time.Millisecond)

	if engine.OnBlock(ctx) {
		t.Error("second OnBlock ran, want dropped while pass in flight")
	}
	if engine.OnTarget(ctx, "XBTUSD", 42000, premiums900(2.0)) {
		t.Error("OnTarget ran, want dropped while pass in flight")
	}

	close(api.accountGate)
	time.Sleep(20 * time.Millisecond)

	// Guard released: triggers run again.
	if !engine.OnBlock(ctx) {
		t.Error("OnBlock dropped after pass completed")
	}
}

func TestOnTargetStateLandsEvenWhenDropped(t *testing.T) {
	api := newMockLedger()
	api.accountGate = make(chan struct{})
	engine := NewEngine(&stubConfig{testConfig()}, api, nil)
	ctx := context.Background()

	go engine.OnBlock(ctx)
	time.Sleep(20 * time.Millisecond)

	// Dropped pass, but the target update must land.
	engine.OnTarget(ctx, "XBTUSD", 42000, premiums900(2.0))
	close(api.accountGate)
	time.Sleep(20 * time.Millisecond)

	ms, ok := engine.snapshotState("XBTUSD")
	if !ok {
		t.Fatal("market state missing")
	}
	if ms.TargetSpot != 42000 {
		t.Errorf("TargetSpot = %v, want 42000", ms.TargetSpot)
	}
	if ms.TargetPremiums[900] != 2.0 {
		t.Errorf("TargetPremiums[900] = %v, want 2.0", ms.TargetPremiums[900])
	}
}

func quoteFixture(id string, backing int64, modified, canModify time.Time) *ledger.Quote {
	return &ledger.Quote{
		ID:            id,
		Market:        "XBTUSD",
		DurationLabel: "15minute",
		Backing:       ledger.NewCoin(decimal.NewFromInt(backing), "dai"),
		PremiumAsCall: ledger.NewCoinFromFloat(2.5, ledger.DenomPremium),
		PremiumAsPut:  ledger.NewCoinFromFloat(2.5, ledger.DenomPremium),
		Modified:      modified,
		CanModify:     canModify,
	}
}

func TestBlockPassSkipsFrozenQuotes(t *testing.T) {
	now := time.Now()
	api := newMockLedger()
	api.account.ActiveQuotes = []string{"q1"}
	// Stale by age, but still inside the modification cooldown.
	api.quotes["q1"] = quoteFixture("q1", 100, now.Add(-time.Hour), now.Add(time.Minute))

	engine := NewEngine(&stubConfig{testConfig()}, api, nil)
	engine.now = func() time.Time { return now }
	engine.SetConsensus("XBTUSD", decimal.NewFromInt(42000))
	seedTargets(engine, "XBTUSD", 42000, premiums900(2.0))

	engine.OnBlock(context.Background())

	if len(api.updates) != 0 || len(api.cancels) != 0 {
		t.Errorf("frozen quote mutated: updates=%v cancels=%v", api.updates, api.cancels)
	}
}

func TestBlockPassUpdatesStaleQuote(t *testing.T) {
	now := time.Now()
	api := newMockLedger()
	api.account.ActiveQuotes = []string{"q1"}
	// 15minute bucket, stale_fraction 0.25: anything older than 225s is stale.
	api.quotes["q1"] = quoteFixture("q1", 100, now.Add(-300*time.Second), now.Add(-time.Minute))

	engine := NewEngine(&stubConfig{testConfig()}, api, nil)
	engine.now = func() time.Time { return now }
	seedTargets(engine, "XBTUSD", 42000, premiums900(2.0))

	engine.OnBlock(context.Background())

	if len(api.updates) != 1 || api.updates[0] != "q1" {
		t.Errorf("updates = %v, want [q1]", api.updates)
	}
	if len(api.cancels) != 0 {
		t.Errorf("cancels = %v, want none", api.cancels)
	}
}

func TestBlockPassLeavesFreshQuote(t *testing.T) {
	now := time.Now()
	api := newMockLedger()
	api.account.ActiveQuotes = []string{"q1"}
	api.quotes["q1"] = quoteFixture("q1", 100, now.Add(-10*time.Second), now.Add(-time.Minute))

	engine := NewEngine(&stubConfig{testConfig()}, api, nil)
	engine.now = func() time.Time { return now }
	// Target premium 2.0: quote premium 2.5 is comfortably above the 0.5
	// threshold, so the quote is not underpriced.
	seedTargets(engine, "XBTUSD", 42000, premiums900(2.0))

	engine.OnBlock(context.Background())

	if len(api.updates) != 0 {
		t.Errorf("updates = %v, want none for a fresh, well-priced quote", api.updates)
	}
}

func TestBlockPassUpdatesUnderpricedQuote(t *testing.T) {
	now := time.Now()
	api := newMockLedger()
	api.account.ActiveQuotes = []string{"q1"}
	// Fresh, but priced far below the target premium.
	q := quoteFixture("q1", 100, now.Add(-10*time.Second), now.Add(-time.Minute))
	q.PremiumAsCall = ledger.NewCoinFromFloat(0.5, ledger.DenomPremium)
	q.PremiumAsPut = ledger.NewCoinFromFloat(0.5, ledger.DenomPremium)
	api.quotes["q1"] = q

	engine := NewEngine(&stubConfig{testConfig()}, api, nil)
	engine.now = func() time.Time { return now }
	seedTargets(engine, "XBTUSD", 42000, premiums900(2.0))

	engine.OnBlock(context.Background())

	if len(api.updates) != 1 {
		t.Errorf("updates = %v, want [q1] for underpriced quote", api.updates)
	}
}

func TestBlockPassCancelPolicy(t *testing.T) {
	now := time.Now()
	cfg := testConfig()
	cfg.Maker.CancelOutOfBounds = true

	api := newMockLedger()
	api.account.ActiveQuotes = []string{"q1"}
	// Backing above max_backing: out of bounds.
	api.quotes["q1"] = quoteFixture("q1", 400, now.Add(-time.Hour), now.Add(-time.Minute))

	engine := NewEngine(&stubConfig{cfg}, api, nil)
	engine.now = func() time.Time { return now }
	seedTargets(engine, "XBTUSD", 42000, premiums900(2.0))

	engine.OnBlock(context.Background())

	if len(api.cancels) != 1 || api.cancels[0] != "q1" {
		t.Fatalf("cancels = %v, want [q1]", api.cancels)
	}
	// One mutation per quote per pass: stale as it was, it must not also be
	// updated after the cancel.
	if len(api.updates) != 0 {
		t.Errorf("updates = %v, want none after cancel", api.updates)
	}

	// The cancelled backing was backed out of the tally, so the next target
	// pass sees an empty bucket and recreates up to max_backing.
	engine.OnTarget(context.Background(), "XBTUSD", 42000, premiums900(2.0))
	if len(api.creates) != 1 {
		t.Fatalf("creates = %d, want 1", len(api.creates))
	}
	if api.creates[0].Amount.String() != "300" {
		t.Errorf("create backing = %s, want 300", api.creates[0].Amount)
	}
}

func TestBlockPassSettlesExpiredTrades(t *testing.T) {
	now := time.Now()
	api := newMockLedger()
	api.account.ActiveTrades = []string{"t1", "t2"}
	api.trades["t1"] = &ledger.Trade{
		ID: "t1", Market: "XBTUSD", DurationLabel: "15minute",
		Backing:    ledger.NewCoin(decimal.NewFromInt(100), "dai"),
		Expiration: now.Add(-time.Minute), // expired well past blocktime
	}
	api.trades["t2"] = &ledger.Trade{
		ID: "t2", Market: "XBTUSD", DurationLabel: "15minute",
		Backing:    ledger.NewCoin(decimal.NewFromInt(100), "dai"),
		Expiration: now.Add(-time.Second), // expired, but not finalized yet
	}

	engine := NewEngine(&stubConfig{testConfig()}, api, nil)
	engine.now = func() time.Time { return now }

	engine.OnBlock(context.Background())

	if len(api.settles) != 1 || api.settles[0] != "t1" {
		t.Errorf("settles = %v, want [t1]", api.settles)
	}
}

func TestQuotePremiumFormulas(t *testing.T) {
	cfg := testConfig()
	cfg.Maker.StaticMarkup = 1.1
	cfg.Maker.DynamicMarkup = 0.5

	engine := NewEngine(&stubConfig{cfg}, nil, nil)

	quoteBacking := newBackingLedger()
	tradeBacking := newBackingLedger()
	quoteBacking.add("XBTUSD", 900, decimal.NewFromInt(100))
	tradeBacking.add("XBTUSD", 900, decimal.NewFromInt(150))

	ms := MarketState{
		Consensus:  decimal.NewFromInt(42010),
		TargetSpot: 42000,
	}

	got := engine.quotePremium(cfg, ms, 2.0, "XBTUSD", 900, quoteBacking, tradeBacking)

	// delta = |42000 - 42010| / 2 = 5
	// dynamic = 1 + 0.5 * (150+100)/500 = 1.25
	// premium = 2.0 * 1.1 * 1.25 + 5 = 7.75
	want := 7.75
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("quotePremium = %v, want %v", got, want)
	}
}

func TestQuotePremiumWithoutConsensus(t *testing.T) {
	cfg := testConfig()
	engine := NewEngine(&stubConfig{cfg}, nil, nil)

	ms := MarketState{TargetSpot: 42000} // consensus zero

	got := engine.quotePremium(cfg, ms, 2.0, "XBTUSD", 900, newBackingLedger(), newBackingLedger())

	// No consensus: no delta adjustment. Empty tallies: dynamic markup 1.
	if got != 2.0 {
		t.Errorf("quotePremium = %v, want 2.0", got)
	}
}

// seedTargets records spot/premium targets without running a pass.
func seedTargets(e *Engine, market string, spot float64, premiums map[int64]float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ms := e.state(market)
	ms.TargetSpot = spot
	for bucket, p := range premiums {
		ms.TargetPremiums[bucket] = p
	}
}
