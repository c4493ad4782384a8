package maker

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/microquote/fleet/internal/config"
	"github.com/microquote/fleet/internal/ledger"
)

// ConfigSource yields the active configuration snapshot. Each pass takes one
// snapshot up front and works off it for the whole pass.
type ConfigSource interface {
	Current() *config.Config
}

// Engine is the quote reconciliation control loop.
type Engine struct {
	cfgSource ConfigSource
	api       ledger.API
	logger    *slog.Logger

	// busy is the reentrancy guard: at most one pass at a time, triggers
	// arriving mid-pass are dropped.
	busy atomic.Bool

	// markets is written by feed/consensus callbacks and read by passes.
	mu      sync.Mutex
	markets map[string]*MarketState

	// Rebuilt by each block pass, read by target passes until the next one.
	funded       bool
	quoteBacking backingLedger
	tradeBacking backingLedger

	now func() time.Time // test hook
}

// NewEngine creates a reconciliation engine bound to a ledger client.
func NewEngine(cfgSource ConfigSource, api ledger.API, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfgSource:    cfgSource,
		api:          api,
		logger:       logger,
		markets:      make(map[string]*MarketState),
		quoteBacking: newBackingLedger(),
		tradeBacking: newBackingLedger(),
		now:          time.Now,
	}
}

// SetConsensus records the ledger's reference price for a market.
func (e *Engine) SetConsensus(market string, consensus decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state(market).Consensus = consensus
}

// state returns the MarketState for a market, creating it. Callers hold e.mu.
func (e *Engine) state(market string) *MarketState {
	ms, ok := e.markets[market]
	if !ok {
		ms = &MarketState{TargetPremiums: make(map[int64]float64)}
		e.markets[market] = ms
	}
	return ms
}

// snapshotState returns a copy of a market's state for use within a pass.
func (e *Engine) snapshotState(market string) (MarketState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ms, ok := e.markets[market]
	if !ok {
		return MarketState{}, false
	}
	premiums := make(map[int64]float64, len(ms.TargetPremiums))
	for k, v := range ms.TargetPremiums {
		premiums[k] = v
	}
	return MarketState{
		Consensus:      ms.Consensus,
		TargetSpot:     ms.TargetSpot,
		TargetPremiums: premiums,
	}, true
}

// OnBlock runs a block-triggered reconciliation pass. Returns false when the
// trigger was dropped because a pass was already in flight.
func (e *Engine) OnBlock(ctx context.Context) bool {
	if !e.busy.CompareAndSwap(false, true) {
		e.logger.Debug("block trigger dropped, pass in flight")
		return false
	}
	defer e.busy.Store(false)

	if err := e.blockPass(ctx); err != nil {
		// Pass aborts here; the next periodic trigger retries fresh.
		e.logger.Error("block pass aborted", "err", err)
	}
	return true
}

// OnTarget records a new spot/premium target for a market and runs a
// target-triggered pass. The state update always lands; the pass itself is
// dropped when one is already in flight.
func (e *Engine) OnTarget(ctx context.Context, market string, spot float64, premiums map[int64]float64) bool {
	e.mu.Lock()
	ms := e.state(market)
	ms.TargetSpot = spot
	for bucket, p := range premiums {
		ms.TargetPremiums[bucket] = p
	}
	e.mu.Unlock()

	if !e.busy.CompareAndSwap(false, true) {
		e.logger.Debug("target trigger dropped, pass in flight", "market", market)
		return false
	}
	defer e.busy.Store(false)

	if err := e.targetPass(ctx, market); err != nil {
		e.logger.Error("target pass aborted", "market", market, "err", err)
	}
	return true
}

// blockPass reconciles against a fresh ledger snapshot.
func (e *Engine) blockPass(ctx context.Context) error {
	cfg := e.cfgSource.Current()
	now := e.now()

	quotes, trades, balance, err := e.fetchAccount(ctx, cfg)
	if err != nil {
		return err
	}

	e.funded = balance.GreaterThanOrEqual(cfg.Maker.MinBalance.Decimal)
	if !e.funded {
		e.logger.Error("account out of funds",
			"balance", balance,
			"min_balance", cfg.Maker.MinBalance,
		)
	}

	quoteBacking := newBackingLedger()
	tradeBacking := newBackingLedger()

	for _, id := range trades {
		trade, err := e.api.GetLiveTrade(ctx, id)
		if err != nil {
			return err
		}
		bucket, ok := cfg.Maker.Seconds(trade.DurationLabel)
		if !ok {
			e.logger.Warn("trade with unknown duration bucket", "trade", id, "duration", trade.DurationLabel)
			continue
		}
		tradeBacking.add(trade.Market, bucket, trade.Backing.Amount)

		// Settle only once expiry is conclusively finalized on-chain.
		if now.Sub(trade.Expiration) > cfg.Ledger.BlockTime {
			e.logger.Info("settling expired trade", "trade", id, "market", trade.Market)
			if err := e.api.SettleTrade(ctx, id); err != nil {
				return err
			}
		}
	}

	for _, id := range quotes {
		quote, err := e.api.GetLiveQuote(ctx, id)
		if err != nil {
			return err
		}
		bucket, ok := cfg.Maker.Seconds(quote.DurationLabel)
		if !ok {
			e.logger.Warn("quote with unknown duration bucket", "quote", id, "duration", quote.DurationLabel)
			continue
		}
		quoteBacking.add(quote.Market, bucket, quote.Backing.Amount)

		if err := e.reviewQuote(ctx, cfg, now, quote, bucket, quoteBacking, tradeBacking); err != nil {
			return err
		}
	}

	e.quoteBacking = quoteBacking
	e.tradeBacking = tradeBacking
	return nil
}

// reviewQuote decides on at most one mutating call for a quote: a cancel when
// the backing-bounds policy applies, otherwise an update when the quote is
// stale or underpriced.
func (e *Engine) reviewQuote(
	ctx context.Context,
	cfg *config.Config,
	now time.Time,
	quote *ledger.Quote,
	bucket int64,
	quoteBacking, tradeBacking backingLedger,
) error {
	if quote.Frozen(now) {
		return nil
	}

	ms, ok := e.snapshotState(quote.Market)
	if !ok || ms.TargetSpot <= 0 {
		return nil
	}
	targetPremium, ok := ms.TargetPremiums[bucket]
	if !ok {
		return nil
	}

	// pending: one mutation per quote per pass, never an update after a
	// cancel.
	pending := false

	if cfg.Maker.CancelOutOfBounds {
		target := cfg.Maker.TargetBacking[bucket]
		outOfBounds := quote.Backing.Amount.LessThan(cfg.Maker.MinBacking.Decimal) ||
			quote.Backing.Amount.GreaterThan(cfg.Maker.MaxBacking.Decimal) ||
			(target.IsPositive() && quoteBacking.get(quote.Market, bucket).GreaterThan(target.Decimal))
		if outOfBounds {
			e.logger.Info("cancelling out-of-bounds quote",
				"quote", quote.ID,
				"market", quote.Market,
				"backing", quote.Backing,
			)
			if err := e.api.CancelQuote(ctx, quote.ID); err != nil {
				return err
			}
			quoteBacking.sub(quote.Market, bucket, quote.Backing.Amount)
			pending = true
		}
	}

	if pending {
		return nil
	}

	stale := quote.Stale(now, bucket, cfg.Maker.StaleFraction)
	underpriced := quote.MinPremium().LessThan(
		decimal.NewFromFloat(targetPremium * cfg.Maker.PremiumThreshold))

	if !stale && !underpriced {
		return nil
	}

	premium := e.quotePremium(cfg, ms, targetPremium, quote.Market, bucket, quoteBacking, tradeBacking)

	e.logger.Info("updating quote",
		"quote", quote.ID,
		"market", quote.Market,
		"stale", stale,
		"underpriced", underpriced,
		"premium", premium,
	)
	return e.api.UpdateQuote(ctx, quote.ID,
		ledger.NewCoinFromFloat(ms.TargetSpot, ledger.DenomSpot),
		ledger.NewCoinFromFloat(premium, ledger.DenomPremium),
	)
}

// targetPass tops up under-backed duration buckets for one market.
func (e *Engine) targetPass(ctx context.Context, market string) error {
	cfg := e.cfgSource.Current()

	if !e.funded {
		e.logger.Error("skipping quote creation, account out of funds", "market", market)
		return nil
	}

	ms, ok := e.snapshotState(market)
	if !ok || ms.TargetSpot <= 0 {
		return nil
	}

	for _, d := range cfg.Maker.Durations {
		bucket := d.Seconds

		target := cfg.Maker.TargetBacking[bucket]
		if !target.IsPositive() {
			continue
		}
		current := e.quoteBacking.get(market, bucket)
		if target.LessThanOrEqual(current) {
			continue
		}

		targetPremium, ok := ms.TargetPremiums[bucket]
		if !ok {
			continue
		}

		desired := decimal.Min(target.Sub(current), cfg.Maker.MaxBacking.Decimal)
		if desired.LessThan(cfg.Maker.MinBacking.Decimal) {
			e.logger.Warn("skipping dust-sized quote",
				"market", market,
				"bucket", bucket,
				"desired", desired,
				"min_backing", cfg.Maker.MinBacking,
			)
			continue
		}

		premium := e.quotePremium(cfg, ms, targetPremium, market, bucket, e.quoteBacking, e.tradeBacking)

		e.logger.Info("creating quote",
			"market", market,
			"duration", d.Label,
			"backing", desired,
			"premium", premium,
		)
		if err := e.api.CreateQuote(ctx, market, d.Label,
			ledger.NewCoin(desired, cfg.Ledger.Denom),
			ledger.NewCoinFromFloat(ms.TargetSpot, ledger.DenomSpot),
			ledger.NewCoinFromFloat(premium, ledger.DenomPremium),
		); err != nil {
			return err
		}

		// Count the in-flight create so this pass cannot overshoot the
		// bucket's target by more than this one quote.
		e.quoteBacking.add(market, bucket, desired)
	}

	return nil
}

// quotePremium applies the markup formulas:
//
//	deltaAdjustment = |targetSpot - consensus| / 2      (0 without consensus)
//	dynamicMarkup   = 1 + coeff * (tradeBacking + quoteBacking) / targetBacking
//	premium         = targetPremium * staticMarkup * dynamicMarkup + deltaAdjustment
func (e *Engine) quotePremium(
	cfg *config.Config,
	ms MarketState,
	targetPremium float64,
	market string,
	bucket int64,
	quoteBacking, tradeBacking backingLedger,
) float64 {
	var deltaAdjustment float64
	if ms.Consensus.IsPositive() {
		deltaAdjustment = math.Abs(ms.TargetSpot-ms.Consensus.InexactFloat64()) / 2
	}

	dynamicMarkup := 1.0
	if target := cfg.Maker.TargetBacking[bucket]; target.IsPositive() {
		committed := tradeBacking.get(market, bucket).Add(quoteBacking.get(market, bucket))
		ratio, _ := committed.Div(target.Decimal).Float64()
		dynamicMarkup = 1 + cfg.Maker.DynamicMarkup*ratio
	}

	return targetPremium*cfg.Maker.StaticMarkup*dynamicMarkup + deltaAdjustment
}

// fetchAccount pages through account info until all active quote and trade
// ids are collected.
func (e *Engine) fetchAccount(ctx context.Context, cfg *config.Config) (quotes, trades []string, balance decimal.Decimal, err error) {
	info, err := e.api.GetAccountInfo(ctx, cfg.Ledger.Account, 0, 0)
	if err != nil {
		return nil, nil, decimal.Zero, err
	}

	balance = info.Balance
	quotes = info.ActiveQuotes
	trades = info.ActiveTrades

	// The ledger may cap each page; keep fetching until the totals are met.
	for info.Limit > 0 && (len(quotes) < info.TotalActiveQuotes || len(trades) < info.TotalActiveTrades) {
		offset := len(quotes)
		if len(trades) > offset {
			offset = len(trades)
		}

		page, err := e.api.GetAccountInfo(ctx, cfg.Ledger.Account, offset, info.Limit)
		if err != nil {
			return nil, nil, decimal.Zero, err
		}
		if len(page.ActiveQuotes) == 0 && len(page.ActiveTrades) == 0 {
			break
		}
		quotes = append(quotes, page.ActiveQuotes...)
		trades = append(trades, page.ActiveTrades...)
	}

	return quotes, trades, balance, nil
}
