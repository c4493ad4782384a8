package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/microquote/fleet/internal/bus"
	"github.com/microquote/fleet/internal/discovery"
	"github.com/microquote/fleet/internal/history"
)

// Producer publishes price samples and derived volatility for its symbols.
type Producer struct {
	node   *discovery.Node
	bus    bus.Bus
	store  *history.Store
	logger *slog.Logger

	// syncing gates publication while history is being backfilled from a
	// historical data source.
	syncing atomic.Bool

	volInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ProducerOption configures a Producer.
type ProducerOption func(*Producer)

// WithVolInterval overrides the vol publish cadence (tests).
func WithVolInterval(d time.Duration) ProducerOption {
	return func(p *Producer) { p.volInterval = d }
}

// NewProducer creates a producer node. sampleInterval is the seconds between
// price samples and sizes the rolling history to one hour.
func NewProducer(name string, sampleInterval float64, b bus.Bus, logger *slog.Logger, opts ...ProducerOption) *Producer {
	if logger == nil {
		logger = slog.Default()
	}

	p := &Producer{
		bus:         b,
		store:       history.NewStore(sampleInterval),
		logger:      logger,
		volInterval: VolPublishInterval,
	}
	p.syncing.Store(true)

	// Reannounce when a consumer joins so it converges on us immediately
	// instead of waiting for our next periodic announcement.
	p.node = discovery.NewNode(name, discovery.RoleProducer, b, discovery.Options{
		OnIntro: func(intro discovery.Intro) {
			if intro.Role == discovery.RoleConsumer {
				p.node.Reannounce()
			}
		},
	}, logger)

	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Node exposes the discovery component.
func (p *Producer) Node() *discovery.Node { return p.node }

// Store exposes the price history owned by this producer.
func (p *Producer) Store() *history.Store { return p.store }

// Start announces the producer and begins the vol publish loop.
func (p *Producer) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	if err := p.node.Start(p.ctx); err != nil {
		return err
	}

	p.wg.Add(1)
	go p.volLoop()

	return nil
}

// Stop shuts the producer down.
func (p *Producer) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.node.Stop()
}

// SetSyncing toggles backfill mode. While syncing, updates are recorded to
// history but not published.
func (p *Producer) SetSyncing(v bool) { p.syncing.Store(v) }

// Syncing reports whether the producer is still backfilling.
func (p *Producer) Syncing() bool { return p.syncing.Load() }

// Update records a price sample and, unless syncing, publishes it as a tick
// on the symbol's channel. Returns the recorded value for ratio chaining.
func (p *Producer) Update(symbol string, price float64) float64 {
	v := p.store.Update(symbol, price)
	if p.syncing.Load() {
		return v
	}
	p.publish(symbol, Message{Type: TypeTick, UUID: p.node.UUID(), Tick: v})
	return v
}

// UpdateString records a textual price sample (spot APIs deliver strings).
// Unparseable text is dropped with a warning and returns NaN.
func (p *Producer) UpdateString(symbol, price string) float64 {
	v := p.store.UpdateString(symbol, price)
	if math.IsNaN(v) {
		p.logger.Warn("unparseable price sample", "symbol", symbol, "price", price)
		return v
	}
	if !p.syncing.Load() {
		p.publish(symbol, Message{Type: TypeTick, UUID: p.node.UUID(), Tick: v})
	}
	return v
}

// volLoop publishes one volatility message per tracked symbol each interval,
// computed over the full retained hour and scaled to TargetVolInterval.
func (p *Producer) volLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.volInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.publishVols()
		}
	}
}

func (p *Producer) publishVols() {
	for _, symbol := range p.store.Symbols() {
		vol := history.Volatility(p.store.Samples(symbol), p.store.SampleInterval(), TargetVolInterval)
		if math.IsNaN(vol) {
			// Warm-up: not enough samples yet.
			continue
		}
		p.publish(symbol, Message{Type: TypeVol, UUID: p.node.UUID(), Vol: vol})
	}
}

func (p *Producer) publish(symbol string, msg Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		p.logger.Error("marshal feed message", "err", err)
		return
	}
	if err := p.bus.Publish(p.ctx, symbol, payload); err != nil {
		p.logger.Warn("feed publish failed", "symbol", symbol, "err", err)
	}
}
