package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/microquote/fleet/internal/bus"
	"github.com/microquote/fleet/internal/discovery"
)

// Listeners are optional consumer hooks, invoked synchronously in delivery
// order. Nil listeners are no-ops.
type Listeners struct {
	// OnTick fires for every tick message from a tracked peer.
	OnTick func(peerUUID, peerName, symbol string, tick float64)

	// OnVol fires for every vol message from a tracked peer.
	OnVol func(peerUUID, peerName, symbol string, vol float64)

	// OnRaw fires for every raw feed payload received.
	OnRaw func(payload []byte)

	// OnStats fires once per symbol per aggregation cycle.
	OnStats func(symbol string, stats Stats)
}

// latestEntry is the last values seen from one peer for one symbol since the
// previous aggregation pass.
type latestEntry struct {
	tick *float64
	vol  *float64
}

// Consumer subscribes to symbol channels, ingests feed messages, and rolls
// the latest per-peer values up into cross-peer statistics once a minute.
type Consumer struct {
	node      *discovery.Node
	bus       bus.Bus
	logger    *slog.Logger
	listeners Listeners

	aggInterval time.Duration

	// latest is keyed by peer uuid then symbol and is rebuilt empty after
	// every aggregation pass.
	mu     sync.Mutex
	latest map[string]map[string]*latestEntry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ConsumerOption configures a Consumer.
type ConsumerOption func(*Consumer)

// WithAggregationInterval overrides the aggregation cadence (tests).
func WithAggregationInterval(d time.Duration) ConsumerOption {
	return func(c *Consumer) { c.aggInterval = d }
}

// NewConsumer creates a consumer node that tracks every producer it hears of.
func NewConsumer(name string, b bus.Bus, listeners Listeners, logger *slog.Logger, opts ...ConsumerOption) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Consumer{
		bus:         b,
		logger:      logger,
		listeners:   listeners,
		aggInterval: AggregationInterval,
		latest:      make(map[string]map[string]*latestEntry),
	}

	c.node = discovery.NewNode(name, discovery.RoleConsumer, b, discovery.Options{
		OnIntro: func(intro discovery.Intro) {
			if intro.Role == discovery.RoleProducer {
				c.node.TrackPeer(intro)
			}
		},
	}, logger)

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Node exposes the discovery component.
func (c *Consumer) Node() *discovery.Node { return c.node }

// Start announces the consumer and begins the aggregation loop.
func (c *Consumer) Start(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)

	if err := c.node.Start(c.ctx); err != nil {
		return err
	}

	c.wg.Add(1)
	go c.aggregationLoop()

	return nil
}

// Stop shuts the consumer down.
func (c *Consumer) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	c.node.Stop()
}

// SubscribeSymbol begins ingesting feed traffic for a symbol.
func (c *Consumer) SubscribeSymbol(symbol string) error {
	return c.bus.Subscribe(symbol, c.handleMessage)
}

// UnsubscribeSymbol stops ingesting a symbol.
func (c *Consumer) UnsubscribeSymbol(symbol string) error {
	return c.bus.Unsubscribe(symbol)
}

// handleMessage ingests one feed message, last-write-wins per (peer, symbol).
func (c *Consumer) handleMessage(symbol string, payload []byte) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		c.logger.Warn("malformed feed message", "symbol", symbol, "err", err)
		return
	}

	var peerName string
	if p, ok := c.node.Registry().Get(msg.UUID); ok {
		peerName = p.Name
	}

	switch msg.Type {
	case TypeTick:
		tick := msg.Tick
		c.mu.Lock()
		c.entryLocked(msg.UUID, symbol).tick = &tick
		c.mu.Unlock()
		if c.listeners.OnTick != nil {
			c.listeners.OnTick(msg.UUID, peerName, symbol, tick)
		}
	case TypeVol:
		vol := msg.Vol
		c.mu.Lock()
		c.entryLocked(msg.UUID, symbol).vol = &vol
		c.mu.Unlock()
		if c.listeners.OnVol != nil {
			c.listeners.OnVol(msg.UUID, peerName, symbol, vol)
		}
	default:
		c.logger.Debug("skipping message type", "type", msg.Type)
		return
	}

	if c.listeners.OnRaw != nil {
		c.listeners.OnRaw(payload)
	}
}

// entryLocked returns the latest-value slot for (peer, symbol), creating it.
// Callers hold c.mu for both the lookup and the field write, so a slot can
// never outlive the snapshot swap in aggregate.
func (c *Consumer) entryLocked(peer, symbol string) *latestEntry {
	bySym, ok := c.latest[peer]
	if !ok {
		bySym = make(map[string]*latestEntry)
		c.latest[peer] = bySym
	}
	e, ok := bySym[symbol]
	if !ok {
		e = &latestEntry{}
		bySym[symbol] = e
	}
	return e
}

// aggregationLoop rolls the snapshot up on a fixed cadence.
func (c *Consumer) aggregationLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.aggInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.aggregate()
		}
	}
}

// aggregate computes per-symbol cross-peer statistics over currently live
// peers and then discards the snapshot; the next cycle starts empty, so peers
// that stop reporting drop out without explicit cleanup.
func (c *Consumer) aggregate() {
	live := c.node.Registry().UUIDs()

	// Handlers look a slot up and write it inside one critical section, so
	// after the swap nothing can still write into the old map.
	c.mu.Lock()
	snapshot := c.latest
	c.latest = make(map[string]map[string]*latestEntry)
	c.mu.Unlock()

	type avgAcc struct {
		sum   float64
		count int
	}
	type volAcc struct {
		lo, hi float64
	}
	avgs := make(map[string]*avgAcc)
	vols := make(map[string]*volAcc)

	for _, peer := range live {
		for symbol, e := range snapshot[peer] {
			if e.tick != nil {
				a, ok := avgs[symbol]
				if !ok {
					a = &avgAcc{}
					avgs[symbol] = a
				}
				a.sum += *e.tick
				a.count++
			}
			if e.vol != nil {
				v, ok := vols[symbol]
				if !ok {
					vols[symbol] = &volAcc{lo: *e.vol, hi: *e.vol}
				} else {
					if *e.vol < v.lo {
						v.lo = *e.vol
					}
					if *e.vol > v.hi {
						v.hi = *e.vol
					}
				}
			}
		}
	}

	if c.listeners.OnStats == nil {
		return
	}

	symbols := make(map[string]struct{})
	for s := range avgs {
		symbols[s] = struct{}{}
	}
	for s := range vols {
		symbols[s] = struct{}{}
	}

	ordered := make([]string, 0, len(symbols))
	for s := range symbols {
		ordered = append(ordered, s)
	}
	sort.Strings(ordered)

	for _, symbol := range ordered {
		var stats Stats
		if a, ok := avgs[symbol]; ok {
			mean := a.sum / float64(a.count)
			stats.Average = &mean
		}
		if v, ok := vols[symbol]; ok {
			mid := (v.hi + v.lo) / 2
			stats.Vol = &mid
		}
		c.listeners.OnStats(symbol, stats)
	}
}
