package discovery

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/microquote/fleet/internal/bus"
)

// Channel is the shared discovery channel every node announces on.
const Channel = "fleet-discovery"

// AnnounceInterval is the heartbeat cadence. A peer silent for
// 1.5x this interval is considered gone.
const AnnounceInterval = 10 * time.Second

// Role identifies what a node does on the feed.
type Role string

const (
	RoleProducer Role = "producer"
	RoleConsumer Role = "consumer"
)

// Intro is the wire record published on the discovery channel.
type Intro struct {
	Name string `json:"name"`
	UUID string `json:"uuid"`
	Role Role   `json:"role"`
}

// Options configures optional discovery callbacks. Nil callbacks are no-ops.
type Options struct {
	// OnIntro is invoked for every intro from another node.
	OnIntro func(Intro)

	// OnPeerExpired is invoked after a tracked peer misses its heartbeat
	// deadline and has been removed from the registry.
	OnPeerExpired func(Peer)

	// AnnounceInterval overrides the default heartbeat cadence (tests).
	AnnounceInterval time.Duration
}

// Node is the discovery component held by producers and consumers.
type Node struct {
	name     string
	role     Role
	id       string
	bus      bus.Bus
	logger   *slog.Logger
	opts     Options
	interval time.Duration

	registry *Registry
	intro    []byte
	started  time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewNode creates a discovery node with a fresh process-lifetime uuid.
func NewNode(name string, role Role, b bus.Bus, opts Options, logger *slog.Logger) *Node {
	if logger == nil {
		logger = slog.Default()
	}
	interval := opts.AnnounceInterval
	if interval <= 0 {
		interval = AnnounceInterval
	}

	id := uuid.NewString()
	intro, _ := json.Marshal(Intro{Name: name, UUID: id, Role: role})

	return &Node{
		name:     name,
		role:     role,
		id:       id,
		bus:      b,
		logger:   logger,
		opts:     opts,
		interval: interval,
		registry: NewRegistry(),
		intro:    intro,
	}
}

// UUID returns this node's identity.
func (n *Node) UUID() string { return n.id }

// Registry returns the peer registry owned by this node.
func (n *Node) Registry() *Registry { return n.registry }

// Start announces the node and begins heartbeating.
func (n *Node) Start(ctx context.Context) error {
	n.ctx, n.cancel = context.WithCancel(ctx)
	n.started = time.Now()

	if err := n.bus.Subscribe(Channel, n.handleIntro); err != nil {
		return err
	}
	if err := n.bus.Publish(n.ctx, Channel, n.intro); err != nil {
		return err
	}

	n.wg.Add(1)
	go n.heartbeatLoop()

	n.logger.Info("discovery node started",
		"name", n.name,
		"role", n.role,
		"uuid", n.id,
	)
	return nil
}

// Stop ends heartbeating and drops all peer subscriptions.
func (n *Node) Stop() {
	if n.cancel != nil {
		n.cancel()
	}
	n.wg.Wait()

	for _, id := range n.registry.UUIDs() {
		if _, ok := n.registry.remove(id); ok {
			n.bus.Unsubscribe(id)
		}
	}
	n.bus.Unsubscribe(Channel)

	n.logger.Info("discovery node stopped", "uuid", n.id)
}

// Reannounce republishes the intro record. Used when a newly joined peer of
// interest should learn about this node without waiting for its own re-scan.
func (n *Node) Reannounce() {
	n.logger.Debug("reannouncing", "uuid", n.id)
	if err := n.bus.Publish(n.ctx, Channel, n.intro); err != nil {
		n.logger.Warn("reannounce failed", "err", err)
	}
}

// TrackPeer begins liveness tracking for a peer. Idempotent: a re-announce
// from an already tracked peer only refreshes its timeout.
func (n *Node) TrackPeer(intro Intro) {
	timeout := n.peerTimeout()

	p := &Peer{UUID: intro.UUID, Name: intro.Name, Role: intro.Role}
	p.timer = time.AfterFunc(timeout, func() { n.expirePeer(intro.UUID) })

	if !n.registry.add(p) {
		// Already tracked; the fresh intro counts as proof of life.
		p.timer.Stop()
		n.registry.touch(intro.UUID, timeout)
		return
	}

	if err := n.bus.Subscribe(intro.UUID, n.handleHeartbeat); err != nil {
		n.logger.Warn("failed to subscribe to peer heartbeat", "peer", intro.UUID, "err", err)
		n.registry.remove(intro.UUID)
		return
	}

	n.logger.Info("tracking peer",
		"peer_name", intro.Name,
		"peer_uuid", intro.UUID,
		"peer_role", intro.Role,
	)
}

// handleIntro processes a record from the shared discovery channel.
func (n *Node) handleIntro(_ string, payload []byte) {
	var intro Intro
	if err := json.Unmarshal(payload, &intro); err != nil {
		n.logger.Warn("malformed intro", "err", err)
		return
	}
	if intro.UUID == n.id {
		return
	}
	if n.opts.OnIntro != nil {
		n.opts.OnIntro(intro)
	}
}

// handleHeartbeat resets the sender's liveness deadline. The payload (uptime
// seconds) carries no meaning beyond proof of life.
func (n *Node) handleHeartbeat(channel string, _ []byte) {
	n.registry.touch(channel, n.peerTimeout())
}

// expirePeer removes a peer whose heartbeat deadline elapsed.
func (n *Node) expirePeer(id string) {
	p, ok := n.registry.remove(id)
	if !ok {
		return
	}
	n.bus.Unsubscribe(id)
	n.logger.Info("peer disconnected", "peer_uuid", id, "peer_name", p.Name)

	if n.opts.OnPeerExpired != nil {
		n.opts.OnPeerExpired(p)
	}
}

// heartbeatLoop publishes uptime on this node's uuid channel.
func (n *Node) heartbeatLoop() {
	defer n.wg.Done()

	ticker := time.NewTicker(n.interval)
	defer ticker.Stop()

	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			uptime := time.Since(n.started).Seconds()
			payload := strconv.FormatFloat(uptime, 'f', -1, 64)
			if err := n.bus.Publish(n.ctx, n.id, []byte(payload)); err != nil {
				n.logger.Warn("heartbeat publish failed", "err", err)
			}
		}
	}
}

func (n *Node) peerTimeout() time.Duration {
	return n.interval + n.interval/2
}
