package bus

import (
	"context"
	"sync"
)

// MemoryHub is an in-process broker used by tests and single-process
// deployments. Each node takes its own connection via Conn, mirroring one
// Redis client per node. Delivery is synchronous: Publish invokes every
// subscriber handler before returning, which preserves per-publisher ordering
// trivially.
type MemoryHub struct {
	mu    sync.RWMutex
	conns map[*Memory]struct{}
}

// NewMemoryHub creates an in-process broker.
func NewMemoryHub() *MemoryHub {
	return &MemoryHub{conns: make(map[*Memory]struct{})}
}

// Conn creates a new connection to the hub.
func (h *MemoryHub) Conn() *Memory {
	c := &Memory{hub: h, handlers: make(map[string]Handler)}
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()
	return c
}

// broadcast delivers a payload to every connection subscribed to channel.
func (h *MemoryHub) broadcast(channel string, payload []byte) {
	h.mu.RLock()
	conns := make([]*Memory, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		c.deliver(channel, payload)
	}
}

func (h *MemoryHub) drop(c *Memory) {
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
}

// Memory is a single connection to a MemoryHub.
type Memory struct {
	hub *MemoryHub

	mu       sync.RWMutex
	handlers map[string]Handler
	closed   bool
}

// Publish delivers the payload to every hub connection subscribed to channel.
func (m *Memory) Publish(ctx context.Context, channel string, payload []byte) error {
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	m.hub.broadcast(channel, payload)
	return nil
}

// Subscribe registers a handler for channel.
func (m *Memory) Subscribe(channel string, h Handler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.handlers[channel] = h
	return nil
}

// Unsubscribe removes the channel's handler.
func (m *Memory) Unsubscribe(channel string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if _, ok := m.handlers[channel]; !ok {
		return ErrNotSubscribed
	}
	delete(m.handlers, channel)
	return nil
}

// Close disconnects from the hub.
func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.handlers = nil
	m.mu.Unlock()
	m.hub.drop(m)
	return nil
}

func (m *Memory) deliver(channel string, payload []byte) {
	m.mu.RLock()
	h := m.handlers[channel]
	m.mu.RUnlock()
	if h != nil {
		h(channel, payload)
	}
}
