package discovery

import (
	"sync"
	"time"
)

// Peer is a remote node observed on the discovery channel.
type Peer struct {
	UUID string
	Name string
	Role Role

	timer *time.Timer
}

// Registry tracks known peers and their liveness deadlines. It is mutated
// only by the discovery Node that owns it.
type Registry struct {
	mu    sync.RWMutex
	peers map[string]*Peer
}

// NewRegistry creates an empty peer registry.
func NewRegistry() *Registry {
	return &Registry{peers: make(map[string]*Peer)}
}

// Get returns a snapshot of the peer with the given uuid.
func (r *Registry) Get(uuid string) (Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[uuid]
	if !ok {
		return Peer{}, false
	}
	return Peer{UUID: p.UUID, Name: p.Name, Role: p.Role}, true
}

// UUIDs returns the ids of all currently tracked peers.
func (r *Registry) UUIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.peers))
	for id := range r.peers {
		out = append(out, id)
	}
	return out
}

// Len returns the number of tracked peers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// add inserts a peer with an armed expiry timer. Returns false if the peer is
// already tracked, in which case nothing changes.
func (r *Registry) add(p *Peer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.peers[p.UUID]; ok {
		return false
	}
	r.peers[p.UUID] = p
	return true
}

// touch resets a tracked peer's expiry timer. Unknown peers are ignored.
func (r *Registry) touch(uuid string, timeout time.Duration) {
	r.mu.RLock()
	p, ok := r.peers[uuid]
	r.mu.RUnlock()
	if ok {
		p.timer.Reset(timeout)
	}
}

// remove deletes a peer and stops its timer. Returns the peer and whether it
// was present, so expiry fires follow-up work exactly once.
func (r *Registry) remove(uuid string) (Peer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[uuid]
	if !ok {
		return Peer{}, false
	}
	p.timer.Stop()
	delete(r.peers, uuid)
	return Peer{UUID: p.UUID, Name: p.Name, Role: p.Role}, true
}
