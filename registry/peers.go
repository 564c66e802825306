package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/vinayprograms/pulselink/logging"
	"github.com/vinayprograms/pulselink/metrics"
)

type entry struct {
	peer    Peer
	addedAt time.Time
}

// PeerRegistry is the acceptor-side table of live connections.
type PeerRegistry struct {
	mu       sync.RWMutex
	peers    map[string]entry
	watchers []chan Event
	closed   bool

	logger  *logging.Logger
	metrics *metrics.Recorder
}

// Config configures the registry.
type Config struct {
	Logger  *logging.Logger
	Metrics *metrics.Recorder
}

// New creates an empty registry.
func New(cfg Config) *PeerRegistry {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	return &PeerRegistry{
		peers:   make(map[string]entry),
		logger:  logger.WithComponent("registry"),
		metrics: cfg.Metrics,
	}
}

// Add inserts p. An identity is never registered twice.
func (r *PeerRegistry) Add(p Peer) error {
	if p == nil || p.ID() == "" {
		return ErrInvalidID
	}
	id := p.ID()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	if _, exists := r.peers[id]; exists {
		return ErrDuplicateID
	}

	r.peers[id] = entry{peer: p, addedAt: time.Now()}
	total := len(r.peers)

	remote := ""
	if a, ok := p.(addressed); ok {
		remote = a.RemoteAddr()
	}
	r.logger.PeerAdded(id, remote, total)
	r.metrics.SetPeers(total)
	r.notifyWatchers(Event{Type: EventAdded, PeerID: id, Total: total})
	return nil
}

// Remove deletes the peer with id.
func (r *PeerRegistry) Remove(id string) error {
	if id == "" {
		return ErrInvalidID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	if _, exists := r.peers[id]; !exists {
		return ErrNotFound
	}

	delete(r.peers, id)
	total := len(r.peers)

	r.logger.PeerRemoved(id, total)
	r.metrics.SetPeers(total)
	r.notifyWatchers(Event{Type: EventRemoved, PeerID: id, Total: total})
	return nil
}

// Get returns the peer with id.
func (r *PeerRegistry) Get(id string) (Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.peers[id]
	if !ok {
		return nil, false
	}
	return e.peer, true
}

// Len returns the number of live peers.
func (r *PeerRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// Peers returns the registered peers sorted by ID.
func (r *PeerRegistry) Peers() []Peer {
	r.mu.RLock()
	out := make([]Peer, 0, len(r.peers))
	for _, e := range r.peers {
		out = append(out, e.peer)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].ID() < out[j].ID()
	})
	return out
}

// Snapshot describes every registered peer, sorted by ID.
func (r *PeerRegistry) Snapshot() []PeerInfo {
	r.mu.RLock()
	entries := make([]entry, 0, len(r.peers))
	for _, e := range r.peers {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	out := make([]PeerInfo, 0, len(entries))
	for _, e := range entries {
		info := PeerInfo{ID: e.peer.ID(), AddedAt: e.addedAt}
		if a, ok := e.peer.(addressed); ok {
			info.RemoteAddr = a.RemoteAddr()
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out
}

// Range calls fn for each peer until fn returns false.
// It iterates over a snapshot taken without holding the lock during fn.
func (r *PeerRegistry) Range(fn func(Peer) bool) {
	for _, p := range r.Peers() {
		if !fn(p) {
			return
		}
	}
}

// Watch returns a channel of registry events.
func (r *PeerRegistry) Watch() (<-chan Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}

	ch := make(chan Event, 64)
	r.watchers = append(r.watchers, ch)
	return ch, nil
}

// Close shuts down the registry and closes watcher channels.
func (r *PeerRegistry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	for _, ch := range r.watchers {
		close(ch)
	}
	r.watchers = nil
	return nil
}

// notifyWatchers sends an event to all watchers.
// Must be called with lock held.
func (r *PeerRegistry) notifyWatchers(event Event) {
	for _, ch := range r.watchers {
		select {
		case ch <- event:
		default:
			// Channel full, skip
		}
	}
}
