// Package runtime owns the live state of the relay: the connection registry
// and the message router. It contains no transport or storage logic.
package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"sort"
	"sync"
)

// Registry is the process-wide online directory mapping Identity to its live
// ConnectionSink. An identity with no entry is offline; every entry points to
// a writable sink. Only connection lifecycles mutate it (insert on connect,
// remove on disconnect); the router reads it on every delivery.
//
// The mutex is the single serialization point for presence truth. The
// underlying map is never exposed.
type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.Identity]contract.ConnectionSink
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[domain.Identity]contract.ConnectionSink)}
}

// Register inserts or replaces the sink for id and returns the replaced sink,
// if any. Registration is last-writer-wins: a second connection for an
// already-connected identity takes over the entry. The registry never closes
// the previous sink; the caller decides what to do with it.
func (r *Registry) Register(id domain.Identity, sink contract.ConnectionSink) contract.ConnectionSink {
	r.mu.Lock()
	defer r.mu.Unlock()

	previous := r.sessions[id]
	r.sessions[id] = sink
	return previous
}

// Unregister removes the entry for id only when sink is still the registered
// one, and reports whether an entry was removed. Calling it for an absent
// identity, or from a session that has been replaced, is a no-op. This keeps
// double teardown and last-writer-wins replacement from evicting a live
// connection.
func (r *Registry) Unregister(id domain.Identity, sink contract.ConnectionSink) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.sessions[id]
	if !ok || current != sink {
		return false
	}
	delete(r.sessions, id)
	return true
}

// Lookup returns the current sink for id. Absence is not an error: it means
// "offline, deliver nothing".
func (r *Registry) Lookup(id domain.Identity) (contract.ConnectionSink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sink, ok := r.sessions[id]
	return sink, ok
}

// Snapshot returns the set of connected identities as a consistent
// point-in-time view, sorted for stable presence listings.
func (r *Registry) Snapshot() []domain.Identity {
	r.mu.RLock()
	defer r.mu.RUnlock()

	identities := make([]domain.Identity, 0, len(r.sessions))
	for id := range r.sessions {
		identities = append(identities, id)
	}
	sort.Slice(identities, func(i, j int) bool { return identities[i] < identities[j] })
	return identities
}
