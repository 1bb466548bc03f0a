// Package registry implements the process-wide session registry (the
// Go replacement for original_source/plc.py's __new__-based instance
// interning): exactly one *plcsession.Session lives per (host, rack,
// slot) endpoint, shared by every caller that asks for it.
package registry

import (
	"sync"

	"s7gateway/internal/metrics"
	"s7gateway/internal/plcsession"
)

// Registry hands out a singleton session per endpoint, creating one
// lazily on first request.
type Registry struct {
	mu       sync.Mutex
	sessions map[plcsession.EndpointKey]*plcsession.Session
	opts     plcsession.Options
}

// New creates an empty registry. opts is applied to every session it
// creates.
func New(opts plcsession.Options) *Registry {
	return &Registry{
		sessions: make(map[plcsession.EndpointKey]*plcsession.Session),
		opts:     opts,
	}
}

// GetOrCreate returns the existing session for endpoint, or connects
// and registers a new one. Concurrent callers racing on the same
// endpoint are serialized by the registry lock, so at most one dial
// attempt happens per endpoint (I1: "exactly one live connection per
// endpoint"). A failed creation is not cached — the next caller gets
// another chance to connect.
func (r *Registry) GetOrCreate(endpoint plcsession.EndpointKey) (*plcsession.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[endpoint]; ok {
		return s, nil
	}

	s, err := plcsession.New(endpoint, r.opts, nil)
	if err != nil {
		return nil, err
	}
	r.sessions[endpoint] = s
	metrics.SetSessionsActive(len(r.sessions))
	return s, nil
}

// Get returns the session for endpoint if one has already been
// created, without creating it.
func (r *Registry) Get(endpoint plcsession.EndpointKey) (*plcsession.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[endpoint]
	return s, ok
}

// Remove closes and forgets the session for endpoint, if any. Used by
// the monitor supervisor's refresh so the next read or write dials a
// fresh session.
func (r *Registry) Remove(endpoint plcsession.EndpointKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[endpoint]; ok {
		s.Close()
		delete(r.sessions, endpoint)
		metrics.SetSessionsActive(len(r.sessions))
	}
}

// All returns a snapshot of every registered endpoint and its session;
// changing the returned map does not affect the registry.
func (r *Registry) All() map[plcsession.EndpointKey]*plcsession.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[plcsession.EndpointKey]*plcsession.Session, len(r.sessions))
	for k, v := range r.sessions {
		out[k] = v
	}
	return out
}

// Len reports how many sessions are currently registered.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
