// Package presence tracks which users currently hold at least one live
// socket connection. The registry is process-local on purpose: it mirrors
// live network state, so it resets to empty on restart.
package presence

import "sync"

// Registry maps user IDs to their active connection IDs. A user with two
// devices has two entries in the inner set and stays online until both
// disconnect.
type Registry struct {
	mu    sync.Mutex
	conns map[string]map[string]struct{}
}

// NewRegistry returns an empty registry
func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]map[string]struct{}),
	}
}

// Connect records a connection for the user and reports whether this
// transition brought the user online.
func (r *Registry) Connect(userID, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[userID]
	if !ok {
		set = make(map[string]struct{})
		r.conns[userID] = set
	}
	set[connID] = struct{}{}
	return !ok
}

// Disconnect removes a connection and reports whether the user went offline
// with it. Unknown connections are a no-op.
func (r *Registry) Disconnect(userID, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[userID]
	if !ok {
		return false
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(r.conns, userID)
		return true
	}
	return false
}

// IsOnline reports whether the user has at least one live connection
func (r *Registry) IsOnline(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.conns[userID]
	return ok
}

// Online returns a snapshot of all currently online user IDs, used to seed a
// freshly connected client.
func (r *Registry) Online() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	users := make([]string, 0, len(r.conns))
	for userID := range r.conns {
		users = append(users, userID)
	}
	return users
}
