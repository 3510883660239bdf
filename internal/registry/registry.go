// Package registry maintains the process-wide directory of live client
// connections. Two independent instances exist at runtime: the chat registry,
// whose members participate in broadcast routing and appear in the user list,
// and the notice registry, whose members receive announcement frames only.
package registry

import (
	"sync"
	"time"
)

// Conn is the outbound half of a client connection as seen by the router.
// Implementations must be safe for concurrent Send calls.
type Conn interface {
	// Send marshals v and queues it for delivery. A non-nil error means the
	// peer is unreachable and the entry should be pruned.
	Send(v any) error
	Close() error
}

// Entry is one registered connection.
type Entry struct {
	Username   string
	Conn       Conn
	AttachedAt time.Time
}

// Registry maps usernames to live connections. All methods are safe for
// concurrent use. Iteration order of All and Usernames is insertion order,
// which keeps broadcast tests deterministic.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Entry
	order []string
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{conns: make(map[string]Entry)}
}

// Attach inserts or replaces the entry for username. When an entry already
// exists it is superseded: the previous connection is closed and the new one
// takes its place. Callers are responsible for broadcasting an updated user
// list afterwards; the registry never does that implicitly.
func (r *Registry) Attach(username string, conn Conn) {
	r.mu.Lock()
	prev, existed := r.conns[username]
	r.conns[username] = Entry{Username: username, Conn: conn, AttachedAt: time.Now()}
	if !existed {
		r.order = append(r.order, username)
	}
	r.mu.Unlock()

	if existed {
		_ = prev.Conn.Close()
	}
}

// Detach removes the entry for username if present. Detaching an absent
// username is a no-op.
func (r *Registry) Detach(username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[username]; !ok {
		return
	}
	delete(r.conns, username)
	for i, name := range r.order {
		if name == username {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// DetachConn removes the entry for username only if it still holds conn.
// A connection superseded by a later Attach uses this during cleanup so it
// cannot evict its replacement. Reports whether an entry was removed.
func (r *Registry) DetachConn(username string, conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[username]
	if !ok || e.Conn != conn {
		return false
	}
	delete(r.conns, username)
	for i, name := range r.order {
		if name == username {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Get returns the connection registered for username.
func (r *Registry) Get(username string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[username]
	if !ok {
		return nil, false
	}
	return e.Conn, true
}

// Contains reports whether username has a live entry.
func (r *Registry) Contains(username string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[username]
	return ok
}

// All returns a point-in-time snapshot of every entry in insertion order.
// Mutation after the call is not observed by the returned slice.
func (r *Registry) All() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.conns[name])
	}
	return out
}

// Usernames returns a snapshot of registered usernames in insertion order.
func (r *Registry) Usernames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of live entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
