package websocket

import (
	"sync"

	"patientsync/pkg/interfaces"
)

// Registry tracks live connections by ID and by principal. A principal may
// hold any number of connections at once, one per open tab.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]interfaces.Connection            // connID -> conn
	byPrincipal map[string]map[string]interfaces.Connection // principal -> connID -> conn
}

func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[string]interfaces.Connection),
		byPrincipal: make(map[string]map[string]interfaces.Connection),
	}
}

// RegisterConnection adds an authenticated connection. Existing connections
// of the same principal are left alone.
func (r *Registry) RegisterConnection(conn interfaces.Connection) error {
	if conn == nil {
		return ErrNilConnection
	}
	if !conn.IsAuthenticated() {
		return ErrConnectionNotAuthenticated
	}

	id := conn.ID()
	principal := conn.Principal()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.connections[id]; exists {
		return ErrDuplicateConnection
	}

	r.connections[id] = conn
	set := r.byPrincipal[principal]
	if set == nil {
		set = make(map[string]interfaces.Connection)
		r.byPrincipal[principal] = set
	}
	set[id] = conn

	return nil
}

// UnregisterConnection removes conn if that exact instance is registered.
// It is idempotent.
func (r *Registry) UnregisterConnection(conn interfaces.Connection) {
	if conn == nil {
		return
	}
	id := conn.ID()

	r.mu.Lock()
	defer r.mu.Unlock()

	registered, exists := r.connections[id]
	if !exists || registered != conn {
		return
	}
	delete(r.connections, id)

	principal := conn.Principal()
	if set, ok := r.byPrincipal[principal]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(r.byPrincipal, principal)
		}
	}
}

// AllConnections returns a snapshot of every registered connection.
func (r *Registry) AllConnections() []interfaces.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]interfaces.Connection, 0, len(r.connections))
	for _, c := range r.connections {
		conns = append(conns, c)
	}
	return conns
}

// PrincipalConnections returns a snapshot of one principal's connections.
func (r *Registry) PrincipalConnections(principal string) []interfaces.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.byPrincipal[principal]
	conns := make([]interfaces.Connection, 0, len(set))
	for _, c := range set {
		conns = append(conns, c)
	}
	return conns
}

func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}

// CloseAll closes and forgets every connection. Used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	conns := r.connections
	r.connections = make(map[string]interfaces.Connection)
	r.byPrincipal = make(map[string]map[string]interfaces.Connection)
	r.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
}

// GetStats returns registry counts for the health endpoint.
func (r *Registry) GetStats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[string]int{
		"total_connections": len(r.connections),
		"active_principals": len(r.byPrincipal),
	}
}
