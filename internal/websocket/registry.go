package websocket

import (
	"sync"

	"go.uber.org/zap"

	"rollcall/pkg/types"
)

// Registry tracks live connections by user. It is pure connection state:
// joining or leaving never touches session data, only future fan-out.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]*Connection
	logger      *zap.Logger
}

// NewRegistry creates an empty connection registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		connections: make(map[string]*Connection),
		logger:      logger,
	}
}

// Register adds a connection, replacing any previous connection for the same
// user. The replaced connection is closed asynchronously to avoid holding
// the registry lock during close.
func (r *Registry) Register(conn *Connection) error {
	if conn == nil {
		return ErrNilConnection
	}
	if conn.UserID() == "" {
		return ErrMissingUserID
	}

	r.mu.Lock()
	if existing, ok := r.connections[conn.UserID()]; ok && existing != conn {
		go func() { _ = existing.Close() }()
	}
	r.connections[conn.UserID()] = conn
	r.mu.Unlock()

	r.logger.Debug("connection registered",
		zap.String("user_id", conn.UserID()),
		zap.String("role", conn.Role()))
	return nil
}

// Unregister removes a connection. Idempotent, and only removes the exact
// instance currently registered so a stale connection's cleanup cannot evict
// its replacement.
func (r *Registry) Unregister(conn *Connection) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if registered, ok := r.connections[conn.UserID()]; ok && registered == conn {
		delete(r.connections, conn.UserID())
	}
}

// Get returns the connection for a user, if connected.
func (r *Registry) Get(userID string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.connections[userID]
	return conn, ok
}

// Students returns all connected student connections.
func (r *Registry) Students() []*Connection {
	return r.byRole(types.RoleStudent)
}

// Teachers returns all connected teacher connections.
func (r *Registry) Teachers() []*Connection {
	return r.byRole(types.RoleTeacher)
}

func (r *Registry) byRole(role string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Connection
	for _, conn := range r.connections {
		if conn.Role() == role {
			out = append(out, conn)
		}
	}
	return out
}

// All returns every live connection.
func (r *Registry) All() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		out = append(out, conn)
	}
	return out
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}
