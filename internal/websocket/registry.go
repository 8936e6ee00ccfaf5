package websocket

import (
	"sync"

	"go.uber.org/zap"

	"codesign/pkg/interfaces"
)

// Registry manages WebSocket connections with thread-safe operations.
// ARCHITECTURAL DISCOVERY: Pure connection management without business logic.
// Join/leave choreography lives in the handler; the registry only tracks and
// supersedes connections.
type Registry struct {
	mu sync.RWMutex // TECHNICAL DISCOVERY: RWMutex optimizes for read-heavy lookup patterns
	// sessionID -> userID -> Connection
	sessions map[string]map[string]interfaces.Connection
	logger   *zap.Logger
}

// NewRegistry creates a new connection registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]map[string]interfaces.Connection),
		logger:   logger,
	}
}

// Attach registers a connection under its (session, user) slot and returns the
// superseded connection, if any. At most one connection per user per session.
// FUNCTIONAL DISCOVERY: The superseded connection closes asynchronously to
// avoid holding the registry lock across a network write.
func (r *Registry) Attach(conn interfaces.Connection) (interfaces.Connection, error) {
	if conn == nil {
		return nil, ErrNilConnection
	}

	sessionID := conn.GetSessionID()
	userID := conn.GetUserID()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sessions[sessionID] == nil {
		r.sessions[sessionID] = make(map[string]interfaces.Connection)
	}

	prior := r.sessions[sessionID][userID]
	r.sessions[sessionID][userID] = conn

	if prior != nil {
		go func() {
			if err := prior.CloseWithReason(interfaces.CloseSuperseded, "superseded by newer connection"); err != nil {
				r.logger.Debug("failed to close superseded connection",
					zap.String("user_id", userID), zap.Error(err))
			}
		}()
	}

	return prior, nil
}

// Detach removes a connection if it is still the registered instance for its
// slot. Returns true when this call removed the registration.
// RACE CONDITION FIX: The instance check prevents a superseded connection's
// cleanup from detaching its replacement.
func (r *Registry) Detach(conn interfaces.Connection) bool {
	if conn == nil {
		return false
	}

	sessionID := conn.GetSessionID()
	userID := conn.GetUserID()

	r.mu.Lock()
	defer r.mu.Unlock()

	users, exists := r.sessions[sessionID]
	if !exists {
		return false
	}
	if users[userID] != conn {
		return false
	}

	delete(users, userID)
	// TECHNICAL DISCOVERY: Clean up empty maps to prevent memory leaks
	if len(users) == 0 {
		delete(r.sessions, sessionID)
	}
	return true
}

// Resolve returns the current connection for (session, user) with O(1) lookup.
func (r *Registry) Resolve(sessionID, userID string) (interfaces.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, exists := r.sessions[sessionID][userID]
	return conn, exists
}

// Connections returns all connections in a session for broadcasting.
func (r *Registry) Connections(sessionID string) []interfaces.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var connections []interfaces.Connection
	for _, conn := range r.sessions[sessionID] {
		connections = append(connections, conn)
	}
	return connections
}

// Members returns the user IDs currently connected to a session.
func (r *Registry) Members(sessionID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var members []string
	for userID := range r.sessions[sessionID] {
		members = append(members, userID)
	}
	return members
}

// GetStats returns registry statistics for monitoring and debugging.
func (r *Registry) GetStats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, users := range r.sessions {
		total += len(users)
	}

	return map[string]int{
		"total_connections": total,
		"active_sessions":   len(r.sessions),
	}
}
