package router

import (
	"time"

	"go.uber.org/zap"

	"codesign/internal/websocket"
	"codesign/pkg/types"
)

// Router fans events out to session connections.
// ARCHITECTURAL DISCOVERY: Best-effort delivery per recipient; one failed or
// slow connection never blocks delivery to the rest of the session, and the
// failure is logged rather than propagated to the sender.
type Router struct {
	registry *websocket.Registry
	logger   *zap.Logger
}

// NewRouter creates an event router over the given registry.
func NewRouter(registry *websocket.Registry, logger *zap.Logger) *Router {
	return &Router{
		registry: registry,
		logger:   logger,
	}
}

// Broadcast delivers an event to every connection in the session, optionally
// excluding one user (usually the originator). Returns the number of
// connections the event was handed to.
func (r *Router) Broadcast(sessionID string, event *types.Event, excludeUser string) int {
	r.stamp(event)

	delivered := 0
	for _, conn := range r.registry.Connections(sessionID) {
		if excludeUser != "" && conn.GetUserID() == excludeUser {
			continue
		}
		if err := conn.WriteJSON(event); err != nil {
			r.logger.Warn("broadcast delivery failed",
				zap.String("session_id", sessionID),
				zap.String("user_id", conn.GetUserID()),
				zap.String("event_type", event.Type),
				zap.Error(err))
			continue
		}
		delivered++
	}
	return delivered
}

// Unicast delivers an event to a single user. A missing or failed connection
// is a no-op: the recipient may have disconnected between dispatch and
// delivery, which is not an error the sender can act on.
func (r *Router) Unicast(sessionID, userID string, event *types.Event) bool {
	r.stamp(event)

	conn, exists := r.registry.Resolve(sessionID, userID)
	if !exists {
		return false
	}
	if err := conn.WriteJSON(event); err != nil {
		r.logger.Warn("unicast delivery failed",
			zap.String("session_id", sessionID),
			zap.String("user_id", userID),
			zap.String("event_type", event.Type),
			zap.Error(err))
		return false
	}
	return true
}

// stamp assigns the server-side timestamp if the producer did not.
func (r *Router) stamp(event *types.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
}
