package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"codesign/internal/session"
	"codesign/pkg/interfaces"
	"codesign/pkg/types"
)

// WebSocket upgrader with production-ready settings.
// ARCHITECTURAL DISCOVERY: Separate upgrader configuration enables reuse
// and consistent WebSocket settings across different handler instances.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Study deployments run behind a trusted reverse proxy; origin
		// checking belongs there.
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// EventRouter is the fan-out surface the handler needs for join and leave
// choreography. Defined here so the concrete router can depend on the
// registry without a package cycle.
type EventRouter interface {
	Broadcast(sessionID string, event *types.Event, excludeUser string) int
	Unicast(sessionID, userID string, event *types.Event) bool
}

// Dispatcher consumes inbound frames read off a connection.
type Dispatcher interface {
	Dispatch(ctx context.Context, conn interfaces.Connection, envelope *types.Envelope)
}

// Handler manages WebSocket connection requests, token verification and the
// per-connection read loop.
type Handler struct {
	registry   *Registry
	sessions   *session.Manager
	presence   interfaces.PresenceStore
	verifier   interfaces.TokenVerifier
	router     EventRouter
	dispatcher Dispatcher
	logger     *zap.Logger

	pingInterval time.Duration
	readTimeout  time.Duration
}

// NewHandler creates a new WebSocket handler with dependency injection.
func NewHandler(
	registry *Registry,
	sessions *session.Manager,
	presence interfaces.PresenceStore,
	verifier interfaces.TokenVerifier,
	router EventRouter,
	dispatcher Dispatcher,
	pingInterval, readTimeout time.Duration,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		registry:     registry,
		sessions:     sessions,
		presence:     presence,
		verifier:     verifier,
		router:       router,
		dispatcher:   dispatcher,
		pingInterval: pingInterval,
		readTimeout:  readTimeout,
		logger:       logger,
	}
}

// HandleWebSocket upgrades the request and attaches the connection.
// ARCHITECTURAL DISCOVERY: The capability token is verified after the
// upgrade so the rejection travels as an application close code the client
// library surfaces, instead of an opaque failed handshake.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	token := r.URL.Query().Get("token")

	if sessionID == "" || token == "" {
		http.Error(w, "Missing required query parameters: session_id, token", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	identity, err := h.verifier.Verify(token)
	if err != nil {
		h.logger.Warn("rejected connection with invalid token",
			zap.String("session_id", sessionID), zap.Error(err))
		h.refuse(conn, interfaces.CloseInvalidCredential, "invalid or expired token")
		return
	}

	if _, err := h.sessions.GetSession(r.Context(), sessionID); err != nil {
		h.refuse(conn, websocket.ClosePolicyViolation, "session not found")
		return
	}

	wsConn := NewConnection(conn, identity, sessionID)

	if _, err := h.registry.Attach(wsConn); err != nil {
		h.logger.Error("failed to attach connection", zap.Error(err))
		_ = wsConn.Close()
		return
	}

	h.announceJoin(r.Context(), wsConn)

	go h.handleConnection(wsConn)
}

// refuse closes a just-upgraded connection with an application close code.
func (h *Handler) refuse(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(5 * time.Second)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	_ = conn.Close()
}

// announceJoin seeds presence, tells the room, and sends the joiner the
// current session snapshot.
// FUNCTIONAL DISCOVERY: user_joined excludes the joiner; their confirmation
// is the session_state snapshot, which already includes them.
func (h *Handler) announceJoin(ctx context.Context, conn *Connection) {
	sessionID := conn.GetSessionID()
	userID := conn.GetUserID()

	h.presence.Upsert(sessionID, userID, &types.PresenceRecord{
		Status: types.PresenceActive,
		Name:   conn.GetDisplayName(),
		Role:   conn.GetRole(),
	})

	joined := types.NewEvent(types.EventUserJoined, map[string]any{
		"user_id": userID,
		"name":    conn.GetDisplayName(),
		"role":    string(conn.GetRole()),
	})
	h.router.Broadcast(sessionID, joined, userID)

	state := map[string]any{
		"session_id":   sessionID,
		"your_user_id": userID,
		"participants": h.presence.List(sessionID),
	}
	if sess, err := h.sessions.GetSession(ctx, sessionID); err == nil {
		state["current_phase"] = string(sess.CurrentPhase)
		state["experiment_mode"] = string(sess.ExperimentMode)
	}
	h.router.Unicast(sessionID, userID, types.NewEvent(types.EventSessionState, state))

	h.logger.Info("connection attached",
		zap.String("session_id", sessionID),
		zap.String("user_id", userID),
		zap.String("role", string(conn.GetRole())))
}

// handleConnection manages the connection lifecycle with heartbeat monitoring.
// ARCHITECTURAL DISCOVERY: The read loop dispatches sequentially, which is
// what gives each sender in-order handling of their own events.
func (h *Handler) handleConnection(conn *Connection) {
	defer func() {
		// RACE CONDITION FIX: Detach reports whether this instance was still
		// the registered one; a superseded connection must not tear down the
		// presence or announce a departure the replacement just re-announced.
		if h.registry.Detach(conn) {
			h.presence.Remove(conn.GetSessionID(), conn.GetUserID())
			left := types.NewEvent(types.EventUserLeft, map[string]any{
				"user_id": conn.GetUserID(),
				"name":    conn.GetDisplayName(),
			})
			h.router.Broadcast(conn.GetSessionID(), left, conn.GetUserID())
			h.logger.Info("connection detached",
				zap.String("session_id", conn.GetSessionID()),
				zap.String("user_id", conn.GetUserID()))
		}
		_ = conn.Close()
	}()

	if err := conn.conn.SetReadDeadline(time.Now().Add(h.readTimeout)); err != nil {
		h.logger.Warn("failed to set read deadline", zap.Error(err))
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	})

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := conn.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
					return
				}
			case <-conn.ctx.Done():
				return
			}
		}
	}()

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("websocket read error",
					zap.String("user_id", conn.GetUserID()), zap.Error(err))
			}
			break
		}

		if messageType != websocket.TextMessage {
			continue
		}

		var envelope types.Envelope
		if err := json.Unmarshal(data, &envelope); err != nil {
			errEvent := types.NewEvent(types.EventError, map[string]any{
				"message": "malformed frame: expected JSON object with type and payload",
			})
			_ = conn.WriteJSON(errEvent)
			continue
		}

		h.dispatcher.Dispatch(conn.ctx, conn, &envelope)
	}
}
