package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"codesign/internal/auth"
	"codesign/internal/session"
	"codesign/internal/websocket"
	"codesign/pkg/interfaces"
	"codesign/pkg/types"
)

// Registry narrows what the HTTP layer needs from connection tracking.
type Registry interface {
	Connections(sessionID string) []interfaces.Connection
	GetStats() map[string]int
}

// Server is the HTTP API layer.
// ARCHITECTURAL DISCOVERY: No business logic here, only HTTP handling and
// JSON serialization; lifecycle rules live in the session manager.
type Server struct {
	sessions *session.Manager
	db       interfaces.DatabaseManager
	registry Registry
	events   websocket.EventRouter
	tokens   *auth.HMACVerifier
	logger   *zap.Logger
	router   *http.ServeMux
}

// NewServer wires the HTTP API with its dependencies and routes.
func NewServer(
	sessions *session.Manager,
	db interfaces.DatabaseManager,
	registry Registry,
	events websocket.EventRouter,
	tokens *auth.HMACVerifier,
	logger *zap.Logger,
) *Server {
	s := &Server{
		sessions: sessions,
		db:       db,
		registry: registry,
		events:   events,
		tokens:   tokens,
		logger:   logger,
		router:   http.NewServeMux(),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Handle("/api/sessions", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleSessions))))
	s.router.Handle("/api/sessions/", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleSessionByID))))
	s.router.Handle("/health", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.healthCheck))))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// handleSessions serves the collection endpoints (POST and GET /api/sessions).
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createSession(w, r)
	case http.MethodGet:
		s.listSessions(w, r)
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleSessionByID routes /api/sessions/{id} and its sub-resources.
func (s *Server) handleSessionByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	parts := strings.Split(path, "/")
	sessionID := parts[0]
	if sessionID == "" {
		s.sendError(w, "Session ID required", http.StatusBadRequest)
		return
	}

	action := ""
	if len(parts) > 1 {
		action = parts[1]
	}

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		s.getSession(w, r, sessionID)
	case action == "start" && r.Method == http.MethodPost:
		s.startSession(w, r, sessionID)
	case action == "advance" && r.Method == http.MethodPost:
		s.advancePhase(w, r, sessionID)
	case action == "join" && r.Method == http.MethodPost:
		s.joinSession(w, r, sessionID)
	case action == "leave" && r.Method == http.MethodPost:
		s.leaveSession(w, r, sessionID)
	case action == "transitions" && r.Method == http.MethodGet:
		s.listTransitions(w, r, sessionID)
	case action == "participants" && r.Method == http.MethodGet:
		s.listParticipants(w, r, sessionID)
	default:
		s.sendError(w, "Not found", http.StatusNotFound)
	}
}

// Request/Response types for JSON serialization

type CreateSessionRequest struct {
	Name           string               `json:"name"`
	Description    string               `json:"description"`
	CreatedBy      string               `json:"created_by"`
	ExperimentMode types.ExperimentMode `json:"experiment_mode"`
}

type PhaseActionRequest struct {
	ActorID string `json:"actor_id"`
	Reason  string `json:"reason"`
}

type JoinSessionRequest struct {
	UserID string     `json:"user_id"`
	Name   string     `json:"name"`
	Role   types.Role `json:"role"`
}

type JoinSessionResponse struct {
	Participant *types.Participant `json:"participant"`
	Token       string             `json:"token"`
}

type LeaveSessionRequest struct {
	UserID string `json:"user_id"`
}

type SessionResponse struct {
	Session         *types.Session `json:"session"`
	ConnectionCount int            `json:"connection_count"`
}

type SessionWithConnections struct {
	*types.Session
	ConnectionCount int `json:"connection_count"`
}

type ListSessionsResponse struct {
	Sessions []SessionWithConnections `json:"sessions"`
}

type HealthResponse struct {
	Status      string         `json:"status"`
	Timestamp   time.Time      `json:"timestamp"`
	Database    string         `json:"database"`
	Connections map[string]int `json:"connections"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// createSession handles POST /api/sessions.
func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if req.Name == "" {
		s.sendError(w, "Session name is required", http.StatusBadRequest)
		return
	}
	if req.CreatedBy == "" {
		s.sendError(w, "created_by is required", http.StatusBadRequest)
		return
	}

	sess, err := s.sessions.CreateSession(r.Context(), req.Name, req.Description, req.CreatedBy, req.ExperimentMode)
	if err != nil {
		if errors.Is(err, types.ErrInvalidSessionName) || errors.Is(err, types.ErrInvalidCreatedBy) || errors.Is(err, types.ErrInvalidExperimentMode) {
			s.sendError(w, err.Error(), http.StatusBadRequest)
		} else {
			s.logger.Error("failed to create session", zap.Error(err))
			s.sendError(w, "Failed to create session", http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(SessionResponse{Session: sess})
}

// getSession handles GET /api/sessions/{id}.
func (s *Server) getSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	sess, err := s.sessions.GetSession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			s.sendError(w, "Session not found", http.StatusNotFound)
		} else {
			s.sendError(w, "Failed to get session", http.StatusInternalServerError)
		}
		return
	}

	json.NewEncoder(w).Encode(SessionResponse{
		Session:         sess,
		ConnectionCount: len(s.registry.Connections(sessionID)),
	})
}

// listSessions handles GET /api/sessions.
func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.sessions.ListSessions(r.Context())
	if err != nil {
		s.sendError(w, "Failed to list sessions", http.StatusInternalServerError)
		return
	}

	out := make([]SessionWithConnections, len(sessions))
	for i, sess := range sessions {
		out[i] = SessionWithConnections{
			Session:         sess,
			ConnectionCount: len(s.registry.Connections(sess.ID)),
		}
	}

	json.NewEncoder(w).Encode(ListSessionsResponse{Sessions: out})
}

// startSession handles POST /api/sessions/{id}/start.
func (s *Server) startSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req PhaseActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	transition, err := s.sessions.Start(r.Context(), sessionID, req.ActorID, req.Reason)
	if err != nil {
		s.sendPhaseError(w, err)
		return
	}

	// Starting is announced through the session_state snapshot on the next
	// connect, not as a phase_changed broadcast. Only explicit advances
	// broadcast.
	json.NewEncoder(w).Encode(transition)
}

// advancePhase handles POST /api/sessions/{id}/advance.
func (s *Server) advancePhase(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req PhaseActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	transition, err := s.sessions.Advance(r.Context(), sessionID, req.ActorID, req.Reason)
	if err != nil {
		s.sendPhaseError(w, err)
		return
	}

	s.broadcastPhaseChange(sessionID, transition)
	json.NewEncoder(w).Encode(transition)
}

// FUNCTIONAL DISCOVERY: Phase changes made over HTTP reach connected clients
// through the same phase_changed event the WebSocket path produces, so
// clients have a single phase-change code path.
func (s *Server) broadcastPhaseChange(sessionID string, transition *types.PhaseTransition) {
	event := types.NewEvent(types.EventPhaseChanged, map[string]any{
		"from_phase":   string(transition.FromPhase),
		"to_phase":     string(transition.ToPhase),
		"triggered_by": transition.TriggeredBy,
		"reason":       transition.Reason,
	})
	s.events.Broadcast(sessionID, event, "")
}

func (s *Server) sendPhaseError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		s.sendError(w, "Session not found", http.StatusNotFound)
	case errors.Is(err, session.ErrAlreadyStarted):
		s.sendError(w, "Session already started", http.StatusConflict)
	case errors.Is(err, session.ErrSessionComplete):
		s.sendError(w, "Session already complete", http.StatusConflict)
	default:
		s.logger.Error("phase transition failed", zap.Error(err))
		s.sendError(w, "Failed to change phase", http.StatusInternalServerError)
	}
}

// joinSession handles POST /api/sessions/{id}/join. A successful join also
// mints the capability token the client presents on the WebSocket connect.
func (s *Server) joinSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req JoinSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if !types.IsValidUserID(req.UserID) {
		s.sendError(w, "Invalid user_id format", http.StatusBadRequest)
		return
	}

	participant, err := s.sessions.Join(r.Context(), sessionID, req.UserID, req.Role)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrSessionNotFound):
			s.sendError(w, "Session not found", http.StatusNotFound)
		case errors.Is(err, session.ErrAlreadyJoined):
			s.sendError(w, "User already joined this session", http.StatusConflict)
		case errors.Is(err, session.ErrInvalidRole):
			s.sendError(w, "Invalid role", http.StatusBadRequest)
		default:
			s.logger.Error("join failed", zap.Error(err))
			s.sendError(w, "Failed to join session", http.StatusInternalServerError)
		}
		return
	}

	name := req.Name
	if name == "" {
		name = req.UserID
	}
	token, err := s.tokens.Issue(&types.Identity{
		UserID: req.UserID,
		Name:   name,
		Role:   req.Role,
	}, 24*time.Hour)
	if err != nil {
		s.logger.Error("token issue failed", zap.Error(err))
		s.sendError(w, "Failed to issue token", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(JoinSessionResponse{Participant: participant, Token: token})
}

// leaveSession handles POST /api/sessions/{id}/leave.
func (s *Server) leaveSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req LeaveSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if err := s.sessions.Leave(r.Context(), sessionID, req.UserID); err != nil {
		if errors.Is(err, session.ErrNotParticipant) {
			s.sendError(w, "User is not a participant", http.StatusNotFound)
		} else {
			s.sendError(w, "Failed to leave session", http.StatusInternalServerError)
		}
		return
	}

	json.NewEncoder(w).Encode(map[string]string{"message": "Left session"})
}

// listTransitions handles GET /api/sessions/{id}/transitions.
func (s *Server) listTransitions(w http.ResponseWriter, r *http.Request, sessionID string) {
	transitions, err := s.sessions.Transitions(r.Context(), sessionID)
	if err != nil {
		s.sendError(w, "Failed to list transitions", http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(map[string]any{"transitions": transitions})
}

// listParticipants handles GET /api/sessions/{id}/participants.
func (s *Server) listParticipants(w http.ResponseWriter, r *http.Request, sessionID string) {
	participants, err := s.sessions.Participants(r.Context(), sessionID)
	if err != nil {
		s.sendError(w, "Failed to list participants", http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(map[string]any{"participants": participants})
}

// healthCheck handles GET /health.
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	dbStatus := "healthy"
	if err := s.db.HealthCheck(ctx); err != nil {
		status = "unhealthy"
		dbStatus = fmt.Sprintf("error: %v", err)
	}

	response := HealthResponse{
		Status:      status,
		Timestamp:   time.Now().UTC(),
		Database:    dbStatus,
		Connections: s.registry.GetStats(),
	}

	if status == "unhealthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(response)
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message, Code: code})
}

// corsMiddleware allows browser clients served from a different origin.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		next.ServeHTTP(w, r)
	})
}

// jsonMiddleware sets the response content type for all API endpoints.
func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
