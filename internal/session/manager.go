package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"codesign/pkg/interfaces"
	"codesign/pkg/types"
)

// Manager owns session lifecycle and the phase state machine.
// ARCHITECTURAL DISCOVERY: All phase mutation goes through Start/Advance so
// exactly one canonical phase exists per session and every change leaves an
// audit record.
type Manager struct {
	db       interfaces.DatabaseManager
	logger   *zap.Logger
	sessions map[string]*types.Session // sessionID -> cached session
	mu       sync.RWMutex
}

// NewManager creates a new session manager.
func NewManager(db interfaces.DatabaseManager, logger *zap.Logger) *Manager {
	return &Manager{
		db:       db,
		logger:   logger,
		sessions: make(map[string]*types.Session),
	}
}

// LoadSessions warms the in-memory cache from the database.
func (m *Manager) LoadSessions(ctx context.Context) error {
	sessions, err := m.db.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("failed to load sessions: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range sessions {
		m.sessions[s.ID] = s
	}

	m.logger.Info("loaded sessions", zap.Int("count", len(sessions)))
	return nil
}

// CreateSession creates a new session in the setup phase.
func (m *Manager) CreateSession(ctx context.Context, name, description, createdBy string, mode types.ExperimentMode) (*types.Session, error) {
	if mode == "" {
		mode = types.ModeWithAI
	}

	session := &types.Session{
		ID:             uuid.New().String(),
		Name:           name,
		Description:    description,
		CurrentPhase:   types.PhaseSetup,
		ExperimentMode: mode,
		CreatedBy:      createdBy,
		CreatedAt:      time.Now().UTC(),
	}

	if err := session.Validate(); err != nil {
		return nil, err
	}

	if err := m.db.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	m.mu.Lock()
	cached := *session
	m.sessions[session.ID] = &cached
	m.mu.Unlock()

	m.logger.Info("created session",
		zap.String("session_id", session.ID),
		zap.String("name", session.Name),
		zap.String("mode", string(session.ExperimentMode)))
	return session, nil
}

// GetSession retrieves a session by ID, cache first. Callers get a copy; the
// cached session only changes through Start and Advance, so concurrent
// readers never observe a phase write in progress.
func (m *Manager) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	m.mu.RLock()
	if session, exists := m.sessions[sessionID]; exists {
		copied := *session
		m.mu.RUnlock()
		return &copied, nil
	}
	m.mu.RUnlock()

	session, err := m.db.GetSession(ctx, sessionID)
	if err != nil {
		if err == interfaces.ErrSessionNotFound {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	m.mu.Lock()
	m.sessions[session.ID] = session
	copied := *session
	m.mu.Unlock()

	return &copied, nil
}

// ListSessions returns all known sessions.
func (m *Manager) ListSessions(ctx context.Context) ([]*types.Session, error) {
	return m.db.ListSessions(ctx)
}

// Join adds a user to a session. A user may hold at most one active
// attendance record per session; duplicates fail.
func (m *Manager) Join(ctx context.Context, sessionID, userID string, role types.Role) (*types.Participant, error) {
	if !types.IsValidRole(role) {
		return nil, ErrInvalidRole
	}

	if _, err := m.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	existing, err := m.db.GetActiveParticipant(ctx, sessionID, userID)
	if err != nil && err != interfaces.ErrParticipantNotFound {
		return nil, err
	}
	if existing != nil {
		return nil, ErrAlreadyJoined
	}

	participant := &types.Participant{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		UserID:    userID,
		Role:      role,
		JoinedAt:  time.Now().UTC(),
	}

	if err := m.db.AddParticipant(ctx, participant); err != nil {
		return nil, fmt.Errorf("failed to add participant: %w", err)
	}

	m.logger.Info("participant joined",
		zap.String("session_id", sessionID),
		zap.String("user_id", userID),
		zap.String("role", string(role)))
	return participant, nil
}

// Leave sets left_at on the active attendance record; the record itself is
// retained for attendance history.
func (m *Manager) Leave(ctx context.Context, sessionID, userID string) error {
	if _, err := m.db.GetActiveParticipant(ctx, sessionID, userID); err != nil {
		if err == interfaces.ErrParticipantNotFound {
			return ErrNotParticipant
		}
		return err
	}

	if err := m.db.MarkParticipantLeft(ctx, sessionID, userID); err != nil {
		return fmt.Errorf("failed to mark participant left: %w", err)
	}

	m.logger.Info("participant left",
		zap.String("session_id", sessionID),
		zap.String("user_id", userID))
	return nil
}

// Participants returns all attendance records for a session.
func (m *Manager) Participants(ctx context.Context, sessionID string) ([]*types.Participant, error) {
	return m.db.GetParticipants(ctx, sessionID)
}

// Transitions returns the ordered phase audit trail for a session.
func (m *Manager) Transitions(ctx context.Context, sessionID string) ([]*types.PhaseTransition, error) {
	return m.db.ListTransitions(ctx, sessionID)
}
