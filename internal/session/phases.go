package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"codesign/pkg/interfaces"
	"codesign/pkg/types"
)

// Start moves a session from setup into shared_framing. It is the only legal
// transition out of setup and fails from any other phase.
func (m *Manager) Start(ctx context.Context, sessionID, actorID, reason string) (*types.PhaseTransition, error) {
	if reason == "" {
		reason = "session started"
	}
	return m.transition(ctx, sessionID, actorID, reason, func(current types.Phase) (types.Phase, error) {
		if current != types.PhaseSetup {
			return "", ErrAlreadyStarted
		}
		return types.PhaseSharedFraming, nil
	})
}

// Advance moves a session to the immediate next phase in the canonical
// order. The terminal phase accepts no further transitions.
func (m *Manager) Advance(ctx context.Context, sessionID, actorID, reason string) (*types.PhaseTransition, error) {
	if reason == "" {
		reason = "manual advance"
	}
	return m.transition(ctx, sessionID, actorID, reason, func(current types.Phase) (types.Phase, error) {
		if current.Terminal() {
			return "", ErrSessionComplete
		}
		next, ok := current.Next()
		if !ok {
			return "", fmt.Errorf("%w: %s", types.ErrInvalidPhase, current)
		}
		return next, nil
	})
}

// transition validates, persists and applies one phase change.
// FUNCTIONAL DISCOVERY: The audit record and the phase update are persisted
// before the cached session mutates, so a failed write never leaves the
// in-memory phase ahead of the durable one.
func (m *Manager) transition(ctx context.Context, sessionID, actorID, reason string, next func(types.Phase) (types.Phase, error)) (*types.PhaseTransition, error) {
	// TECHNICAL DISCOVERY: The manager lock serializes concurrent transition
	// attempts; transitions are rare, so holding it across the persistence
	// writes is acceptable and keeps validation and commit atomic. The cached
	// session is mutated only here, under the lock, and GetSession hands out
	// copies, so readers never see a write in progress.
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[sessionID]
	if !ok {
		loaded, err := m.db.GetSession(ctx, sessionID)
		if err != nil {
			if err == interfaces.ErrSessionNotFound {
				return nil, ErrSessionNotFound
			}
			return nil, err
		}
		m.sessions[sessionID] = loaded
		session = loaded
	}

	toPhase, err := next(session.CurrentPhase)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	transition := &types.PhaseTransition{
		ID:             uuid.New().String(),
		SessionID:      session.ID,
		FromPhase:      session.CurrentPhase,
		ToPhase:        toPhase,
		TriggeredBy:    actorID,
		Reason:         reason,
		TransitionedAt: now,
	}

	updated := *session
	updated.CurrentPhase = toPhase
	if toPhase == types.PhaseSharedFraming && updated.StartedAt == nil {
		updated.StartedAt = &now
	}
	if toPhase.Terminal() {
		updated.CompletedAt = &now
	}

	if err := m.db.RecordTransition(ctx, transition); err != nil {
		return nil, fmt.Errorf("failed to record phase transition: %w", err)
	}
	if err := m.db.UpdateSessionPhase(ctx, &updated); err != nil {
		return nil, fmt.Errorf("failed to persist phase change: %w", err)
	}

	*session = updated
	m.sessions[session.ID] = session

	m.logger.Info("phase transition",
		zap.String("session_id", session.ID),
		zap.String("from", string(transition.FromPhase)),
		zap.String("to", string(transition.ToPhase)),
		zap.String("triggered_by", actorID))
	return transition, nil
}
