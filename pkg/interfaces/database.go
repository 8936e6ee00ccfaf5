package interfaces

import (
	"context"

	"codesign/pkg/types"
)

// DatabaseManager handles all durable persistence.
// ARCHITECTURAL DISCOVERY: Single interface for all persistence operations
// enables consistent transaction handling and connection management.
type DatabaseManager interface {
	// Session operations.
	CreateSession(ctx context.Context, session *types.Session) error
	GetSession(ctx context.Context, sessionID string) (*types.Session, error)
	UpdateSessionPhase(ctx context.Context, session *types.Session) error
	ListSessions(ctx context.Context) ([]*types.Session, error)

	// Participant attendance. Leave marks left_at; rows are never deleted.
	AddParticipant(ctx context.Context, p *types.Participant) error
	MarkParticipantLeft(ctx context.Context, sessionID, userID string) error
	GetParticipants(ctx context.Context, sessionID string) ([]*types.Participant, error)
	GetActiveParticipant(ctx context.Context, sessionID, userID string) (*types.Participant, error)

	// Phase audit trail, append-only.
	RecordTransition(ctx context.Context, t *types.PhaseTransition) error
	ListTransitions(ctx context.Context, sessionID string) ([]*types.PhaseTransition, error)

	// Write contracts consumed fire-and-forget from the live event path.
	AppendInteraction(ctx context.Context, rec *types.InteractionRecord) error
	AppendDelta(ctx context.Context, delta *types.ArtifactDelta) error

	// Health and lifecycle.
	HealthCheck(ctx context.Context) error
	Close() error
}

// InteractionLog is the narrow research-log write contract.
// FUNCTIONAL DISCOVERY: Append failures are logged, never propagated to the
// live delivery path; callers treat the log as best-effort.
type InteractionLog interface {
	AppendInteraction(ctx context.Context, rec *types.InteractionRecord) error
}

// ArtifactStore is the narrow collaborative-delta write contract.
type ArtifactStore interface {
	AppendDelta(ctx context.Context, delta *types.ArtifactDelta) error
}
