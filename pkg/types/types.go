package types

import (
	"time"
)

// Phase is one stage in the fixed co-design sequence.
// ARCHITECTURAL DISCOVERY: Phases form a strict linear order with no skipping
// or regression; all transition validation derives from PhaseOrder below.
type Phase string

const (
	PhaseSetup               Phase = "setup"
	PhaseSharedFraming       Phase = "shared_framing"
	PhasePerspectiveExchange Phase = "perspective_exchange"
	PhaseMeaningNegotiation  Phase = "meaning_negotiation"
	PhaseReflectionIteration Phase = "reflection_iteration"
	PhaseComplete            Phase = "complete"
)

// PhaseOrder is the canonical sequence. PhaseComplete is terminal.
var PhaseOrder = []Phase{
	PhaseSetup,
	PhaseSharedFraming,
	PhasePerspectiveExchange,
	PhaseMeaningNegotiation,
	PhaseReflectionIteration,
	PhaseComplete,
}

// Next returns the phase that follows p in the canonical order.
// The second return value is false when p is terminal or unknown.
func (p Phase) Next() (Phase, bool) {
	for i, phase := range PhaseOrder {
		if phase == p {
			if i == len(PhaseOrder)-1 {
				return "", false
			}
			return PhaseOrder[i+1], true
		}
	}
	return "", false
}

// Terminal reports whether p accepts no further transitions.
func (p Phase) Terminal() bool {
	return p == PhaseComplete
}

// ExperimentMode tags a session for research comparison and controls
// whether the facilitation agent participates.
type ExperimentMode string

const (
	ModeWithAI    ExperimentMode = "with_ai"
	ModeWithoutAI ExperimentMode = "without_ai"
	ModeControl   ExperimentMode = "control"
)

// Role is a participant's function within a session.
type Role string

const (
	RoleFacilitator Role = "facilitator"
	RoleDesigner    Role = "designer"
	RoleEndUser     Role = "end_user"
	RoleObserver    Role = "observer"
)

// Session represents one multi-phase co-design session.
// FUNCTIONAL DISCOVERY: Session fields are immutable after creation except
// the phase and its timestamps, which change only through the phase machine.
type Session struct {
	ID             string         `json:"id" db:"id"`
	Name           string         `json:"name" db:"name"`
	Description    string         `json:"description,omitempty" db:"description"`
	CurrentPhase   Phase          `json:"current_phase" db:"current_phase"`
	ExperimentMode ExperimentMode `json:"experiment_mode" db:"experiment_mode"`
	CreatedBy      string         `json:"created_by" db:"created_by"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
	StartedAt      *time.Time     `json:"started_at,omitempty" db:"started_at"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty" db:"completed_at"`
}

// Participant is the durable (session, user) attendance record. Leaving sets
// LeftAt; the row is never deleted so attendance history survives.
type Participant struct {
	ID        string     `json:"id" db:"id"`
	SessionID string     `json:"session_id" db:"session_id"`
	UserID    string     `json:"user_id" db:"user_id"`
	Role      Role       `json:"role" db:"role"`
	JoinedAt  time.Time  `json:"joined_at" db:"joined_at"`
	LeftAt    *time.Time `json:"left_at,omitempty" db:"left_at"`
}

// PhaseTransition is the append-only audit record of one phase change.
// FUNCTIONAL DISCOVERY: Transitions are never deleted; research analysis
// depends on the complete ordered history.
type PhaseTransition struct {
	ID             string    `json:"id" db:"id"`
	SessionID      string    `json:"session_id" db:"session_id"`
	FromPhase      Phase     `json:"from_phase" db:"from_phase"`
	ToPhase        Phase     `json:"to_phase" db:"to_phase"`
	TriggeredBy    string    `json:"triggered_by" db:"triggered_by"`
	Reason         string    `json:"reason,omitempty" db:"reason"`
	TransitionedAt time.Time `json:"transitioned_at" db:"transitioned_at"`
}

// Identity is the verified credential payload presented at connect time.
type Identity struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Role   Role   `json:"role"`
}

// PresenceStatus values for PresenceRecord.
const (
	PresenceActive = "active"
	PresenceIdle   = "idle"
	PresenceAway   = "away"
)

// PresenceRecord is the ephemeral liveness state of one (session, user).
// A record not refreshed within the store TTL is treated as disconnected
// regardless of the underlying channel state.
type PresenceRecord struct {
	UserID        string    `json:"user_id"`
	Status        string    `json:"status"`
	Name          string    `json:"name"`
	Role          Role      `json:"role"`
	Cursor        any       `json:"cursor,omitempty"`
	ActiveElement string    `json:"active_element,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// InteractionRecord is one research-log entry (chat, facilitation exchange,
// tool side effect). Appends are best-effort from the live path.
type InteractionRecord struct {
	ID        string         `json:"id" db:"id"`
	SessionID string         `json:"session_id" db:"session_id"`
	Phase     Phase          `json:"phase,omitempty" db:"phase"`
	Kind      string         `json:"kind" db:"kind"`
	ActorID   string         `json:"actor_id" db:"actor_id"`
	ActorRole Role           `json:"actor_role" db:"actor_role"`
	Data      map[string]any `json:"data" db:"data"`
	Timestamp time.Time      `json:"timestamp" db:"timestamp"`
}

// ArtifactDelta is one opaque collaborative-editing merge payload. The core
// stores and routes it verbatim without interpreting the encoded update.
type ArtifactDelta struct {
	ID         string    `json:"id" db:"id"`
	SessionID  string    `json:"session_id" db:"session_id"`
	ArtifactID string    `json:"artifact_id" db:"artifact_id"`
	Origin     string    `json:"origin" db:"origin"`
	Payload    string    `json:"payload" db:"payload"`
	AppendedAt time.Time `json:"appended_at" db:"appended_at"`
}
