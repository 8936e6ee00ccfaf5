package types

import (
	"regexp"
)

// FUNCTIONAL DISCOVERY: Regex compiled once at package initialization
// for better performance in high-frequency validation scenarios
var userIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// IsValidUserID checks if a user ID meets format requirements.
func IsValidUserID(userID string) bool {
	if len(userID) < 1 || len(userID) > 64 {
		return false
	}
	return userIDRegex.MatchString(userID)
}

// IsValidRole checks that a role belongs to the closed session role set.
func IsValidRole(role Role) bool {
	switch role {
	case RoleFacilitator, RoleDesigner, RoleEndUser, RoleObserver:
		return true
	default:
		return false
	}
}

// IsValidPhase checks that a phase belongs to the canonical sequence.
func IsValidPhase(phase Phase) bool {
	for _, p := range PhaseOrder {
		if p == phase {
			return true
		}
	}
	return false
}

// IsValidExperimentMode checks a research mode tag.
func IsValidExperimentMode(mode ExperimentMode) bool {
	switch mode {
	case ModeWithAI, ModeWithoutAI, ModeControl:
		return true
	default:
		return false
	}
}

// IsInboundEventType reports whether t is in the accepted inbound vocabulary.
func IsInboundEventType(t string) bool {
	switch t {
	case EventPing, EventPresenceUpdate, EventTypingStart, EventTypingStop,
		EventChatMessage, EventVoiceInput, EventFacilitationMessage,
		EventCollaborativeUpdate, EventPhaseAdvance:
		return true
	default:
		return false
	}
}

// Validate ensures a session meets creation requirements.
func (s *Session) Validate() error {
	if len(s.Name) < 1 || len(s.Name) > 255 {
		return ErrInvalidSessionName
	}
	if !IsValidUserID(s.CreatedBy) {
		return ErrInvalidCreatedBy
	}
	if !IsValidExperimentMode(s.ExperimentMode) {
		return ErrInvalidExperimentMode
	}
	if !IsValidPhase(s.CurrentPhase) {
		return ErrInvalidPhase
	}
	return nil
}

// Validate ensures an identity carries a routable user and a known role.
func (id *Identity) Validate() error {
	if !IsValidUserID(id.UserID) {
		return ErrInvalidUserID
	}
	if !IsValidRole(id.Role) {
		return ErrInvalidRole
	}
	return nil
}
