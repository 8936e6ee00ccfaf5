package types

import "errors"

// ARCHITECTURAL DISCOVERY: Specific error types enable proper error handling
// and user-friendly error messages throughout the system
var (
	ErrInvalidUserID         = errors.New("user ID must be 1-64 characters, alphanumeric + underscore/hyphen only")
	ErrInvalidSessionName    = errors.New("session name must be 1-255 characters")
	ErrInvalidCreatedBy      = errors.New("created_by must be a valid user ID")
	ErrInvalidRole           = errors.New("invalid role: must be facilitator, designer, end_user or observer")
	ErrInvalidPhase          = errors.New("invalid session phase")
	ErrInvalidExperimentMode = errors.New("invalid experiment mode: must be with_ai, without_ai or control")
	ErrInvalidEventType      = errors.New("invalid event type")
)
