package session

import "errors"

// Session lifecycle error types.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrAlreadyStarted  = errors.New("session already started")
	ErrSessionComplete = errors.New("session already complete")
	ErrAlreadyJoined   = errors.New("user already joined this session")
	ErrNotParticipant  = errors.New("user is not a participant of this session")
	ErrInvalidRole     = errors.New("invalid participant role")
)
