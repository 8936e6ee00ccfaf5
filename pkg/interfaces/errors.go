package interfaces

import "errors"

// Common interface errors used across components
var (
	ErrSessionNotFound      = errors.New("session not found")
	ErrParticipantNotFound  = errors.New("participant not found")
	ErrFacilitationDisabled = errors.New("facilitation is not enabled for this session")
	ErrGatewayUnavailable   = errors.New("facilitation unavailable")
	ErrTranscriptionFailed  = errors.New("transcription failed")
	ErrInvalidToken         = errors.New("invalid credential token")
	ErrTokenExpired         = errors.New("credential token expired")
)
