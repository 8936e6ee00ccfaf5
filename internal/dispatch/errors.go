package dispatch

import "errors"

// Dispatch error types.
var (
	ErrUnknownEventType  = errors.New("unknown message type")
	ErrEmptyMessage      = errors.New("message content cannot be empty")
	ErrInvalidAudio      = errors.New("audio payload is not valid base64")
	ErrMissingArtifactID = errors.New("artifact_id is required")
	ErrRateLimited       = errors.New("rate limit exceeded")
)
