package interfaces

import "codesign/pkg/types"

// Close codes used when the server terminates a connection deliberately.
const (
	CloseSuperseded        = 4000
	CloseInvalidCredential = 4001
)

// Connection is one live bidirectional channel for a (session, user) pair.
// ARCHITECTURAL DISCOVERY: Pure abstraction without transport details keeps
// the registry, router and dispatcher testable with in-memory fakes.
type Connection interface {
	// WriteJSON sends a JSON message to the client (thread-safe).
	// Implementations must serialize writes through a single writer.
	WriteJSON(v any) error

	// Close closes the connection and cleans up resources.
	Close() error

	// CloseWithReason closes the connection with a distinguishable close
	// code, e.g. CloseSuperseded when a newer connection replaces this one.
	CloseWithReason(code int, reason string) error

	// GetUserID returns the connected user's ID.
	GetUserID() string

	// GetDisplayName returns the user's display name from the credential.
	GetDisplayName() string

	// GetRole returns the user's role within the session.
	GetRole() types.Role

	// GetSessionID returns the session this connection belongs to.
	GetSessionID() string
}
