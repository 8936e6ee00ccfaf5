package interfaces

import "codesign/pkg/types"

// PresenceStore tracks ephemeral liveness per (session, user).
// FUNCTIONAL DISCOVERY: Listing filters records older than the store TTL, so
// an abruptly dropped client disappears without an explicit leave event.
type PresenceStore interface {
	// Upsert replaces the tracked fields wholesale (last-write-wins per
	// user) and refreshes the record's TTL.
	Upsert(sessionID, userID string, record *types.PresenceRecord)

	// Get returns the record if present and fresh.
	Get(sessionID, userID string) (*types.PresenceRecord, bool)

	// List returns all fresh records for a session.
	List(sessionID string) []*types.PresenceRecord

	// Remove deletes the record immediately.
	Remove(sessionID, userID string)

	// Typing indicators use a much shorter TTL than presence records.
	SetTyping(sessionID, userID string)
	ClearTyping(sessionID, userID string)
	ListTyping(sessionID string) []string
}
