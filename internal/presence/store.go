package presence

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"codesign/pkg/types"
)

// Store tracks ephemeral per-session presence and typing state in memory.
// ARCHITECTURAL DISCOVERY: Staleness precedes disconnect detection; a record
// not refreshed within the TTL is excluded from listing even when the
// underlying channel is technically still open, which is what reconciles
// abrupt network loss without an explicit leave event.
type Store struct {
	mu     sync.RWMutex
	ttl    time.Duration
	typing time.Duration
	logger *zap.Logger

	// sessionID -> userID -> record
	records map[string]map[string]*types.PresenceRecord
	// sessionID -> userID -> expiry
	typingSet map[string]map[string]time.Time

	// TECHNICAL DISCOVERY: Injected clock enables deterministic TTL tests
	now func() time.Time

	sweepStop chan struct{}
	sweepOnce sync.Once
}

// NewStore creates a presence store with the given record and typing TTLs.
func NewStore(ttl, typingTTL time.Duration, logger *zap.Logger) *Store {
	return &Store{
		ttl:       ttl,
		typing:    typingTTL,
		logger:    logger,
		records:   make(map[string]map[string]*types.PresenceRecord),
		typingSet: make(map[string]map[string]time.Time),
		now:       time.Now,
		sweepStop: make(chan struct{}),
	}
}

// StartSweeper launches a background goroutine that reclaims expired entries.
// Listing already filters stale records; the sweeper only bounds memory.
func (s *Store) StartSweeper(every time.Duration) {
	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.sweep()
			case <-s.sweepStop:
				return
			}
		}
	}()
}

// Stop terminates the sweeper goroutine. Safe to call more than once.
func (s *Store) Stop() {
	s.sweepOnce.Do(func() { close(s.sweepStop) })
}

// Upsert stores the record for (session, user) and refreshes its TTL.
// FUNCTIONAL DISCOVERY: The record replaces all tracked fields wholesale,
// last-write-wins per user, so removed fields are not resurrected by merges.
func (s *Store) Upsert(sessionID, userID string, record *types.PresenceRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.records[sessionID] == nil {
		s.records[sessionID] = make(map[string]*types.PresenceRecord)
	}

	stored := *record
	stored.UserID = userID
	if stored.Status == "" {
		stored.Status = types.PresenceActive
	}
	stored.UpdatedAt = s.now()
	s.records[sessionID][userID] = &stored
}

// Get returns the record if present and fresh.
func (s *Store) Get(sessionID, userID string) (*types.PresenceRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[sessionID][userID]
	if !ok || s.stale(record.UpdatedAt, s.ttl) {
		return nil, false
	}
	copied := *record
	return &copied, true
}

// List returns all fresh records for a session.
func (s *Store) List(sessionID string) []*types.PresenceRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*types.PresenceRecord
	for _, record := range s.records[sessionID] {
		if s.stale(record.UpdatedAt, s.ttl) {
			continue
		}
		copied := *record
		out = append(out, &copied)
	}
	return out
}

// Remove deletes the record immediately. Idempotent.
func (s *Store) Remove(sessionID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if users, ok := s.records[sessionID]; ok {
		delete(users, userID)
		if len(users) == 0 {
			delete(s.records, sessionID)
		}
	}
	if users, ok := s.typingSet[sessionID]; ok {
		delete(users, userID)
		if len(users) == 0 {
			delete(s.typingSet, sessionID)
		}
	}
}

// SetTyping marks a user as composing, with the short typing TTL.
func (s *Store) SetTyping(sessionID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.typingSet[sessionID] == nil {
		s.typingSet[sessionID] = make(map[string]time.Time)
	}
	s.typingSet[sessionID][userID] = s.now().Add(s.typing)
}

// ClearTyping removes the typing marker. Idempotent.
func (s *Store) ClearTyping(sessionID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if users, ok := s.typingSet[sessionID]; ok {
		delete(users, userID)
		if len(users) == 0 {
			delete(s.typingSet, sessionID)
		}
	}
}

// ListTyping returns users whose typing marker has not expired.
func (s *Store) ListTyping(sessionID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	var out []string
	for userID, expiry := range s.typingSet[sessionID] {
		if now.Before(expiry) {
			out = append(out, userID)
		}
	}
	return out
}

func (s *Store) stale(updatedAt time.Time, ttl time.Duration) bool {
	return s.now().Sub(updatedAt) > ttl
}

// sweep drops expired presence records and typing markers.
func (s *Store) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	swept := 0
	for sessionID, users := range s.records {
		for userID, record := range users {
			if now.Sub(record.UpdatedAt) > s.ttl {
				delete(users, userID)
				swept++
			}
		}
		if len(users) == 0 {
			delete(s.records, sessionID)
		}
	}
	for sessionID, users := range s.typingSet {
		for userID, expiry := range users {
			if !now.Before(expiry) {
				delete(users, userID)
			}
		}
		if len(users) == 0 {
			delete(s.typingSet, sessionID)
		}
	}
	if swept > 0 {
		s.logger.Debug("swept stale presence records", zap.Int("count", swept))
	}
}
