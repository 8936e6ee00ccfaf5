package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	// ARCHITECTURAL DISCOVERY: Import SQLite driver but only reference in connection string
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"codesign/pkg/interfaces"
	"codesign/pkg/types"
)

// Manager implements the DatabaseManager interface.
type Manager struct {
	db           *sql.DB
	logger       *zap.Logger
	writeChannel chan writeOperation // TECHNICAL: Single-writer pattern for SQLite
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex // TECHNICAL: Protect closed status
}

// writeOperation represents a database write operation
type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the database, applies the schema and starts the
// single-writer goroutine.
func NewManager(path string, timeout time.Duration, logger *zap.Logger) (*Manager, error) {
	// ARCHITECTURAL DISCOVERY: SQLite connection string carries the same
	// pragmas the writer loop relies on for concurrent reads
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(timeout)
	db.SetConnMaxIdleTime(timeout / 3)

	if err := applySQLiteOptimizations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}

	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	manager := &Manager{
		db:           db,
		logger:       logger,
		writeChannel: make(chan writeOperation, 100), // TECHNICAL: Buffer prevents blocking callers
		shutdown:     make(chan struct{}),
	}

	// ARCHITECTURAL DISCOVERY: Single-writer goroutine prevents SQLite write contention
	manager.wg.Add(1)
	go manager.writeLoop()

	return manager, nil
}

// writeLoop processes all write operations in a single goroutine
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			// FUNCTIONAL DISCOVERY: Retry exactly once after a short backoff;
			// a second failure is reported to the caller
			err := op.operation(m.db)
			if err != nil {
				m.logger.Warn("database write failed, retrying", zap.Error(err))
				time.Sleep(time.Second)
				err = op.operation(m.db)
				if err != nil {
					m.logger.Error("database write failed after retry", zap.Error(err))
				}
			}
			op.result <- err

		case <-m.shutdown:
			m.logger.Info("database write loop shutting down")
			return
		}
	}
}

// executeWrite queues a write operation and waits for completion
func (m *Manager) executeWrite(operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("database manager is closed")
	}
	m.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
		return <-result
	case <-time.After(30 * time.Second):
		return fmt.Errorf("write operation timeout")
	case <-m.shutdown:
		return fmt.Errorf("database manager is shutting down")
	}
}

// CreateSession inserts a new session row.
func (m *Manager) CreateSession(ctx context.Context, session *types.Session) error {
	return m.executeWrite(func(db *sql.DB) error {
		query := `
			INSERT INTO sessions (id, name, description, current_phase, experiment_mode, created_by, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`
		_, err := db.ExecContext(ctx, query,
			session.ID,
			session.Name,
			session.Description,
			string(session.CurrentPhase),
			string(session.ExperimentMode),
			session.CreatedBy,
			session.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert session: %w", err)
		}
		return nil
	})
}

// GetSession retrieves a session by ID.
func (m *Manager) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	// ARCHITECTURAL DISCOVERY: Read operations can be concurrent - no need for writeChannel
	query := `
		SELECT id, name, description, current_phase, experiment_mode, created_by, created_at, started_at, completed_at
		FROM sessions
		WHERE id = ?
	`

	row := m.db.QueryRowContext(ctx, query, sessionID)

	var session types.Session
	var phase, mode string
	var startedAt, completedAt sql.NullTime

	err := row.Scan(
		&session.ID,
		&session.Name,
		&session.Description,
		&phase,
		&mode,
		&session.CreatedBy,
		&session.CreatedAt,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	session.CurrentPhase = types.Phase(phase)
	session.ExperimentMode = types.ExperimentMode(mode)
	if startedAt.Valid {
		session.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		session.CompletedAt = &completedAt.Time
	}

	return &session, nil
}

// UpdateSessionPhase persists the phase fields mutated by the phase machine.
func (m *Manager) UpdateSessionPhase(ctx context.Context, session *types.Session) error {
	return m.executeWrite(func(db *sql.DB) error {
		query := `
			UPDATE sessions
			SET current_phase = ?, started_at = ?, completed_at = ?
			WHERE id = ?
		`
		_, err := db.ExecContext(ctx, query,
			string(session.CurrentPhase),
			session.StartedAt,
			session.CompletedAt,
			session.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update session phase: %w", err)
		}
		return nil
	})
}

// ListSessions returns all sessions, newest first.
func (m *Manager) ListSessions(ctx context.Context) ([]*types.Session, error) {
	query := `
		SELECT id, name, description, current_phase, experiment_mode, created_by, created_at, started_at, completed_at
		FROM sessions
		ORDER BY created_at DESC
	`

	rows, err := m.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*types.Session
	for rows.Next() {
		var session types.Session
		var phase, mode string
		var startedAt, completedAt sql.NullTime

		err := rows.Scan(
			&session.ID,
			&session.Name,
			&session.Description,
			&phase,
			&mode,
			&session.CreatedBy,
			&session.CreatedAt,
			&startedAt,
			&completedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}

		session.CurrentPhase = types.Phase(phase)
		session.ExperimentMode = types.ExperimentMode(mode)
		if startedAt.Valid {
			session.StartedAt = &startedAt.Time
		}
		if completedAt.Valid {
			session.CompletedAt = &completedAt.Time
		}
		sessions = append(sessions, &session)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating session rows: %w", err)
	}

	return sessions, nil
}

// AddParticipant inserts an attendance record.
func (m *Manager) AddParticipant(ctx context.Context, p *types.Participant) error {
	return m.executeWrite(func(db *sql.DB) error {
		query := `
			INSERT INTO participants (id, session_id, user_id, role, joined_at)
			VALUES (?, ?, ?, ?, ?)
		`
		_, err := db.ExecContext(ctx, query, p.ID, p.SessionID, p.UserID, string(p.Role), p.JoinedAt)
		if err != nil {
			return fmt.Errorf("failed to insert participant: %w", err)
		}
		return nil
	})
}

// MarkParticipantLeft sets left_at on the active attendance record.
// FUNCTIONAL DISCOVERY: Rows are never deleted; historical attendance is the
// point of the table.
func (m *Manager) MarkParticipantLeft(ctx context.Context, sessionID, userID string) error {
	return m.executeWrite(func(db *sql.DB) error {
		query := `
			UPDATE participants
			SET left_at = ?
			WHERE session_id = ? AND user_id = ? AND left_at IS NULL
		`
		_, err := db.ExecContext(ctx, query, time.Now().UTC(), sessionID, userID)
		if err != nil {
			return fmt.Errorf("failed to mark participant left: %w", err)
		}
		return nil
	})
}

// GetParticipants returns all attendance records for a session.
func (m *Manager) GetParticipants(ctx context.Context, sessionID string) ([]*types.Participant, error) {
	query := `
		SELECT id, session_id, user_id, role, joined_at, left_at
		FROM participants
		WHERE session_id = ?
		ORDER BY joined_at ASC
	`

	rows, err := m.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query participants: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var participants []*types.Participant
	for rows.Next() {
		var p types.Participant
		var role string
		var leftAt sql.NullTime

		if err := rows.Scan(&p.ID, &p.SessionID, &p.UserID, &role, &p.JoinedAt, &leftAt); err != nil {
			return nil, fmt.Errorf("failed to scan participant row: %w", err)
		}
		p.Role = types.Role(role)
		if leftAt.Valid {
			p.LeftAt = &leftAt.Time
		}
		participants = append(participants, &p)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating participant rows: %w", err)
	}

	return participants, nil
}

// GetActiveParticipant returns the attendance record without a left_at, if any.
func (m *Manager) GetActiveParticipant(ctx context.Context, sessionID, userID string) (*types.Participant, error) {
	query := `
		SELECT id, session_id, user_id, role, joined_at, left_at
		FROM participants
		WHERE session_id = ? AND user_id = ? AND left_at IS NULL
	`

	row := m.db.QueryRowContext(ctx, query, sessionID, userID)

	var p types.Participant
	var role string
	var leftAt sql.NullTime

	err := row.Scan(&p.ID, &p.SessionID, &p.UserID, &role, &p.JoinedAt, &leftAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrParticipantNotFound
		}
		return nil, fmt.Errorf("failed to query participant: %w", err)
	}
	p.Role = types.Role(role)
	if leftAt.Valid {
		p.LeftAt = &leftAt.Time
	}

	return &p, nil
}

// RecordTransition appends one phase-transition audit record.
func (m *Manager) RecordTransition(ctx context.Context, t *types.PhaseTransition) error {
	return m.executeWrite(func(db *sql.DB) error {
		query := `
			INSERT INTO phase_transitions (id, session_id, from_phase, to_phase, triggered_by, reason, transitioned_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`
		_, err := db.ExecContext(ctx, query,
			t.ID,
			t.SessionID,
			string(t.FromPhase),
			string(t.ToPhase),
			t.TriggeredBy,
			t.Reason,
			t.TransitionedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert phase transition: %w", err)
		}
		return nil
	})
}

// ListTransitions returns the ordered transition history for a session.
func (m *Manager) ListTransitions(ctx context.Context, sessionID string) ([]*types.PhaseTransition, error) {
	query := `
		SELECT id, session_id, from_phase, to_phase, triggered_by, reason, transitioned_at
		FROM phase_transitions
		WHERE session_id = ?
		ORDER BY transitioned_at ASC
	`

	rows, err := m.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query phase transitions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var transitions []*types.PhaseTransition
	for rows.Next() {
		var t types.PhaseTransition
		var from, to string

		if err := rows.Scan(&t.ID, &t.SessionID, &from, &to, &t.TriggeredBy, &t.Reason, &t.TransitionedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transition row: %w", err)
		}
		t.FromPhase = types.Phase(from)
		t.ToPhase = types.Phase(to)
		transitions = append(transitions, &t)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transition rows: %w", err)
	}

	return transitions, nil
}

// AppendInteraction appends one research-log record.
// TECHNICAL DISCOVERY: JSON serialization for the data column keeps record
// payloads flexible without schema churn.
func (m *Manager) AppendInteraction(ctx context.Context, rec *types.InteractionRecord) error {
	return m.executeWrite(func(db *sql.DB) error {
		dataJSON, err := json.Marshal(rec.Data)
		if err != nil {
			return fmt.Errorf("failed to marshal interaction data: %w", err)
		}

		query := `
			INSERT INTO interaction_logs (id, session_id, phase, kind, actor_id, actor_role, data, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`
		_, err = db.ExecContext(ctx, query,
			rec.ID,
			rec.SessionID,
			string(rec.Phase),
			rec.Kind,
			rec.ActorID,
			string(rec.ActorRole),
			string(dataJSON),
			rec.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("failed to insert interaction record: %w", err)
		}
		return nil
	})
}

// AppendDelta appends one opaque collaborative-editing delta.
func (m *Manager) AppendDelta(ctx context.Context, delta *types.ArtifactDelta) error {
	return m.executeWrite(func(db *sql.DB) error {
		query := `
			INSERT INTO artifact_deltas (id, session_id, artifact_id, origin, payload, appended_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`
		_, err := db.ExecContext(ctx, query,
			delta.ID,
			delta.SessionID,
			delta.ArtifactID,
			delta.Origin,
			delta.Payload,
			delta.AppendedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert artifact delta: %w", err)
		}
		return nil
	})
}

// HealthCheck validates database connectivity.
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var count int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions").Scan(&count); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}

	return nil
}

// Close shuts down the database manager.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil // Already closed
	}
	m.closed = true
	m.mu.Unlock()

	// ARCHITECTURAL DISCOVERY: Graceful shutdown requires careful goroutine coordination
	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	return nil
}

// applySQLiteOptimizations applies performance optimizations
func applySQLiteOptimizations(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -64000",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute pragma %s: %w", pragma, err)
		}
	}

	return nil
}
