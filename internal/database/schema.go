package database

// Schema DDL applied at startup. CREATE IF NOT EXISTS keeps startup
// idempotent across restarts against the same database file.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		id              TEXT PRIMARY KEY,
		name            TEXT NOT NULL,
		description     TEXT NOT NULL DEFAULT '',
		current_phase   TEXT NOT NULL DEFAULT 'setup',
		experiment_mode TEXT NOT NULL DEFAULT 'with_ai',
		created_by      TEXT NOT NULL,
		created_at      DATETIME NOT NULL,
		started_at      DATETIME,
		completed_at    DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS participants (
		id         TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		user_id    TEXT NOT NULL,
		role       TEXT NOT NULL,
		joined_at  DATETIME NOT NULL,
		left_at    DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS phase_transitions (
		id              TEXT PRIMARY KEY,
		session_id      TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		from_phase      TEXT NOT NULL,
		to_phase        TEXT NOT NULL,
		triggered_by    TEXT NOT NULL,
		reason          TEXT NOT NULL DEFAULT '',
		transitioned_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS interaction_logs (
		id         TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		phase      TEXT NOT NULL DEFAULT '',
		kind       TEXT NOT NULL,
		actor_id   TEXT NOT NULL,
		actor_role TEXT NOT NULL,
		data       TEXT NOT NULL DEFAULT '{}',
		timestamp  DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS artifact_deltas (
		id          TEXT PRIMARY KEY,
		session_id  TEXT NOT NULL,
		artifact_id TEXT NOT NULL,
		origin      TEXT NOT NULL,
		payload     TEXT NOT NULL,
		appended_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_participants_session ON participants(session_id, user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_transitions_session ON phase_transitions(session_id, transitioned_at)`,
	`CREATE INDEX IF NOT EXISTS idx_interactions_session ON interaction_logs(session_id, timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_deltas_artifact ON artifact_deltas(session_id, artifact_id, appended_at)`,
}
