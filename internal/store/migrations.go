package store

import "database/sql"

// migration is one forward-only schema change, applied in index order.
// An applied-migration number found in schema_version that this binary
// doesn't recognize is fatal at Open: running an older binary against a
// newer database is refused rather than silently skipping schema.
type migration struct {
	name string
	up   func(tx *sql.Tx) error
}

var migrations = []migration{
	{
		name: "0001_init",
		up: func(tx *sql.Tx) error {
			stmts := []string{
				`CREATE TABLE IF NOT EXISTS turns (
					id TEXT PRIMARY KEY,
					timestamp TEXT NOT NULL,
					state TEXT NOT NULL,
					input TEXT,
					input_source TEXT,
					thinking TEXT,
					prompt_tokens INTEGER NOT NULL DEFAULT 0,
					completion_tokens INTEGER NOT NULL DEFAULT 0,
					total_tokens INTEGER NOT NULL DEFAULT 0,
					cost_cents INTEGER NOT NULL DEFAULT 0
				)`,
				`CREATE INDEX IF NOT EXISTS idx_turns_ts_id ON turns(timestamp, id)`,
				`CREATE TABLE IF NOT EXISTS tool_calls (
					id TEXT PRIMARY KEY,
					turn_id TEXT NOT NULL REFERENCES turns(id),
					name TEXT NOT NULL,
					arguments TEXT NOT NULL,
					result TEXT NOT NULL,
					duration_ms INTEGER NOT NULL,
					error TEXT
				)`,
				`CREATE INDEX IF NOT EXISTS idx_tool_calls_turn ON tool_calls(turn_id)`,
				`CREATE TABLE IF NOT EXISTS kv (
					key TEXT PRIMARY KEY,
					value TEXT NOT NULL
				)`,
				`CREATE TABLE IF NOT EXISTS inbox_messages (
					id TEXT PRIMARY KEY,
					from_addr TEXT NOT NULL,
					to_addr TEXT NOT NULL,
					content TEXT NOT NULL,
					signed_at TEXT NOT NULL,
					created_at TEXT NOT NULL,
					reply_to TEXT,
					processed_at TEXT
				)`,
				`CREATE INDEX IF NOT EXISTS idx_inbox_unprocessed ON inbox_messages(processed_at, created_at)`,
				`CREATE TABLE IF NOT EXISTS episodic_memory (
					id TEXT PRIMARY KEY,
					session_id TEXT NOT NULL,
					turn_id TEXT,
					event_type TEXT NOT NULL,
					summary TEXT NOT NULL,
					detail TEXT,
					outcome TEXT NOT NULL,
					importance REAL NOT NULL,
					classification TEXT NOT NULL,
					created_at TEXT NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_episodic_session ON episodic_memory(session_id, created_at)`,
				`CREATE TABLE IF NOT EXISTS semantic_memory (
					id TEXT PRIMARY KEY,
					key TEXT NOT NULL UNIQUE,
					value TEXT NOT NULL,
					updated_at TEXT NOT NULL
				)`,
				`CREATE TABLE IF NOT EXISTS relationship_memory (
					id TEXT PRIMARY KEY,
					party TEXT NOT NULL,
					kind TEXT NOT NULL,
					interactions INTEGER NOT NULL DEFAULT 0,
					updated_at TEXT NOT NULL,
					UNIQUE(party, kind)
				)`,
				`CREATE TABLE IF NOT EXISTS working_memory (
					id TEXT PRIMARY KEY,
					session_id TEXT NOT NULL,
					kind TEXT NOT NULL,
					summary TEXT NOT NULL,
					priority REAL NOT NULL,
					created_at TEXT NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_working_session_priority ON working_memory(session_id, priority DESC)`,
				`CREATE TABLE IF NOT EXISTS children (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					address TEXT NOT NULL,
					genesis_prompt TEXT,
					created_at TEXT NOT NULL
				)`,
				`CREATE TABLE IF NOT EXISTS registry_entries (
					id TEXT PRIMARY KEY,
					address TEXT NOT NULL,
					role TEXT,
					registered_at TEXT NOT NULL
				)`,
				`CREATE TABLE IF NOT EXISTS cost_events (
					id TEXT PRIMARY KEY,
					turn_id TEXT,
					cents INTEGER NOT NULL,
					kind TEXT NOT NULL,
					created_at TEXT NOT NULL
				)`,
				`CREATE TABLE IF NOT EXISTS revenue_events (
					id TEXT PRIMARY KEY,
					cents INTEGER NOT NULL,
					source TEXT NOT NULL,
					created_at TEXT NOT NULL
				)`,
				`CREATE TABLE IF NOT EXISTS strategies (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					detail TEXT,
					created_at TEXT NOT NULL
				)`,
				`CREATE TABLE IF NOT EXISTS benchmarks (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					score REAL NOT NULL,
					created_at TEXT NOT NULL
				)`,
				`CREATE TABLE IF NOT EXISTS hosted_services (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					port INTEGER,
					created_at TEXT NOT NULL
				)`,
				`CREATE TABLE IF NOT EXISTS evaluations (
					id TEXT PRIMARY KEY,
					subject TEXT NOT NULL,
					verdict TEXT NOT NULL,
					created_at TEXT NOT NULL
				)`,
				`CREATE TABLE IF NOT EXISTS fitness_scores (
					id TEXT PRIMARY KEY,
					score REAL NOT NULL,
					created_at TEXT NOT NULL
				)`,
			}
			for _, s := range stmts {
				if _, err := tx.Exec(s); err != nil {
					return err
				}
			}
			return nil
		},
	},
}
