package store

import (
	"database/sql"
	"fmt"
	"time"
)

// InsertEpisodic records one episodic memory entry.
func (s *Store) InsertEpisodic(e EpisodicEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO episodic_memory (id, session_id, turn_id, event_type, summary, detail, outcome, importance, classification, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SessionID, nullableString(e.TurnID), e.EventType, e.Summary, nullableString(e.Detail),
		string(e.Outcome), e.Importance, string(e.Classification), e.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert episodic entry: %w", err)
	}
	return nil
}

// GetEpisodic returns episodic entries for a session, newest first,
// applying the read-side maintenance/idle filter: entries classified
// maintenance or idle are excluded.
func (s *Store) GetEpisodic(sessionID string, limit int) ([]EpisodicEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, session_id, turn_id, event_type, summary, detail, outcome, importance, classification, created_at
		 FROM episodic_memory
		 WHERE session_id = ? AND classification NOT IN (?, ?)
		 ORDER BY created_at DESC LIMIT ?`,
		sessionID, string(ClassMaintenance), string(ClassIdle), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query episodic entries: %w", err)
	}
	defer rows.Close()

	var out []EpisodicEntry
	for rows.Next() {
		var e EpisodicEntry
		var turnID, detail sql.NullString
		var created string
		if err := rows.Scan(&e.ID, &e.SessionID, &turnID, &e.EventType, &e.Summary, &detail,
			&e.Outcome, &e.Importance, &e.Classification, &created); err != nil {
			return nil, fmt.Errorf("scan episodic entry: %w", err)
		}
		e.TurnID = turnID.String
		e.Detail = detail.String
		e.CreatedAt, err = time.Parse(timeLayout, created)
		if err != nil {
			return nil, fmt.Errorf("parse episodic created_at: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpsertSemantic writes or overwrites a semantic fact by key.
func (s *Store) UpsertSemantic(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO semantic_memory (id, key, value, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		NewOpaqueID(), key, value, time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("upsert semantic entry %s: %w", key, err)
	}
	return nil
}

// GetSemantic returns the value for a semantic fact key, if present.
func (s *Store) GetSemantic(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value string
	err := s.db.QueryRow(`SELECT value FROM semantic_memory WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get semantic entry %s: %w", key, err)
	}
	return value, true, nil
}

// RecordRelationship increments the interaction counter for (party, kind)
//.
func (s *Store) RecordRelationship(party, kind string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO relationship_memory (id, party, kind, interactions, updated_at) VALUES (?, ?, ?, 1, ?)
		 ON CONFLICT(party, kind) DO UPDATE SET interactions = interactions + 1, updated_at = excluded.updated_at`,
		NewOpaqueID(), party, kind, time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("record relationship %s/%s: %w", party, kind, err)
	}
	return nil
}

// GetRelationship returns the interaction record for (party, kind), if
// one has been recorded.
func (s *Store) GetRelationship(party, kind string) (RelationshipEntry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var e RelationshipEntry
	var updatedAt string
	err := s.db.QueryRow(
		`SELECT id, party, kind, interactions, updated_at FROM relationship_memory WHERE party = ? AND kind = ?`,
		party, kind,
	).Scan(&e.ID, &e.Party, &e.Kind, &e.Interactions, &updatedAt)
	if err == sql.ErrNoRows {
		return RelationshipEntry{}, false, nil
	}
	if err != nil {
		return RelationshipEntry{}, false, fmt.Errorf("get relationship %s/%s: %w", party, kind, err)
	}
	e.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
	return e, true, nil
}

// InsertWorking stores a working-memory entry and then prunes the
// session down to the 20 highest-priority entries.
func (s *Store) InsertWorking(e WorkingEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(
		`INSERT INTO working_memory (id, session_id, kind, summary, priority, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.SessionID, e.Kind, e.Summary, e.Priority, e.CreatedAt.UTC().Format(timeLayout),
	); err != nil {
		return fmt.Errorf("insert working entry: %w", err)
	}

	_, err := s.db.Exec(
		`DELETE FROM working_memory WHERE session_id = ? AND id NOT IN (
			SELECT id FROM working_memory WHERE session_id = ? ORDER BY priority DESC, created_at DESC LIMIT 20
		)`, e.SessionID, e.SessionID,
	)
	if err != nil {
		return fmt.Errorf("prune working entries: %w", err)
	}
	return nil
}

// GetWorking returns the (at most 20) working-memory entries for a
// session, highest priority first.
func (s *Store) GetWorking(sessionID string) ([]WorkingEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, session_id, kind, summary, priority, created_at FROM working_memory
		 WHERE session_id = ? ORDER BY priority DESC, created_at DESC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query working entries: %w", err)
	}
	defer rows.Close()

	var out []WorkingEntry
	for rows.Next() {
		var e WorkingEntry
		var created string
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Kind, &e.Summary, &e.Priority, &created); err != nil {
			return nil, fmt.Errorf("scan working entry: %w", err)
		}
		e.CreatedAt, err = time.Parse(timeLayout, created)
		if err != nil {
			return nil, fmt.Errorf("parse working created_at: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
