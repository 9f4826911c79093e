package store

import (
	"database/sql"
	"fmt"
	"time"
)

// InsertInboxMessage is idempotent on id: a second insert of the same id
// is a no-op.
func (s *Store) InsertInboxMessage(m InboxMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var exists int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM inbox_messages WHERE id = ?`, m.ID).Scan(&exists); err != nil {
		return fmt.Errorf("check inbox message exists: %w", err)
	}
	if exists > 0 {
		return nil
	}

	_, err := s.db.Exec(
		`INSERT INTO inbox_messages (id, from_addr, to_addr, content, signed_at, created_at, reply_to, processed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, NULL)`,
		m.ID, m.From, m.To, m.Content, m.SignedAt.UTC().Format(timeLayout), m.CreatedAt.UTC().Format(timeLayout), nullableString(m.ReplyTo),
	)
	if err != nil {
		return fmt.Errorf("insert inbox message: %w", err)
	}
	return nil
}

// GetUnprocessedInboxMessages returns the oldest limit unprocessed
// messages.
func (s *Store) GetUnprocessedInboxMessages(limit int) ([]InboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, from_addr, to_addr, content, signed_at, created_at, reply_to
		 FROM inbox_messages WHERE processed_at IS NULL ORDER BY created_at ASC, id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query unprocessed inbox: %w", err)
	}
	defer rows.Close()

	var out []InboxMessage
	for rows.Next() {
		var m InboxMessage
		var signedAt, createdAt string
		var replyTo sql.NullString
		if err := rows.Scan(&m.ID, &m.From, &m.To, &m.Content, &signedAt, &createdAt, &replyTo); err != nil {
			return nil, fmt.Errorf("scan inbox message: %w", err)
		}
		m.SignedAt, err = time.Parse(timeLayout, signedAt)
		if err != nil {
			return nil, fmt.Errorf("parse signed_at: %w", err)
		}
		m.CreatedAt, err = time.Parse(timeLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		m.ReplyTo = replyTo.String
		out = append(out, m)
	}
	return out, rows.Err()
}

// MarkInboxMessageProcessed sets processedAt if unset; idempotent.
func (s *Store) MarkInboxMessageProcessed(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`UPDATE inbox_messages SET processed_at = ? WHERE id = ? AND processed_at IS NULL`,
		time.Now().UTC().Format(timeLayout), id,
	)
	if err != nil {
		return fmt.Errorf("mark inbox message processed: %w", err)
	}
	return nil
}
