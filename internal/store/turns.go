package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// timeLayout is fixed-width (nine fractional digits, always UTC "Z"),
// so the stored strings sort in SQL exactly as the times they encode.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// InsertTurn appends a new turn. Fails with ErrDuplicateID if id already
// exists.
func (s *Store) InsertTurn(t Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO turns (id, timestamp, state, input, input_source, thinking,
			prompt_tokens, completion_tokens, total_tokens, cost_cents)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Timestamp.UTC().Format(timeLayout), string(t.State), t.Input, string(t.InputSource), t.Thinking,
		t.TokenUsage.Prompt, t.TokenUsage.Completion, t.TokenUsage.Total, t.CostCents,
	)
	if err != nil {
		if isUniqueConstraint(err) {
			return fmt.Errorf("insert turn %s: %w", t.ID, ErrDuplicateID)
		}
		return fmt.Errorf("insert turn: %w", err)
	}
	return nil
}

// InsertToolCall appends a tool-call row belonging to turnID. Fails if
// turnID is unknown or the call id is already used.
func (s *Store) InsertToolCall(turnID string, tc ToolCall) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var exists int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM turns WHERE id = ?`, turnID).Scan(&exists); err != nil {
		return fmt.Errorf("check turn exists: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("insert tool call: %w", ErrTurnNotFound)
	}

	args, err := json.Marshal(tc.Arguments)
	if err != nil {
		return fmt.Errorf("marshal tool call arguments: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO tool_calls (id, turn_id, name, arguments, result, duration_ms, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		tc.ID, turnID, tc.Name, string(args), tc.Result, tc.DurationMs, nullableString(tc.Error),
	)
	if err != nil {
		if isUniqueConstraint(err) {
			return fmt.Errorf("insert tool call %s: %w", tc.ID, ErrDuplicateID)
		}
		return fmt.Errorf("insert tool call: %w", err)
	}
	return nil
}

// InsertTurnWithToolCalls atomically appends a turn and all of its tool
// calls in one transaction, so a turn row is never observable without its
// tool-call rows.
func (s *Store) InsertTurnWithToolCalls(t Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin turn transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO turns (id, timestamp, state, input, input_source, thinking,
			prompt_tokens, completion_tokens, total_tokens, cost_cents)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Timestamp.UTC().Format(timeLayout), string(t.State), t.Input, string(t.InputSource), t.Thinking,
		t.TokenUsage.Prompt, t.TokenUsage.Completion, t.TokenUsage.Total, t.CostCents,
	)
	if err != nil {
		if isUniqueConstraint(err) {
			return fmt.Errorf("insert turn %s: %w", t.ID, ErrDuplicateID)
		}
		return fmt.Errorf("insert turn: %w", err)
	}

	for _, tc := range t.ToolCalls {
		args, err := json.Marshal(tc.Arguments)
		if err != nil {
			return fmt.Errorf("marshal tool call arguments: %w", err)
		}
		if _, err := tx.Exec(
			`INSERT INTO tool_calls (id, turn_id, name, arguments, result, duration_ms, error)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			tc.ID, t.ID, tc.Name, string(args), tc.Result, tc.DurationMs, nullableString(tc.Error),
		); err != nil {
			if isUniqueConstraint(err) {
				return fmt.Errorf("insert tool call %s: %w", tc.ID, ErrDuplicateID)
			}
			return fmt.Errorf("insert tool call: %w", err)
		}
	}

	return tx.Commit()
}

// GetRecentTurns returns the newest n turns, oldest first.
func (s *Store) GetRecentTurns(n int) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, timestamp, state, input, input_source, thinking,
			prompt_tokens, completion_tokens, total_tokens, cost_cents
		 FROM turns ORDER BY timestamp DESC, id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query recent turns: %w", err)
	}
	defer rows.Close()

	turns, err := scanTurns(rows)
	if err != nil {
		return nil, err
	}
	// reverse to chronological (oldest first)
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	if err := s.attachToolCalls(turns); err != nil {
		return nil, err
	}
	return turns, nil
}

// QueryTurns returns a filtered, paginated, newest-first page of turns
//.
func (s *Store) QueryTurns(q TurnQuery) (TurnPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}

	where := []string{}
	args := []any{}

	if q.From != nil {
		where = append(where, "timestamp >= ?")
		args = append(args, q.From.UTC().Format(timeLayout))
	}
	if q.To != nil {
		where = append(where, "timestamp < ?")
		args = append(args, q.To.UTC().Format(timeLayout))
	}
	if q.State != "" {
		where = append(where, "state = ?")
		args = append(args, string(q.State))
	}
	if q.Cursor != nil {
		where = append(where, "(timestamp < ? OR (timestamp = ? AND id < ?))")
		ts := q.Cursor.Timestamp.UTC().Format(timeLayout)
		args = append(args, ts, ts, q.Cursor.ID)
	}
	if q.Q != "" {
		// case-insensitive substring search across thinking, input, and
		// tool names+results — approximated with a LIKE over a lowercased
		// concatenation, joined against tool_calls.
		where = append(where, `id IN (
			SELECT t.id FROM turns t
			LEFT JOIN tool_calls tc ON tc.turn_id = t.id
			WHERE LOWER(COALESCE(t.thinking,'') || ' ' || COALESCE(t.input,'') || ' ' ||
				COALESCE(tc.name,'') || ' ' || COALESCE(tc.result,'')) LIKE ?
		)`)
		args = append(args, "%"+strings.ToLower(q.Q)+"%")
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM turns %s`, whereClause)
	if err := s.db.QueryRow(countQuery, args...).Scan(&total); err != nil {
		return TurnPage{}, fmt.Errorf("count turns: %w", err)
	}

	rowsQuery := fmt.Sprintf(
		`SELECT id, timestamp, state, input, input_source, thinking,
			prompt_tokens, completion_tokens, total_tokens, cost_cents
		 FROM turns %s ORDER BY timestamp DESC, id DESC LIMIT ?`, whereClause)
	rows, err := s.db.Query(rowsQuery, append(append([]any{}, args...), limit+1)...)
	if err != nil {
		return TurnPage{}, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	turns, err := scanTurns(rows)
	if err != nil {
		return TurnPage{}, err
	}

	hasMore := len(turns) > limit
	if hasMore {
		turns = turns[:limit]
	}
	if err := s.attachToolCalls(turns); err != nil {
		return TurnPage{}, err
	}

	return TurnPage{Turns: turns, HasMore: hasMore, TotalMatched: total}, nil
}

func scanTurns(rows *sql.Rows) ([]Turn, error) {
	var turns []Turn
	for rows.Next() {
		var t Turn
		var ts, state, inputSource string
		var input, thinking sql.NullString
		if err := rows.Scan(&t.ID, &ts, &state, &input, &inputSource, &thinking,
			&t.TokenUsage.Prompt, &t.TokenUsage.Completion, &t.TokenUsage.Total, &t.CostCents); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		parsed, err := time.Parse(timeLayout, ts)
		if err != nil {
			return nil, fmt.Errorf("parse turn timestamp: %w", err)
		}
		t.Timestamp = parsed
		t.State = AgentState(state)
		t.InputSource = InputSource(inputSource)
		t.Input = input.String
		t.Thinking = thinking.String
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

func (s *Store) attachToolCalls(turns []Turn) error {
	if len(turns) == 0 {
		return nil
	}
	byID := make(map[string]*Turn, len(turns))
	placeholders := make([]string, len(turns))
	args := make([]any, len(turns))
	for i := range turns {
		byID[turns[i].ID] = &turns[i]
		placeholders[i] = "?"
		args[i] = turns[i].ID
	}

	q := fmt.Sprintf(`SELECT id, turn_id, name, arguments, result, duration_ms, error
		FROM tool_calls WHERE turn_id IN (%s) ORDER BY rowid ASC`, strings.Join(placeholders, ","))
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return fmt.Errorf("query tool calls: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var tc ToolCall
		var argsJSON string
		var errStr sql.NullString
		if err := rows.Scan(&tc.ID, &tc.TurnID, &tc.Name, &argsJSON, &tc.Result, &tc.DurationMs, &errStr); err != nil {
			return fmt.Errorf("scan tool call: %w", err)
		}
		tc.Error = errStr.String
		if argsJSON != "" {
			_ = json.Unmarshal([]byte(argsJSON), &tc.Arguments)
		}
		if t, ok := byID[tc.TurnID]; ok {
			t.ToolCalls = append(t.ToolCalls, tc)
		}
	}
	return rows.Err()
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func isUniqueConstraint(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint")
}
