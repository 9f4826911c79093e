package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// Reserved KV keys.
const (
	KeySleepUntil          = "sleep_until"
	KeyKillSwitchUntil     = "kill_switch_until"
	KeyKillSwitchReason    = "kill_switch_reason"
	KeyCurrentTier         = "current_tier"
	KeyZeroCreditsSince    = "zero_credits_since"
	KeyLastDistress        = "last_distress"
	KeyResurrectionHistory = "resurrection_history"
	KeyTierTransitions     = "tier_transitions"
	KeySameToolCount       = "same_tool_count"
	KeyLastToolName        = "last_tool_name"
	KeyActiveModel         = "active_model"
	KeyLastInferenceModel  = "last_inference_model"
	KeyLastInferenceAt     = "last_inference_at"
	KeyStartTime           = "start_time"
	KeyFundingNoticeDead   = "funding_notice_dead"
	KeySelfModLog          = "self_mod_log"
)

// GetKV returns the value for key, and whether it was present.
func (s *Store) GetKV(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value string
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get kv %s: %w", key, err)
	}
	return value, true, nil
}

// SetKV is a last-writer-wins single-key write.
func (s *Store) SetKV(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set kv %s: %w", key, err)
	}
	return nil
}

// DeleteKV removes a key; it is a no-op if the key is absent.
func (s *Store) DeleteKV(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete kv %s: %w", key, err)
	}
	return nil
}

// AppendCapped appends entry (JSON-encoded) to the JSON array stored at
// key, capping the array to the most recent `cap` entries. Used for
// tier_transitions and resurrection_history.
func (s *Store) AppendCapped(key string, entry any, cap int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var raw string
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&raw)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("read capped list %s: %w", key, err)
	}

	var list []json.RawMessage
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &list); err != nil {
			return fmt.Errorf("parse capped list %s: %w", key, err)
		}
	}

	encoded, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal capped entry for %s: %w", key, err)
	}
	list = append(list, encoded)
	if len(list) > cap {
		list = list[len(list)-cap:]
	}

	out, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("marshal capped list %s: %w", key, err)
	}

	_, err = s.db.Exec(
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, string(out),
	)
	if err != nil {
		return fmt.Errorf("write capped list %s: %w", key, err)
	}
	return nil
}

// GetCappedLen returns the number of entries currently stored at a
// capped-list key, used by tests asserting the 50-entry cap.
func (s *Store) GetCappedLen(key string) (int, error) {
	raw, ok, err := s.GetKV(key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	var list []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return 0, fmt.Errorf("parse capped list %s: %w", key, err)
	}
	return len(list), nil
}

// GetCappedRaw returns the raw JSON entries stored at a capped-list key,
// oldest first, letting callers decode their own entry type.
func (s *Store) GetCappedRaw(key string) ([]json.RawMessage, error) {
	raw, ok, err := s.GetKV(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var list []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, fmt.Errorf("parse capped list %s: %w", key, err)
	}
	return list, nil
}
