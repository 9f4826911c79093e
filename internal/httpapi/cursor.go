package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"automaton/internal/store"
)

// wireCursor is the JSON shape base64url-encoded into the opaque
// "cursor" query parameter /api/logs accepts and returns.
type wireCursor struct {
	Timestamp time.Time `json:"timestamp"`
	ID        string    `json:"id"`
}

func encodeCursor(c store.Cursor) string {
	raw, _ := json.Marshal(wireCursor{Timestamp: c.Timestamp, ID: c.ID})
	return base64.RawURLEncoding.EncodeToString(raw)
}

func decodeCursor(s string) (*store.Cursor, error) {
	if s == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor encoding: %w", err)
	}
	var wc wireCursor
	if err := json.Unmarshal(raw, &wc); err != nil {
		return nil, fmt.Errorf("invalid cursor payload: %w", err)
	}
	return &store.Cursor{Timestamp: wc.Timestamp, ID: wc.ID}, nil
}
