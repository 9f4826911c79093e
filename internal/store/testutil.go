package store

import (
	"path/filepath"
	"testing"
)

// OpenTest opens a fresh Store backed by a temp-dir SQLite file, closed
// automatically at test cleanup. Mirrors codenerd's own store test setup.
func OpenTest(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "automaton.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}
