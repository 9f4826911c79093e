package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AuditEventType enumerates the lifecycle-critical events the runtime
// records to the audit trail regardless of the configured log level.
type AuditEventType string

const (
	AuditGuardBlocked     AuditEventType = "guard_blocked"
	AuditToolExecuted     AuditEventType = "tool_executed"
	AuditTierTransition   AuditEventType = "tier_transition"
	AuditResurrection     AuditEventType = "resurrection"
	AuditSleep            AuditEventType = "sleep"
	AuditKillSwitch       AuditEventType = "kill_switch"
	AuditSanitizerBlocked AuditEventType = "sanitizer_blocked"
)

// AuditEvent is one structured, append-only audit line.
type AuditEvent struct {
	Timestamp time.Time      `json:"ts"`
	Type      AuditEventType `json:"type"`
	Summary   string         `json:"summary"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// AuditLog is a simple append-only JSON-lines writer, safe for concurrent
// use by the agent loop and the scheduler.
type AuditLog struct {
	mu   sync.Mutex
	file *os.File
}

// NewAuditLog opens (creating if necessary) the audit log file at path.
func NewAuditLog(path string) (*AuditLog, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, err
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, err
	}
	return &AuditLog{file: f}, nil
}

// Record appends one audit event. Failures are logged and swallowed —
// the audit trail must never block the agent loop.
func (a *AuditLog) Record(evt AuditEvent) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	line, err := json.Marshal(evt)
	if err != nil {
		Get(CategoryAgent).Sugar().Warnw("audit marshal failed", "error", err)
		return
	}
	line = append(line, '\n')

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.file.Write(line); err != nil {
		Get(CategoryAgent).Sugar().Warnw("audit write failed", "error", err)
	}
}

// Close flushes and closes the underlying file.
func (a *AuditLog) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.file.Close()
}
