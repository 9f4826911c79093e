// Package logging provides category-based structured logging for the
// automaton runtime. Every subsystem gets its own named logger so the
// operator can tell, at a glance, which component emitted a line; all
// loggers share one underlying zap core so log level and encoding are
// configured once.
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category identifies the subsystem emitting a log line.
type Category string

const (
	CategoryAgent     Category = "agent"
	CategoryTier      Category = "tier"
	CategoryStore     Category = "store"
	CategoryTools     Category = "tools"
	CategoryContext   Category = "context"
	CategoryMemory    Category = "memory"
	CategoryScheduler Category = "scheduler"
	CategorySanitizer Category = "sanitizer"
	CategoryClients   Category = "clients"
	CategoryHTTPAPI   Category = "httpapi"
)

var (
	mu      sync.RWMutex
	base    *zap.Logger
	loggers = make(map[Category]*zap.Logger)
)

// Configure installs the base logger used by all categories. JSON
// encoding is used in production; console encoding otherwise. Calling
// Configure again replaces the base logger and clears cached category
// loggers so subsequent Get calls pick up the new configuration.
func Configure(jsonFormat bool, debug bool) error {
	cfg := zap.NewProductionConfig()
	if !jsonFormat {
		cfg = zap.NewDevelopmentConfig()
	}
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	l, err := cfg.Build()
	if err != nil {
		return err
	}

	mu.Lock()
	base = l
	loggers = make(map[Category]*zap.Logger)
	mu.Unlock()
	return nil
}

// Get returns the logger for a category, building it (and, if necessary,
// a no-op base logger) on first use so packages can log before
// Configure has run, e.g. during early CLI flag parsing.
func Get(cat Category) *zap.Logger {
	mu.RLock()
	if l, ok := loggers[cat]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[cat]; ok {
		return l
	}
	if base == nil {
		base = zap.NewNop()
	}
	l := base.With(zap.String("category", string(cat)))
	loggers[cat] = l
	return l
}

// Sync flushes all configured loggers. Call on shutdown.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	if base != nil {
		_ = base.Sync()
	}
}
