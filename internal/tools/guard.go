package tools

import (
	"encoding/json"
	"fmt"
	"time"

	"automaton/internal/config"
	"automaton/internal/logging"
	"automaton/internal/store"
)

// pathArgKeys are the argument names the guard inspects for protected-
// path and traversal violations, across every tool's schema.
var pathArgKeys = []string{"path", "file", "dest", "destination", "source", "target"}

// Guard gates every tool call before Execute runs. It holds no state of
// its own beyond a reference to the store, which backs the self-mod
// rate limit.
type Guard struct {
	db    *store.Store
	cfg   config.GuardConfig
	audit *logging.AuditLog
}

// NewGuard constructs a Guard against the given store and policy. audit
// may be nil, in which case blocked decisions are only zap-logged.
func NewGuard(db *store.Store, cfg config.GuardConfig, audit *logging.AuditLog) *Guard {
	return &Guard{db: db, cfg: cfg, audit: audit}
}

// Decision is the outcome of a guard check.
type Decision struct {
	Blocked bool
	Reason  string
}

// blocked builds a Decision in the fixed "Blocked by X: Y" shape used
// for both the tool result returned to the model and the audit log.
func blocked(kind, detail string) Decision {
	return Decision{Blocked: true, Reason: fmt.Sprintf("Blocked by %s: %s", kind, detail)}
}

// Check runs every applicable guard stage for a tool call and returns
// the first violation found, or an unblocked Decision if none apply.
// It must run strictly before tool.Execute.
func (g *Guard) Check(tool *Tool, args map[string]any) (Decision, error) {
	if d := g.checkForbiddenCommand(tool, args); d.Blocked {
		g.recordBlock(tool.Name, d)
		return d, nil
	}
	if d := g.checkPaths(args); d.Blocked {
		g.recordBlock(tool.Name, d)
		return d, nil
	}
	if tool.Category == CategorySelfMod {
		d, err := g.checkSelfMod(tool.Name, args)
		if err != nil {
			return Decision{}, err
		}
		if d.Blocked {
			g.recordBlock(tool.Name, d)
			return d, nil
		}
	}
	if tool.Name == "install_package" {
		if d := g.checkPackage(args); d.Blocked {
			g.recordBlock(tool.Name, d)
			return d, nil
		}
	}
	return Decision{}, nil
}

func (g *Guard) checkForbiddenCommand(tool *Tool, args map[string]any) Decision {
	if tool.Category != CategoryExec {
		return Decision{}
	}
	cmd, _ := args["command"].(string)
	if cmd == "" {
		return Decision{}
	}
	if cat := checkForbiddenPatterns(cmd); cat != "" {
		return blocked("forbidden pattern", cat)
	}
	return Decision{}
}

func (g *Guard) checkPaths(args map[string]any) Decision {
	for _, key := range pathArgKeys {
		v, ok := args[key].(string)
		if !ok || v == "" {
			continue
		}
		if hasPathTraversal(v) {
			return blocked("path traversal", v)
		}
		if isProtected(v) {
			return blocked("protected path", v)
		}
	}
	for _, extra := range g.cfg.ProtectedPaths {
		for _, key := range pathArgKeys {
			if v, ok := args[key].(string); ok && v == extra {
				return blocked("protected path", v)
			}
		}
	}
	return Decision{}
}

// selfModEntry is one recorded self-mod tool call, used only to count
// calls within the rate-limit window.
type selfModEntry struct {
	At time.Time `json:"at"`
}

func (g *Guard) checkSelfMod(toolName string, args map[string]any) (Decision, error) {
	if content, ok := args["content"].(string); ok {
		maxBytes := g.cfg.MaxSelfWriteBytes
		if maxBytes <= 0 {
			maxBytes = 100_000
		}
		if int64(len(content)) > maxBytes {
			return blocked("size limit", fmt.Sprintf("%s write of %d bytes exceeds %d", toolName, len(content), maxBytes)), nil
		}
	}

	window := g.cfg.SelfModRateWindow
	if window <= 0 {
		window = time.Hour
	}
	limit := g.cfg.SelfModRateLimit
	if limit <= 0 {
		limit = 20
	}

	raw, err := g.db.GetCappedRaw(store.KeySelfModLog)
	if err != nil {
		return Decision{}, err
	}
	cutoff := time.Now().UTC().Add(-window)
	count := 0
	for _, r := range raw {
		var e selfModEntry
		if err := json.Unmarshal(r, &e); err != nil {
			continue
		}
		if e.At.After(cutoff) {
			count++
		}
	}
	if count >= limit {
		return blocked("rate limit", fmt.Sprintf("%d self-mod calls in the last %s", count, window)), nil
	}
	return Decision{}, nil
}

// RecordSelfMod appends a self-mod timestamp to the rate-limit log.
// Called by the agent loop after a self-mod tool executes successfully.
func (g *Guard) RecordSelfMod() error {
	return g.db.AppendCapped(store.KeySelfModLog, selfModEntry{At: time.Now().UTC()}, 200)
}

func (g *Guard) checkPackage(args map[string]any) Decision {
	spec, _ := args["package"].(string)
	if spec == "" {
		return Decision{}
	}
	if reason := checkPackageSpec(spec); reason != "" {
		return blocked("package policy", reason)
	}
	return Decision{}
}

func (g *Guard) recordBlock(toolName string, d Decision) {
	logging.Get(logging.CategoryTools).Sugar().Warnw("guard blocked tool call", "tool", toolName, "reason", d.Reason)
	if g.audit != nil {
		g.audit.Record(logging.AuditEvent{
			Type:    logging.AuditGuardBlocked,
			Summary: d.Reason,
			Fields:  map[string]any{"tool": toolName},
		})
	}
}
