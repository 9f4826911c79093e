package tools

import (
	"os"
	"path/filepath"
	"strings"
)

// protectedBasenames are files that are never writable, deletable, or
// truncatable by a self-mod or filesystem tool call regardless of
// directory, matched against the final path element.
var protectedBasenames = map[string]bool{
	"automaton.db":     true,
	"automaton.db-wal": true,
	"automaton.db-shm": true,
	"wallet.json":      true,
	"config.json":      true,
	"config.yaml":      true,
	"genesis.md":       true,
	"constitution.md":  true,
	"audit.log":        true,
	"passwd":           true,
	"shadow":           true,
}

// protectedDirPrefixes are directories whose entire contents are
// off-limits, expanded against the user's home directory where the
// entry starts with "~/".
var protectedDirPrefixes = []string{
	"~/.ssh/",
	"~/.gnupg/",
	"~/.gpg/",
	"~/.aws/",
	"~/.azure/",
	"~/.gcloud/",
	"~/.kube/",
	"~/.docker/",
	"/etc/systemd/",
	"/proc/",
	"/sys/",
}

// protectedSelfPaths are the agent's own safety-critical source files:
// the guard itself, the sanitizer, the tool registry, and the audit
// trail may not be edited by edit_own_file.
var protectedSelfPaths = []string{
	"internal/tools/guard.go",
	"internal/tools/forbidden_patterns.go",
	"internal/tools/protected_paths.go",
	"internal/tools/registry.go",
	"internal/sanitizer",
	"internal/logging/audit.go",
}

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}

// isProtected reports whether path refers to a file or directory the
// guard refuses to let any tool write, delete, or read-and-exfiltrate.
func isProtected(path string) bool {
	if path == "" {
		return false
	}
	base := filepath.Base(path)
	if protectedBasenames[base] {
		return true
	}
	if base == "passwd" || base == "shadow" {
		return true
	}

	clean := path
	for _, prefix := range protectedDirPrefixes {
		expanded := expandHome(prefix)
		if strings.HasPrefix(clean, prefix) || strings.HasPrefix(clean, expanded) {
			return true
		}
	}
	for _, suffix := range []string{"/etc/passwd", "/etc/shadow"} {
		if strings.HasSuffix(clean, suffix) {
			return true
		}
	}
	for _, self := range protectedSelfPaths {
		if strings.Contains(clean, self) {
			return true
		}
	}
	return false
}

// hasPathTraversal reports whether path contains a ".." path segment,
// which is rejected outright regardless of where it resolves.
func hasPathTraversal(path string) bool {
	for _, seg := range strings.Split(filepath.ToSlash(path), "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}
