package tools

import "regexp"

// forbiddenPattern is one named regex matched, substring-style, against
// the raw command string of exec-class tool calls.
//
// Matching is substring rather than tokenized-argv: see DESIGN.md for
// the reasoning.
type forbiddenPattern struct {
	category string
	pattern  *regexp.Regexp
}

var forbiddenPatterns = []forbiddenPattern{
	{
		category: "protected path deletion",
		pattern: regexp.MustCompile(
			`(?i)\b(rm|unlink|shred|truncate)\b[^|;&]*(~/\.(ssh|gnupg|gpg|aws|azure|gcloud|kube|docker|automaton)(/|\b)|/etc/(passwd|shadow|systemd)|wallet\.json|config\.json|automaton\.db)`,
		),
	},
	{
		category: "sed in-place edit of protected file",
		pattern:  regexp.MustCompile(`(?i)\bsed\s+-i\b`),
	},
	{
		category: "find -delete against protected path",
		pattern:  regexp.MustCompile(`(?i)\bfind\b[^|;&]*-delete`),
	},
	{
		category: "command substitution",
		pattern:  regexp.MustCompile("`[^`]*`|\\$\\([^)]*\\)"),
	},
	{
		category: "pipe to shell",
		pattern:  regexp.MustCompile(`(?i)\|\s*(bash|sh|zsh)\b`),
	},
	{
		category: "credential file read",
		pattern: regexp.MustCompile(
			`(?i)(cat|less|more|head|tail|cp|mv)\b[^|;&]*(~/\.ssh/id_[a-z0-9]+|~/\.aws/credentials|~/\.gnupg/|/etc/shadow)`,
		),
	},
	{
		category: "wildcard rm of home",
		pattern:  regexp.MustCompile(`(?i)\brm\s+-[a-z]*r[a-z]*f?\s+(~|/)(\s|$)`),
	},
}

// checkForbiddenPatterns returns the first matching category, or "" if
// command matches none of the forbidden patterns.
func checkForbiddenPatterns(command string) string {
	for _, p := range forbiddenPatterns {
		if p.pattern.MatchString(command) {
			return p.category
		}
	}
	return ""
}
