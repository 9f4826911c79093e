package memory

import (
	"fmt"
	"regexp"
	"strings"
)

// errorPattern is one named regex tried, in order, against a tool
// call's raw error string.
type errorPattern struct {
	name    string
	pattern *regexp.Regexp
}

var errorPatterns = []errorPattern{
	{"PATH_TRAVERSAL", regexp.MustCompile(`(?i)path traversal|\.\./|outside (the )?(allowed|sandbox)`)},
	// A bare "forbidden" counts here, except in the guard's "Blocked by
	// forbidden pattern" message, which POLICY_BLOCKED classifies.
	{"PERMISSION_DENIED", regexp.MustCompile(`(?i)permission denied|not permitted|(^|[^y]\s)forbidden`)},
	{"TIMEOUT", regexp.MustCompile(`(?i)timed? ?out|deadline exceeded`)},
	{"NOT_FOUND", regexp.MustCompile(`(?i)no such file|not found|does not exist`)},
	{"RATE_LIMIT", regexp.MustCompile(`(?i)rate limit|too many requests|429`)},
	{"ADDRESS_IN_USE", regexp.MustCompile(`(?i)address already in use|bind: address in use`)},
	{"CONNECTION_REFUSED", regexp.MustCompile(`(?i)connection refused|econnrefused`)},
	{"OUT_OF_MEMORY", regexp.MustCompile(`(?i)out of memory|oom|cannot allocate memory`)},
	{"SYNTAX_ERROR", regexp.MustCompile(`(?i)syntax error|unexpected token|parse error`)},
	{"POLICY_BLOCKED", regexp.MustCompile(`(?i)blocked by (forbidden|protected|rate|size|path)`)},
}

// NormalizeErrorType maps a raw error string to one of the fixed error
// type tags, falling back to a sanitized prefix of the raw message when
// nothing matches.
func NormalizeErrorType(raw string) string {
	for _, p := range errorPatterns {
		if p.pattern.MatchString(raw) {
			return p.name
		}
	}
	return sanitizedPrefix(raw)
}

// sanitizedPrefix trims a raw error to a short, single-line prefix
// suitable for use as a semantic-memory value fragment.
func sanitizedPrefix(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, "\n", " ")
	const max = 80
	if len(s) > max {
		s = s[:max]
	}
	return s
}

// FormatRepeatedError builds the "<tool> fails with <TYPE> (<N>x)" value
// stored in semantic memory for a tool's recurring error.
func FormatRepeatedError(tool, errType string, count int) string {
	return fmt.Sprintf("%s fails with %s (%dx)", tool, errType, count)
}
