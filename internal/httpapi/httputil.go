// Package httpapi implements the loopback-only HTTP+SSE observability
// dashboard: a read-only window onto the automaton's turn history,
// survival status, and an LLM-backed Q&A endpoint over that history.
// It never drives the agent loop — every handler only ever reads from
// the shared state store (and, for /api/ask, the inference client).
package httpapi

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"

	"automaton/internal/logging"
)

// errorResponse is the fixed JSON error envelope every handler in this
// package writes on failure.
type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Get(logging.CategoryHTTPAPI).Sugar().Warnw("write json response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func badRequest(w http.ResponseWriter, message string) { writeError(w, http.StatusBadRequest, message) }

func internalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, message)
}

// clientIP extracts the best-effort client IP, trusting forwarded
// headers only from private/loopback/link-local peers. Since this
// server only ever binds to 127.0.0.1, the forwarded-header path in
// practice only matters behind a deliberately added local reverse proxy.
func clientIP(r *http.Request) string {
	remote := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(remote); err == nil {
		remote = host
	}
	parsed := net.ParseIP(remote)
	trustForwarded := parsed != nil && (parsed.IsPrivate() || parsed.IsLoopback() || parsed.IsLinkLocalUnicast())
	if trustForwarded {
		if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
			first := strings.TrimSpace(strings.Split(xff, ",")[0])
			if host, _, err := net.SplitHostPort(first); err == nil {
				first = host
			}
			if first != "" {
				return first
			}
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return xri
		}
	}
	return remote
}

func queryInt(r *http.Request, key string, def, max int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
