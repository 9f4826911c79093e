package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"automaton/internal/logging"
	"automaton/internal/store"
)

const (
	ssePollInterval  = 2 * time.Second
	sseKeepAlive     = 15 * time.Second
	sseInitialWindow = 20
)

// handleLogsStream streams newly persisted turns as Server-Sent Events.
// It sends an initial "ready" event carrying the most recent window,
// then polls for turns newer than the last one seen every
// ssePollInterval, falling back to a ": keep-alive" comment every
// sseKeepAlive to hold the connection open through idle proxies.
func (s *Server) handleLogsStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		internalError(w, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	recent, err := s.db.GetRecentTurns(sseInitialWindow)
	if err != nil {
		logging.Get(logging.CategoryHTTPAPI).Sugar().Warnw("sse initial window failed", "error", err)
		recent = nil
	}
	writeSSEEvent(w, "ready", recent)
	flusher.Flush()

	var lastSeen *store.Cursor
	if len(recent) > 0 {
		last := recent[len(recent)-1]
		lastSeen = &store.Cursor{Timestamp: last.Timestamp, ID: last.ID}
	}

	pollTicker := time.NewTicker(ssePollInterval)
	defer pollTicker.Stop()
	keepAliveTicker := time.NewTicker(sseKeepAlive)
	defer keepAliveTicker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-keepAliveTicker.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case <-pollTicker.C:
			fresh, newCursor, err := s.turnsSince(lastSeen)
			if err != nil {
				logging.Get(logging.CategoryHTTPAPI).Sugar().Warnw("sse poll failed", "error", err)
				continue
			}
			if len(fresh) == 0 {
				continue
			}
			writeSSEEvent(w, "logs", fresh)
			flusher.Flush()
			lastSeen = newCursor
		}
	}
}

// turnsSince returns turns strictly newer than since (oldest-first) by
// asking for the newest page and filtering client-side against the
// in-memory cursor comparison already defined on store.Cursor.
func (s *Server) turnsSince(since *store.Cursor) ([]store.Turn, *store.Cursor, error) {
	recent, err := s.db.GetRecentTurns(sseInitialWindow)
	if err != nil {
		return nil, since, err
	}
	if since == nil {
		if len(recent) == 0 {
			return nil, since, nil
		}
		last := recent[len(recent)-1]
		return recent, &store.Cursor{Timestamp: last.Timestamp, ID: last.ID}, nil
	}

	var fresh []store.Turn
	for _, t := range recent {
		if since.After(t) {
			fresh = append(fresh, t)
		}
	}
	if len(fresh) == 0 {
		return nil, since, nil
	}
	last := fresh[len(fresh)-1]
	return fresh, &store.Cursor{Timestamp: last.Timestamp, ID: last.ID}, nil
}

func writeSSEEvent(w http.ResponseWriter, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		payload = []byte("null")
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
}
