package httpapi

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"automaton/internal/clients"
	"automaton/internal/config"
	"automaton/internal/store"
)

const (
	defaultLogsLimit = 50
	maxLogsLimit     = 200
	askRateLimit     = 1.0 // requests/sec
	askRateBurst     = 5
	logsRateLimit    = 10.0
	logsRateBurst    = 20
)

// Server is the dashboard's HTTP+SSE surface. It is read-only: every
// handler reads from db (and, for Ask, calls the inference client) but
// never mutates agent-loop-owned state.
type Server struct {
	db        *store.Store
	identity  config.Identity
	inference clients.InferenceClient

	mux *http.ServeMux
}

// New constructs a Server. inference may be nil, in which case /api/ask
// responds 503.
func New(db *store.Store, identity config.Identity, inference clients.InferenceClient) *Server {
	s := &Server{db: db, identity: identity, inference: inference, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) routes() {
	askLimiter := newIPLimiter(askRateLimit, askRateBurst)
	logsLimiter := newIPLimiter(logsRateLimit, logsRateBurst)

	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /", s.handleIndex)
	s.mux.HandleFunc("GET /api/overview", logsLimiter.middleware(s.handleOverview))
	s.mux.HandleFunc("GET /api/logs", logsLimiter.middleware(s.handleLogs))
	s.mux.HandleFunc("GET /api/logs/stream", logsLimiter.middleware(s.handleLogsStream))
	s.mux.HandleFunc("POST /api/ask", askLimiter.middleware(s.handleAsk))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe binds to 127.0.0.1:port and serves until ctx is
// canceled, then shuts down gracefully.
func ListenAndServe(ctx context.Context, port int, handler http.Handler) error {
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	srv := &http.Server{Addr: addr, Handler: handler}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

var indexHTML = []byte(`<!DOCTYPE html>
<html>
<head><title>automaton dashboard</title></head>
<body>
<h1>automaton dashboard</h1>
<p>See <a href="/api/overview">/api/overview</a>, <a href="/api/logs">/api/logs</a>, and
<a href="/api/logs/stream">/api/logs/stream</a> (SSE).</p>
</body>
</html>`)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(indexHTML)
}

type overviewResponse struct {
	Name         string `json:"name"`
	Tier         string `json:"tier"`
	State        string `json:"state,omitempty"`
	StartedAt    string `json:"startedAt,omitempty"`
	LastTurnAt   string `json:"lastTurnAt,omitempty"`
	TotalTurns   int    `json:"totalTurns"`
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	tier, _, err := s.db.GetKV(store.KeyCurrentTier)
	if err != nil {
		internalError(w, "read tier")
		return
	}
	startedAt, _, err := s.db.GetKV(store.KeyStartTime)
	if err != nil {
		internalError(w, "read start time")
		return
	}

	page, err := s.db.QueryTurns(store.TurnQuery{Limit: 1})
	if err != nil {
		internalError(w, "query turns")
		return
	}

	resp := overviewResponse{
		Name:       s.identity.Name,
		Tier:       tier,
		StartedAt:  startedAt,
		TotalTurns: page.TotalMatched,
	}
	if len(page.Turns) > 0 {
		resp.State = string(page.Turns[0].State)
		resp.LastTurnAt = page.Turns[0].Timestamp.Format(time.RFC3339Nano)
	}
	writeJSON(w, http.StatusOK, resp)
}

type logsResponse struct {
	Turns      []store.Turn `json:"turns"`
	NextCursor string       `json:"nextCursor,omitempty"`
	Total      int          `json:"total"`
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	cursor, err := decodeCursor(q.Get("cursor"))
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	limit := queryInt(r, "limit", defaultLogsLimit, maxLogsLimit)

	query := store.TurnQuery{
		Q:      q.Get("q"),
		State:  store.AgentState(q.Get("state")),
		Limit:  limit,
		Cursor: cursor,
	}

	page, err := s.db.QueryTurns(query)
	if err != nil {
		internalError(w, "query turns")
		return
	}

	resp := logsResponse{Turns: page.Turns, Total: page.TotalMatched}
	if page.HasMore && len(page.Turns) > 0 {
		last := page.Turns[len(page.Turns)-1]
		resp.NextCursor = encodeCursor(store.Cursor{Timestamp: last.Timestamp, ID: last.ID})
	}
	writeJSON(w, http.StatusOK, resp)
}
