package httpapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"automaton/internal/clients"
	"automaton/internal/config"
	"automaton/internal/store"
)

type fakeInference struct {
	answer string
	err    error
}

func (f *fakeInference) Infer(ctx context.Context, messages []clients.Message, specs []clients.ToolSpec) (clients.InferenceResponse, error) {
	if f.err != nil {
		return clients.InferenceResponse{}, f.err
	}
	return clients.InferenceResponse{Thinking: f.answer, FinishReason: "stop"}, nil
}

func (f *fakeInference) Model() string { return "fake-model" }

func insertTurn(t *testing.T, db *store.Store, id string, ts time.Time, state store.AgentState, thinking string) {
	t.Helper()
	require.NoError(t, db.InsertTurn(store.Turn{
		ID:        id,
		Timestamp: ts,
		State:     state,
		Thinking:  thinking,
	}))
}

func TestHandleHealth(t *testing.T) {
	db := store.OpenTest(t)
	s := New(db, config.Identity{Name: "test-automaton"}, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "ok", body["status"])
}

func TestHandleOverviewReportsTierAndLastTurn(t *testing.T) {
	db := store.OpenTest(t)
	require.NoError(t, db.SetKV(store.KeyCurrentTier, "normal"))

	base := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	insertTurn(t, db, "turn-1", base, store.StateRunning, "first")
	insertTurn(t, db, "turn-2", base.Add(time.Minute), store.StateRunning, "second")

	s := New(db, config.Identity{Name: "test-automaton"}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/overview", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp overviewResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "test-automaton", resp.Name)
	require.Equal(t, "normal", resp.Tier)
	require.Equal(t, 2, resp.TotalTurns)
	require.Equal(t, string(store.StateRunning), resp.State)
}

func TestHandleLogsPaginatesWithCursor(t *testing.T) {
	db := store.OpenTest(t)
	base := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		insertTurn(t, db, store.NewOpaqueID(), base.Add(time.Duration(i)*time.Minute), store.StateRunning, "turn")
	}

	s := New(db, config.Identity{Name: "test-automaton"}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/logs?limit=2", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var page logsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Turns, 2)
	require.NotEmpty(t, page.NextCursor)

	req2 := httptest.NewRequest(http.MethodGet, "/api/logs?limit=2&cursor="+page.NextCursor, nil)
	rec2 := httptest.NewRecorder()
	s.ServeHTTP(rec2, req2)

	require.Equal(t, http.StatusOK, rec2.Code)
	var page2 logsResponse
	require.NoError(t, json.Unmarshal(rec2.Body.Bytes(), &page2))
	require.Len(t, page2.Turns, 2)
	require.NotEqual(t, page.Turns[0].ID, page2.Turns[0].ID)
}

func TestHandleLogsInvalidCursorIsBadRequest(t *testing.T) {
	db := store.OpenTest(t)
	s := New(db, config.Identity{Name: "test-automaton"}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/logs?cursor=not-valid-base64!!", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleLogsClampsLimit(t *testing.T) {
	db := store.OpenTest(t)
	base := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		insertTurn(t, db, store.NewOpaqueID(), base.Add(time.Duration(i)*time.Minute), store.StateRunning, "turn")
	}
	s := New(db, config.Identity{Name: "test-automaton"}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/logs?limit=99999", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var page logsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Turns, 3)
}

func TestHandleAskWithoutInferenceClientIsUnavailable(t *testing.T) {
	db := store.OpenTest(t)
	s := New(db, config.Identity{Name: "test-automaton"}, nil)

	body, _ := json.Marshal(askRequest{Question: "how are you?"})
	req := httptest.NewRequest(http.MethodPost, "/api/ask", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleAskRejectsEmptyQuestion(t *testing.T) {
	db := store.OpenTest(t)
	s := New(db, config.Identity{Name: "test-automaton"}, &fakeInference{answer: "unused"})

	body, _ := json.Marshal(askRequest{Question: "   "})
	req := httptest.NewRequest(http.MethodPost, "/api/ask", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleAskSuccess(t *testing.T) {
	db := store.OpenTest(t)
	base := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	insertTurn(t, db, "turn-1", base, store.StateRunning, "checked credit balance")

	s := New(db, config.Identity{Name: "test-automaton"}, &fakeInference{answer: "you checked your credit balance"})

	body, _ := json.Marshal(askRequest{Question: "what did you do?"})
	req := httptest.NewRequest(http.MethodPost, "/api/ask", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp askResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "you checked your credit balance", resp.Answer)
}

func TestBuildTranscriptKeepsChronologicalOrderUnderCap(t *testing.T) {
	base := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	turns := []store.Turn{
		{ID: "a", Timestamp: base, State: store.StateRunning, Thinking: "first"},
		{ID: "b", Timestamp: base.Add(time.Minute), State: store.StateRunning, Thinking: "second"},
	}
	transcript := buildTranscript(turns)
	firstIdx := indexOf(transcript, "first")
	secondIdx := indexOf(transcript, "second")
	require.GreaterOrEqual(t, firstIdx, 0)
	require.GreaterOrEqual(t, secondIdx, 0)
	require.Less(t, firstIdx, secondIdx)
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}

func TestTurnsSinceFiltersToNewerTurns(t *testing.T) {
	db := store.OpenTest(t)
	base := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	insertTurn(t, db, "turn-1", base, store.StateRunning, "first")

	s := New(db, config.Identity{Name: "test-automaton"}, nil)

	fresh, cursor, err := s.turnsSince(nil)
	require.NoError(t, err)
	require.Len(t, fresh, 1)
	require.NotNil(t, cursor)

	insertTurn(t, db, "turn-2", base.Add(time.Minute), store.StateRunning, "second")

	fresh2, cursor2, err := s.turnsSince(cursor)
	require.NoError(t, err)
	require.Len(t, fresh2, 1)
	require.Equal(t, "turn-2", fresh2[0].ID)
	require.NotNil(t, cursor2)

	fresh3, _, err := s.turnsSince(cursor2)
	require.NoError(t, err)
	require.Empty(t, fresh3)
}

func TestIPLimiterBlocksOverBurst(t *testing.T) {
	l := newIPLimiter(1, 2)
	require.True(t, l.allow("127.0.0.1"))
	require.True(t, l.allow("127.0.0.1"))
	require.False(t, l.allow("127.0.0.1"))
	// a distinct IP gets its own bucket
	require.True(t, l.allow("10.0.0.5"))
}

func TestRateLimitMiddlewareReturns429(t *testing.T) {
	db := store.OpenTest(t)
	s := New(db, config.Identity{Name: "test-automaton"}, nil)

	var rec *httptest.ResponseRecorder
	for i := 0; i < 25; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/logs", nil)
		rec = httptest.NewRecorder()
		s.ServeHTTP(rec, req)
	}
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestCursorRoundTrip(t *testing.T) {
	c := store.Cursor{Timestamp: time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC), ID: "turn-1"}
	encoded := encodeCursor(c)
	decoded, err := decodeCursor(encoded)
	require.NoError(t, err)
	require.Equal(t, c.ID, decoded.ID)
	require.True(t, c.Timestamp.Equal(decoded.Timestamp))
}

func TestEncodeCursorIsUnpaddedBase64URL(t *testing.T) {
	c := store.Cursor{Timestamp: time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC), ID: "t"}
	encoded := encodeCursor(c)
	require.NotContains(t, encoded, "=")
	_, err := base64.RawURLEncoding.DecodeString(encoded)
	require.NoError(t, err)
}

func TestDecodeCursorEmptyStringIsNil(t *testing.T) {
	decoded, err := decodeCursor("")
	require.NoError(t, err)
	require.Nil(t, decoded)
}

func TestClientIPTrustsForwardedHeaderFromLoopback(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "127.0.0.1:5555"
	req.Header.Set("X-Forwarded-For", "203.0.113.7")
	require.Equal(t, "203.0.113.7", clientIP(req))
}

func TestClientIPIgnoresForwardedHeaderFromUntrustedPeer(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.9:5555"
	req.Header.Set("X-Forwarded-For", "198.51.100.1")
	require.Equal(t, "203.0.113.9", clientIP(req))
}
