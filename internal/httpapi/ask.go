package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"automaton/internal/clients"
	"automaton/internal/store"
)

const maxTranscriptChars = 45000

const askSystemPrompt = "You are a read-only assistant answering questions about an autonomous " +
	"agent's own turn history. Answer only from the transcript provided; if the transcript " +
	"doesn't contain the answer, say so plainly. Never invent tool results or balances."

type askRequest struct {
	Question string `json:"question"`
}

type askResponse struct {
	Answer string `json:"answer"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if s.inference == nil {
		writeError(w, http.StatusServiceUnavailable, "no inference client configured")
		return
	}

	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		badRequest(w, "question is required")
		return
	}

	recent, err := s.db.GetRecentTurns(200)
	if err != nil {
		internalError(w, "read turn history")
		return
	}
	transcript := buildTranscript(recent)

	messages := []clients.Message{
		{Role: "system", Content: askSystemPrompt},
		{Role: "user", Content: fmt.Sprintf("Transcript:\n%s\n\nQuestion: %s", transcript, req.Question)},
	}

	resp, err := s.inference.Infer(r.Context(), messages, nil)
	if err != nil {
		internalError(w, "inference call failed")
		return
	}

	writeJSON(w, http.StatusOK, askResponse{Answer: resp.Thinking})
}

// buildTranscript renders turns into a plain-text transcript capped at
// maxTranscriptChars, keeping only the most recent turns when the full
// history would overflow and preserving chronological order.
func buildTranscript(turns []store.Turn) string {
	var kept []string
	total := 0
	for i := len(turns) - 1; i >= 0; i-- {
		t := turns[i]
		summary := t.Thinking
		if summary == "" && len(t.ToolCalls) > 0 {
			summary = fmt.Sprintf("called %s", t.ToolCalls[0].Name)
		}
		line := fmt.Sprintf("[%s] %s: %s", t.Timestamp.Format(time.RFC3339), t.State, summary)
		if total+len(line) > maxTranscriptChars {
			break
		}
		kept = append(kept, line)
		total += len(line)
	}
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	return strings.Join(kept, "\n")
}
