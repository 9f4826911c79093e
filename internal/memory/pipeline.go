package memory

import (
	"fmt"
	"regexp"
	"time"

	"automaton/internal/logging"
	"automaton/internal/store"
)

var repeatCountPattern = regexp.MustCompile(`\((\d+)x\)$`)

// Pipeline wires turn classification to the store's memory tables.
type Pipeline struct {
	db *store.Store
}

// NewPipeline constructs a memory Pipeline against db.
func NewPipeline(db *store.Store) *Pipeline {
	return &Pipeline{db: db}
}

// Process classifies a completed turn and writes every resulting memory
// entry. It never returns an error and never panics: all failures are
// logged and swallowed so memory writes can't block the agent loop.
func (p *Pipeline) Process(sessionID string, t store.Turn) {
	defer func() {
		if r := recover(); r != nil {
			logging.Get(logging.CategoryMemory).Sugar().Errorw("memory pipeline panic recovered", "panic", r)
		}
	}()

	classification := Classify(t)

	p.writeEpisodic(sessionID, t, classification)
	p.writeSemanticFacts(t)
	p.writeRelationships(t)
}

func (p *Pipeline) writeEpisodic(sessionID string, t store.Turn, classification store.Classification) {
	outcome := store.OutcomeSuccess
	switch classification {
	case store.ClassError:
		outcome = store.OutcomeFailure
	case store.ClassIdle:
		outcome = store.OutcomeNeutral
	}

	summary := t.Thinking
	if summary == "" && len(t.ToolCalls) > 0 {
		summary = fmt.Sprintf("called %s", t.ToolCalls[0].Name)
	}
	if summary == "" {
		summary = "idle turn"
	}

	entry := store.EpisodicEntry{
		ID:             store.NewOpaqueID(),
		SessionID:      sessionID,
		TurnID:         t.ID,
		EventType:      string(classification),
		Summary:        summary,
		Outcome:        outcome,
		Importance:     Importance(classification),
		Classification: classification,
		CreatedAt:      time.Now().UTC(),
	}

	if err := p.db.InsertEpisodic(entry); err != nil {
		logging.Get(logging.CategoryMemory).Sugar().Warnw("episodic write failed", "error", err)
	}
}

func (p *Pipeline) writeSemanticFacts(t store.Turn) {
	for _, tc := range t.ToolCalls {
		if tc.Error != "" {
			p.writeErrorFact(tc)
			continue
		}
		key, value, ok := extractSemanticFact(tc.Name, tc.Result)
		if !ok {
			continue
		}
		if err := p.db.UpsertSemantic(key, value); err != nil {
			logging.Get(logging.CategoryMemory).Sugar().Warnw("semantic write failed", "key", key, "error", err)
		}
	}
}

func (p *Pipeline) writeErrorFact(tc store.ToolCall) {
	key := "errors." + tc.Name
	errType := NormalizeErrorType(tc.Error)

	count := 1
	if prev, ok, err := p.db.GetSemantic(key); err == nil && ok {
		if m := repeatCountPattern.FindStringSubmatch(prev); m != nil {
			var n int
			fmt.Sscanf(m[1], "%d", &n)
			if containsErrorType(prev, errType) {
				count = n + 1
			}
		}
	}

	value := FormatRepeatedError(tc.Name, errType, count)
	if err := p.db.UpsertSemantic(key, value); err != nil {
		logging.Get(logging.CategoryMemory).Sugar().Warnw("semantic error write failed", "key", key, "error", err)
	}
}

func containsErrorType(value, errType string) bool {
	return len(value) >= len(errType) && (value == errType || regexp.MustCompile(regexp.QuoteMeta(errType)).MatchString(value))
}

func (p *Pipeline) writeRelationships(t store.Turn) {
	for _, tc := range t.ToolCalls {
		if tc.Name != "send_message" {
			continue
		}
		party, _ := tc.Arguments["to"].(string)
		if party == "" {
			continue
		}
		if err := p.db.RecordRelationship(party, "contacted"); err != nil {
			logging.Get(logging.CategoryMemory).Sugar().Warnw("relationship write failed", "error", err)
		}
	}
	if t.InputSource == store.SourceAgent {
		for _, party := range sendersFromInput(t.Input) {
			if err := p.db.RecordRelationship(party, "messaged_us"); err != nil {
				logging.Get(logging.CategoryMemory).Sugar().Warnw("relationship write failed", "error", err)
			}
		}
	}
}

// inboxMessagePrefix matches inboxPendingText's "[Message from <from>]: "
// block format (internal/agent/systemprompt.go) and captures the sender.
var inboxMessagePrefix = regexp.MustCompile(`\[Message from ([^\]]+)\]:`)

// sendersFromInput extracts every distinct sender named in an
// agent-sourced pending input, which may batch several drained inbox
// messages into one blank-line-joined string.
func sendersFromInput(input string) []string {
	matches := inboxMessagePrefix.FindAllStringSubmatch(input, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	var senders []string
	for _, m := range matches {
		from := m[1]
		if from == "" || seen[from] {
			continue
		}
		seen[from] = true
		senders = append(senders, from)
	}
	return senders
}

// RecordSleepDecision writes a working-memory entry for a sleep
// decision, priority 0.3.
func (p *Pipeline) RecordSleepDecision(sessionID, summary string) {
	p.insertWorking(sessionID, "observation", summary, 0.3)
}

// RecordSelfModification writes a working-memory entry for a
// self-modification, priority 0.9.
func (p *Pipeline) RecordSelfModification(sessionID, summary string) {
	p.insertWorking(sessionID, "decision", summary, 0.9)
}

func (p *Pipeline) insertWorking(sessionID, kind, summary string, priority float64) {
	entry := store.WorkingEntry{
		ID:        store.NewOpaqueID(),
		SessionID: sessionID,
		Kind:      kind,
		Summary:   summary,
		Priority:  priority,
		CreatedAt: time.Now().UTC(),
	}
	if err := p.db.InsertWorking(entry); err != nil {
		logging.Get(logging.CategoryMemory).Sugar().Warnw("working memory write failed", "error", err)
	}
}
