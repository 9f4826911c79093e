package store

import "time"

// AgentState is the agent's lifecycle state.
type AgentState string

const (
	StateSetup       AgentState = "setup"
	StateWaking      AgentState = "waking"
	StateRunning     AgentState = "running"
	StateSleeping    AgentState = "sleeping"
	StateLowCompute  AgentState = "low_compute"
	StateCritical    AgentState = "critical"
	StateDead        AgentState = "dead"
)

// InputSource identifies where a turn's pending input originated.
type InputSource string

const (
	SourceHeartbeat InputSource = "heartbeat"
	SourceCreator   InputSource = "creator"
	SourceAgent     InputSource = "agent"
	SourceSystem    InputSource = "system"
	SourceWakeup    InputSource = "wakeup"
)

// TokenUsage records prompt/completion/total token counts for one turn.
type TokenUsage struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
	Total      int `json:"total"`
}

// ToolCall is one tool invocation within a Turn.
type ToolCall struct {
	ID         string         `json:"id"`
	TurnID     string         `json:"turnId"`
	Name       string         `json:"name"`
	Arguments  map[string]any `json:"arguments"`
	Result     string         `json:"result"`
	DurationMs int64          `json:"durationMs"`
	Error      string         `json:"error,omitempty"`
}

// Turn is one Think->Act->Observe->Persist cycle.
type Turn struct {
	ID           string     `json:"id"`
	Timestamp    time.Time  `json:"timestamp"`
	State        AgentState `json:"state"`
	Input        string     `json:"input,omitempty"`
	InputSource  InputSource `json:"inputSource,omitempty"`
	Thinking     string     `json:"thinking,omitempty"`
	ToolCalls    []ToolCall `json:"toolCalls"`
	TokenUsage   TokenUsage `json:"tokenUsage"`
	CostCents    int64      `json:"costCents"`
}

// Cursor is the pagination key over turns: total order is lexicographic
// on (Timestamp, ID).
type Cursor struct {
	Timestamp time.Time `json:"timestamp"`
	ID        string    `json:"id"`
}

// After reports whether t sorts strictly after the cursor in the total
// order: turn.timestamp > cursor.timestamp, or equal timestamps with
// turn.id > cursor.id.
func (c Cursor) After(t Turn) bool {
	if t.Timestamp.After(c.Timestamp) {
		return true
	}
	return t.Timestamp.Equal(c.Timestamp) && t.ID > c.ID
}

// Before reports whether t sorts strictly before the cursor — the same
// "strictly older than" condition QueryTurns applies in SQL.
func (c Cursor) Before(t Turn) bool {
	if t.Timestamp.Before(c.Timestamp) {
		return true
	}
	return t.Timestamp.Equal(c.Timestamp) && t.ID < c.ID
}

// TurnQuery is the filter set accepted by QueryTurns.
type TurnQuery struct {
	From   *time.Time
	To     *time.Time
	Q      string
	State  AgentState
	Limit  int
	Cursor *Cursor
}

// TurnPage is one page of query results.
type TurnPage struct {
	Turns        []Turn
	HasMore      bool
	TotalMatched int
}

// InboxMessage is an external message delivered to the automaton.
type InboxMessage struct {
	ID          string     `json:"id"`
	From        string     `json:"from"`
	To          string     `json:"to"`
	Content     string     `json:"content"`
	SignedAt    time.Time  `json:"signedAt"`
	CreatedAt   time.Time  `json:"createdAt"`
	ReplyTo     string     `json:"replyTo,omitempty"`
	ProcessedAt *time.Time `json:"processedAt,omitempty"`
}

// MemoryKind enumerates the four memory entry kinds.
type MemoryKind string

const (
	MemoryEpisodic     MemoryKind = "episodic"
	MemorySemantic     MemoryKind = "semantic"
	MemoryRelationship MemoryKind = "relationship"
	MemoryWorking      MemoryKind = "working"
)

// Classification is the turn-classification taxonomy used throughout the
// memory pipeline.
type Classification string

const (
	ClassProductive    Classification = "productive"
	ClassStrategic     Classification = "strategic"
	ClassMaintenance   Classification = "maintenance"
	ClassIdle          Classification = "idle"
	ClassError         Classification = "error"
	ClassCommunication Classification = "communication"
)

// Outcome is the episodic-entry outcome enum.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeNeutral Outcome = "neutral"
)

// EpisodicEntry records one event in a session's history.
type EpisodicEntry struct {
	ID             string         `json:"id"`
	SessionID      string         `json:"sessionId"`
	TurnID         string         `json:"turnId,omitempty"`
	EventType      string         `json:"eventType"`
	Summary        string         `json:"summary"`
	Detail         string         `json:"detail,omitempty"`
	Outcome        Outcome        `json:"outcome"`
	Importance     float64        `json:"importance"`
	Classification Classification `json:"classification"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// SemanticEntry is a fact-bearing key/value extracted from tool results.
type SemanticEntry struct {
	ID        string    `json:"id"`
	Key       string    `json:"key"` // e.g. "financial.last_known_balance"
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// RelationshipEntry tracks interaction history with another party.
type RelationshipEntry struct {
	ID           string    `json:"id"`
	Party        string    `json:"party"`
	Kind         string    `json:"kind"` // "contacted" | "messaged_us"
	Interactions int       `json:"interactions"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// WorkingEntry is a short-lived, priority-ranked memory item.
type WorkingEntry struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Kind      string    `json:"kind"` // "observation" | "decision"
	Summary   string    `json:"summary"`
	Priority  float64   `json:"priority"`
	CreatedAt time.Time `json:"createdAt"`
}
