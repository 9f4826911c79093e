package memory

import (
	"testing"

	"github.com/stretchr/testify/require"

	"automaton/internal/store"
)

func TestClassifyIdle(t *testing.T) {
	require.Equal(t, store.ClassIdle, Classify(store.Turn{}))
}

func TestClassifyError(t *testing.T) {
	turn := store.Turn{ToolCalls: []store.ToolCall{{Name: "exec", Error: "boom"}}}
	require.Equal(t, store.ClassError, Classify(turn))
}

func TestClassifyCommunication(t *testing.T) {
	turn := store.Turn{ToolCalls: []store.ToolCall{{Name: "send_message"}}}
	require.Equal(t, store.ClassCommunication, Classify(turn))
}

func TestClassifyStrategic(t *testing.T) {
	turn := store.Turn{ToolCalls: []store.ToolCall{{Name: "spawn_child"}}}
	require.Equal(t, store.ClassStrategic, Classify(turn))
}

func TestClassifyMaintenance(t *testing.T) {
	turn := store.Turn{ToolCalls: []store.ToolCall{{Name: "check_credits"}}}
	require.Equal(t, store.ClassMaintenance, Classify(turn))
}

func TestClassifyProductive(t *testing.T) {
	turn := store.Turn{ToolCalls: []store.ToolCall{{Name: "exec"}}}
	require.Equal(t, store.ClassProductive, Classify(turn))
}

func TestNormalizeErrorTypeKnownPatterns(t *testing.T) {
	require.Equal(t, "TIMEOUT", NormalizeErrorType("operation timed out after 30s"))
	require.Equal(t, "PERMISSION_DENIED", NormalizeErrorType("Permission denied: /etc/shadow"))
	require.Equal(t, "POLICY_BLOCKED", NormalizeErrorType("Blocked by forbidden pattern: rm -rf"))
}

func TestNormalizeErrorTypeFallsBackToPrefix(t *testing.T) {
	got := NormalizeErrorType("some completely novel failure mode nobody anticipated")
	require.NotEqual(t, "", got)
	require.Less(t, len(got), 90)
}

func TestProcessWritesEpisodicEntry(t *testing.T) {
	db := store.OpenTest(t)
	p := NewPipeline(db)

	turn := store.Turn{ID: store.NewTurnID(), ToolCalls: []store.ToolCall{{Name: "exec", Result: "done"}}}
	p.Process("session-1", turn)

	entries, err := db.GetEpisodic("session-1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, store.ClassProductive, entries[0].Classification)
}

func TestProcessExtractsSemanticFact(t *testing.T) {
	db := store.OpenTest(t)
	p := NewPipeline(db)

	turn := store.Turn{ID: store.NewTurnID(), ToolCalls: []store.ToolCall{{Name: "check_credits", Result: "4200"}}}
	p.Process("session-1", turn)

	v, ok, err := db.GetSemantic("financial.last_known_balance")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "4200", v)
}

func TestProcessNeverPanics(t *testing.T) {
	db := store.OpenTest(t)
	p := NewPipeline(db)
	require.NotPanics(t, func() {
		p.Process("session-1", store.Turn{})
	})
}

func TestProcessRecordsMessagedUsRelationshipFromInboxInput(t *testing.T) {
	db := store.OpenTest(t)
	p := NewPipeline(db)

	turn := store.Turn{
		ID:          store.NewTurnID(),
		Input:       "[Message from creator-1]: are you still alive?",
		InputSource: store.SourceAgent,
	}
	p.Process("session-1", turn)

	rel, ok, err := db.GetRelationship("creator-1", "messaged_us")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, rel.Interactions)
}

func TestProcessRecordsMessagedUsForEachBatchedSender(t *testing.T) {
	db := store.OpenTest(t)
	p := NewPipeline(db)

	turn := store.Turn{
		ID:          store.NewTurnID(),
		Input:       "[Message from alice]: hi\n\n[Message from bob]: hello",
		InputSource: store.SourceAgent,
	}
	p.Process("session-1", turn)

	_, ok, err := db.GetRelationship("alice", "messaged_us")
	require.NoError(t, err)
	require.True(t, ok)
	_, ok, err = db.GetRelationship("bob", "messaged_us")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestWorkingMemoryHelpers(t *testing.T) {
	db := store.OpenTest(t)
	p := NewPipeline(db)

	p.RecordSleepDecision("session-1", "sleeping until credits refresh")
	p.RecordSelfModification("session-1", "edited guard.go")

	entries, err := db.GetWorking("session-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
}
