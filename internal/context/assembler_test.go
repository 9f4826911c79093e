package context

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"automaton/internal/store"
)

func turnAt(i int, toolNames ...string) store.Turn {
	t := store.Turn{
		ID:        fmt.Sprintf("turn-%d", i),
		Timestamp: time.Now().Add(time.Duration(i) * time.Minute),
		Input:     "",
		Thinking:  "",
	}
	for _, n := range toolNames {
		t.ToolCalls = append(t.ToolCalls, store.ToolCall{Name: n, Result: "ok"})
	}
	return t
}

func TestAssembleIncludesMeaningfulTurns(t *testing.T) {
	a := NewAssembler("sys prompt")
	recent := []store.Turn{
		turnAt(0, "check_credits"),
		turnAt(1, "exec"),
	}
	msgs := a.Assemble(recent, nil, nil)
	require.Equal(t, RoleSystem, msgs[0].Role)

	var sawExec bool
	for _, m := range msgs {
		if strings.Contains(m.Content, "exec") {
			sawExec = true
		}
	}
	require.True(t, sawExec)
}

func TestAssembleDeepFallbackWhenAllIdle(t *testing.T) {
	a := NewAssembler("sys prompt")
	recent := []store.Turn{
		turnAt(0, "check_credits"),
		turnAt(1, "system_synopsis"),
	}
	deep := []store.Turn{
		turnAt(-10, "exec"),
		turnAt(-9, "check_credits"),
	}
	msgs := a.Assemble(recent, deep, nil)
	var sawProductive bool
	for _, m := range msgs {
		if strings.Contains(m.Content, "[exec]") {
			sawProductive = true
		}
	}
	require.True(t, sawProductive)
}

func TestRepetitionWarningFiresOnAllIdleLoop(t *testing.T) {
	included := []store.Turn{
		turnAt(0, "check_credits"),
		turnAt(1, "check_credits"),
		turnAt(2, "check_credits"),
		turnAt(3, "check_credits"),
		turnAt(4, "check_credits"),
	}
	warning := repetitionWarning(included)
	require.Contains(t, warning, "MAINTENANCE LOOP DETECTED")
}

func TestRepetitionWarningSkippedBelowMinTurns(t *testing.T) {
	included := []store.Turn{
		turnAt(0, "check_credits"),
		turnAt(1, "check_credits"),
	}
	require.Equal(t, "", repetitionWarning(included))
}

func TestRepetitionWarningSkippedWithProductiveCall(t *testing.T) {
	included := []store.Turn{
		turnAt(0, "check_credits"),
		turnAt(1, "check_credits"),
		turnAt(2, "exec"),
		turnAt(3, "check_credits"),
		turnAt(4, "check_credits"),
	}
	require.Equal(t, "", repetitionWarning(included))
}

func TestAssemblePendingInputAppended(t *testing.T) {
	a := NewAssembler("sys")
	msgs := a.Assemble(nil, nil, &PendingInput{Source: store.SourceHeartbeat, Content: "tick"})
	last := msgs[len(msgs)-1]
	require.Equal(t, RoleUser, last.Role)
	require.Contains(t, last.Content, "tick")
}

func TestTruncateAddsEllipsisOverLimit(t *testing.T) {
	s := strings.Repeat("a", 1000)
	out := truncate(s, 640)
	require.Equal(t, 640+len("…"), len(out))
	require.True(t, strings.HasSuffix(out, "…"))
}
