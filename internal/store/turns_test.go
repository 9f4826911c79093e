package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTurn(id string, ts time.Time) Turn {
	return Turn{
		ID:        id,
		Timestamp: ts,
		State:     StateRunning,
		Thinking:  "thinking about " + id,
	}
}

func TestInsertTurnDuplicateID(t *testing.T) {
	s := OpenTest(t)
	ts := time.Now().UTC()

	require.NoError(t, s.InsertTurn(newTurn("turn-1", ts)))
	err := s.InsertTurn(newTurn("turn-1", ts.Add(time.Second)))
	require.ErrorIs(t, err, ErrDuplicateID)
}

func TestInsertToolCallUnknownTurn(t *testing.T) {
	s := OpenTest(t)
	err := s.InsertToolCall("nope", ToolCall{ID: "tc-1", Name: "exec"})
	require.ErrorIs(t, err, ErrTurnNotFound)
}

func TestGetRecentTurnsChronological(t *testing.T) {
	s := OpenTest(t)
	base := time.Now().UTC().Truncate(time.Second)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.InsertTurn(newTurn(NewTurnID(), base.Add(time.Duration(i)*time.Second))))
	}

	turns, err := s.GetRecentTurns(3)
	require.NoError(t, err)
	require.Len(t, turns, 3)
	for i := 1; i < len(turns); i++ {
		require.True(t, turns[i].Timestamp.After(turns[i-1].Timestamp) || turns[i].Timestamp.Equal(turns[i-1].Timestamp))
	}
}

func TestQueryTurnsPagination(t *testing.T) {
	s := OpenTest(t)
	base := time.Now().UTC().Truncate(time.Millisecond)

	ids := make([]string, 100)
	for i := 0; i < 100; i++ {
		id := NewTurnID()
		ids[i] = id
		require.NoError(t, s.InsertTurn(newTurn(id, base.Add(time.Duration(i)*time.Millisecond))))
	}

	seen := map[string]bool{}

	page1, err := s.QueryTurns(TurnQuery{Limit: 40})
	require.NoError(t, err)
	require.Len(t, page1.Turns, 40)
	require.True(t, page1.HasMore)
	require.Equal(t, 100, page1.TotalMatched)
	for _, tn := range page1.Turns {
		seen[tn.ID] = true
	}

	cursor := Cursor{Timestamp: page1.Turns[len(page1.Turns)-1].Timestamp, ID: page1.Turns[len(page1.Turns)-1].ID}
	page2, err := s.QueryTurns(TurnQuery{Limit: 40, Cursor: &cursor})
	require.NoError(t, err)
	require.Len(t, page2.Turns, 40)
	require.True(t, page2.HasMore)
	for _, tn := range page2.Turns {
		require.False(t, seen[tn.ID], "turn %s seen twice across pages", tn.ID)
		seen[tn.ID] = true
	}

	cursor2 := Cursor{Timestamp: page2.Turns[len(page2.Turns)-1].Timestamp, ID: page2.Turns[len(page2.Turns)-1].ID}
	page3, err := s.QueryTurns(TurnQuery{Limit: 40, Cursor: &cursor2})
	require.NoError(t, err)
	require.Len(t, page3.Turns, 20)
	require.False(t, page3.HasMore)
	for _, tn := range page3.Turns {
		require.False(t, seen[tn.ID])
		seen[tn.ID] = true
	}

	require.Len(t, seen, 100)
}

func TestInsertTurnWithToolCallsAtomic(t *testing.T) {
	s := OpenTest(t)
	turn := newTurn(NewTurnID(), time.Now().UTC())
	turn.ToolCalls = []ToolCall{
		{ID: "tc-1", Name: "exec", Arguments: map[string]any{"command": "echo hi"}, Result: "hi"},
	}
	require.NoError(t, s.InsertTurnWithToolCalls(turn))

	turns, err := s.GetRecentTurns(1)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	require.Len(t, turns[0].ToolCalls, 1)
	require.Equal(t, "exec", turns[0].ToolCalls[0].Name)
}
