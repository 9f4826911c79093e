package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKVRoundTrip(t *testing.T) {
	s := OpenTest(t)

	require.NoError(t, s.SetKV("k", "v1"))
	v, ok, err := s.GetKV("k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v1", v)

	require.NoError(t, s.SetKV("k", "v2"))
	v, ok, err = s.GetKV("k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v2", v)

	require.NoError(t, s.DeleteKV("k"))
	_, ok, err = s.GetKV("k")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAppendCappedEnforcesLimit(t *testing.T) {
	s := OpenTest(t)

	for i := 0; i < 60; i++ {
		require.NoError(t, s.AppendCapped(KeyTierTransitions, map[string]any{"i": i}, 50))
	}

	n, err := s.GetCappedLen(KeyTierTransitions)
	require.NoError(t, err)
	require.Equal(t, 50, n)
}

func TestInboxIdempotentInsertAndProcess(t *testing.T) {
	s := OpenTest(t)

	msg := InboxMessage{ID: "m1", From: "a", To: "b", Content: "hi"}
	require.NoError(t, s.InsertInboxMessage(msg))
	require.NoError(t, s.InsertInboxMessage(msg)) // second insert: no-op

	unprocessed, err := s.GetUnprocessedInboxMessages(10)
	require.NoError(t, err)
	require.Len(t, unprocessed, 1)

	require.NoError(t, s.MarkInboxMessageProcessed("m1"))
	require.NoError(t, s.MarkInboxMessageProcessed("m1")) // idempotent

	unprocessed, err = s.GetUnprocessedInboxMessages(10)
	require.NoError(t, err)
	require.Len(t, unprocessed, 0)
}
