package tier

import (
	"testing"

	"github.com/stretchr/testify/require"

	"automaton/internal/store"
)

func TestGetSurvivalTierBoundaries(t *testing.T) {
	cases := []struct {
		credits int64
		want    SurvivalTier
	}{
		{-5, Dead},
		{0, Dead},
		{1, Critical},
		{10, Critical},
		{11, LowCompute},
		{50, LowCompute},
		{51, Normal},
		{1000, Normal},
	}
	for _, c := range cases {
		require.Equal(t, c.want, GetSurvivalTier(c.credits), "credits=%d", c.credits)
	}
}

func TestGetSurvivalTierDeterministic(t *testing.T) {
	for i := 0; i < 100; i++ {
		require.Equal(t, GetSurvivalTier(42), GetSurvivalTier(42))
	}
}

type fakeLowCompute struct{ calls []bool }

func (f *fakeLowCompute) SetLowCompute(v bool) { f.calls = append(f.calls, v) }

func TestApplyTogglesLowComputeFlag(t *testing.T) {
	db := store.OpenTest(t)
	flag := &fakeLowCompute{}
	m := NewMonitor(db, flag)

	_, err := m.Apply(30) // low_compute
	require.NoError(t, err)
	require.Equal(t, []bool{true}, flag.calls)

	_, err = m.Apply(100) // normal
	require.NoError(t, err)
	require.Equal(t, []bool{true, false}, flag.calls)
}

func TestApplyCapsTransitionHistory(t *testing.T) {
	db := store.OpenTest(t)
	m := NewMonitor(db, nil)

	credits := []int64{100, 30, 5, 100, 30, 5, 100, 30, 5, 100, 30, 5}
	for i := 0; i < 60; i++ {
		_, err := m.Apply(credits[i%len(credits)])
		require.NoError(t, err)
	}

	n, err := db.GetCappedLen(store.KeyTierTransitions)
	require.NoError(t, err)
	require.LessOrEqual(t, n, 50)
}

func TestAttemptResurrectionIdempotent(t *testing.T) {
	db := store.OpenTest(t)
	m := NewMonitor(db, nil)

	_, err := m.Apply(0) // dead
	require.NoError(t, err)

	res, err := m.AttemptResurrection(500)
	require.NoError(t, err)
	require.True(t, res.Resurrected)
	require.Equal(t, Normal, res.NewTier)

	n, err := db.GetCappedLen(store.KeyResurrectionHistory)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// second attempt: not dead anymore, no side effects
	res2, err := m.AttemptResurrection(500)
	require.NoError(t, err)
	require.False(t, res2.Resurrected)

	n2, err := db.GetCappedLen(store.KeyResurrectionHistory)
	require.NoError(t, err)
	require.Equal(t, 1, n2)
}

func TestAttemptResurrectionFailsClosedBelowThreshold(t *testing.T) {
	db := store.OpenTest(t)
	m := NewMonitor(db, nil)

	_, err := m.Apply(0)
	require.NoError(t, err)

	res, err := m.AttemptResurrection(5)
	require.NoError(t, err)
	require.False(t, res.Resurrected)
}
