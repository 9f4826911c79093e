package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestChildrenInsertAndList(t *testing.T) {
	s := OpenTest(t)

	require.NoError(t, s.InsertChild(Child{
		ID: "c1", Name: "scout", Address: "0x1", GenesisPrompt: "explore", CreatedAt: time.Now().UTC(),
	}))
	require.NoError(t, s.InsertChild(Child{
		ID: "c2", Name: "trader", Address: "0x2", GenesisPrompt: "trade", CreatedAt: time.Now().UTC(),
	}))

	children, err := s.GetChildren()
	require.NoError(t, err)
	require.Len(t, children, 2)
	require.Equal(t, "scout", children[0].Name)
	require.Equal(t, "trader", children[1].Name)
}

func TestRegistryEntriesInsertAndList(t *testing.T) {
	s := OpenTest(t)

	require.NoError(t, s.InsertRegistryEntry(RegistryEntry{
		ID: "r1", Address: "0xabc", Role: "worker", RegisteredAt: time.Now().UTC(),
	}))

	entries, err := s.GetRegistryEntries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "worker", entries[0].Role)
}

func TestTotalCostCentsSumsEvents(t *testing.T) {
	s := OpenTest(t)

	require.NoError(t, s.InsertCostEvent(CostEvent{ID: "e1", Cents: 10, Kind: "inference", CreatedAt: time.Now().UTC()}))
	require.NoError(t, s.InsertCostEvent(CostEvent{ID: "e2", Cents: 25, Kind: "inference", CreatedAt: time.Now().UTC()}))

	total, err := s.GetTotalCostCents()
	require.NoError(t, err)
	require.Equal(t, int64(35), total)
}

func TestTotalCostCentsZeroWhenEmpty(t *testing.T) {
	s := OpenTest(t)

	total, err := s.GetTotalCostCents()
	require.NoError(t, err)
	require.Equal(t, int64(0), total)
}
