package scheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"automaton/internal/clients"
	"automaton/internal/config"
	"automaton/internal/store"
)

type fakeChain struct {
	credits int64
	usdc    float64
	err     error
}

func (c *fakeChain) GetCredits(ctx context.Context, address string) (int64, error) {
	return c.credits, c.err
}

func (c *fakeChain) GetUSDCBalance(ctx context.Context, address string) (float64, error) {
	return c.usdc, c.err
}

type fakeSocial struct {
	sent    []string
	inbound []clients.InboundMessage
}

func (s *fakeSocial) Send(ctx context.Context, to, body string) error {
	s.sent = append(s.sent, body)
	return nil
}

func (s *fakeSocial) Poll(ctx context.Context) ([]clients.InboundMessage, error) {
	return s.inbound, nil
}

func TestCreditCheckAppliesTier(t *testing.T) {
	db := store.OpenTest(t)
	chain := &fakeChain{credits: 5}
	s := New(config.HeartbeatConfig{}, config.Identity{Name: "test", CreatorAddress: "0xabc"}, db, chain, nil, nil)

	require.NoError(t, s.creditCheck(context.Background()))

	raw, ok, err := db.GetKV(store.KeyCurrentTier)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "critical", raw)
}

func TestHeartbeatPingSendsAndRecordsTimestamp(t *testing.T) {
	db := store.OpenTest(t)
	social := &fakeSocial{}
	s := New(config.HeartbeatConfig{}, config.Identity{Name: "test", CreatorAddress: "0xabc"}, db, nil, social, nil)

	require.NoError(t, s.heartbeatPing(context.Background()))

	require.Len(t, social.sent, 1)
	_, ok, err := db.GetKV(store.KeyLastInferenceAt)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestResurrectionProbeResurrectsWhenDead(t *testing.T) {
	db := store.OpenTest(t)
	require.NoError(t, db.SetKV(store.KeyCurrentTier, "dead"))

	chain := &fakeChain{credits: 1000}
	s := New(config.HeartbeatConfig{}, config.Identity{Name: "test", CreatorAddress: "0xabc"}, db, chain, nil, nil)

	require.NoError(t, s.resurrectionProbe(context.Background()))

	raw, ok, err := db.GetKV(store.KeyCurrentTier)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "normal", raw)
}

func TestInboxPollStoresMessages(t *testing.T) {
	db := store.OpenTest(t)
	social := &fakeSocial{inbound: []clients.InboundMessage{{From: "creator", Body: "hello"}}}
	s := New(config.HeartbeatConfig{}, config.Identity{Name: "test"}, db, nil, social, nil)

	require.NoError(t, s.inboxPoll(context.Background()))

	msgs, err := db.GetUnprocessedInboxMessages(10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "hello", msgs[0].Content)
}

func TestDailyJournalEnqueuesSystemMessage(t *testing.T) {
	db := store.OpenTest(t)
	s := New(config.HeartbeatConfig{}, config.Identity{Name: "test"}, db, nil, nil, nil)

	require.NoError(t, s.dailyJournal(context.Background()))

	msgs, err := db.GetUnprocessedInboxMessages(10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "system", msgs[0].From)
}

func TestStartSkipsUnrecognizedEntries(t *testing.T) {
	db := store.OpenTest(t)
	cfg := config.HeartbeatConfig{Entries: []config.HeartbeatEntryConfig{
		{Name: "not_a_real_task", Schedule: "* * * * *", Enabled: true},
		{Name: "heartbeat_ping", Schedule: "* * * * *", Enabled: false},
	}}
	s := New(cfg, config.Identity{Name: "test"}, db, nil, nil, nil)

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	require.Empty(t, s.cron.Entries())
}
