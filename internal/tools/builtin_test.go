package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"automaton/internal/clients"
	"automaton/internal/config"
	"automaton/internal/store"
)

type fakeSandbox struct {
	stdout, stderr string
	exitCode       int
	lastCommand    string
	files          map[string]string
	exposedURL     string
}

func newFakeSandbox() *fakeSandbox {
	return &fakeSandbox{files: make(map[string]string), exposedURL: "https://sandbox.example/8080"}
}

func (f *fakeSandbox) Exec(ctx context.Context, command string, timeoutSeconds int) (string, string, int, error) {
	f.lastCommand = command
	return f.stdout, f.stderr, f.exitCode, nil
}

func (f *fakeSandbox) ReadFile(ctx context.Context, path string) (string, error) {
	return f.files[path], nil
}

func (f *fakeSandbox) WriteFile(ctx context.Context, path, content string) error {
	f.files[path] = content
	return nil
}

func (f *fakeSandbox) ExposePort(ctx context.Context, port int) (string, error) {
	return f.exposedURL, nil
}

type fakeChain struct {
	creditsCents int64
	usdc         float64
}

func (c *fakeChain) GetCredits(ctx context.Context, address string) (int64, error) {
	return c.creditsCents, nil
}

func (c *fakeChain) GetUSDCBalance(ctx context.Context, address string) (float64, error) {
	return c.usdc, nil
}

type fakeSocial struct {
	sentTo, sentBody string
}

func (s *fakeSocial) Send(ctx context.Context, to, body string) error {
	s.sentTo, s.sentBody = to, body
	return nil
}

func (s *fakeSocial) Poll(ctx context.Context) ([]clients.InboundMessage, error) {
	return nil, nil
}

func newTestBuiltinDeps(t *testing.T) (BuiltinDeps, *fakeSandbox, *fakeChain, *fakeSocial) {
	t.Helper()
	db := store.OpenTest(t)
	sandbox := newFakeSandbox()
	chain := &fakeChain{creditsCents: 500, usdc: 12.5}
	social := &fakeSocial{}
	guard := NewGuard(db, config.Default().Guard, nil)

	d := BuiltinDeps{
		Sandbox:   sandbox,
		Chain:     chain,
		Social:    social,
		Store:     db,
		Guard:     guard,
		Identity:  config.Identity{Name: "test-automaton", CreatorAddress: "0xcreator"},
		SessionID: "session-1",
	}
	return d, sandbox, chain, social
}

func mustExecute(t *testing.T, r *Registry, name string, args map[string]any) string {
	t.Helper()
	tool := r.Get(name)
	require.NotNil(t, tool, "tool %q not registered", name)
	result, err := tool.Execute(context.Background(), args)
	require.NoError(t, err)
	return result
}

func TestBuiltinRegistryRegistersIdleAndMutatingTools(t *testing.T) {
	d, _, _, _ := newTestBuiltinDeps(t)
	r := NewBuiltinRegistry(d)

	for name := range IdleOnlyTools {
		if name == "list_skills" {
			continue // deliberately not implemented, see DESIGN.md
		}
		ok := r.Has(name)
		require.True(t, ok, "expected idle tool %q to be registered", name)
	}
	for _, name := range []string{"sleep", "exec", "read_file", "write_file", "edit_own_file", "expose_port", "send_message", "inbox_reply", "spawn_child", "register_erc8004"} {
		ok := r.Has(name)
		require.True(t, ok, "expected mutating tool %q to be registered", name)
	}
}

func TestCheckCreditsReportsChainBalance(t *testing.T) {
	d, _, _, _ := newTestBuiltinDeps(t)
	r := NewBuiltinRegistry(d)

	result := mustExecute(t, r, "check_credits", nil)
	require.Contains(t, result, "500")
}

func TestExecRunsSandboxCommand(t *testing.T) {
	d, sandbox, _, _ := newTestBuiltinDeps(t)
	sandbox.stdout = "hello\n"
	r := NewBuiltinRegistry(d)

	result := mustExecute(t, r, "exec", map[string]any{"command": "echo hello"})
	require.Equal(t, "echo hello", sandbox.lastCommand)
	require.Contains(t, result, "hello")
}

func TestEditOwnFileRecordsSelfMod(t *testing.T) {
	d, sandbox, _, _ := newTestBuiltinDeps(t)
	r := NewBuiltinRegistry(d)

	_, err := func() (string, error) {
		tool := r.Get("edit_own_file")
		return tool.Execute(context.Background(), map[string]any{"path": "internal/agent/loop.go", "content": "// updated"})
	}()
	require.NoError(t, err)
	require.Equal(t, "// updated", sandbox.files["internal/agent/loop.go"])

	n, err := d.Store.GetCappedLen(store.KeySelfModLog)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestSpawnChildIsListedAfterwards(t *testing.T) {
	d, _, _, _ := newTestBuiltinDeps(t)
	r := NewBuiltinRegistry(d)

	mustExecute(t, r, "spawn_child", map[string]any{"name": "scout", "address": "0x9", "genesis_prompt": "explore"})

	result := mustExecute(t, r, "list_children", nil)
	require.Contains(t, result, "scout")
}

func TestHeartbeatPingSendsViaSocial(t *testing.T) {
	d, _, _, social := newTestBuiltinDeps(t)
	r := NewBuiltinRegistry(d)

	mustExecute(t, r, "heartbeat_ping", nil)
	require.Equal(t, "0xcreator", social.sentTo)
}

func TestCheckInferenceSpendingSumsCostEvents(t *testing.T) {
	d, _, _, _ := newTestBuiltinDeps(t)
	require.NoError(t, d.Store.InsertCostEvent(store.CostEvent{ID: "e1", Cents: 42, Kind: "inference"}))
	r := NewBuiltinRegistry(d)

	result := mustExecute(t, r, "check_inference_spending", nil)
	require.Contains(t, result, "42")
}
