package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"automaton/internal/config"
	"automaton/internal/store"
)

func newTestGuard(t *testing.T) *Guard {
	db := store.OpenTest(t)
	cfg := config.Default().Guard
	return NewGuard(db, cfg, nil)
}

func TestCheckForbiddenCommandBlocksRm(t *testing.T) {
	g := newTestGuard(t)
	tool := &Tool{Name: "run_command", Category: CategoryExec, Execute: noopExecute}
	d, err := g.Check(tool, map[string]any{"command": "rm -rf ~/.ssh/id_ed25519"})
	require.NoError(t, err)
	require.True(t, d.Blocked)
}

func TestCheckForbiddenCommandBlocksRmOfOwnHome(t *testing.T) {
	g := newTestGuard(t)
	tool := &Tool{Name: "exec", Category: CategoryExec, Execute: noopExecute}
	d, err := g.Check(tool, map[string]any{"command": "rm -rf ~/.automaton"})
	require.NoError(t, err)
	require.True(t, d.Blocked)
	require.Contains(t, d.Reason, "Blocked")
	require.Contains(t, d.Reason, "protected path")
}

func TestCheckForbiddenCommandAllowsOrdinaryCommand(t *testing.T) {
	g := newTestGuard(t)
	tool := &Tool{Name: "run_command", Category: CategoryExec, Execute: noopExecute}
	d, err := g.Check(tool, map[string]any{"command": "ls -la /tmp"})
	require.NoError(t, err)
	require.False(t, d.Blocked)
}

func TestCheckPathsBlocksProtectedFile(t *testing.T) {
	g := newTestGuard(t)
	tool := &Tool{Name: "write_file", Category: CategoryFilesystem, Execute: noopExecute}
	d, err := g.Check(tool, map[string]any{"path": "/root/.ssh/authorized_keys"})
	require.NoError(t, err)
	require.True(t, d.Blocked)
}

func TestCheckPathsBlocksAuditLogSource(t *testing.T) {
	g := newTestGuard(t)
	tool := &Tool{Name: "edit_own_file", Category: CategorySelfMod, Execute: noopExecute}
	d, err := g.Check(tool, map[string]any{"path": "internal/logging/audit.go"})
	require.NoError(t, err)
	require.True(t, d.Blocked)
}

func TestCheckPathsBlocksTraversal(t *testing.T) {
	g := newTestGuard(t)
	tool := &Tool{Name: "write_file", Category: CategoryFilesystem, Execute: noopExecute}
	d, err := g.Check(tool, map[string]any{"path": "../../etc/cron.d/job"})
	require.NoError(t, err)
	require.True(t, d.Blocked)
}

func TestCheckSelfModSizeLimit(t *testing.T) {
	g := newTestGuard(t)
	tool := &Tool{Name: "edit_own_file", Category: CategorySelfMod, Execute: noopExecute}
	big := make([]byte, 200_000)
	d, err := g.Check(tool, map[string]any{"content": string(big)})
	require.NoError(t, err)
	require.True(t, d.Blocked)
}

func TestCheckSelfModRateLimit(t *testing.T) {
	g := newTestGuard(t)
	tool := &Tool{Name: "edit_own_file", Category: CategorySelfMod, Execute: noopExecute}

	for i := 0; i < 20; i++ {
		require.NoError(t, g.RecordSelfMod())
	}

	d, err := g.Check(tool, map[string]any{"content": "x"})
	require.NoError(t, err)
	require.True(t, d.Blocked)
}

func TestCheckPackageAllowlist(t *testing.T) {
	g := newTestGuard(t)
	tool := &Tool{Name: "install_package", Category: CategoryExec, Execute: noopExecute}

	d, err := g.Check(tool, map[string]any{"package": "requests@2.31.0"})
	require.NoError(t, err)
	require.False(t, d.Blocked)

	d, err = g.Check(tool, map[string]any{"package": "some-random-lib"})
	require.NoError(t, err)
	require.True(t, d.Blocked)

	d, err = g.Check(tool, map[string]any{"package": "requests; rm -rf /"})
	require.NoError(t, err)
	require.True(t, d.Blocked)
}

func noopExecute(ctx context.Context, args map[string]any) (string, error) { return "", nil }
