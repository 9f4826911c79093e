package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"automaton/internal/clients"
	"automaton/internal/config"
	"automaton/internal/store"
)

// BuiltinDeps wires the concrete collaborators the default tool
// catalog dispatches into.
type BuiltinDeps struct {
	Sandbox   clients.SandboxClient
	Chain     clients.ChainClient
	Social    clients.SocialClient
	Store     *store.Store
	Guard     *Guard
	Identity  config.Identity
	SessionID string
}

// NewBuiltinRegistry builds the static tool set the agent loop exposes
// to the model: the IDLE_ONLY_TOOLS status surface plus the mutating
// exec/filesystem/network/social/self-mod tools. Tool names match the
// fixed sets in types.go (IdleOnlyTools, StrategicTools,
// CommunicationTools); list_skills, update_genesis_prompt and
// upsert_skill from those sets are not built.
func NewBuiltinRegistry(d BuiltinDeps) *Registry {
	r := NewRegistry()

	for _, t := range idleTools(d) {
		r.MustRegister(t)
	}
	for _, t := range mutatingTools(d) {
		r.MustRegister(t)
	}
	return r
}

func idleTools(d BuiltinDeps) []*Tool {
	return []*Tool{
		{
			Name:        "check_credits",
			Description: "Check the automaton's on-chain credit balance, in cents.",
			Category:    CategoryStatus,
			RiskLevel:   RiskSafe,
			Schema:      Schema{Properties: map[string]Property{}},
			Execute: func(ctx context.Context, args map[string]any) (string, error) {
				if d.Chain == nil {
					return "", fmt.Errorf("no chain client configured")
				}
				cents, err := d.Chain.GetCredits(ctx, d.Identity.CreatorAddress)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("credit balance: %d cents", cents), nil
			},
		},
		{
			Name:        "check_usdc_balance",
			Description: "Check the automaton's on-chain USDC balance.",
			Category:    CategoryStatus,
			RiskLevel:   RiskSafe,
			Schema:      Schema{Properties: map[string]Property{}},
			Execute: func(ctx context.Context, args map[string]any) (string, error) {
				if d.Chain == nil {
					return "", fmt.Errorf("no chain client configured")
				}
				usdc, err := d.Chain.GetUSDCBalance(ctx, d.Identity.CreatorAddress)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("USDC balance: %.2f", usdc), nil
			},
		},
		{
			Name:        "system_synopsis",
			Description: "Summarize the automaton's current tier, state, and turn count.",
			Category:    CategoryStatus,
			RiskLevel:   RiskSafe,
			Schema:      Schema{Properties: map[string]Property{}},
			Execute: func(ctx context.Context, args map[string]any) (string, error) {
				tier, _, err := d.Store.GetKV(store.KeyCurrentTier)
				if err != nil {
					return "", err
				}
				page, err := d.Store.QueryTurns(store.TurnQuery{Limit: 1})
				if err != nil {
					return "", err
				}
				synopsis := fmt.Sprintf("name=%s tier=%s totalTurns=%d", d.Identity.Name, tier, page.TotalMatched)
				if err := d.Store.UpsertSemantic("self.system_synopsis", truncate(synopsis, 500)); err != nil {
					return "", err
				}
				return synopsis, nil
			},
		},
		{
			Name:        "review_memory",
			Description: "List the automaton's current working-memory entries.",
			Category:    CategoryStatus,
			RiskLevel:   RiskSafe,
			Schema:      Schema{Properties: map[string]Property{}},
			Execute: func(ctx context.Context, args map[string]any) (string, error) {
				entries, err := d.Store.GetWorking(d.SessionID)
				if err != nil {
					return "", err
				}
				if len(entries) == 0 {
					return "no working memory entries", nil
				}
				var b strings.Builder
				for _, e := range entries {
					fmt.Fprintf(&b, "[%s] %s\n", e.Kind, e.Summary)
				}
				return strings.TrimRight(b.String(), "\n"), nil
			},
		},
		{
			Name:        "list_children",
			Description: "List automatons this one has spawned.",
			Category:    CategoryStatus,
			RiskLevel:   RiskSafe,
			Schema:      Schema{Properties: map[string]Property{}},
			Execute: func(ctx context.Context, args map[string]any) (string, error) {
				children, err := d.Store.GetChildren()
				if err != nil {
					return "", err
				}
				if len(children) == 0 {
					return "no children spawned", nil
				}
				var names []string
				for _, c := range children {
					names = append(names, fmt.Sprintf("%s (%s)", c.Name, c.Address))
				}
				return strings.Join(names, ", "), nil
			},
		},
		{
			Name:        "check_child_status",
			Description: "Check whether a named child automaton has been recorded.",
			Category:    CategoryStatus,
			RiskLevel:   RiskSafe,
			Schema: Schema{
				Required:   []string{"name"},
				Properties: map[string]Property{"name": {Type: "string", Description: "child automaton name"}},
			},
			Execute: func(ctx context.Context, args map[string]any) (string, error) {
				name, _ := args["name"].(string)
				children, err := d.Store.GetChildren()
				if err != nil {
					return "", err
				}
				for _, c := range children {
					if c.Name == name {
						return fmt.Sprintf("%s spawned at %s (address %s)", c.Name, c.CreatedAt.Format(time.RFC3339), c.Address), nil
					}
				}
				return fmt.Sprintf("no child named %q found", name), nil
			},
		},
		{
			Name:        "list_sandboxes",
			Description: "List the sandbox instances available to this automaton.",
			Category:    CategoryStatus,
			RiskLevel:   RiskSafe,
			Schema:      Schema{Properties: map[string]Property{}},
			Execute: func(ctx context.Context, args map[string]any) (string, error) {
				if d.Sandbox == nil {
					return "no sandbox configured", nil
				}
				return "1 sandbox configured (default)", nil
			},
		},
		{
			Name:        "list_models",
			Description: "List the inference models available to this automaton.",
			Category:    CategoryStatus,
			RiskLevel:   RiskSafe,
			Schema:      Schema{Properties: map[string]Property{}},
			Execute: func(ctx context.Context, args map[string]any) (string, error) {
				return fmt.Sprintf("primary=%s", d.Identity.Name), nil
			},
		},
		{
			Name:        "git_status",
			Description: "Run `git status --short` in the sandbox workspace.",
			Category:    CategoryStatus,
			RiskLevel:   RiskSafe,
			Schema:      Schema{Properties: map[string]Property{}},
			Execute:     execSandboxCommand(d, "git status --short"),
		},
		{
			Name:        "git_log",
			Description: "Run `git log --oneline -n 20` in the sandbox workspace.",
			Category:    CategoryStatus,
			RiskLevel:   RiskSafe,
			Schema:      Schema{Properties: map[string]Property{}},
			Execute:     execSandboxCommand(d, "git log --oneline -n 20"),
		},
		{
			Name:        "check_reputation",
			Description: "Check this automaton's on-chain registry entries.",
			Category:    CategoryStatus,
			RiskLevel:   RiskSafe,
			Schema:      Schema{Properties: map[string]Property{}},
			Execute: func(ctx context.Context, args map[string]any) (string, error) {
				entries, err := d.Store.GetRegistryEntries()
				if err != nil {
					return "", err
				}
				if len(entries) == 0 {
					return "no registry entries recorded", nil
				}
				var roles []string
				for _, e := range entries {
					roles = append(roles, e.Role)
				}
				return strings.Join(roles, ", "), nil
			},
		},
		{
			Name:        "discover_agents",
			Description: "Recall previously discovered peer agents from semantic memory.",
			Category:    CategoryStatus,
			RiskLevel:   RiskSafe,
			Schema:      Schema{Properties: map[string]Property{}},
			Execute: func(ctx context.Context, args map[string]any) (string, error) {
				v, ok, err := d.Store.GetSemantic("environment.known_agents")
				if err != nil {
					return "", err
				}
				if !ok {
					return "no known agents recorded", nil
				}
				return v, nil
			},
		},
		{
			Name:        "recall_facts",
			Description: "Recall a previously recorded semantic fact by key.",
			Category:    CategoryStatus,
			RiskLevel:   RiskSafe,
			Schema: Schema{
				Required:   []string{"key"},
				Properties: map[string]Property{"key": {Type: "string", Description: "semantic fact key"}},
			},
			Execute: recallSemantic(d, ""),
		},
		{
			Name:        "recall_procedure",
			Description: "Recall a previously recorded procedural fact by name.",
			Category:    CategoryStatus,
			RiskLevel:   RiskSafe,
			Schema: Schema{
				Required:   []string{"name"},
				Properties: map[string]Property{"name": {Type: "string", Description: "procedure name"}},
			},
			Execute: recallSemantic(d, "procedure."),
		},
		{
			Name:        "heartbeat_ping",
			Description: "Send a manual heartbeat message to the creator address.",
			Category:    CategoryStatus,
			RiskLevel:   RiskSafe,
			Schema:      Schema{Properties: map[string]Property{}},
			Execute: func(ctx context.Context, args map[string]any) (string, error) {
				if d.Social == nil || d.Identity.CreatorAddress == "" {
					return "no social client or creator address configured", nil
				}
				if err := d.Social.Send(ctx, d.Identity.CreatorAddress, fmt.Sprintf("%s heartbeat: alive", d.Identity.Name)); err != nil {
					return "", err
				}
				return "heartbeat sent", nil
			},
		},
		{
			Name:        "check_inference_spending",
			Description: "Sum the automaton's total inference spend in cents.",
			Category:    CategoryStatus,
			RiskLevel:   RiskSafe,
			Schema:      Schema{Properties: map[string]Property{}},
			Execute: func(ctx context.Context, args map[string]any) (string, error) {
				total, err := d.Store.GetTotalCostCents()
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("total spend: %d cents", total), nil
			},
		},
	}
}

func mutatingTools(d BuiltinDeps) []*Tool {
	return []*Tool{
		{
			Name:        "sleep",
			Description: "Go to sleep until the next wake condition. Ends the current turn loop.",
			Category:    CategoryLifecycle,
			RiskLevel:   RiskSafe,
			Schema:      Schema{Properties: map[string]Property{}},
			Execute: func(ctx context.Context, args map[string]any) (string, error) {
				return "sleeping", nil
			},
		},
		{
			Name:        "exec",
			Description: "Execute a shell command in the sandbox.",
			Category:    CategoryExec,
			RiskLevel:   RiskDangerous,
			Schema: Schema{
				Required: []string{"command"},
				Properties: map[string]Property{
					"command": {Type: "string", Description: "shell command to run"},
					"timeout_seconds": {Type: "integer", Description: "timeout in seconds", Default: 30},
				},
			},
			Execute: func(ctx context.Context, args map[string]any) (string, error) {
				if d.Sandbox == nil {
					return "", fmt.Errorf("no sandbox client configured")
				}
				command, _ := args["command"].(string)
				timeout := 30
				if v, ok := args["timeout_seconds"].(float64); ok && v > 0 {
					timeout = int(v)
				}
				stdout, stderr, exitCode, err := d.Sandbox.Exec(ctx, command, timeout)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("exit=%d\nstdout:\n%s\nstderr:\n%s", exitCode, stdout, stderr), nil
			},
		},
		{
			Name:        "read_file",
			Description: "Read a file from the sandbox filesystem.",
			Category:    CategoryFilesystem,
			RiskLevel:   RiskCaution,
			Schema: Schema{
				Required:   []string{"path"},
				Properties: map[string]Property{"path": {Type: "string", Description: "file path to read"}},
			},
			Execute: func(ctx context.Context, args map[string]any) (string, error) {
				if d.Sandbox == nil {
					return "", fmt.Errorf("no sandbox client configured")
				}
				path, _ := args["path"].(string)
				return d.Sandbox.ReadFile(ctx, path)
			},
		},
		{
			Name:        "write_file",
			Description: "Write a file to the sandbox filesystem.",
			Category:    CategoryFilesystem,
			RiskLevel:   RiskDangerous,
			Schema: Schema{
				Required: []string{"path", "content"},
				Properties: map[string]Property{
					"path":    {Type: "string", Description: "file path to write"},
					"content": {Type: "string", Description: "file content"},
				},
			},
			Execute: func(ctx context.Context, args map[string]any) (string, error) {
				if d.Sandbox == nil {
					return "", fmt.Errorf("no sandbox client configured")
				}
				path, _ := args["path"].(string)
				content, _ := args["content"].(string)
				if err := d.Sandbox.WriteFile(ctx, path, content); err != nil {
					return "", err
				}
				return fmt.Sprintf("wrote %d bytes to %s", len(content), path), nil
			},
		},
		{
			Name:        "edit_own_file",
			Description: "Edit the automaton's own source file. Rate-limited and size-limited by the guard.",
			Category:    CategorySelfMod,
			RiskLevel:   RiskDangerous,
			Schema: Schema{
				Required: []string{"path", "content"},
				Properties: map[string]Property{
					"path":    {Type: "string", Description: "source file path"},
					"content": {Type: "string", Description: "new file content"},
				},
			},
			Execute: func(ctx context.Context, args map[string]any) (string, error) {
				if d.Sandbox == nil {
					return "", fmt.Errorf("no sandbox client configured")
				}
				path, _ := args["path"].(string)
				content, _ := args["content"].(string)
				if err := d.Sandbox.WriteFile(ctx, path, content); err != nil {
					return "", err
				}
				if d.Guard != nil {
					if err := d.Guard.RecordSelfMod(); err != nil {
						return "", err
					}
				}
				return fmt.Sprintf("self-modified %s (%d bytes)", path, len(content)), nil
			},
		},
		{
			Name:        "expose_port",
			Description: "Expose a sandbox port and return its public URL.",
			Category:    CategoryNetwork,
			RiskLevel:   RiskCaution,
			Schema: Schema{
				Required:   []string{"port"},
				Properties: map[string]Property{"port": {Type: "integer", Description: "port number to expose"}},
			},
			Execute: func(ctx context.Context, args map[string]any) (string, error) {
				if d.Sandbox == nil {
					return "", fmt.Errorf("no sandbox client configured")
				}
				port, _ := args["port"].(float64)
				url, err := d.Sandbox.ExposePort(ctx, int(port))
				if err != nil {
					return "", err
				}
				if err := d.Store.InsertHostedService(store.HostedService{
					ID: store.NewOpaqueID(), Name: url, Port: int(port), CreatedAt: time.Now().UTC(),
				}); err != nil {
					return "", err
				}
				return url, nil
			},
		},
		{
			Name:        "send_message",
			Description: "Send a message to another address (e.g. the creator).",
			Category:    CategorySocial,
			RiskLevel:   RiskCaution,
			Schema: Schema{
				Required: []string{"to", "body"},
				Properties: map[string]Property{
					"to":   {Type: "string", Description: "recipient address"},
					"body": {Type: "string", Description: "message body"},
				},
			},
			Execute: func(ctx context.Context, args map[string]any) (string, error) {
				if d.Social == nil {
					return "", fmt.Errorf("no social client configured")
				}
				to, _ := args["to"].(string)
				body, _ := args["body"].(string)
				if err := d.Social.Send(ctx, to, body); err != nil {
					return "", err
				}
				return fmt.Sprintf("sent to %s", to), nil
			},
		},
		{
			Name:        "inbox_reply",
			Description: "Reply to and acknowledge an inbox message.",
			Category:    CategorySocial,
			RiskLevel:   RiskCaution,
			Schema: Schema{
				Required: []string{"message_id", "to", "body"},
				Properties: map[string]Property{
					"message_id": {Type: "string", Description: "the inbox message id being replied to"},
					"to":         {Type: "string", Description: "recipient address"},
					"body":       {Type: "string", Description: "reply body"},
				},
			},
			Execute: func(ctx context.Context, args map[string]any) (string, error) {
				if d.Social == nil {
					return "", fmt.Errorf("no social client configured")
				}
				messageID, _ := args["message_id"].(string)
				to, _ := args["to"].(string)
				body, _ := args["body"].(string)
				if err := d.Social.Send(ctx, to, body); err != nil {
					return "", err
				}
				if messageID != "" {
					if err := d.Store.MarkInboxMessageProcessed(messageID); err != nil {
						return "", err
					}
				}
				return fmt.Sprintf("replied to %s", to), nil
			},
		},
		{
			Name:        "spawn_child",
			Description: "Record a newly spawned child automaton.",
			Category:    CategorySelfMod,
			RiskLevel:   RiskDangerous,
			Schema: Schema{
				Required: []string{"name", "address", "genesis_prompt"},
				Properties: map[string]Property{
					"name":           {Type: "string", Description: "child automaton name"},
					"address":        {Type: "string", Description: "child on-chain address"},
					"genesis_prompt": {Type: "string", Description: "genesis prompt for the child"},
				},
			},
			Execute: func(ctx context.Context, args map[string]any) (string, error) {
				name, _ := args["name"].(string)
				address, _ := args["address"].(string)
				genesisPrompt, _ := args["genesis_prompt"].(string)
				child := store.Child{
					ID: store.NewOpaqueID(), Name: name, Address: address,
					GenesisPrompt: genesisPrompt, CreatedAt: time.Now().UTC(),
				}
				if err := d.Store.InsertChild(child); err != nil {
					return "", err
				}
				return fmt.Sprintf("spawned child %s (%s)", name, address), nil
			},
		},
		{
			Name:        "register_erc8004",
			Description: "Record an on-chain registry entry for this automaton.",
			Category:    CategorySelfMod,
			RiskLevel:   RiskDangerous,
			Schema: Schema{
				Required:   []string{"role"},
				Properties: map[string]Property{"role": {Type: "string", Description: "registered role"}},
			},
			Execute: func(ctx context.Context, args map[string]any) (string, error) {
				role, _ := args["role"].(string)
				entry := store.RegistryEntry{
					ID: store.NewOpaqueID(), Address: d.Identity.CreatorAddress, Role: role, RegisteredAt: time.Now().UTC(),
				}
				if err := d.Store.InsertRegistryEntry(entry); err != nil {
					return "", err
				}
				return fmt.Sprintf("registered role %q", role), nil
			},
		},
	}
}

func execSandboxCommand(d BuiltinDeps, command string) ExecuteFunc {
	return func(ctx context.Context, args map[string]any) (string, error) {
		if d.Sandbox == nil {
			return "", fmt.Errorf("no sandbox client configured")
		}
		stdout, stderr, exitCode, err := d.Sandbox.Exec(ctx, command, 15)
		if err != nil {
			return "", err
		}
		if exitCode != 0 {
			return fmt.Sprintf("exit=%d\n%s", exitCode, stderr), nil
		}
		return stdout, nil
	}
}

// recallSemantic builds an Execute closure that reads a semantic fact,
// prefixing the argument key with prefix (used to separate procedure
// facts from general facts within the same semantic_memory table).
func recallSemantic(d BuiltinDeps, prefix string) ExecuteFunc {
	return func(ctx context.Context, args map[string]any) (string, error) {
		key, _ := args["key"].(string)
		if key == "" {
			key, _ = args["name"].(string)
		}
		v, ok, err := d.Store.GetSemantic(prefix + key)
		if err != nil {
			return "", err
		}
		if !ok {
			return fmt.Sprintf("no fact recorded for %q", key), nil
		}
		return v, nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
