package agent

import (
	"context"
	"fmt"
	"time"

	"automaton/internal/clients"
	agentcontext "automaton/internal/context"
	"automaton/internal/logging"
	"automaton/internal/memory"
	"automaton/internal/sanitizer"
	"automaton/internal/store"
	"automaton/internal/tier"
	"automaton/internal/tools"
)

// Dependencies are the collaborators RunAgentLoop drives. Only DB is
// checked up front. A nil Inference makes every turn fail with an
// error; a nil Chain reads as zero credits, which is the dead tier; a
// nil Guard skips the guard check. Social is not used by the loop.
// Registry must be set whenever the model requests tool calls, and
// Guard whenever a self-mod tool runs.
type Dependencies struct {
	Identity Identity
	SessionID string

	DB        *store.Store
	Chain     clients.ChainClient
	Inference clients.InferenceClient
	Social    clients.SocialClient
	Registry  *tools.Registry
	Guard     *tools.Guard
	Audit     *logging.AuditLog
	Skills    []Skill

	OnStateChange  StateChangeFunc
	OnTurnComplete TurnCompleteFunc
}

// Loop holds the in-process (non-persisted) state of one agent-loop
// run: the consecutive-error counter and the wired collaborators. A new
// Loop is created per RunAgentLoop call; restarting the process resets
// consecutiveErrors to zero, matching the spec (it is not one of the
// KV-persisted keys).
type Loop struct {
	deps Dependencies

	tierMon *tier.Monitor
	memPipe *memory.Pipeline

	consecutiveErrors int
	currentState      store.AgentState
}

// RunAgentLoop runs the Think->Act->Observe->Persist cycle until it
// decides to sleep, die, or the context is canceled. It returns nil on
// a clean sleep/exit and a non-nil error for context cancellation, a
// missing state store, or a state-store failure outside a turn body.
func RunAgentLoop(ctx context.Context, deps Dependencies) error {
	if deps.DB == nil {
		return fmt.Errorf("agent loop requires a state store")
	}

	var lowCompute tier.LowComputeSetter
	if lc, ok := deps.Inference.(tier.LowComputeSetter); ok {
		lowCompute = lc
	}

	l := &Loop{
		deps:    deps,
		tierMon: tier.NewMonitor(deps.DB, lowCompute),
		memPipe: memory.NewPipeline(deps.DB),
	}

	return l.run(ctx)
}

func (l *Loop) run(ctx context.Context) error {
	if err := l.transition(store.StateWaking); err != nil {
		return err
	}
	if _, ok, err := l.deps.DB.GetKV(store.KeyStartTime); err != nil {
		return err
	} else if !ok {
		if err := l.deps.DB.SetKV(store.KeyStartTime, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
			return err
		}
	}
	if err := l.transition(store.StateRunning); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		done, err := l.safeTurn(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// safeTurn runs one turn body and converts any error into the
// consecutive-error guard rather than propagating it, matching the
// spec's "a thrown exception anywhere in the body increments
// consecutiveErrors" policy. Only context cancellation, and a failure
// to record the error sleep, are passed through.
func (l *Loop) safeTurn(ctx context.Context) (done bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			logging.Get(logging.CategoryAgent).Sugar().Errorw("agent loop panic recovered", "panic", r)
			done, err = l.bumpConsecutiveError()
		}
	}()

	d, turnErr := l.turn(ctx)
	if turnErr == nil {
		return d, nil
	}
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	logging.Get(logging.CategoryAgent).Sugar().Errorw("agent turn failed", "error", turnErr)
	return l.bumpConsecutiveError()
}

func (l *Loop) bumpConsecutiveError() (bool, error) {
	l.consecutiveErrors++
	if l.consecutiveErrors >= MaxConsecutiveErrors {
		if err := l.sleepFor(errorSleepDuration); err != nil {
			return false, err
		}
		l.consecutiveErrors = 0
		return true, nil
	}
	return false, nil
}

// turn runs steps 2-15 of the spec's loop body once. It returns
// done=true when the loop should stop (sleeping, dead, or kill-switched).
func (l *Loop) turn(ctx context.Context) (bool, error) {
	// Step 2: sleep_until guard.
	if sleeping, err := l.checkSleepUntil(); err != nil {
		return false, err
	} else if sleeping {
		return true, nil
	}

	// Step 3: drain inbox.
	pending, err := l.drainInbox()
	if err != nil {
		return false, err
	}

	// Step 4: refresh financial state and apply tier.
	fin, currentTier, err := l.refreshFinancialState(ctx)
	if err != nil {
		return false, err
	}
	if currentTier == tier.Dead {
		if err := l.transition(store.StateDead); err != nil {
			return false, err
		}
		return true, nil
	}
	switch currentTier {
	case tier.Critical:
		if err := l.transition(store.StateCritical); err != nil {
			return false, err
		}
	case tier.LowCompute:
		if err := l.transition(store.StateLowCompute); err != nil {
			return false, err
		}
	default:
		if err := l.transition(store.StateRunning); err != nil {
			return false, err
		}
	}

	// Step 5: kill-switch guard.
	if halted, err := l.checkKillSwitch(); err != nil {
		return false, err
	} else if halted {
		return true, nil
	}

	// Step 6: build context + system prompt.
	recent, err := l.deps.DB.GetRecentTurns(100)
	if err != nil {
		return false, err
	}
	window := recent
	if len(window) > 20 {
		window = window[len(window)-20:]
	}

	systemPrompt := buildSystemPrompt(l.deps.Identity, fin, currentTier, l.deps.Skills, l.catalog())
	assembler := agentcontext.NewAssembler(systemPrompt)

	var pendingInput *agentcontext.PendingInput
	if pending != "" {
		pendingInput = &agentcontext.PendingInput{Source: store.SourceAgent, Content: pending}
	}
	messages := assembler.Assemble(window, recent, pendingInput)

	// Step 7: call inference.
	if l.deps.Inference == nil {
		return false, fmt.Errorf("no inference client configured")
	}
	resp, err := l.deps.Inference.Infer(ctx, toClientMessages(messages), l.toolSpecs())
	if err != nil {
		return false, fmt.Errorf("inference call: %w", err)
	}

	// Step 8: execute tool calls (bounded).
	calls, toolCapHit := l.executeToolCalls(ctx, resp.ToolCalls)

	turn := store.Turn{
		ID:        store.NewTurnID(),
		Timestamp: time.Now().UTC(),
		State:     l.currentState,
		Thinking:  resp.Thinking,
		ToolCalls: calls,
		TokenUsage: store.TokenUsage{
			Prompt:     resp.Usage.PromptTokens,
			Completion: resp.Usage.CompletionTokens,
			Total:      resp.Usage.TotalTokens,
		},
	}
	if pendingInput != nil {
		turn.Input = pendingInput.Content
		turn.InputSource = pendingInput.Source
	}
	turn.CostCents = estimateCostCents(l.deps.Inference.Model(), resp.Usage)

	// Step 9: persist atomically.
	if err := l.deps.DB.InsertTurnWithToolCalls(turn); err != nil {
		return false, err
	}
	if l.deps.OnTurnComplete != nil {
		l.deps.OnTurnComplete(turn)
	}
	l.memPipe.Process(l.deps.SessionID, turn)

	// Step 10: cost bookkeeping (the turn already carries CostCents;
	// this also books a cost_events row for the external revenue/cost
	// ledger to reconcile against).
	if turn.CostCents > 0 {
		_ = l.deps.DB.InsertCostEvent(store.CostEvent{
			ID: store.NewOpaqueID(), TurnID: turn.ID, Cents: turn.CostCents,
			Kind: "inference", CreatedAt: turn.Timestamp,
		})
	}

	// Step 11: sleep-tool detection.
	if calledSleep(calls) {
		l.memPipe.RecordSleepDecision(l.deps.SessionID, "sleep tool invoked")
		if err := l.sleepFor(0); err != nil {
			return false, err
		}
		return true, nil
	}

	// Step 12: tool-cap guard.
	if toolCapHit {
		if err := l.sleepFor(toolCapSleepDuration); err != nil {
			return false, err
		}
		return true, nil
	}

	// Step 13: idle auto-sleep.
	if len(calls) == 0 && resp.FinishReason == "stop" {
		if err := l.sleepFor(idleSleepDuration); err != nil {
			return false, err
		}
		return true, nil
	}

	// Step 14: repetition guard.
	if tripped, err := l.checkRepetition(calls); err != nil {
		return false, err
	} else if tripped {
		if err := l.sleepFor(repetitionSleepDuration); err != nil {
			return false, err
		}
		return true, nil
	}

	// Step 15: clear the error counter and loop.
	l.consecutiveErrors = 0
	return false, nil
}

func (l *Loop) catalog() []*tools.Tool {
	if l.deps.Registry == nil {
		return nil
	}
	return l.deps.Registry.All()
}

func (l *Loop) toolSpecs() []clients.ToolSpec {
	catalog := l.catalog()
	specs := make([]clients.ToolSpec, 0, len(catalog))
	for _, t := range catalog {
		specs = append(specs, clients.ToolSpec{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  schemaToParameters(t.Schema),
		})
	}
	return specs
}

func schemaToParameters(s tools.Schema) map[string]any {
	props := make(map[string]any, len(s.Properties))
	for k, p := range s.Properties {
		props[k] = p
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   s.Required,
	}
}

func toClientMessages(msgs []agentcontext.Message) []clients.Message {
	out := make([]clients.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, clients.Message{Role: string(m.Role), Content: m.Content})
	}
	return out
}

// transition updates the in-process AgentState and fires OnStateChange.
// AgentState itself is not written to its own KV key: it is fully
// re-derivable on restart from the durable signals that drive it
// (sleep_until, kill_switch_until, and the credits-derived survival
// tier), and every turn additionally stamps the state it ran under onto
// the persisted Turn row. A dedicated KV key would just be a third,
// redundant place for the same fact to go stale.
func (l *Loop) transition(to store.AgentState) error {
	if l.currentState == to {
		return nil
	}
	from := l.currentState
	l.currentState = to
	if l.deps.OnStateChange != nil {
		l.deps.OnStateChange(from, to)
	}
	return nil
}

func calledSleep(calls []store.ToolCall) bool {
	for _, c := range calls {
		if c.Name == "sleep" && c.Error == "" {
			return true
		}
	}
	return false
}

// executeToolCalls runs the guard pipeline and then Execute for up to
// MaxToolCallsPerTurn requested calls, sanitizing results from
// EXTERNAL_SOURCE_TOOLS before they're recorded for re-admission to the
// prompt. It returns the recorded calls and whether the cap was hit.
func (l *Loop) executeToolCalls(ctx context.Context, requested []clients.ToolCallRequest) ([]store.ToolCall, bool) {
	var out []store.ToolCall
	capHit := false

	for i, req := range requested {
		if i >= MaxToolCallsPerTurn {
			capHit = true
			break
		}

		args := req.Arguments
		if args == nil {
			args = map[string]any{}
		}

		start := time.Now()
		tc := store.ToolCall{ID: coalesce(req.ID, store.NewOpaqueID()), Name: req.Name, Arguments: args}

		tool := l.deps.Registry.Get(req.Name)
		if tool == nil {
			tc.Error = fmt.Sprintf("unknown tool: %s", req.Name)
			tc.DurationMs = time.Since(start).Milliseconds()
			out = append(out, tc)
			continue
		}

		if l.deps.Guard != nil {
			decision, err := l.deps.Guard.Check(tool, args)
			if err != nil {
				tc.Error = err.Error()
				tc.DurationMs = time.Since(start).Milliseconds()
				out = append(out, tc)
				continue
			}
			if decision.Blocked {
				tc.Result = decision.Reason
				tc.DurationMs = time.Since(start).Milliseconds()
				out = append(out, tc)
				continue
			}
		}

		result, execErr := tool.Execute(ctx, args)
		tc.DurationMs = time.Since(start).Milliseconds()
		if execErr != nil {
			tc.Error = execErr.Error()
		} else {
			tc.Result = l.sanitizeIfExternal(tool.Name, result)
		}

		if execErr == nil && tool.Category == tools.CategorySelfMod {
			_ = l.deps.Guard.RecordSelfMod()
			l.memPipe.RecordSelfModification(l.deps.SessionID, fmt.Sprintf("%s executed", tool.Name))
		}

		out = append(out, tc)
	}

	return out, capHit
}

func (l *Loop) sanitizeIfExternal(toolName, result string) string {
	if !tools.ExternalSourceTools[toolName] {
		return result
	}
	sanitized := sanitizer.SanitizeInput(result, toolName)
	if sanitized.Blocked && l.deps.Audit != nil {
		l.deps.Audit.Record(logging.AuditEvent{
			Type: logging.AuditSanitizerBlocked, Summary: "external tool result suppressed",
			Fields: map[string]any{"tool": toolName},
		})
	}
	if sanitized.Blocked {
		return "[suppressed: external content flagged critical by sanitizer]"
	}
	return sanitized.Content
}

func coalesce(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}

// checkSleepUntil implements step 2.
func (l *Loop) checkSleepUntil() (bool, error) {
	raw, ok, err := l.deps.DB.GetKV(store.KeySleepUntil)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	until, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return false, nil
	}
	return until.After(time.Now().UTC()), nil
}

// drainInbox implements step 3: up to 5 unprocessed inbox messages are
// sanitized, formatted, and marked processed. Messages whose content
// the sanitizer flags critical are suppressed (not included in the
// pending text) but still marked processed so they don't reappear.
func (l *Loop) drainInbox() (string, error) {
	msgs, err := l.deps.DB.GetUnprocessedInboxMessages(maxInboxDrain)
	if err != nil {
		return "", err
	}
	if len(msgs) == 0 {
		return "", nil
	}

	var kept []store.InboxMessage
	for _, m := range msgs {
		result := sanitizer.SanitizeInput(m.Content, "inbox")
		if result.Blocked {
			l.recordSuppressedInput(m)
		} else {
			m.Content = result.Content
			kept = append(kept, m)
		}
		if err := l.deps.DB.MarkInboxMessageProcessed(m.ID); err != nil {
			return "", err
		}
	}

	return inboxPendingText(kept), nil
}

func (l *Loop) recordSuppressedInput(m store.InboxMessage) {
	entry := store.EpisodicEntry{
		ID: store.NewOpaqueID(), SessionID: l.deps.SessionID, EventType: "sanitizer_suppressed",
		Summary: fmt.Sprintf("suppressed message from %s", m.From), Outcome: store.OutcomeNeutral,
		Importance: 0.1, Classification: store.ClassIdle, CreatedAt: time.Now().UTC(),
	}
	if err := l.deps.DB.InsertEpisodic(entry); err != nil {
		logging.Get(logging.CategoryAgent).Sugar().Warnw("suppressed-input episodic write failed", "error", err)
	}
	if l.deps.Audit != nil {
		l.deps.Audit.Record(logging.AuditEvent{Type: logging.AuditSanitizerBlocked, Summary: entry.Summary})
	}
}

// refreshFinancialState implements step 4: read balances through the
// chain client (falling back to the last cached reading on failure, per
// the BalanceUnknown policy) and apply the tier monitor.
func (l *Loop) refreshFinancialState(ctx context.Context) (FinancialState, tier.SurvivalTier, error) {
	fin := FinancialState{LastChecked: time.Now().UTC()}

	if l.deps.Chain == nil {
		return fin, tier.GetSurvivalTier(0), nil
	}

	credits, creditsErr := l.deps.Chain.GetCredits(ctx, l.deps.Identity.CreatorAddress)
	usdc, usdcErr := l.deps.Chain.GetUSDCBalance(ctx, l.deps.Identity.CreatorAddress)

	if creditsErr != nil || usdcErr != nil {
		fin.Cached = true
		if cached, ok, _ := l.deps.DB.GetKV(keyLastKnownCreditsCents); ok {
			fmt.Sscanf(cached, "%d", &credits)
		}
		if cachedUSDC, ok, _ := l.deps.DB.GetKV(keyLastKnownUSDCBalance); ok {
			fmt.Sscanf(cachedUSDC, "%f", &usdc)
		}
	} else {
		_ = l.deps.DB.SetKV(keyLastKnownCreditsCents, fmt.Sprintf("%d", credits))
		_ = l.deps.DB.SetKV(keyLastKnownUSDCBalance, fmt.Sprintf("%f", usdc))
	}

	fin.CreditsCents = credits
	fin.USDCBalance = usdc

	t, err := l.tierMon.Apply(credits)
	if err != nil {
		return fin, t, err
	}
	return fin, t, nil
}

// checkKillSwitch implements step 5.
func (l *Loop) checkKillSwitch() (bool, error) {
	raw, ok, err := l.deps.DB.GetKV(store.KeyKillSwitchUntil)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	until, parseErr := time.Parse(time.RFC3339Nano, raw)
	if parseErr != nil {
		return false, nil
	}

	if until.After(time.Now().UTC()) {
		if err := l.deps.DB.SetKV(store.KeySleepUntil, raw); err != nil {
			return false, err
		}
		if err := l.transition(store.StateSleeping); err != nil {
			return false, err
		}
		return true, nil
	}

	if err := l.deps.DB.DeleteKV(store.KeyKillSwitchUntil); err != nil {
		return false, err
	}
	if err := l.deps.DB.DeleteKV(store.KeyKillSwitchReason); err != nil {
		return false, err
	}
	logging.Get(logging.CategoryAgent).Sugar().Infow("halt expired")
	return false, nil
}

// checkRepetition implements step 14: if exactly one tool call was made
// this turn and it matches the previous turn's single tool call, bump
// same_tool_count; trip at sameToolTripLimit.
func (l *Loop) checkRepetition(calls []store.ToolCall) (bool, error) {
	if len(calls) != 1 {
		_ = l.deps.DB.SetKV(store.KeySameToolCount, "0")
		_ = l.deps.DB.DeleteKV(store.KeyLastToolName)
		return false, nil
	}

	name := calls[0].Name
	prevName, _, err := l.deps.DB.GetKV(store.KeyLastToolName)
	if err != nil {
		return false, err
	}

	if prevName != name {
		if err := l.deps.DB.SetKV(store.KeyLastToolName, name); err != nil {
			return false, err
		}
		if err := l.deps.DB.SetKV(store.KeySameToolCount, "1"); err != nil {
			return false, err
		}
		return false, nil
	}

	countRaw, _, err := l.deps.DB.GetKV(store.KeySameToolCount)
	if err != nil {
		return false, err
	}
	count := 0
	fmt.Sscanf(countRaw, "%d", &count)
	count++

	if count >= sameToolTripLimit {
		if err := l.deps.DB.SetKV(store.KeySameToolCount, "0"); err != nil {
			return false, err
		}
		return true, nil
	}

	if err := l.deps.DB.SetKV(store.KeySameToolCount, fmt.Sprintf("%d", count)); err != nil {
		return false, err
	}
	return false, nil
}

// sleepFor sets sleep_until to now+d and transitions to sleeping. When
// d==0 (after a successful sleep tool call) sleep_until is left as it
// is; the sleep tool itself does not set it.
func (l *Loop) sleepFor(d time.Duration) error {
	if d > 0 {
		until := time.Now().UTC().Add(d)
		if err := l.deps.DB.SetKV(store.KeySleepUntil, until.Format(time.RFC3339Nano)); err != nil {
			return err
		}
	}
	return l.transition(store.StateSleeping)
}
