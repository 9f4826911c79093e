// Package agent implements the inner Think->Act->Observe->Persist cycle:
// the single-threaded loop that drives inference, executes guarded tool
// calls against the sandbox, persists turns, and owns the per-turn and
// per-session guards (consecutive-error limit, tool-call cap, repetition
// detector, idle auto-sleep, kill-switch window).
package agent

import (
	"time"

	"automaton/internal/config"
	"automaton/internal/store"
)

// MaxToolCallsPerTurn bounds how many of a single inference response's
// tool calls are executed before the turn is cut short.
const MaxToolCallsPerTurn = 10

// MaxConsecutiveErrors is the number of back-to-back turn failures that
// forces the loop to sleep rather than spin.
const MaxConsecutiveErrors = 5

const (
	idleSleepDuration       = 60 * time.Second
	toolCapSleepDuration    = 60 * time.Second
	repetitionSleepDuration = 300 * time.Second
	errorSleepDuration      = 300 * time.Second
	sameToolTripLimit       = 3
	maxInboxDrain           = 5
)

// Non-reserved KV keys the loop uses for its own bookkeeping. These sit
// alongside the lifecycle-critical reserved keys in internal/store/kv.go
// but don't participate in resurrection/tier semantics, so they aren't
// cleared on those transitions.
const (
	keyLastKnownCreditsCents = "last_known_credits_cents"
	keyLastKnownUSDCBalance  = "last_known_usdc_balance"
)

// Skill is the minimal shape the loop needs to render a skill catalog
// into the system prompt. Skill discovery/loading itself is an external
// collaborator (skill loaders are out of the core's scope).
type Skill struct {
	Name        string
	Description string
}

// FinancialState is the derived (never stored as one row) credit/balance
// snapshot refreshed once per loop iteration.
type FinancialState struct {
	CreditsCents int64
	USDCBalance  float64
	LastChecked  time.Time
	Cached       bool // true when the chain read failed and this is the last-known value
}

// Identity is an alias of config.Identity, kept as its own name in this
// package so loop call sites read in terms of the agent's self rather
// than the config file's shape.
type Identity = config.Identity

// StateChangeFunc is invoked whenever the loop transitions AgentState.
type StateChangeFunc func(from, to store.AgentState)

// TurnCompleteFunc is invoked after a turn and its tool calls have been
// durably persisted.
type TurnCompleteFunc func(store.Turn)
