// Package tier implements the survival tier monitor: a deterministic
// mapping from credit balance to operating tier, plus transition logging
// and resurrection semantics.
package tier

import (
	"errors"
	"time"

	"automaton/internal/logging"
	"automaton/internal/store"
)

// SurvivalTier is the discrete survival state derived from credit balance.
type SurvivalTier string

const (
	Normal      SurvivalTier = "normal"
	LowCompute  SurvivalTier = "low_compute"
	Critical    SurvivalTier = "critical"
	Dead        SurvivalTier = "dead"
)

// ErrResurrectionDenied names a resurrection attempt that is not
// eligible. AttemptResurrection does not return it: it reports an
// ineligible attempt (credits below 10, or not currently dead) as
// Resurrected=false with a nil error.
var ErrResurrectionDenied = errors.New("resurrection denied")

const transitionCap = 50
const resurrectionCap = 50

// GetSurvivalTier derives the tier from a credit balance using fixed
// thresholds. The mapping is a pure function of creditsCents.
func GetSurvivalTier(creditsCents int64) SurvivalTier {
	switch {
	case creditsCents > 50:
		return Normal
	case creditsCents > 10:
		return LowCompute
	case creditsCents > 0:
		return Critical
	default:
		return Dead
	}
}

// Transition is one recorded tier change, appended to the KV-backed
// tier_transitions log (capped at 50 entries).
type Transition struct {
	From SurvivalTier `json:"from"`
	To   SurvivalTier `json:"to"`
	At   time.Time    `json:"at"`
}

// ResurrectionRecord is one recorded dead->waking resurrection.
type ResurrectionRecord struct {
	At           time.Time `json:"at"`
	CreditsCents int64     `json:"creditsCents"`
	NewTier      SurvivalTier `json:"newTier"`
}

// Monitor wires the pure tier function to the state store's KV log and
// to the inference client's low-compute flag.
type Monitor struct {
	db          *store.Store
	lowCompute  LowComputeSetter
}

// LowComputeSetter is the subset of the InferenceClient interface the
// tier monitor needs to toggle on tier transitions: entering low_compute
// or critical sets the inference client's low-compute flag.
type LowComputeSetter interface {
	SetLowCompute(bool)
}

// NewMonitor constructs a tier Monitor.
func NewMonitor(db *store.Store, lowCompute LowComputeSetter) *Monitor {
	return &Monitor{db: db, lowCompute: lowCompute}
}

// Apply derives the tier for creditsCents, compares it against the
// previously recorded current_tier, and if it changed: records the
// transition, updates current_tier, and toggles the inference client's
// low-compute flag. Returns the derived tier.
func (m *Monitor) Apply(creditsCents int64) (SurvivalTier, error) {
	newTier := GetSurvivalTier(creditsCents)

	prevRaw, ok, err := m.db.GetKV(store.KeyCurrentTier)
	if err != nil {
		return newTier, err
	}
	prev := SurvivalTier("")
	if ok {
		prev = SurvivalTier(prevRaw)
	}

	if prev == newTier {
		return newTier, nil
	}

	if err := m.db.SetKV(store.KeyCurrentTier, string(newTier)); err != nil {
		return newTier, err
	}
	if err := m.db.AppendCapped(store.KeyTierTransitions, Transition{From: prev, To: newTier, At: time.Now().UTC()}, transitionCap); err != nil {
		return newTier, err
	}

	if m.lowCompute != nil {
		switch newTier {
		case LowCompute, Critical:
			m.lowCompute.SetLowCompute(true)
		case Normal:
			m.lowCompute.SetLowCompute(false)
		}
	}

	logging.Get(logging.CategoryTier).Sugar().Infow("tier transition", "from", prev, "to", newTier, "creditsCents", creditsCents)
	return newTier, nil
}

// ResurrectionResult is returned by AttemptResurrection.
type ResurrectionResult struct {
	Resurrected bool
	NewTier     SurvivalTier
}

// AttemptResurrection: from dead, if creditsCents >= 10, transitions to
// the tier the balance now implies, clears the dead-related KV keys,
// records a resurrection, and appends a dead-><tier> transition. It is
// idempotent: a second call while not dead returns {false, ""} with no
// side effects.
func (m *Monitor) AttemptResurrection(creditsCents int64) (ResurrectionResult, error) {
	currentRaw, ok, err := m.db.GetKV(store.KeyCurrentTier)
	if err != nil {
		return ResurrectionResult{}, err
	}
	if !ok || SurvivalTier(currentRaw) != Dead {
		return ResurrectionResult{Resurrected: false}, nil
	}

	if creditsCents < 10 {
		return ResurrectionResult{Resurrected: false}, nil
	}

	newTier := GetSurvivalTier(creditsCents)

	if err := m.db.SetKV(store.KeyCurrentTier, string(newTier)); err != nil {
		return ResurrectionResult{}, err
	}
	if err := m.db.DeleteKV(store.KeyZeroCreditsSince); err != nil {
		return ResurrectionResult{}, err
	}
	if err := m.db.DeleteKV(store.KeyFundingNoticeDead); err != nil {
		return ResurrectionResult{}, err
	}
	if err := m.db.DeleteKV(store.KeyLastDistress); err != nil {
		return ResurrectionResult{}, err
	}
	if err := m.db.AppendCapped(store.KeyResurrectionHistory, ResurrectionRecord{
		At: time.Now().UTC(), CreditsCents: creditsCents, NewTier: newTier,
	}, resurrectionCap); err != nil {
		return ResurrectionResult{}, err
	}
	if err := m.db.AppendCapped(store.KeyTierTransitions, Transition{From: Dead, To: newTier, At: time.Now().UTC()}, transitionCap); err != nil {
		return ResurrectionResult{}, err
	}

	logging.Get(logging.CategoryTier).Sugar().Infow("resurrection", "creditsCents", creditsCents, "newTier", newTier)
	return ResurrectionResult{Resurrected: true, NewTier: newTier}, nil
}
