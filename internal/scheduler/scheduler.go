// Package scheduler implements the heartbeat/lifecycle scheduler: a set
// of cron-driven background tasks that run independently of the agent
// loop's own turn cadence, reading and writing the shared state store.
// Each task is either a direct in-process side effect (a tier re-check,
// a resurrection attempt) or an enqueued pendingInput row (an inbox
// message the next agent turn will drain and sanitize normally).
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"automaton/internal/clients"
	"automaton/internal/config"
	"automaton/internal/logging"
	"automaton/internal/store"
	"automaton/internal/tier"
)

const shutdownGrace = 5 * time.Second

// taskFunc is one heartbeat task's body. It receives a context that is
// canceled at shutdown.
type taskFunc func(ctx context.Context) error

// Scheduler owns the cron runtime and the collaborators its tasks call
// into. It never drives the agent loop directly: tasks only ever touch
// the shared store and the external clients.
type Scheduler struct {
	cfg      config.HeartbeatConfig
	identity config.Identity

	db     *store.Store
	chain  clients.ChainClient
	social clients.SocialClient
	audit  *logging.AuditLog

	tierMon *tier.Monitor
	cron    *cron.Cron
}

// New constructs a Scheduler. chain and social may be nil, in which
// case the tasks that need them return nil without doing anything.
func New(cfg config.HeartbeatConfig, identity config.Identity, db *store.Store, chain clients.ChainClient, social clients.SocialClient, audit *logging.AuditLog) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		identity: identity,
		db:       db,
		chain:    chain,
		social:   social,
		audit:    audit,
		tierMon:  tier.NewMonitor(db, nil),
		cron:     cron.New(),
	}
}

// taskRegistry maps a heartbeat entry name to its implementation. Kept
// as a method so each task closes over s.
func (s *Scheduler) taskRegistry() map[string]taskFunc {
	return map[string]taskFunc{
		"credit_check":       s.creditCheck,
		"heartbeat_ping":     s.heartbeatPing,
		"resurrection_probe": s.resurrectionProbe,
		"inbox_poll":         s.inboxPoll,
		"daily_journal":      s.dailyJournal,
	}
}

// Start registers every enabled, recognized heartbeat entry with the
// cron runtime and starts it. Unrecognized entry names are logged and
// skipped rather than treated as fatal, so a config typo never prevents
// the other entries from running.
func (s *Scheduler) Start(ctx context.Context) error {
	log := logging.Get(logging.CategoryScheduler).Sugar()
	registry := s.taskRegistry()

	for _, entry := range s.cfg.Entries {
		if !entry.Enabled {
			continue
		}
		fn, ok := registry[entry.Name]
		if !ok {
			log.Warnw("unrecognized heartbeat entry, skipping", "name", entry.Name)
			continue
		}

		name := entry.Name
		taskCtx := ctx
		_, err := s.cron.AddFunc(entry.Schedule, func() {
			start := time.Now()
			if err := fn(taskCtx); err != nil {
				log.Errorw("heartbeat task failed", "task", name, "error", err)
				return
			}
			log.Debugw("heartbeat task completed", "task", name, "latency", time.Since(start))
		})
		if err != nil {
			return fmt.Errorf("schedule %s (%q): %w", entry.Name, entry.Schedule, err)
		}
	}

	s.cron.Start()
	log.Infow("scheduler started", "entries", len(s.cron.Entries()))
	return nil
}

// Stop halts the cron runtime, waiting up to shutdownGrace for any
// in-flight task invocation to finish.
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(shutdownGrace):
		logging.Get(logging.CategoryScheduler).Sugar().Warnw("scheduler shutdown grace period exceeded")
	}
}

// creditCheck reads the current on-chain credit balance and applies the
// tier monitor, independent of whatever cadence the agent loop itself
// is running at — this is what notices a credits crash while the
// automaton is mid-sleep.
func (s *Scheduler) creditCheck(ctx context.Context) error {
	if s.chain == nil {
		return nil
	}
	credits, err := s.chain.GetCredits(ctx, s.identity.CreatorAddress)
	if err != nil {
		return fmt.Errorf("get credits: %w", err)
	}
	_, err = s.tierMon.Apply(credits)
	return err
}

// heartbeatPing records a liveness timestamp and, if a social channel is
// configured, sends a lightweight ping to the creator so external
// observers can distinguish "sleeping" from "stuck".
func (s *Scheduler) heartbeatPing(ctx context.Context) error {
	if err := s.db.SetKV(store.KeyLastInferenceAt, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return err
	}
	if s.social == nil || s.identity.CreatorAddress == "" {
		return nil
	}
	return s.social.Send(ctx, s.identity.CreatorAddress, fmt.Sprintf("%s heartbeat: alive", s.identity.Name))
}

// resurrectionProbe attempts resurrection when the automaton is
// currently recorded as dead. It is a no-op (via AttemptResurrection's
// own idempotency) whenever the automaton isn't dead or doesn't yet
// have enough credits.
func (s *Scheduler) resurrectionProbe(ctx context.Context) error {
	if s.chain == nil {
		return nil
	}
	credits, err := s.chain.GetCredits(ctx, s.identity.CreatorAddress)
	if err != nil {
		return fmt.Errorf("get credits: %w", err)
	}
	result, err := s.tierMon.AttemptResurrection(credits)
	if err != nil {
		return err
	}
	if result.Resurrected && s.audit != nil {
		s.audit.Record(logging.AuditEvent{
			Type:    logging.AuditResurrection,
			Summary: fmt.Sprintf("resurrected into %s", result.NewTier),
			Fields:  map[string]any{"creditsCents": credits},
		})
	}
	return nil
}

// inboxPoll pulls any messages waiting on the social channel and stores
// them as unprocessed inbox rows, raw and unsanitized — the agent
// loop's drainInbox sanitizes at consumption time, not at poll time, so
// the stored row always reflects exactly what the network delivered.
func (s *Scheduler) inboxPoll(ctx context.Context) error {
	if s.social == nil {
		return nil
	}
	msgs, err := s.social.Poll(ctx)
	if err != nil {
		return fmt.Errorf("poll social: %w", err)
	}
	now := time.Now().UTC()
	for _, m := range msgs {
		if err := s.db.InsertInboxMessage(store.InboxMessage{
			ID:        store.NewOpaqueID(),
			From:      m.From,
			To:        s.identity.Name,
			Content:   m.Body,
			SignedAt:  now,
			CreatedAt: now,
		}); err != nil {
			return fmt.Errorf("insert inbox message: %w", err)
		}
	}
	return nil
}

// dailyJournal enqueues a synthetic inbox message asking the automaton
// to reflect on the day. It rides the same inbox-drain path as any
// other pending input rather than a bespoke delivery mechanism.
func (s *Scheduler) dailyJournal(ctx context.Context) error {
	return s.db.InsertInboxMessage(store.InboxMessage{
		ID:   store.NewOpaqueID(),
		From: "system",
		To:   s.identity.Name,
		Content: "Write a daily journal entry: summarize today's activity, what you learned, " +
			"and what you plan to do next.",
		SignedAt:  time.Now().UTC(),
		CreatedAt: time.Now().UTC(),
	})
}
