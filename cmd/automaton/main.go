// Package main is the automaton agent process: it loads configuration,
// opens the state store, wires the default client adapters, and runs
// the agent loop and the heartbeat scheduler side by side until the
// process receives a termination signal.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"automaton/internal/agent"
	"automaton/internal/clients"
	"automaton/internal/config"
	"automaton/internal/httpapi"
	"automaton/internal/logging"
	"automaton/internal/scheduler"
	"automaton/internal/store"
	"automaton/internal/tools"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "automaton",
	Short: "Sovereign autonomous-agent runtime",
	Long: `automaton runs a long-lived ReAct agent loop that manages its own
compute budget, sleeps when idle, degrades under resource pressure, and
dies and may be resurrected as its on-chain credit balance changes.`,
	RunE: runAutomaton,
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "automaton.yaml", "path to the automaton config file")
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runAutomaton(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logging.Configure(cfg.Logging.JSONFormat, cfg.Logging.Debug); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logging.Sync()

	db, err := store.Open(cfg.Storage.DatabasePath)
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	defer db.Close()

	var audit *logging.AuditLog
	if cfg.Logging.AuditPath != "" {
		audit, err = logging.NewAuditLog(cfg.Logging.AuditPath)
		if err != nil {
			return fmt.Errorf("open audit log: %w", err)
		}
		defer audit.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	inference, err := newInferenceClient(ctx, cfg.Inference)
	if err != nil {
		return fmt.Errorf("create inference client: %w", err)
	}
	chain, err := newChainClient(ctx, cfg.Chain)
	if err != nil {
		return fmt.Errorf("create chain client: %w", err)
	}
	sandbox := clients.NewHTTPSandboxClient(cfg.Sandbox.Endpoint, cfg.Sandbox.Timeout)
	social := clients.NewHTTPSocialClient(cfg.Social.Endpoint, cfg.Identity.Name, cfg.Social.Timeout)

	sessionID := store.NewOpaqueID()
	guard := tools.NewGuard(db, cfg.Guard, audit)
	registry := tools.NewBuiltinRegistry(tools.BuiltinDeps{
		Sandbox:   sandbox,
		Chain:     chain,
		Social:    social,
		Store:     db,
		Guard:     guard,
		Identity:  cfg.Identity,
		SessionID: sessionID,
	})

	deps := agent.Dependencies{
		Identity:  cfg.Identity,
		SessionID: sessionID,
		DB:        db,
		Chain:     chain,
		Inference: inference,
		Social:    social,
		Registry:  registry,
		Guard:     guard,
		Audit:     audit,
	}

	sched := scheduler.New(cfg.Heartbeat, cfg.Identity, db, chain, social, audit)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	var dashboardServer *httpapi.Server
	if cfg.Dashboard.Port > 0 {
		dashboardServer = httpapi.New(db, cfg.Identity, inference)
		go func() {
			if err := httpapi.ListenAndServe(ctx, cfg.Dashboard.Port, dashboardServer); err != nil {
				logging.Get(logging.CategoryHTTPAPI).Sugar().Errorw("dashboard server stopped", "error", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logging.Get(logging.CategoryAgent).Info("shutdown signal received")
		cancel()
	}()

	return runSupervised(ctx, deps)
}

// runSupervised re-invokes RunAgentLoop every time it returns nil: the
// loop treats sleeping, death, and a kill-switch window identically
// (clean stop, nothing left to do right now), so the process itself is
// the thing that decides whether "stopped" means "wait and retry" or
// "exit". It only stops retrying when ctx is canceled or the loop
// returns a real error.
func runSupervised(ctx context.Context, deps agent.Dependencies) error {
	const idlePoll = 5 * time.Second

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		if err := agent.RunAgentLoop(ctx, deps); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("agent loop: %w", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(idlePoll):
		}
	}
}

func newInferenceClient(ctx context.Context, cfg config.InferenceConfig) (clients.InferenceClient, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	return clients.NewGeminiClient(ctx, apiKey, cfg.Model, "")
}

func newChainClient(ctx context.Context, cfg config.ChainConfig) (clients.ChainClient, error) {
	if cfg.RPCURL == "" {
		return nil, nil
	}
	return clients.NewNeoChainClient(ctx, cfg.RPCURL, cfg.Timeout, cfg.CreditTokenHash, cfg.USDCTokenHash)
}
