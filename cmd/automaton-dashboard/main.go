// Package main is the standalone dashboard binary: it opens the same
// state store the agent process writes to (read-only in practice,
// since every handler in internal/httpapi only ever reads) and serves
// the HTTP+SSE observability API until a termination signal arrives.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"automaton/internal/clients"
	"automaton/internal/config"
	"automaton/internal/httpapi"
	"automaton/internal/logging"
	"automaton/internal/store"
)

var (
	configPath string
	port       int
)

var rootCmd = &cobra.Command{
	Use:   "automaton-dashboard",
	Short: "Loopback-only HTTP+SSE dashboard for an automaton's turn history",
	RunE:  runDashboard,
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "automaton.yaml", "path to the automaton config file")
	rootCmd.PersistentFlags().IntVar(&port, "port", 0, "port to bind (overrides the config file's dashboard.port)")
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runDashboard(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := logging.Configure(cfg.Logging.JSONFormat, cfg.Logging.Debug); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logging.Sync()

	boundPort := cfg.Dashboard.Port
	if port > 0 {
		boundPort = port
	}
	if boundPort <= 0 {
		return fmt.Errorf("invalid dashboard port: %d", boundPort)
	}

	db, err := store.Open(cfg.Storage.DatabasePath)
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var inference clients.InferenceClient
	if cfg.Inference.APIKey != "" || os.Getenv("GEMINI_API_KEY") != "" {
		apiKey := cfg.Inference.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		inference, err = clients.NewGeminiClient(ctx, apiKey, cfg.Inference.Model, "")
		if err != nil {
			return fmt.Errorf("create inference client: %w", err)
		}
	}

	server := httpapi.New(db, cfg.Identity, inference)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logging.Get(logging.CategoryHTTPAPI).Info("shutdown signal received")
		cancel()
	}()

	logging.Get(logging.CategoryHTTPAPI).Sugar().Infow("dashboard listening", "port", boundPort)
	return httpapi.ListenAndServe(ctx, boundPort, server)
}
