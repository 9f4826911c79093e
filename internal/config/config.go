// Package config holds the on-disk configuration shape for the automaton
// runtime and its defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// AutomatonConfig is the JSON/YAML-serializable configuration for one
// automaton process. It is written and read with 0600 permissions.
type AutomatonConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	Identity Identity `yaml:"identity"`

	Inference InferenceConfig `yaml:"inference"`
	Chain     ChainConfig     `yaml:"chain"`
	Sandbox   SandboxConfig   `yaml:"sandbox"`
	Social    SocialConfig    `yaml:"social"`

	Storage   StorageConfig   `yaml:"storage"`
	Logging   LoggingConfig   `yaml:"logging"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	Guard     GuardConfig     `yaml:"guard"`
	Dashboard DashboardConfig `yaml:"dashboard"`
}

// Identity describes the automaton's self-presented identity, used to
// build the system prompt.
type Identity struct {
	Name            string `yaml:"name"`
	GenesisPrompt   string `yaml:"genesis_prompt"`
	CreatorAddress  string `yaml:"creator_address"`
	ParentAddress   string `yaml:"parent_address,omitempty"`
	Role            string `yaml:"role,omitempty"`
}

// InferenceConfig configures the default InferenceClient adapter.
type InferenceConfig struct {
	Provider string        `yaml:"provider"` // e.g. "gemini"
	Model    string        `yaml:"model"`
	APIKey   string        `yaml:"api_key"`
	Timeout  time.Duration `yaml:"timeout"`
}

// ChainConfig configures the default ChainClient adapter.
type ChainConfig struct {
	RPCURL         string        `yaml:"rpc_url"`
	NetworkID      uint32        `yaml:"network_id"`
	CreditTokenHash string       `yaml:"credit_token_hash"`
	USDCTokenHash   string       `yaml:"usdc_token_hash"`
	WalletPath     string        `yaml:"wallet_path"`
	Timeout        time.Duration `yaml:"timeout"`
}

// SandboxConfig configures the default SandboxClient adapter.
type SandboxConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
}

// SocialConfig configures the default SocialClient adapter.
type SocialConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
}

// StorageConfig configures the state store.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// LoggingConfig configures internal/logging.
type LoggingConfig struct {
	JSONFormat bool   `yaml:"json_format"`
	Debug      bool   `yaml:"debug"`
	AuditPath  string `yaml:"audit_path"`
}

// HeartbeatEntryConfig is one scheduled background task.
type HeartbeatEntryConfig struct {
	Name     string `yaml:"name"`
	Schedule string `yaml:"schedule"` // 5-field cron expression
	Enabled  bool   `yaml:"enabled"`
}

// HeartbeatConfig configures the lifecycle scheduler.
type HeartbeatConfig struct {
	Entries []HeartbeatEntryConfig `yaml:"entries"`
}

// GuardConfig configures the tool guard policy.
type GuardConfig struct {
	ProtectedPaths      []string `yaml:"protected_paths"`
	PackageAllowlist    []string `yaml:"package_allowlist"`
	MaxSelfWriteBytes   int64    `yaml:"max_self_write_bytes"`
	SelfModRateLimit    int      `yaml:"self_mod_rate_limit"`
	SelfModRateWindow   time.Duration `yaml:"self_mod_rate_window"`
}

// DashboardConfig configures the local HTTP+SSE observability API.
type DashboardConfig struct {
	Port int `yaml:"port"`
}

// Default returns the baseline configuration: inference, chain and
// client timeouts, storage and audit paths, heartbeat entries, guard
// limits, and default port. Tier thresholds are not configurable.
func Default() *AutomatonConfig {
	return &AutomatonConfig{
		Name:    "automaton",
		Version: "0.1.0",
		Identity: Identity{
			Name: "automaton",
		},
		Inference: InferenceConfig{
			Provider: "gemini",
			Model:    "gemini-2.5-pro",
			Timeout:  60 * time.Second,
		},
		Chain: ChainConfig{
			NetworkID: 894710606, // Neo N3 TestNet
			Timeout:   15 * time.Second,
		},
		Sandbox: SandboxConfig{
			Timeout: 30 * time.Second,
		},
		Social: SocialConfig{
			Timeout: 15 * time.Second,
		},
		Storage: StorageConfig{
			DatabasePath: "data/automaton.db",
		},
		Logging: LoggingConfig{
			JSONFormat: true,
			AuditPath:  "data/audit.log",
		},
		Heartbeat: HeartbeatConfig{
			Entries: []HeartbeatEntryConfig{
				{Name: "credit_check", Schedule: "*/5 * * * *", Enabled: true},
				{Name: "heartbeat_ping", Schedule: "*/1 * * * *", Enabled: true},
				{Name: "resurrection_probe", Schedule: "*/10 * * * *", Enabled: true},
				{Name: "inbox_poll", Schedule: "*/2 * * * *", Enabled: true},
				{Name: "daily_journal", Schedule: "0 9 * * *", Enabled: true},
			},
		},
		Guard: GuardConfig{
			PackageAllowlist:  []string{},
			MaxSelfWriteBytes: 100_000,
			SelfModRateLimit:  20,
			SelfModRateWindow: time.Hour,
		},
		Dashboard: DashboardConfig{
			Port: 3747,
		},
	}
}

// Load reads and parses a YAML config file.
func Load(path string) (*AutomatonConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Save writes the config as YAML with 0600 permissions.
func Save(path string, cfg *AutomatonConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}
