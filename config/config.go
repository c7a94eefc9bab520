// Package config loads the YAML configuration of a channelmesh agent.
//
// Values of the form ${VAR_NAME} are replaced with environment variables
// before parsing, and duration strings such as "10m" are parsed into
// time.Duration values.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete agent configuration.
type Config struct {
	Agent   AgentConfig   `yaml:"agent"`
	Channel ChannelConfig `yaml:"channel"`
	Worker  WorkerConfig  `yaml:"worker"`
	Bus     BusConfig     `yaml:"bus"`
	Models  ModelsConfig  `yaml:"models"`
	Prompts PromptsConfig `yaml:"prompts"`
	Store   StoreConfig   `yaml:"store"`
	Logging LoggingConfig `yaml:"logging"`
}

// AgentConfig identifies the agent.
type AgentConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// ChannelConfig holds per-channel limits.
type ChannelConfig struct {
	MaxConcurrentBranches int `yaml:"max_concurrent_branches"`
	MaxConcurrentWorkers  int `yaml:"max_concurrent_workers"`
	MaxTurns              int `yaml:"max_turns"`
	BranchMaxTurns        int `yaml:"branch_max_turns"`
	WorkerMaxTurns        int `yaml:"worker_max_turns"`
	InboxCapacity         int `yaml:"inbox_capacity"`
	HistoryBackfill       int `yaml:"history_backfill"`
}

// WorkerConfig holds worker timing.
type WorkerConfig struct {
	InteractiveIdleTimeout time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	InteractiveIdleTimeoutRaw string `yaml:"interactive_idle_timeout"`
}

// BusConfig sizes the process event bus.
type BusConfig struct {
	Capacity int `yaml:"capacity"`
}

// ModelConfig selects an LLM backend.
type ModelConfig struct {
	Provider    string  `yaml:"provider"` // openai, anthropic or mock
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
}

// IsZero reports whether no backend is configured.
func (m ModelConfig) IsZero() bool { return m.Provider == "" }

// ModelsConfig picks a model per process type. Branch and Worker fall back to
// Channel when unset.
type ModelsConfig struct {
	Channel ModelConfig `yaml:"channel"`
	Branch  ModelConfig `yaml:"branch"`
	Worker  ModelConfig `yaml:"worker"`
}

// PromptsConfig points at prompt overrides.
type PromptsConfig struct {
	Dir string `yaml:"dir"`
}

// StoreConfig selects the conversation log backend.
type StoreConfig struct {
	Driver string `yaml:"driver"` // memory or sqlite
	Path   string `yaml:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Provider names.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderMock      = "mock"
)

// Store drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// Default returns a configuration that runs without external services.
func Default() *Config {
	return &Config{
		Agent: AgentConfig{ID: "channelmesh", Name: "Mesh"},
		Channel: ChannelConfig{
			MaxConcurrentBranches: 5,
			MaxTurns:              5,
			BranchMaxTurns:        10,
			WorkerMaxTurns:        25,
			InboxCapacity:         64,
		},
		Worker: WorkerConfig{
			InteractiveIdleTimeout:    10 * time.Minute,
			InteractiveIdleTimeoutRaw: "10m",
		},
		Bus: BusConfig{Capacity: 128},
		Models: ModelsConfig{
			Channel: ModelConfig{Provider: ProviderMock, Model: "mock"},
		},
		Store:   StoreConfig{Driver: DriverMemory},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads a configuration file. Fields absent from the file keep their
// Default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration content.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} with the variable's value, or "" when
// unset.
func expandEnvVars(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envPattern.FindStringSubmatch(match)[1])
	})
}

func parseDurations(cfg *Config) error {
	if raw := cfg.Worker.InteractiveIdleTimeoutRaw; raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("parsing interactive_idle_timeout %q: %w", raw, err)
		}
		cfg.Worker.InteractiveIdleTimeout = d
	}
	return nil
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error

	if c.Agent.ID == "" {
		errs = append(errs, errors.New("agent.id is required"))
	}
	if c.Channel.MaxConcurrentBranches <= 0 {
		errs = append(errs, errors.New("channel.max_concurrent_branches must be > 0"))
	}
	if c.Channel.MaxTurns <= 0 {
		errs = append(errs, errors.New("channel.max_turns must be > 0"))
	}
	if c.Channel.InboxCapacity <= 0 {
		errs = append(errs, errors.New("channel.inbox_capacity must be > 0"))
	}
	if c.Channel.MaxConcurrentWorkers < 0 || c.Channel.HistoryBackfill < 0 {
		errs = append(errs, errors.New("channel.max_concurrent_workers and channel.history_backfill must be >= 0"))
	}

	if c.Models.Channel.IsZero() {
		errs = append(errs, errors.New("models.channel.provider is required"))
	}
	for name, m := range map[string]ModelConfig{"channel": c.Models.Channel, "branch": c.Models.Branch, "worker": c.Models.Worker} {
		if m.IsZero() {
			continue
		}
		switch m.Provider {
		case ProviderOpenAI, ProviderAnthropic, ProviderMock:
		default:
			errs = append(errs, fmt.Errorf("models.%s.provider %q is not one of openai, anthropic, mock", name, m.Provider))
		}
	}

	switch c.Store.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Store.Path == "" {
			errs = append(errs, errors.New("store.path is required for the sqlite driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver %q is not one of memory, sqlite", c.Store.Driver))
	}

	return errors.Join(errs...)
}
