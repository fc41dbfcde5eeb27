// Package config provides configuration loading, validation, and defaults for negotiation experiments.
// It handles YAML experiment files, environment variable substitution, and CONSENSUS_* overrides.
package config

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Experiment variants.
const (
	VariantScalar = "scalar"
	Variant2D     = "2d"
)

// Topology kinds.
const (
	TopologyFull = "full"
	TopologyStar = "star"
	TopologyFile = "file"
)

// Provider constants.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
	ProviderGoogle    = "google"
)

// ConfigurationError reports an invalid setting detected before any simulation runs.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// Errorf builds a ConfigurationError for field.
func Errorf(field, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// TopologyConfig selects the connectivity graph.
type TopologyConfig struct {
	Kind   string `yaml:"kind"`
	Center int    `yaml:"center"`
	File   string `yaml:"file"`
}

// ConcurrencyConfig controls task fan-out inside and across instances.
type ConcurrencyConfig struct {
	RoundLimit           int `yaml:"round_limit"`        // 0 = agent count
	NarrowAfterRound     int `yaml:"narrow_after_round"` // rounds >= this use NarrowedLimit
	NarrowedLimit        int `yaml:"narrowed_limit"`
	MaxParallelInstances int `yaml:"max_parallel_instances"` // 0 = all at once
}

// LLMConfig selects the decision provider.
type LLMConfig struct {
	Provider    string        `yaml:"provider"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
	BaseURL     string        `yaml:"base_url"`
}

// RetryConfig bounds per-decision attempts.
type RetryConfig struct {
	MaxAttempts   int           `yaml:"max_attempts"`
	InitialDelay  time.Duration `yaml:"initial_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	BackoffFactor float64       `yaml:"backoff_factor"`
	Jitter        bool          `yaml:"jitter"`
}

// CredentialsConfig locates the API key pool and this user's slice of it.
type CredentialsConfig struct {
	KeysFile  string `yaml:"keys_file"`
	Encrypted bool   `yaml:"encrypted"`
	UserID    int    `yaml:"user_id"`
	UserCount int    `yaml:"user_count"`
}

// PersistenceConfig enables the optional sqlite store.
type PersistenceConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

// MetricsConfig toggles the prometheus snapshot.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MotionConfig parameterizes the 2D PID controller.
type MotionConfig struct {
	Dt        float64       `yaml:"dt"`
	Span      time.Duration `yaml:"span"`
	Kp        float64       `yaml:"kp"`
	Ki        float64       `yaml:"ki"`
	Kd        float64       `yaml:"kd"`
	MaxForce  float64       `yaml:"max_force"`
	MaxSpeed  float64       `yaml:"max_speed"`
	Mass      float64       `yaml:"mass"`
	Precision int           `yaml:"precision"`
}

// SubSteps returns the number of controller steps covering Span.
func (m MotionConfig) SubSteps() int {
	return int(math.Round(m.Span.Seconds() / m.Dt))
}

// Config is the full experiment configuration.
type Config struct {
	Variant     string            `yaml:"variant"`
	Agents      int               `yaml:"agents"`
	Rounds      int               `yaml:"rounds"`
	Instances   int               `yaml:"instances"`
	Stubborn    int               `yaml:"stubborn"`
	Suggestible int               `yaml:"suggestible"`
	Seed        int64             `yaml:"seed"`
	OutputDir   string            `yaml:"output_dir"`
	Topology    TopologyConfig    `yaml:"topology"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
	LLM         LLMConfig         `yaml:"llm"`
	Retry       RetryConfig       `yaml:"retry"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Motion      MotionConfig      `yaml:"motion"`
}

// Default returns the stock experiment configuration.
func Default() Config {
	return Config{
		Variant:   VariantScalar,
		Agents:    2,
		Rounds:    9,
		Instances: 3,
		OutputDir: "out",
		Topology:  TopologyConfig{Kind: TopologyFull},
		Concurrency: ConcurrencyConfig{
			NarrowAfterRound: 4,
			NarrowedLimit:    1,
		},
		LLM: LLMConfig{
			Provider:    ProviderOpenAI,
			Model:       "gpt-3.5-turbo",
			Temperature: 0.7,
			MaxTokens:   512,
			Timeout:     60 * time.Second,
		},
		Retry: RetryConfig{
			MaxAttempts:   3,
			InitialDelay:  100 * time.Millisecond,
			MaxDelay:      5 * time.Second,
			BackoffFactor: 2.0,
			Jitter:        true,
		},
		Credentials: CredentialsConfig{
			KeysFile:  "config/keys.yml",
			UserCount: 1,
		},
		Metrics: MetricsConfig{Enabled: true},
		Motion: MotionConfig{
			Dt:        0.1,
			Span:      2 * time.Second,
			Kp:        1.2,
			Ki:        0,
			Kd:        6,
			MaxForce:  50,
			MaxSpeed:  3,
			Mass:      15,
			Precision: 2,
		},
	}
}

// applyDefaults fills values derived from other settings.
func applyDefaults(cfg *Config) {
	cfg.Variant = strings.ToLower(strings.TrimSpace(cfg.Variant))
	if cfg.Topology.Kind == "" {
		cfg.Topology.Kind = TopologyFull
	}
	if cfg.LLM.Provider == "" && cfg.LLM.Model != "" {
		if provider, err := GetModelProvider(cfg.LLM.Model); err == nil {
			cfg.LLM.Provider = provider
		}
	}
	if cfg.Credentials.UserCount == 0 {
		cfg.Credentials.UserCount = 1
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "."
	}
}

// Validate checks every field and returns the first ConfigurationError found.
func (c *Config) Validate() error {
	switch c.Variant {
	case VariantScalar, Variant2D:
	default:
		return Errorf("variant", "unknown variant %q (want %q or %q)", c.Variant, VariantScalar, Variant2D)
	}
	if c.Agents < 1 {
		return Errorf("agents", "must be at least 1, got %d", c.Agents)
	}
	if c.Rounds < 1 {
		return Errorf("rounds", "must be at least 1, got %d", c.Rounds)
	}
	if c.Instances < 1 {
		return Errorf("instances", "must be at least 1, got %d", c.Instances)
	}
	if c.Stubborn < 0 || c.Suggestible < 0 {
		return Errorf("stubborn", "personality counts cannot be negative")
	}
	if c.Stubborn+c.Suggestible > c.Agents {
		return Errorf("stubborn", "stubborn + suggestible agents (%d) exceed total agents: %d", c.Stubborn+c.Suggestible, c.Agents)
	}

	if err := c.validateTopology(); err != nil {
		return err
	}

	if c.Concurrency.RoundLimit < 0 || c.Concurrency.NarrowedLimit < 0 ||
		c.Concurrency.NarrowAfterRound < 0 || c.Concurrency.MaxParallelInstances < 0 {
		return Errorf("concurrency", "limits cannot be negative")
	}

	if err := c.validateLLM(); err != nil {
		return err
	}

	if c.Retry.MaxAttempts < 1 {
		return Errorf("retry.max_attempts", "must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.BackoffFactor < 1 {
		return Errorf("retry.backoff_factor", "must be >= 1, got %v", c.Retry.BackoffFactor)
	}

	if c.Credentials.UserCount < 1 {
		return Errorf("credentials.user_count", "must be at least 1")
	}
	if c.Credentials.UserID < 0 || c.Credentials.UserID >= c.Credentials.UserCount {
		return Errorf("credentials.user_id", "must be in [0, %d), got %d", c.Credentials.UserCount, c.Credentials.UserID)
	}

	return c.Motion.validate()
}

func (c *Config) validateTopology() error {
	switch c.Topology.Kind {
	case TopologyFull:
	case TopologyStar:
		if c.Topology.Center < 0 || c.Topology.Center >= c.Agents {
			return Errorf("topology.center", "center %d outside [0, %d)", c.Topology.Center, c.Agents)
		}
	case TopologyFile:
		if c.Topology.File == "" {
			return Errorf("topology.file", "required when kind is %q", TopologyFile)
		}
	default:
		return Errorf("topology.kind", "unknown topology %q", c.Topology.Kind)
	}
	return nil
}

func (c *Config) validateLLM() error {
	switch c.LLM.Provider {
	case ProviderOpenAI, ProviderAnthropic, ProviderOllama, ProviderGoogle:
	default:
		return Errorf("llm.provider", "unsupported provider %q", c.LLM.Provider)
	}
	if c.LLM.Model == "" {
		return Errorf("llm.model", "model name cannot be empty")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return Errorf("llm.temperature", "must be between 0.0 and 2.0, got %v", c.LLM.Temperature)
	}
	if c.LLM.MaxTokens <= 0 {
		return Errorf("llm.max_tokens", "must be positive")
	}
	if c.LLM.Timeout < 0 {
		return Errorf("llm.timeout", "cannot be negative")
	}
	return nil
}

func (m MotionConfig) validate() error {
	switch {
	case m.Dt <= 0:
		return Errorf("motion.dt", "must be positive")
	case m.Span <= 0:
		return Errorf("motion.span", "must be positive")
	case m.Mass <= 0:
		return Errorf("motion.mass", "must be positive")
	case m.MaxForce <= 0:
		return Errorf("motion.max_force", "must be positive")
	case m.MaxSpeed <= 0:
		return Errorf("motion.max_speed", "must be positive")
	case m.Precision < 0:
		return Errorf("motion.precision", "cannot be negative")
	case m.SubSteps() < 1:
		return Errorf("motion.span", "span %s shorter than one step of %vs", m.Span, m.Dt)
	}
	return nil
}
