// Package config loads the workflow server's YAML configuration file and
// layers environment-variable overrides on top of it. The LLM API key
// comes only from the environment; the checkpointer DSN may be set in the
// file and is overridden by CHECKPOINTER_DSN when that is set; everything
// else lives in the file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root of the server's YAML configuration file.
type Config struct {
	// ListenAddr is the HTTP surface's bind address, e.g. ":8080".
	ListenAddr string `yaml:"listen_addr"`

	// MetricsAddr is the Prometheus /metrics bind address. Empty disables
	// the metrics listener.
	MetricsAddr string `yaml:"metrics_addr"`

	Checkpointer CheckpointerConfig `yaml:"checkpointer"`
	LLM          LLMConfig          `yaml:"llm"`
	Engine       EngineConfig       `yaml:"engine"`
}

// CheckpointerConfig selects and configures the durable-state backend.
// DSN may be overridden from an env var since it can embed credentials.
type CheckpointerConfig struct {
	// Backend is "memory", "sqlite", or "mysql". Empty defaults to
	// "memory"; the in-memory backend is also the fallback if the
	// durable backend named here is unreachable at startup.
	Backend string `yaml:"backend"`

	// DSN is the connection string for "sqlite" (a file path, or
	// ":memory:") or "mysql" (a DSN). Overridden by CHECKPOINTER_DSN.
	DSN string `yaml:"dsn"`
}

// LLMConfig selects the Gateway's backing provider. APIKey always comes
// from an environment variable, never the file.
type LLMConfig struct {
	// Provider is "anthropic", "openai", or "google".
	Provider string `yaml:"provider"`
	// Model is the provider-specific model identifier.
	Model string `yaml:"model"`

	// APIKey is populated from the environment, never from the file; see
	// ApplyEnv and the provider-specific env var names it checks.
	APIKey string `yaml:"-"`
}

// EngineConfig exposes the graph.Options tunables so they don't have to
// be hardcoded into cmd/workflowserver/main.go.
type EngineConfig struct {
	MaxSteps           int      `yaml:"max_steps"`
	DefaultNodeTimeout Duration `yaml:"default_node_timeout"`
	RunWallClockBudget Duration `yaml:"run_wall_clock_budget"`
}

// Duration wraps time.Duration so YAML values can be written as "30s" or
// "2m" rather than raw nanosecond integers (which yaml.v3 would
// otherwise require). Bare integers still parse, as nanoseconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Tag == "!!int" {
		var n int64
		if err := value.Decode(&n); err != nil {
			return fmt.Errorf("config: invalid duration %q: %w", value.Value, err)
		}
		*d = Duration(n)
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("config: duration must be a string like \"30s\" or an integer nanosecond count: %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// defaults mirror workflow.defaultMaxSteps/defaultNodeTimeout so an absent
// or partial engine section still produces a usable bound rather than the
// zero value's "no limit".
const (
	defaultMaxSteps           = 200
	defaultNodeTimeout        = 2 * time.Minute
	defaultRunWallClockBudget = 10 * time.Minute
)

// Load reads and parses the YAML file at path. A missing optional section
// is left at its zero value; SetDefaults and ApplyEnv fill in the rest.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &cfg, nil
}

// Default returns a zero-config Config suitable for local development: an
// in-memory checkpointer, no metrics listener, and the engine's built-in
// defaults. The caller must still supply an LLM provider/API key via
// ApplyEnv.
func Default() *Config {
	cfg := &Config{ListenAddr: ":8080"}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults fills zero-valued optional fields.
func (c *Config) SetDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.Checkpointer.Backend == "" {
		c.Checkpointer.Backend = "memory"
	}
	if c.Engine.MaxSteps == 0 {
		c.Engine.MaxSteps = defaultMaxSteps
	}
	if c.Engine.DefaultNodeTimeout == 0 {
		c.Engine.DefaultNodeTimeout = Duration(defaultNodeTimeout)
	}
	if c.Engine.RunWallClockBudget == 0 {
		c.Engine.RunWallClockBudget = Duration(defaultRunWallClockBudget)
	}
}

// ApplyEnv overlays secrets from the environment: CHECKPOINTER_DSN, when
// set, replaces the file's checkpointer DSN, and the LLM provider's API
// key (never read from the file) is always taken from the provider's env
// var. Per-integration tool credentials are excluded on
// purpose; those arrive per request and are never process-wide
// configuration.
func (c *Config) ApplyEnv() {
	if dsn := os.Getenv("CHECKPOINTER_DSN"); dsn != "" {
		c.Checkpointer.DSN = dsn
	}
	c.LLM.APIKey = apiKeyEnvVar(c.LLM.Provider)
}

func apiKeyEnvVar(provider string) string {
	switch provider {
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "google":
		return os.Getenv("GOOGLE_API_KEY")
	default:
		return ""
	}
}

// Validate checks the fields required to build a running server. It does
// not open the checkpointer or contact the LLM provider; those failures
// surface at construction time in cmd/workflowserver/main.go, where an
// unreachable durable backend falls back to the in-memory store.
func (c *Config) Validate() error {
	switch c.Checkpointer.Backend {
	case "memory":
	case "sqlite", "mysql":
		if c.Checkpointer.DSN == "" {
			return fmt.Errorf("config: checkpointer.backend %q requires a DSN (file or CHECKPOINTER_DSN)", c.Checkpointer.Backend)
		}
	default:
		return fmt.Errorf("config: unknown checkpointer.backend %q", c.Checkpointer.Backend)
	}

	switch c.LLM.Provider {
	case "anthropic", "openai", "google":
	default:
		return fmt.Errorf("config: unknown llm.provider %q (want anthropic, openai, or google)", c.LLM.Provider)
	}
	if c.LLM.APIKey == "" {
		return fmt.Errorf("config: no API key for llm.provider %q; set the matching *_API_KEY environment variable", c.LLM.Provider)
	}
	return nil
}
