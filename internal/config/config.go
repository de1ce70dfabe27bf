// Package config loads and validates the runtime configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure for the control plane.
type Config struct {
	Bot         BotConfig         `yaml:"bot"`
	Personality PersonalityConfig `yaml:"personality"`
	Chat        ChatConfig        `yaml:"chat"`
	LLM         LLMConfig         `yaml:"llm"`
	Agents      AgentsConfig      `yaml:"agents"`
	Storage     StorageConfig     `yaml:"storage"`
	Logging     LoggingConfig     `yaml:"logging"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// BotConfig identifies the agent's own account so its messages can be
// recognized in transcripts.
type BotConfig struct {
	Name       string   `yaml:"name"`
	AliasNames []string `yaml:"alias_names"`
	Account    string   `yaml:"account"`
	Platform   string   `yaml:"platform"`
}

// PersonalityConfig holds the default persona text used when no agent
// override applies.
type PersonalityConfig struct {
	Core      string `yaml:"core"`
	Side      string `yaml:"side"`
	Interest  string `yaml:"interest"`
	PlanStyle string `yaml:"plan_style"`
}

// LLMConfig configures the OpenAI-compatible collaborator.
type LLMConfig struct {
	APIKey       string        `yaml:"api_key"`
	BaseURL      string        `yaml:"base_url"`
	PlannerModel string        `yaml:"planner_model"`
	ReplyModel   string        `yaml:"reply_model"`
	UtilityModel string        `yaml:"utility_model"`
	Temperature  float32       `yaml:"temperature"`
	MaxTokens    int           `yaml:"max_tokens"`
	Timeout      time.Duration `yaml:"timeout"`
}

// AgentsConfig configures agent definition loading.
type AgentsConfig struct {
	// Directory holds *.toml agent definition files.
	Directory string `yaml:"directory"`

	// Watch re-syncs definitions when files in Directory change.
	Watch bool `yaml:"watch"`
}

// StorageConfig configures the persistence collaborator.
type StorageConfig struct {
	// Driver is "sqlite" or "memory".
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Default returns a configuration with working defaults for every tunable.
func Default() *Config {
	return &Config{
		Bot: BotConfig{
			Name:     "Mai",
			Platform: "unknown",
		},
		Personality: PersonalityConfig{
			Core:      "a friendly, curious conversational agent",
			PlanStyle: "reply when you have something genuinely useful or interesting to add",
		},
		Chat: DefaultChatConfig(),
		LLM: LLMConfig{
			PlannerModel: "gpt-4o-mini",
			ReplyModel:   "gpt-4o",
			UtilityModel: "gpt-4o-mini",
			Temperature:  0.7,
			MaxTokens:    1024,
			Timeout:      60 * time.Second,
		},
		Agents: AgentsConfig{
			Directory: "config/agents",
		},
		Storage: StorageConfig{
			Driver: "sqlite",
			Path:   "chatloop.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Addr: ":9091",
		},
	}
}

// Load reads a yaml config file, layered over defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Bot.Name == "" {
		return fmt.Errorf("bot.name is required")
	}
	if c.Chat.MaxContextSize <= 0 {
		return fmt.Errorf("chat.max_context_size must be positive")
	}
	if c.Chat.TalkValue < 0 || c.Chat.TalkValue > 1 {
		return fmt.Errorf("chat.talk_value must be within [0, 1]")
	}
	switch c.Storage.Driver {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("storage.driver must be sqlite or memory, got %q", c.Storage.Driver)
	}
	return nil
}
