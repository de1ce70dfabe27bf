package models

import (
	"time"
)

// DefaultTenant is the tenant that accepts agents from any owner. It exists
// so single-tenant deployments work without configuring tenancy.
const DefaultTenant = "default"

// DefaultAgentID is the agent used when a message carries no explicit
// target agent.
const DefaultAgentID = "default"

// Persona holds the free-text descriptors that shape an agent's behavior in
// planning prompts.
type Persona struct {
	Core      string `json:"core" yaml:"core" toml:"core"`
	Side      string `json:"side,omitempty" yaml:"side" toml:"side"`
	Interest  string `json:"interest,omitempty" yaml:"interest" toml:"interest"`
	PlanStyle string `json:"plan_style,omitempty" yaml:"plan_style" toml:"plan_style"`
}

// DefaultPersona is the fallback used when a stored persona payload cannot
// be decoded. An agent must stay usable even with corrupt stored data.
func DefaultPersona() Persona {
	return Persona{
		Core:      "a friendly, curious conversational agent",
		PlanStyle: "reply when you have something genuinely useful or interesting to add",
	}
}

// Agent is a persona plus a sparse configuration-override bundle. Overrides
// only carry the fields an agent changes; absent or nil values never erase
// base configuration values.
type Agent struct {
	TenantID    string   `json:"tenant_id" toml:"tenant_id"`
	AgentID     string   `json:"agent_id" toml:"agent_id"`
	Name        string   `json:"name" toml:"name"`
	Persona     Persona  `json:"persona" toml:"persona"`
	Tags        []string `json:"tags,omitempty" toml:"tags"`
	Description string   `json:"description,omitempty" toml:"description"`

	// BotOverrides override fields of the base bot section; ConfigOverrides
	// override arbitrary nested sections of the base configuration.
	BotOverrides    map[string]any `json:"bot_overrides,omitempty" toml:"bot_overrides"`
	ConfigOverrides map[string]any `json:"config_overrides,omitempty" toml:"config_overrides"`

	CreatedAt time.Time `json:"created_at,omitempty" toml:"-"`
	UpdatedAt time.Time `json:"updated_at,omitempty" toml:"-"`
}

// Clone returns a copy with independent override maps.
func (a *Agent) Clone() *Agent {
	if a == nil {
		return nil
	}
	clone := *a
	clone.Tags = append([]string(nil), a.Tags...)
	clone.BotOverrides = cloneAnyMap(a.BotOverrides)
	clone.ConfigOverrides = cloneAnyMap(a.ConfigOverrides)
	return &clone
}

func cloneAnyMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		if nested, ok := v.(map[string]any); ok {
			out[k] = cloneAnyMap(nested)
			continue
		}
		out[k] = v
	}
	return out
}
