// Package agents manages agent definitions and resolves their effective
// configuration over the shared base config.
package agents

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/haasonsaas/chatloop/internal/config"
	"github.com/haasonsaas/chatloop/pkg/models"
)

// ErrAgentExists is returned by Register when the agent id is taken and
// overwrite was not requested.
var ErrAgentExists = errors.New("agents: agent already registered")

// cacheKey identifies one resolved configuration. The base pointer stands
// in for the base config's identity: a reloaded config is a new pointer and
// therefore never hits stale merges.
type cacheKey struct {
	base    *config.Config
	agentID string
}

// Registry stores agent definitions and caches merged configurations.
// Any registration change invalidates the whole resolution cache; a stale
// merged config must never be served after an override changes.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*models.Agent
	cache  map[cacheKey]*config.Config
	logger *slog.Logger
}

// NewRegistry creates an empty agent registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		agents: map[string]*models.Agent{},
		cache:  map[cacheKey]*config.Config{},
		logger: logger,
	}
}

// Register stores the agent definition. When overwrite is false an existing
// registration with the same id is an error. Either way the resolution
// cache is cleared.
func (r *Registry) Register(agent *models.Agent, overwrite bool) error {
	if agent == nil || agent.AgentID == "" {
		return errors.New("agents: agent with id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.agents[agent.AgentID]; exists && !overwrite {
		return fmt.Errorf("%w: %s", ErrAgentExists, agent.AgentID)
	}
	r.agents[agent.AgentID] = agent.Clone()
	r.cache = map[cacheKey]*config.Config{}
	return nil
}

// Unregister removes the agent and clears the resolution cache. Removing an
// unknown id is a no-op.
func (r *Registry) Unregister(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.agents[agentID]; !ok {
		return
	}
	delete(r.agents, agentID)
	r.cache = map[cacheKey]*config.Config{}
}

// Get returns a clone of the registered agent.
func (r *Registry) Get(agentID string) (*models.Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	agent, ok := r.agents[agentID]
	if !ok {
		return nil, false
	}
	return agent.Clone(), true
}

// List returns clones of every registered agent, ordered by id.
func (r *Registry) List() []*models.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.Agent, 0, len(r.agents))
	for _, agent := range r.agents {
		out = append(out, agent.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out
}

// ResolveConfig merges the agent's overrides over base and caches the
// result by (base identity, agent id). An unknown agent resolves to base
// unchanged, and that pass-through is cached too.
func (r *Registry) ResolveConfig(agentID string, base *config.Config) *config.Config {
	key := cacheKey{base: base, agentID: agentID}

	r.mu.RLock()
	if cached, ok := r.cache[key]; ok {
		r.mu.RUnlock()
		return cached
	}
	agent, known := r.agents[agentID]
	r.mu.RUnlock()

	resolved := base
	if known {
		merged, err := mergeConfig(base, agent)
		if err != nil {
			r.logger.Warn("config merge failed, serving base config",
				"agent_id", agentID, "error", err)
		} else {
			resolved = merged
		}
	}

	r.mu.Lock()
	// Double-checked under the write lock so concurrent resolvers agree
	// on one merged object.
	if cached, ok := r.cache[key]; ok {
		r.mu.Unlock()
		return cached
	}
	r.cache[key] = resolved
	r.mu.Unlock()
	return resolved
}

// mergeConfig deep-merges the agent's overrides over base through a yaml
// round trip, so override keys line up with the config file's key names.
func mergeConfig(base *config.Config, agent *models.Agent) (*config.Config, error) {
	raw, err := yaml.Marshal(base)
	if err != nil {
		return nil, fmt.Errorf("encode base config: %w", err)
	}
	var tree map[string]any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("decode base config: %w", err)
	}

	if len(agent.BotOverrides) > 0 {
		bot, _ := tree["bot"].(map[string]any)
		if bot == nil {
			bot = map[string]any{}
		}
		tree["bot"] = deepMerge(bot, agent.BotOverrides)
	}
	if len(agent.ConfigOverrides) > 0 {
		tree = deepMerge(tree, agent.ConfigOverrides)
	}

	if agent.Persona != (models.Persona{}) {
		persona, _ := tree["personality"].(map[string]any)
		if persona == nil {
			persona = map[string]any{}
		}
		tree["personality"] = deepMerge(persona, personaOverrides(agent.Persona))
	}

	merged, err := yaml.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("encode merged config: %w", err)
	}
	out := new(config.Config)
	if err := yaml.Unmarshal(merged, out); err != nil {
		return nil, fmt.Errorf("decode merged config: %w", err)
	}
	return out, nil
}

// deepMerge overlays src onto dst. Nested maps merge recursively, leaf
// values overwrite, and nil override values never erase base values.
func deepMerge(dst map[string]any, src map[string]any) map[string]any {
	for key, value := range src {
		if value == nil {
			continue
		}
		if srcMap, ok := value.(map[string]any); ok {
			if dstMap, ok := dst[key].(map[string]any); ok {
				dst[key] = deepMerge(dstMap, srcMap)
				continue
			}
		}
		dst[key] = value
	}
	return dst
}

// personaOverrides lifts the persona's non-empty fields into override form
// so empty persona fields fall back to the base personality text.
func personaOverrides(p models.Persona) map[string]any {
	out := map[string]any{}
	if p.Core != "" {
		out["core"] = p.Core
	}
	if p.Side != "" {
		out["side"] = p.Side
	}
	if p.Interest != "" {
		out["interest"] = p.Interest
	}
	if p.PlanStyle != "" {
		out["plan_style"] = p.PlanStyle
	}
	return out
}
