package agents

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/haasonsaas/chatloop/internal/storage"
	"github.com/haasonsaas/chatloop/pkg/models"
)

// Manager is the store-backed view of one tenant's agents. It fronts the
// store with a cache and pushes definitions into the in-memory registry on
// refresh.
type Manager struct {
	mu       sync.RWMutex
	tenantID string
	cache    map[string]*models.Agent
	store    storage.AgentStore
	logger   *slog.Logger
}

// NewManager creates a manager for tenantID backed by store.
func NewManager(tenantID string, store storage.AgentStore, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		tenantID: tenantID,
		cache:    map[string]*models.Agent{},
		store:    store,
		logger:   logger.With("tenant_id", tenantID),
	}
}

// Upsert persists the agent and refreshes the cache entry.
func (m *Manager) Upsert(ctx context.Context, agent *models.Agent) error {
	if agent == nil || agent.AgentID == "" {
		return errors.New("agents: agent with id is required")
	}
	clone := agent.Clone()
	clone.TenantID = m.tenantID
	clone.UpdatedAt = time.Now()
	if err := m.store.Put(ctx, clone); err != nil {
		return err
	}
	m.mu.Lock()
	m.cache[clone.AgentID] = clone
	m.mu.Unlock()
	return nil
}

// Get returns the agent from cache, falling back to the store.
func (m *Manager) Get(ctx context.Context, agentID string) (*models.Agent, error) {
	m.mu.RLock()
	cached, ok := m.cache[agentID]
	m.mu.RUnlock()
	if ok {
		return cached.Clone(), nil
	}

	agent, err := m.store.Get(ctx, m.tenantID, agentID)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.cache[agentID] = agent.Clone()
	m.mu.Unlock()
	return agent, nil
}

// Exists reports whether the agent is known to the cache or the store.
func (m *Manager) Exists(ctx context.Context, agentID string) (bool, error) {
	m.mu.RLock()
	_, ok := m.cache[agentID]
	m.mu.RUnlock()
	if ok {
		return true, nil
	}
	return m.store.Exists(ctx, m.tenantID, agentID)
}

// List returns every stored agent of the tenant.
func (m *Manager) List(ctx context.Context) ([]*models.Agent, error) {
	return m.store.List(ctx, m.tenantID)
}

// Delete removes the agent from the store and the cache.
func (m *Manager) Delete(ctx context.Context, agentID string) error {
	if err := m.store.Delete(ctx, m.tenantID, agentID); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.cache, agentID)
	m.mu.Unlock()
	return nil
}

// RefreshRegistry reloads every stored agent into reg, replacing earlier
// registrations and dropping stale cache entries.
func (m *Manager) RefreshRegistry(ctx context.Context, reg *TenantRegistry) error {
	agents, err := m.store.List(ctx, m.tenantID)
	if err != nil {
		return err
	}

	fresh := make(map[string]*models.Agent, len(agents))
	for _, agent := range agents {
		fresh[agent.AgentID] = agent.Clone()
		if err := reg.Register(agent, true); err != nil {
			m.logger.Warn("stored agent rejected by registry",
				"agent_id", agent.AgentID, "error", err)
		}
	}

	m.mu.Lock()
	m.cache = fresh
	m.mu.Unlock()
	return nil
}
