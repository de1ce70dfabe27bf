package isolation

import (
	"context"
	"log/slog"
	"time"

	"github.com/haasonsaas/chatloop/internal/agents"
	"github.com/haasonsaas/chatloop/internal/storage"
	"github.com/haasonsaas/chatloop/internal/stream"
)

// Space bundles the per-tenant registries. Everything a tenant's traffic
// touches hangs off its space.
type Space struct {
	TenantID string
	Agents   *agents.TenantRegistry
	Streams  *stream.Registry
}

// TenantSpaces manages one Space per tenant on top of an Arena.
type TenantSpaces struct {
	arena *Arena[*Space]
}

// NewTenantSpaces creates the space manager. Spaces built later share the
// given stream store and logger.
func NewTenantSpaces(store storage.StreamStore, logger *slog.Logger) *TenantSpaces {
	if logger == nil {
		logger = slog.Default()
	}
	return &TenantSpaces{
		arena: NewArena(func(tenantID string) *Space {
			return &Space{
				TenantID: tenantID,
				Agents:   agents.NewTenantRegistry(tenantID, logger),
				Streams:  stream.NewRegistry(tenantID, store, logger),
			}
		}),
	}
}

// Acquire returns the tenant's space, constructing it on first use.
func (t *TenantSpaces) Acquire(tenantID string) *Space {
	return t.arena.Acquire(tenantID)
}

// Release drops one reference to the tenant's space.
func (t *TenantSpaces) Release(tenantID string) {
	t.arena.Release(tenantID)
}

// Sweep evicts unreferenced spaces idle longer than the window and returns
// how many were removed.
func (t *TenantSpaces) Sweep(idle time.Duration) int {
	return t.arena.Sweep(idle)
}

// ClearTenant evicts a tenant's space unconditionally.
func (t *TenantSpaces) ClearTenant(tenantID string) {
	t.arena.ClearTenant(tenantID)
}

// Len reports the number of resident spaces.
func (t *TenantSpaces) Len() int {
	return t.arena.Len()
}

// SaveAll flushes every resident space's unsaved streams.
func (t *TenantSpaces) SaveAll(ctx context.Context) {
	t.arena.mu.Lock()
	spaces := make([]*Space, 0, len(t.arena.entries))
	for _, entry := range t.arena.entries {
		spaces = append(spaces, entry.value)
	}
	t.arena.mu.Unlock()

	for _, space := range spaces {
		_ = space.Streams.SaveAll(ctx)
	}
}
