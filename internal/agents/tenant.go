package agents

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/haasonsaas/chatloop/pkg/models"
)

// ErrAccessDenied is returned when an agent registration crosses tenants.
var ErrAccessDenied = errors.New("agents: access denied")

// TenantRegistry is a Registry bound to one tenant. Registrations for a
// different tenant are rejected, except through the default tenant's
// registry, which accepts anything.
type TenantRegistry struct {
	*Registry
	tenantID string
}

// NewTenantRegistry creates a registry serving tenantID.
func NewTenantRegistry(tenantID string, logger *slog.Logger) *TenantRegistry {
	if logger != nil {
		logger = logger.With("tenant_id", tenantID)
	}
	return &TenantRegistry{
		Registry: NewRegistry(logger),
		tenantID: tenantID,
	}
}

// TenantID reports the tenant this registry serves.
func (r *TenantRegistry) TenantID() string { return r.tenantID }

// Register verifies the agent's owning tenant before storing it. An agent
// without a tenant is adopted by this registry's tenant.
func (r *TenantRegistry) Register(agent *models.Agent, overwrite bool) error {
	if agent == nil || agent.AgentID == "" {
		return errors.New("agents: agent with id is required")
	}
	if r.tenantID != models.DefaultTenant && agent.TenantID != "" && agent.TenantID != r.tenantID {
		return fmt.Errorf("%w: agent %s belongs to tenant %s, registry serves %s",
			ErrAccessDenied, agent.AgentID, agent.TenantID, r.tenantID)
	}
	clone := agent.Clone()
	if clone.TenantID == "" {
		clone.TenantID = r.tenantID
	}
	return r.Registry.Register(clone, overwrite)
}
