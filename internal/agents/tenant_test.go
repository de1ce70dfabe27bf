package agents

import (
	"errors"
	"testing"

	"github.com/haasonsaas/chatloop/pkg/models"
)

func TestTenantRegistryRejectsForeignAgent(t *testing.T) {
	reg := NewTenantRegistry("acme", nil)

	err := reg.Register(&models.Agent{TenantID: "beta", AgentID: "helper"}, true)
	if !errors.Is(err, ErrAccessDenied) {
		t.Errorf("err = %v, want ErrAccessDenied", err)
	}
	if _, ok := reg.Get("helper"); ok {
		t.Error("rejected agent was stored anyway")
	}
}

func TestTenantRegistryAdoptsUnownedAgent(t *testing.T) {
	reg := NewTenantRegistry("acme", nil)
	if err := reg.Register(&models.Agent{AgentID: "helper"}, true); err != nil {
		t.Fatal(err)
	}
	agent, ok := reg.Get("helper")
	if !ok || agent.TenantID != "acme" {
		t.Errorf("agent = %+v, ok = %v", agent, ok)
	}
}

func TestDefaultTenantAcceptsAnything(t *testing.T) {
	reg := NewTenantRegistry(models.DefaultTenant, nil)
	if err := reg.Register(&models.Agent{TenantID: "beta", AgentID: "helper"}, true); err != nil {
		t.Fatal(err)
	}
	agent, ok := reg.Get("helper")
	if !ok || agent.TenantID != "beta" {
		t.Errorf("agent = %+v, ok = %v", agent, ok)
	}
}

func TestTenantRegistriesDoNotShareState(t *testing.T) {
	acme := NewTenantRegistry("acme", nil)
	beta := NewTenantRegistry("beta", nil)

	if err := acme.Register(&models.Agent{AgentID: "helper", Name: "Acme Helper"}, true); err != nil {
		t.Fatal(err)
	}
	if _, ok := beta.Get("helper"); ok {
		t.Error("agent registered in one tenant visible in another")
	}
}
