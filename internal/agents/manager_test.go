package agents

import (
	"context"
	"errors"
	"testing"

	"github.com/haasonsaas/chatloop/internal/storage"
	"github.com/haasonsaas/chatloop/pkg/models"
)

func TestManagerUpsertAndGet(t *testing.T) {
	ctx := context.Background()
	stores := storage.NewMemoryStores()
	mgr := NewManager("acme", stores.Agents, nil)

	if err := mgr.Upsert(ctx, &models.Agent{AgentID: "helper", Name: "Helper"}); err != nil {
		t.Fatal(err)
	}

	agent, err := mgr.Get(ctx, "helper")
	if err != nil {
		t.Fatal(err)
	}
	if agent.TenantID != "acme" || agent.Name != "Helper" {
		t.Errorf("agent = %+v", agent)
	}

	ok, err := mgr.Exists(ctx, "helper")
	if err != nil || !ok {
		t.Errorf("Exists = %v, %v", ok, err)
	}
	if _, err := mgr.Get(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Get(missing) err = %v, want ErrNotFound", err)
	}
}

func TestManagerDelete(t *testing.T) {
	ctx := context.Background()
	stores := storage.NewMemoryStores()
	mgr := NewManager("acme", stores.Agents, nil)

	if err := mgr.Upsert(ctx, &models.Agent{AgentID: "helper"}); err != nil {
		t.Fatal(err)
	}
	if err := mgr.Delete(ctx, "helper"); err != nil {
		t.Fatal(err)
	}
	if _, err := mgr.Get(ctx, "helper"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Get after delete err = %v, want ErrNotFound", err)
	}
}

func TestManagerRefreshRegistry(t *testing.T) {
	ctx := context.Background()
	stores := storage.NewMemoryStores()
	mgr := NewManager("acme", stores.Agents, nil)
	reg := NewTenantRegistry("acme", nil)

	for _, id := range []string{"helper", "writer"} {
		if err := mgr.Upsert(ctx, &models.Agent{AgentID: id}); err != nil {
			t.Fatal(err)
		}
	}
	if err := mgr.RefreshRegistry(ctx, reg); err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"helper", "writer"} {
		if _, ok := reg.Get(id); !ok {
			t.Errorf("agent %s missing from registry after refresh", id)
		}
	}
}
