package isolation

import (
	"testing"

	"github.com/haasonsaas/chatloop/pkg/models"
)

func TestScopeString(t *testing.T) {
	scope := Scope{TenantID: "acme", AgentID: "helper", Platform: "telegram", StreamID: "abc"}
	if got := scope.String(); got != "acme:helper:telegram:abc" {
		t.Errorf("String() = %q", got)
	}
}

func TestScopeLevel(t *testing.T) {
	cases := []struct {
		name  string
		scope Scope
		want  Level
	}{
		{"tenant only", Scope{TenantID: "acme"}, LevelTenant},
		{"agent", Scope{TenantID: "acme", AgentID: "helper"}, LevelAgent},
		{"platform", Scope{TenantID: "acme", AgentID: "helper", Platform: "telegram"}, LevelPlatform},
		{"stream", Scope{TenantID: "acme", AgentID: "helper", Platform: "telegram", StreamID: "abc"}, LevelStream},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.scope.Level(); got != tc.want {
				t.Errorf("Level() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestScopeForDefaults(t *testing.T) {
	msg := &models.Message{Platform: "telegram", StreamID: "abc"}
	scope := ScopeFor(msg)
	if scope.TenantID != models.DefaultTenant {
		t.Errorf("TenantID = %q, want default", scope.TenantID)
	}
	if scope.AgentID != models.DefaultAgentID {
		t.Errorf("AgentID = %q, want default", scope.AgentID)
	}
}

func TestTenantSpacesIsolation(t *testing.T) {
	spaces := NewTenantSpaces(nil, nil)
	defer func() {
		spaces.Release("acme")
		spaces.Release("beta")
	}()

	acme := spaces.Acquire("acme")
	beta := spaces.Acquire("beta")

	if err := acme.Agents.Register(&models.Agent{AgentID: "helper"}, true); err != nil {
		t.Fatal(err)
	}
	if _, ok := beta.Agents.Get("helper"); ok {
		t.Error("agent leaked across tenant spaces")
	}
	if acme.Streams == beta.Streams {
		t.Error("stream registries shared across tenants")
	}
}
