package agents

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/haasonsaas/chatloop/pkg/models"
)

func writeDefinition(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoaderReadsDefinitions(t *testing.T) {
	dir := t.TempDir()
	writeDefinition(t, dir, "helper.toml", `
agent_id = "helper"
name = "Helper"
tags = ["ops"]

[persona]
core = "a terse operations bot"
plan_style = "answer only direct questions"

[config_overrides.chat]
talk_value = 0.9
`)
	writeDefinition(t, dir, "notes.txt", "not a definition")

	loader := NewLoader(dir, nil)
	agents, err := loader.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(agents) != 1 {
		t.Fatalf("loaded %d agents, want 1", len(agents))
	}
	agent := agents[0]
	if agent.AgentID != "helper" || agent.Persona.Core != "a terse operations bot" {
		t.Errorf("agent = %+v", agent)
	}
	chat, ok := agent.ConfigOverrides["chat"].(map[string]any)
	if !ok || chat["talk_value"] != 0.9 {
		t.Errorf("config overrides = %v", agent.ConfigOverrides)
	}
}

func TestLoaderDegradesMalformedPersona(t *testing.T) {
	dir := t.TempDir()
	// persona declared as a string makes the full decode fail, but the
	// identity fields still parse.
	writeDefinition(t, dir, "broken.toml", `
agent_id = "broken"
name = "Broken"
persona = "not a table"
`)

	loader := NewLoader(dir, nil)
	agents, err := loader.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(agents) != 1 {
		t.Fatalf("loaded %d agents, want 1", len(agents))
	}
	if agents[0].Persona != models.DefaultPersona() {
		t.Errorf("persona = %+v, want default", agents[0].Persona)
	}
}

func TestLoaderSkipsUnreadableFiles(t *testing.T) {
	dir := t.TempDir()
	writeDefinition(t, dir, "good.toml", `agent_id = "good"`)
	writeDefinition(t, dir, "bad.toml", `== not toml at all ==`)
	writeDefinition(t, dir, "anonymous.toml", `name = "no id"`)

	loader := NewLoader(dir, nil)
	agents, err := loader.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(agents) != 1 || agents[0].AgentID != "good" {
		t.Errorf("agents = %+v", agents)
	}
}

func TestLoaderSyncRegisters(t *testing.T) {
	dir := t.TempDir()
	writeDefinition(t, dir, "helper.toml", `agent_id = "helper"`)

	reg := NewTenantRegistry("acme", nil)
	loader := NewLoader(dir, nil)
	if err := loader.Sync(reg); err != nil {
		t.Fatal(err)
	}
	if _, ok := reg.Get("helper"); !ok {
		t.Error("synced agent not registered")
	}
}
