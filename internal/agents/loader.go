package agents

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/haasonsaas/chatloop/pkg/models"
)

// Loader reads agent definition files (*.toml) from a directory.
type Loader struct {
	dir    string
	logger *slog.Logger
}

// NewLoader creates a loader over dir.
func NewLoader(dir string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{dir: dir, logger: logger}
}

// Dir reports the watched definitions directory.
func (l *Loader) Dir() string { return l.dir }

// Load parses every *.toml file in the directory. Files that cannot
// identify an agent are skipped with a warning; files whose persona or
// override payload is malformed degrade to the default persona instead of
// failing.
func (l *Loader) Load() ([]*models.Agent, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("read agents directory: %w", err)
	}

	var agents []*models.Agent
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".toml") {
			continue
		}
		path := filepath.Join(l.dir, entry.Name())
		agent, err := l.loadFile(path)
		if err != nil {
			l.logger.Warn("skipping unreadable agent definition", "path", path, "error", err)
			continue
		}
		agents = append(agents, agent)
	}
	return agents, nil
}

// minimalAgent is the fallback shape used when the full definition cannot
// be decoded.
type minimalAgent struct {
	TenantID string `toml:"tenant_id"`
	AgentID  string `toml:"agent_id"`
	Name     string `toml:"name"`
}

func (l *Loader) loadFile(path string) (*models.Agent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var agent models.Agent
	if decodeErr := toml.Unmarshal(data, &agent); decodeErr == nil {
		if agent.AgentID == "" {
			return nil, fmt.Errorf("definition has no agent_id")
		}
		if agent.Persona == (models.Persona{}) {
			agent.Persona = models.DefaultPersona()
		}
		return &agent, nil
	} else {
		l.logger.Warn("agent definition malformed, degrading to default persona",
			"path", path, "error", decodeErr)
	}

	// Re-decode just the identity fields; a corrupt persona or override
	// table must not make the agent unusable.
	var min minimalAgent
	if err := toml.Unmarshal(data, &min); err != nil || min.AgentID == "" {
		return nil, fmt.Errorf("definition is unreadable")
	}
	name := min.Name
	if name == "" {
		name = min.AgentID
	}
	return &models.Agent{
		TenantID: min.TenantID,
		AgentID:  min.AgentID,
		Name:     name,
		Persona:  models.DefaultPersona(),
	}, nil
}

// Sync loads the directory and registers every definition into reg with
// overwrite, which also clears reg's resolution caches.
func (l *Loader) Sync(reg *TenantRegistry) error {
	agents, err := l.Load()
	if err != nil {
		return err
	}
	for _, agent := range agents {
		if err := reg.Register(agent, true); err != nil {
			l.logger.Warn("agent registration rejected",
				"agent_id", agent.AgentID, "error", err)
		}
	}
	return nil
}
