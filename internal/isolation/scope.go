// Package isolation keys runtime state by tenant and keeps per-tenant
// instances alive only while someone holds them.
package isolation

import (
	"strings"

	"github.com/haasonsaas/chatloop/pkg/models"
)

// Level names how far down the isolation hierarchy a scope reaches.
type Level int

const (
	LevelTenant Level = iota
	LevelAgent
	LevelPlatform
	LevelStream
)

func (l Level) String() string {
	switch l {
	case LevelTenant:
		return "tenant"
	case LevelAgent:
		return "agent"
	case LevelPlatform:
		return "platform"
	case LevelStream:
		return "stream"
	default:
		return "unknown"
	}
}

// Scope addresses one isolation cell. Two scopes that differ in any field
// never share state.
type Scope struct {
	TenantID string
	AgentID  string
	Platform models.Platform
	StreamID string
}

// ScopeFor derives the scope of an inbound message, substituting the
// default tenant and agent for blank fields.
func ScopeFor(msg *models.Message) Scope {
	scope := Scope{
		TenantID: msg.TenantID,
		AgentID:  msg.TargetAgentID,
		Platform: msg.Platform,
		StreamID: msg.StreamID,
	}
	if scope.TenantID == "" {
		scope.TenantID = models.DefaultTenant
	}
	if scope.AgentID == "" {
		scope.AgentID = models.DefaultAgentID
	}
	return scope
}

// String renders the scope as "tenant:agent:platform:stream".
func (s Scope) String() string {
	return strings.Join([]string{s.TenantID, s.AgentID, string(s.Platform), s.StreamID}, ":")
}

// Level reports the deepest component the scope pins down.
func (s Scope) Level() Level {
	switch {
	case s.StreamID != "":
		return LevelStream
	case s.Platform != "":
		return LevelPlatform
	case s.AgentID != "":
		return LevelAgent
	default:
		return LevelTenant
	}
}
