package models

import (
	"time"
)

// ActionRecord is one audited planner/executor decision, persisted for
// diagnostics and for inclusion in future planning prompts.
type ActionRecord struct {
	ID         string         `json:"id"`
	TenantID   string         `json:"tenant_id"`
	AgentID    string         `json:"agent_id"`
	StreamID   string         `json:"stream_id"`
	ThinkingID string         `json:"thinking_id"`
	ActionType string         `json:"action_type"`
	Reasoning  string         `json:"reasoning,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	Done       bool           `json:"done"`
	CreatedAt  time.Time      `json:"created_at"`
}
