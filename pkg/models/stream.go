package models

import (
	"time"
)

// ChatStream represents one ongoing conversation. Streams are owned by the
// stream registry; everything outside the registry works with clones, so a
// caller mutating its copy can never corrupt the cached original.
type ChatStream struct {
	StreamID string   `json:"stream_id"`
	TenantID string   `json:"tenant_id"`
	AgentID  string   `json:"agent_id"`
	Platform Platform `json:"platform"`

	User  *UserInfo  `json:"user,omitempty"`
	Group *GroupInfo `json:"group,omitempty"`

	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`

	// Saved reports whether the current state has reached the persistence
	// collaborator. A failed background write leaves it false so the next
	// save pass retries.
	Saved bool `json:"-"`

	// Context holds the most recent inbound message for template and
	// format lookups. Transient, never persisted.
	Context *Message `json:"-"`
}

// IsGroup reports whether this stream is a group conversation.
func (s *ChatStream) IsGroup() bool {
	return s != nil && s.Group != nil && s.Group.GroupID != ""
}

// Touch bumps the last-active time and marks the stream dirty.
func (s *ChatStream) Touch(now time.Time) {
	s.LastActiveAt = now
	s.Saved = false
}

// Name returns a human-readable label for logs: the group name, the peer
// nickname, or the stream id as a last resort.
func (s *ChatStream) Name() string {
	if s == nil {
		return ""
	}
	if s.Group != nil && s.Group.GroupName != "" {
		return s.Group.GroupName
	}
	if s.User != nil && s.User.Nickname != "" {
		return s.User.Nickname
	}
	return s.StreamID
}

// Clone returns an independent copy. The transient message context is
// carried over by reference; it is read-only by convention.
func (s *ChatStream) Clone() *ChatStream {
	if s == nil {
		return nil
	}
	clone := *s
	clone.User = s.User.Clone()
	clone.Group = s.Group.Clone()
	return &clone
}
