// Package models defines the shared record types passed between the stream
// registry, planner, cycle loop, and persistence stores.
package models

import (
	"time"
)

// Platform identifies the messaging platform a conversation lives on.
type Platform string

// Direction indicates if a message is inbound or outbound.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// UserInfo describes one user on a platform.
type UserInfo struct {
	Platform Platform `json:"platform"`
	UserID   string   `json:"user_id"`
	Nickname string   `json:"nickname,omitempty"`
	Cardname string   `json:"cardname,omitempty"`
}

// GroupInfo describes one group conversation on a platform.
type GroupInfo struct {
	Platform  Platform `json:"platform"`
	GroupID   string   `json:"group_id"`
	GroupName string   `json:"group_name,omitempty"`
}

// Clone returns an independent copy.
func (u *UserInfo) Clone() *UserInfo {
	if u == nil {
		return nil
	}
	clone := *u
	return &clone
}

// Clone returns an independent copy.
func (g *GroupInfo) Clone() *GroupInfo {
	if g == nil {
		return nil
	}
	clone := *g
	return &clone
}

// Message is the unified pre-parsed message format handed to the control
// plane by the surrounding service. Sender and Group describe the
// counterpart; TargetAgentID is the optional explicit agent address.
type Message struct {
	ID            string     `json:"id"`
	StreamID      string     `json:"stream_id"`
	TenantID      string     `json:"tenant_id"`
	Platform      Platform   `json:"platform"`
	Sender        UserInfo   `json:"sender"`
	Group         *GroupInfo `json:"group,omitempty"`
	TargetAgentID string     `json:"target_agent_id,omitempty"`
	Direction     Direction  `json:"direction"`
	Text          string     `json:"text"`

	// Mentioned is set when the agent's name or alias appears in the text;
	// At is set when the platform delivered an explicit @-reference.
	Mentioned bool `json:"mentioned,omitempty"`
	At        bool `json:"at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// IsGroup reports whether the message arrived in a group conversation.
func (m *Message) IsGroup() bool {
	return m != nil && m.Group != nil && m.Group.GroupID != ""
}

// Clone returns an independent copy of the message.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	clone := *m
	clone.Group = m.Group.Clone()
	return &clone
}
