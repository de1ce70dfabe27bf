// Package stream derives chat-stream identities and keeps the per-tenant
// registry of live streams.
package stream

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/haasonsaas/chatloop/pkg/models"
)

// ErrInvalidIdentity is returned when a stream identity cannot be derived
// from the given participants.
var ErrInvalidIdentity = errors.New("stream: invalid chat identity")

// Sentinels substituted for missing identity components so that the key
// function stays total over partial platform data.
const (
	sentinelAgent    = "default"
	sentinelPlatform = "unknown"
	sentinelGroup    = "unknown_group"
)

// StreamID derives the deterministic stream identifier for a conversation.
// Group chats hash (agent, platform, group id); direct chats hash
// (agent, platform, user id) with a trailing private marker so a user's
// direct chat never collides with a group of the same id.
//
// A direct chat requires a user id. A conversation with neither user nor
// group has no identity at all.
func StreamID(agentID, platform string, user *models.UserInfo, group *models.GroupInfo) (string, error) {
	if user == nil && group == nil {
		return "", ErrInvalidIdentity
	}

	agentID = strings.TrimSpace(agentID)
	if agentID == "" {
		agentID = sentinelAgent
	}
	platform = strings.TrimSpace(platform)
	if platform == "" {
		platform = sentinelPlatform
	}

	var parts []string
	if group != nil {
		groupID := strings.TrimSpace(group.GroupID)
		if groupID == "" {
			groupID = sentinelGroup
		}
		parts = []string{agentID, platform, groupID}
	} else {
		userID := strings.TrimSpace(user.UserID)
		if userID == "" {
			return "", ErrInvalidIdentity
		}
		parts = []string{agentID, platform, userID, "private"}
	}

	sum := md5.Sum([]byte(strings.Join(parts, "_")))
	return hex.EncodeToString(sum[:]), nil
}
