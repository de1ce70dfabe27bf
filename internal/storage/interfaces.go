// Package storage defines the persistence collaborator for chat streams,
// agent definitions, messages, and action audit records, with SQLite and
// in-memory implementations.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/haasonsaas/chatloop/pkg/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("storage: not found")

// StreamStore persists chat stream records keyed by (tenant, stream).
// The stream id hashes only the conversation identity, so the same
// conversation under two tenants shares an id but never a record.
type StreamStore interface {
	Get(ctx context.Context, tenantID, streamID string) (*models.ChatStream, error)
	Put(ctx context.Context, stream *models.ChatStream) error
	List(ctx context.Context, tenantID string) ([]*models.ChatStream, error)
}

// AgentStore persists agent definitions keyed by (tenant, agent).
type AgentStore interface {
	Get(ctx context.Context, tenantID, agentID string) (*models.Agent, error)
	Put(ctx context.Context, agent *models.Agent) error
	Exists(ctx context.Context, tenantID, agentID string) (bool, error)
	List(ctx context.Context, tenantID string) ([]*models.Agent, error)
	Delete(ctx context.Context, tenantID, agentID string) error
}

// MessageStore persists conversation messages keyed by (tenant, stream).
type MessageStore interface {
	Append(ctx context.Context, msg *models.Message) error

	// Since returns up to limit messages newer than since, newest-biased:
	// when more than limit qualify, the latest limit are returned. Results
	// are in ascending time order.
	Since(ctx context.Context, tenantID, streamID string, since time.Time, limit int) ([]*models.Message, error)

	// Before returns up to limit messages at or before ts, the latest
	// first dropped, ascending order.
	Before(ctx context.Context, tenantID, streamID string, ts time.Time, limit int) ([]*models.Message, error)

	CountSince(ctx context.Context, tenantID, streamID string, since time.Time) (int, error)
}

// ActionStore appends planner/executor audit records keyed by
// (tenant, stream).
type ActionStore interface {
	Append(ctx context.Context, rec *models.ActionRecord) error
	Recent(ctx context.Context, tenantID, streamID string, limit int) ([]*models.ActionRecord, error)
}

// StoreSet bundles the stores backed by one database.
type StoreSet struct {
	Streams  StreamStore
	Agents   AgentStore
	Messages MessageStore
	Actions  ActionStore

	closer func() error
}

// Close releases the underlying database, if any.
func (s StoreSet) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
