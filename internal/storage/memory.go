package storage

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/chatloop/pkg/models"
)

// maxMessagesPerStream bounds in-memory message retention per stream.
const maxMessagesPerStream = 1000

// NewMemoryStores creates in-memory stores for testing and local runs.
func NewMemoryStores() StoreSet {
	return StoreSet{
		Streams:  &memoryStreamStore{streams: map[string]*models.ChatStream{}},
		Agents:   &memoryAgentStore{agents: map[string]*models.Agent{}},
		Messages: &memoryMessageStore{messages: map[string][]*models.Message{}},
		Actions:  &memoryActionStore{records: map[string][]*models.ActionRecord{}},
	}
}

// tenantKey scopes a record id to its tenant; the same stream id under two
// tenants never collides.
func tenantKey(tenantID, id string) string {
	return tenantID + "\x00" + id
}

type memoryStreamStore struct {
	mu      sync.RWMutex
	streams map[string]*models.ChatStream
}

func (m *memoryStreamStore) Get(ctx context.Context, tenantID, streamID string) (*models.ChatStream, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stream, ok := m.streams[tenantKey(tenantID, streamID)]
	if !ok {
		return nil, ErrNotFound
	}
	return stream.Clone(), nil
}

func (m *memoryStreamStore) Put(ctx context.Context, stream *models.ChatStream) error {
	if stream == nil || stream.StreamID == "" {
		return errors.New("stream with id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streams[tenantKey(stream.TenantID, stream.StreamID)] = stream.Clone()
	return nil
}

func (m *memoryStreamStore) List(ctx context.Context, tenantID string) ([]*models.ChatStream, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.ChatStream
	for _, stream := range m.streams {
		if tenantID != "" && stream.TenantID != tenantID {
			continue
		}
		out = append(out, stream.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StreamID < out[j].StreamID })
	return out, nil
}

type memoryAgentStore struct {
	mu     sync.RWMutex
	agents map[string]*models.Agent
}

func (m *memoryAgentStore) Get(ctx context.Context, tenantID, agentID string) (*models.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	agent, ok := m.agents[tenantKey(tenantID, agentID)]
	if !ok {
		return nil, ErrNotFound
	}
	return agent.Clone(), nil
}

func (m *memoryAgentStore) Put(ctx context.Context, agent *models.Agent) error {
	if agent == nil || agent.AgentID == "" {
		return errors.New("agent with id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := agent.Clone()
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}
	clone.UpdatedAt = time.Now()
	m.agents[tenantKey(clone.TenantID, clone.AgentID)] = clone
	return nil
}

func (m *memoryAgentStore) Exists(ctx context.Context, tenantID, agentID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.agents[tenantKey(tenantID, agentID)]
	return ok, nil
}

func (m *memoryAgentStore) List(ctx context.Context, tenantID string) ([]*models.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Agent
	for _, agent := range m.agents {
		if tenantID != "" && agent.TenantID != tenantID {
			continue
		}
		out = append(out, agent.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out, nil
}

func (m *memoryAgentStore) Delete(ctx context.Context, tenantID, agentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.agents, tenantKey(tenantID, agentID))
	return nil
}

type memoryMessageStore struct {
	mu       sync.RWMutex
	messages map[string][]*models.Message
}

func (m *memoryMessageStore) Append(ctx context.Context, msg *models.Message) error {
	if msg == nil || msg.StreamID == "" {
		return errors.New("message with stream id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := msg.Clone()
	if clone.ID == "" {
		clone.ID = uuid.NewString()
	}
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}
	msg.ID = clone.ID
	msg.CreatedAt = clone.CreatedAt

	key := tenantKey(clone.TenantID, clone.StreamID)
	buf := append(m.messages[key], clone)
	if len(buf) > maxMessagesPerStream {
		buf = buf[len(buf)-maxMessagesPerStream:]
	}
	m.messages[key] = buf
	return nil
}

func (m *memoryMessageStore) Since(ctx context.Context, tenantID, streamID string, since time.Time, limit int) ([]*models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Message
	for _, msg := range m.messages[tenantKey(tenantID, streamID)] {
		if msg.CreatedAt.After(since) {
			out = append(out, msg.Clone())
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *memoryMessageStore) Before(ctx context.Context, tenantID, streamID string, ts time.Time, limit int) ([]*models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Message
	for _, msg := range m.messages[tenantKey(tenantID, streamID)] {
		if !msg.CreatedAt.After(ts) {
			out = append(out, msg.Clone())
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *memoryMessageStore) CountSince(ctx context.Context, tenantID, streamID string, since time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, msg := range m.messages[tenantKey(tenantID, streamID)] {
		if msg.CreatedAt.After(since) {
			count++
		}
	}
	return count, nil
}

type memoryActionStore struct {
	mu      sync.RWMutex
	records map[string][]*models.ActionRecord
}

func (m *memoryActionStore) Append(ctx context.Context, rec *models.ActionRecord) error {
	if rec == nil || rec.StreamID == "" {
		return errors.New("action record with stream id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *rec
	if clone.ID == "" {
		clone.ID = uuid.NewString()
	}
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}
	rec.ID = clone.ID
	rec.CreatedAt = clone.CreatedAt
	key := tenantKey(clone.TenantID, clone.StreamID)
	m.records[key] = append(m.records[key], &clone)
	return nil
}

func (m *memoryActionStore) Recent(ctx context.Context, tenantID, streamID string, limit int) ([]*models.ActionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	records := m.records[tenantKey(tenantID, streamID)]
	if limit > 0 && len(records) > limit {
		records = records[len(records)-limit:]
	}
	out := make([]*models.ActionRecord, 0, len(records))
	for _, rec := range records {
		clone := *rec
		out = append(out, &clone)
	}
	return out, nil
}
