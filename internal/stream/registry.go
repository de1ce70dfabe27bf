package stream

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/haasonsaas/chatloop/internal/storage"
	"github.com/haasonsaas/chatloop/pkg/models"
)

// saveTimeout bounds each background persistence write.
const saveTimeout = 10 * time.Second

// Registry resolves and caches the chat streams of one tenant. The cached
// records are authoritative; callers only ever receive clones, so caller
// mutation cannot race the cache.
type Registry struct {
	mu           sync.Mutex
	tenantID     string
	streams      map[string]*models.ChatStream
	lastMessages map[string]*models.Message

	store  storage.StreamStore
	logger *slog.Logger

	saveWG sync.WaitGroup
}

// NewRegistry creates a stream registry for one tenant backed by store.
func NewRegistry(tenantID string, store storage.StreamStore, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tenantID:     tenantID,
		streams:      map[string]*models.ChatStream{},
		lastMessages: map[string]*models.Message{},
		store:        store,
		logger:       logger.With("tenant_id", tenantID),
	}
}

// TenantID reports the tenant this registry serves.
func (r *Registry) TenantID() string { return r.tenantID }

// GetOrCreate resolves the stream for the given conversation, constructing
// and registering it when neither the cache nor the store has it. The
// resolved stream is touched, stamped with the triggering message, scheduled
// for a best-effort background save, and returned as a clone.
func (r *Registry) GetOrCreate(ctx context.Context, agentID string, platform models.Platform, user *models.UserInfo, group *models.GroupInfo, msgCtx *models.Message) (*models.ChatStream, error) {
	streamID, err := StreamID(agentID, string(platform), user, group)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stream, ok := r.streams[streamID]
	if !ok {
		stream = r.rehydrateLocked(ctx, streamID)
	}
	if stream == nil {
		now := time.Now()
		stream = &models.ChatStream{
			StreamID:     streamID,
			TenantID:     r.tenantID,
			AgentID:      agentID,
			Platform:     platform,
			CreatedAt:    now,
			LastActiveAt: now,
			Saved:        false,
		}
		if user != nil {
			u := *user
			stream.User = &u
		}
		if group != nil {
			stream.Group = group.Clone()
		}
		r.streams[streamID] = stream
	}

	stream.Touch(time.Now())
	stream.Saved = false
	if msgCtx != nil {
		stream.Context = msgCtx.Clone()
		r.lastMessages[streamID] = msgCtx.Clone()
	}

	r.scheduleSaveLocked(stream)
	return stream.Clone(), nil
}

// rehydrateLocked loads a stream from the store into the cache. Loaded
// streams are already persisted, so no redundant write is scheduled for
// them until they change.
func (r *Registry) rehydrateLocked(ctx context.Context, streamID string) *models.ChatStream {
	if r.store == nil {
		return nil
	}
	stream, err := r.store.Get(ctx, r.tenantID, streamID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		r.logger.Warn("stream rehydration failed", "stream_id", streamID, "error", err)
		return nil
	}
	stream.Saved = true
	r.streams[streamID] = stream
	return stream
}

// Get looks up a stream by id without creating one. The boolean reports
// whether either the cache or the store had it.
func (r *Registry) Get(ctx context.Context, streamID string) (*models.ChatStream, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stream, ok := r.streams[streamID]
	if !ok {
		stream = r.rehydrateLocked(ctx, streamID)
	}
	if stream == nil {
		return nil, false
	}
	return stream.Clone(), true
}

// List returns clones of every cached stream, ordered by stream id.
func (r *Registry) List() []*models.ChatStream {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.ChatStream, 0, len(r.streams))
	for _, stream := range r.streams {
		out = append(out, stream.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StreamID < out[j].StreamID })
	return out
}

// RegisterMessage stamps the stream's transient context with msg and records
// it as the stream's latest message. Unknown stream ids are ignored.
func (r *Registry) RegisterMessage(streamID string, msg *models.Message) {
	if msg == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastMessages[streamID] = msg.Clone()
	if stream, ok := r.streams[streamID]; ok {
		stream.Context = msg.Clone()
		stream.Touch(time.Now())
	}
}

// LastMessage returns the most recent message registered for the stream.
func (r *Registry) LastMessage(streamID string) *models.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	if msg, ok := r.lastMessages[streamID]; ok {
		return msg.Clone()
	}
	return nil
}

// SaveAll persists every unsaved stream synchronously. Used by the autosave
// job and on shutdown.
func (r *Registry) SaveAll(ctx context.Context) error {
	r.mu.Lock()
	dirty := make([]*models.ChatStream, 0, len(r.streams))
	for _, stream := range r.streams {
		if !stream.Saved {
			dirty = append(dirty, stream.Clone())
		}
	}
	r.mu.Unlock()

	var firstErr error
	for _, snapshot := range dirty {
		if err := r.persistSnapshot(ctx, snapshot); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Wait blocks until all scheduled background saves have finished.
func (r *Registry) Wait() { r.saveWG.Wait() }

// scheduleSaveLocked queues a best-effort background write for the stream.
// A failed write leaves the unsaved flag set so a later save can retry.
func (r *Registry) scheduleSaveLocked(stream *models.ChatStream) {
	if r.store == nil {
		return
	}
	snapshot := stream.Clone()
	r.saveWG.Add(1)
	go func() {
		defer r.saveWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		defer cancel()
		if err := r.persistSnapshot(ctx, snapshot); err != nil {
			r.logger.Warn("stream save failed", "stream_id", snapshot.StreamID, "error", err)
		}
	}()
}

func (r *Registry) persistSnapshot(ctx context.Context, snapshot *models.ChatStream) error {
	if err := r.store.Put(ctx, snapshot); err != nil {
		return err
	}
	r.mu.Lock()
	if cached, ok := r.streams[snapshot.StreamID]; ok {
		// A resolution after the snapshot was taken re-dirtied the
		// stream; its newer state still needs a write.
		if !cached.LastActiveAt.After(snapshot.LastActiveAt) {
			cached.Saved = true
		}
	}
	r.mu.Unlock()
	return nil
}
