package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/haasonsaas/chatloop/pkg/models"
)

func newSQLiteSet(t *testing.T) StoreSet {
	t.Helper()
	set, err := NewSQLiteStores(filepath.Join(t.TempDir(), "chatloop.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStores: %v", err)
	}
	t.Cleanup(func() {
		if err := set.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return set
}

func TestSQLiteStreamRoundTrip(t *testing.T) {
	set := newSQLiteSet(t)
	ctx := context.Background()

	now := time.Now().Truncate(time.Microsecond)
	in := &models.ChatStream{
		StreamID:     "s1",
		TenantID:     "acme",
		AgentID:      "helper",
		Platform:     "telegram",
		User:         &models.UserInfo{Platform: "telegram", UserID: "u1", Nickname: "Ada"},
		Group:        &models.GroupInfo{Platform: "telegram", GroupID: "g1", GroupName: "dev"},
		CreatedAt:    now.Add(-time.Hour),
		LastActiveAt: now,
	}
	if err := set.Streams.Put(ctx, in); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := set.Streams.Get(ctx, "acme", "s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.Saved {
		t.Error("loaded stream not marked saved")
	}
	if got.User == nil || got.User.Nickname != "Ada" {
		t.Errorf("user = %+v", got.User)
	}
	if got.Group == nil || got.Group.GroupName != "dev" {
		t.Errorf("group = %+v", got.Group)
	}
	if !got.CreatedAt.Equal(in.CreatedAt) || !got.LastActiveAt.Equal(in.LastActiveAt) {
		t.Errorf("times = %v / %v, want %v / %v",
			got.CreatedAt, got.LastActiveAt, in.CreatedAt, in.LastActiveAt)
	}

	// Upsert keeps the original creation time.
	in.LastActiveAt = now.Add(time.Minute)
	if err := set.Streams.Put(ctx, in); err != nil {
		t.Fatalf("second Put: %v", err)
	}
	got, err = set.Streams.Get(ctx, "acme", "s1")
	if err != nil {
		t.Fatalf("Get after upsert: %v", err)
	}
	if !got.CreatedAt.Equal(in.CreatedAt) {
		t.Errorf("upsert changed created_at to %v", got.CreatedAt)
	}
	if !got.LastActiveAt.Equal(in.LastActiveAt) {
		t.Errorf("upsert did not advance last_active_at: %v", got.LastActiveAt)
	}
}

func TestSQLiteStreamGetMissing(t *testing.T) {
	set := newSQLiteSet(t)
	if _, err := set.Streams.Get(context.Background(), "acme", "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSQLiteStreamListByTenant(t *testing.T) {
	set := newSQLiteSet(t)
	ctx := context.Background()
	now := time.Now()
	for _, tc := range []struct{ id, tenant string }{
		{"s1", "acme"}, {"s2", "acme"}, {"s3", "globex"},
	} {
		err := set.Streams.Put(ctx, &models.ChatStream{
			StreamID: tc.id, TenantID: tc.tenant, AgentID: "a", Platform: "p",
			CreatedAt: now, LastActiveAt: now,
		})
		if err != nil {
			t.Fatalf("Put %s: %v", tc.id, err)
		}
	}

	got, err := set.Streams.List(ctx, "acme")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 || got[0].StreamID != "s1" || got[1].StreamID != "s2" {
		t.Errorf("acme streams = %+v", got)
	}
}

func TestSQLiteRecordsScopedByTenant(t *testing.T) {
	set := newSQLiteSet(t)
	ctx := context.Background()
	now := time.Now()

	// One conversation identity under two tenants: two stream rows, two
	// message histories.
	for _, tenant := range []string{"acme", "globex"} {
		err := set.Streams.Put(ctx, &models.ChatStream{
			StreamID: "shared", TenantID: tenant, AgentID: "helper", Platform: "telegram",
			CreatedAt: now, LastActiveAt: now,
		})
		if err != nil {
			t.Fatalf("Put stream for %s: %v", tenant, err)
		}
		err = set.Messages.Append(ctx, &models.Message{
			TenantID: tenant, StreamID: "shared", Text: tenant + " says hi", CreatedAt: now,
		})
		if err != nil {
			t.Fatalf("Append for %s: %v", tenant, err)
		}
	}

	got, err := set.Streams.Get(ctx, "globex", "shared")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.TenantID != "globex" {
		t.Errorf("Get(globex, shared).TenantID = %q", got.TenantID)
	}
	if _, err := set.Streams.Get(ctx, "initech", "shared"); !errors.Is(err, ErrNotFound) {
		t.Errorf("stream visible to a tenant that never wrote it: %v", err)
	}

	msgs, err := set.Messages.Since(ctx, "acme", "shared", now.Add(-time.Second), 0)
	if err != nil {
		t.Fatalf("Since: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Text != "acme says hi" {
		t.Errorf("acme messages = %v", texts(msgs))
	}
}

func TestSQLiteAgentRoundTripAndCorruptPersona(t *testing.T) {
	set := newSQLiteSet(t)
	ctx := context.Background()

	in := &models.Agent{
		TenantID: "acme",
		AgentID:  "helper",
		Name:     "Helper",
		Persona:  models.Persona{Core: "terse and precise"},
		Tags:     []string{"support"},
		ConfigOverrides: map[string]any{
			"chat": map[string]any{"talk_value": 0.9},
		},
	}
	if err := set.Agents.Put(ctx, in); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := set.Agents.Get(ctx, "acme", "helper")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Persona.Core != "terse and precise" {
		t.Errorf("persona core = %q", got.Persona.Core)
	}
	if len(got.Tags) != 1 || got.Tags[0] != "support" {
		t.Errorf("tags = %v", got.Tags)
	}
	nested, _ := got.ConfigOverrides["chat"].(map[string]any)
	if nested == nil || nested["talk_value"] != 0.9 {
		t.Errorf("config overrides = %+v", got.ConfigOverrides)
	}

	ok, err := set.Agents.Exists(ctx, "acme", "helper")
	if err != nil || !ok {
		t.Errorf("Exists = %v, %v", ok, err)
	}

	// A corrupt stored persona degrades to the default instead of failing
	// the read.
	raw := set.Agents.(*sqliteAgentStore)
	if _, err := raw.db.ExecContext(ctx,
		`UPDATE agents SET persona = 'not json' WHERE agent_id = 'helper'`); err != nil {
		t.Fatalf("corrupt persona: %v", err)
	}
	got, err = set.Agents.Get(ctx, "acme", "helper")
	if err != nil {
		t.Fatalf("Get with corrupt persona: %v", err)
	}
	if got.Persona != models.DefaultPersona() {
		t.Errorf("persona = %+v, want default", got.Persona)
	}

	if err := set.Agents.Delete(ctx, "acme", "helper"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if ok, _ := set.Agents.Exists(ctx, "acme", "helper"); ok {
		t.Error("agent still exists after delete")
	}
}

func TestSQLiteMessagesNewestBiasedWindow(t *testing.T) {
	set := newSQLiteSet(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Minute)
	for i := 0; i < 5; i++ {
		msg := &models.Message{
			TenantID:  "acme",
			StreamID:  "s1",
			Text:      string(rune('a' + i)),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := set.Messages.Append(ctx, msg); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
		if msg.ID == "" {
			t.Fatal("Append did not assign an id")
		}
	}

	got, err := set.Messages.Since(ctx, "acme", "s1", base, 3)
	if err != nil {
		t.Fatalf("Since: %v", err)
	}
	if len(got) != 3 || got[0].Text != "c" || got[2].Text != "e" {
		t.Errorf("Since window = %v", texts(got))
	}

	got, err = set.Messages.Before(ctx, "acme", "s1", base.Add(10*time.Second), 2)
	if err != nil {
		t.Fatalf("Before: %v", err)
	}
	if len(got) != 2 || got[0].Text != "d" || got[1].Text != "e" {
		t.Errorf("Before window = %v", texts(got))
	}

	count, err := set.Messages.CountSince(ctx, "acme", "s1", base.Add(2500*time.Millisecond))
	if err != nil {
		t.Fatalf("CountSince: %v", err)
	}
	if count != 2 {
		t.Errorf("CountSince = %d, want 2", count)
	}
}

func texts(msgs []*models.Message) []string {
	out := make([]string, len(msgs))
	for i, msg := range msgs {
		out[i] = msg.Text
	}
	return out
}

func TestSQLiteActionRecords(t *testing.T) {
	set := newSQLiteSet(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Minute)
	for i := 0; i < 4; i++ {
		rec := &models.ActionRecord{
			StreamID:   "s1",
			TenantID:   "acme",
			AgentID:    "helper",
			ThinkingID: "tid1",
			ActionType: "reply",
			Reasoning:  "had something to add",
			Data:       map[string]any{"segments": float64(i)},
			Done:       i%2 == 0,
			CreatedAt:  base.Add(time.Duration(i) * time.Second),
		}
		if err := set.Actions.Append(ctx, rec); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	got, err := set.Actions.Recent(ctx, "acme", "s1", 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Recent len = %d", len(got))
	}
	if got[0].Data["segments"] != float64(2) || got[1].Data["segments"] != float64(3) {
		t.Errorf("recent window = %+v, %+v", got[0].Data, got[1].Data)
	}
	if got[0].Done != true || got[1].Done != false {
		t.Errorf("done flags = %v, %v", got[0].Done, got[1].Done)
	}
}
