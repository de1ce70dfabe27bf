package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver

	"github.com/haasonsaas/chatloop/pkg/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS chat_streams (
	tenant_id      TEXT NOT NULL,
	stream_id      TEXT NOT NULL,
	agent_id       TEXT NOT NULL,
	platform       TEXT NOT NULL,
	user_info      TEXT,
	group_info     TEXT,
	created_at     INTEGER NOT NULL,
	last_active_at INTEGER NOT NULL,
	PRIMARY KEY (tenant_id, stream_id)
);

CREATE TABLE IF NOT EXISTS agents (
	tenant_id        TEXT NOT NULL,
	agent_id         TEXT NOT NULL,
	name             TEXT NOT NULL,
	description      TEXT,
	persona          TEXT NOT NULL,
	tags             TEXT,
	bot_overrides    TEXT,
	config_overrides TEXT,
	created_at       INTEGER NOT NULL,
	updated_at       INTEGER NOT NULL,
	PRIMARY KEY (tenant_id, agent_id)
);

CREATE TABLE IF NOT EXISTS messages (
	id         TEXT PRIMARY KEY,
	tenant_id  TEXT NOT NULL,
	stream_id  TEXT NOT NULL,
	payload    TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_tenant_stream_time ON messages(tenant_id, stream_id, created_at);

CREATE TABLE IF NOT EXISTS action_records (
	id          TEXT PRIMARY KEY,
	stream_id   TEXT NOT NULL,
	tenant_id   TEXT NOT NULL,
	agent_id    TEXT NOT NULL,
	thinking_id TEXT,
	action_type TEXT NOT NULL,
	reasoning   TEXT,
	data        TEXT,
	done        INTEGER NOT NULL,
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_action_records_tenant_stream_time ON action_records(tenant_id, stream_id, created_at);
`

// NewSQLiteStores opens (creating if needed) a SQLite database at path and
// returns stores backed by it.
func NewSQLiteStores(path string) (StoreSet, error) {
	if strings.TrimSpace(path) == "" {
		return StoreSet{}, fmt.Errorf("sqlite path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return StoreSet{}, fmt.Errorf("open database: %w", err)
	}
	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent loop writes.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return StoreSet{}, fmt.Errorf("create schema: %w", err)
	}

	return StoreSet{
		Streams:  &sqliteStreamStore{db: db},
		Agents:   &sqliteAgentStore{db: db},
		Messages: &sqliteMessageStore{db: db},
		Actions:  &sqliteActionStore{db: db},
		closer:   db.Close,
	}, nil
}

func marshalJSON(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	// Typed nils (a nil *UserInfo, an empty tag slice) encode as "null";
	// store SQL NULL so reads rehydrate them as absent.
	if string(data) == "null" {
		return sql.NullString{}, nil
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

type sqliteStreamStore struct {
	db *sql.DB
}

func (s *sqliteStreamStore) Get(ctx context.Context, tenantID, streamID string) (*models.ChatStream, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT stream_id, tenant_id, agent_id, platform, user_info, group_info, created_at, last_active_at
		 FROM chat_streams WHERE tenant_id = ? AND stream_id = ?`, tenantID, streamID)
	return scanStream(row)
}

func scanStream(row *sql.Row) (*models.ChatStream, error) {
	var (
		stream              models.ChatStream
		userJSON, grpJSON   sql.NullString
		createdAt, activeAt int64
	)
	err := row.Scan(&stream.StreamID, &stream.TenantID, &stream.AgentID, &stream.Platform,
		&userJSON, &grpJSON, &createdAt, &activeAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan stream: %w", err)
	}
	if userJSON.Valid {
		stream.User = &models.UserInfo{}
		if err := json.Unmarshal([]byte(userJSON.String), stream.User); err != nil {
			return nil, fmt.Errorf("decode user info: %w", err)
		}
	}
	if grpJSON.Valid {
		stream.Group = &models.GroupInfo{}
		if err := json.Unmarshal([]byte(grpJSON.String), stream.Group); err != nil {
			return nil, fmt.Errorf("decode group info: %w", err)
		}
	}
	stream.CreatedAt = time.Unix(0, createdAt)
	stream.LastActiveAt = time.Unix(0, activeAt)
	stream.Saved = true
	return &stream, nil
}

func (s *sqliteStreamStore) Put(ctx context.Context, stream *models.ChatStream) error {
	if stream == nil || stream.StreamID == "" {
		return errors.New("stream with id is required")
	}
	userJSON, err := marshalJSON(stream.User)
	if err != nil {
		return fmt.Errorf("encode user info: %w", err)
	}
	grpJSON, err := marshalJSON(stream.Group)
	if err != nil {
		return fmt.Errorf("encode group info: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO chat_streams (stream_id, tenant_id, agent_id, platform, user_info, group_info, created_at, last_active_at)
		 VALUES (?,?,?,?,?,?,?,?)
		 ON CONFLICT(tenant_id, stream_id) DO UPDATE SET
			agent_id = excluded.agent_id,
			platform = excluded.platform,
			user_info = excluded.user_info,
			group_info = excluded.group_info,
			last_active_at = excluded.last_active_at`,
		stream.StreamID, stream.TenantID, stream.AgentID, string(stream.Platform),
		userJSON, grpJSON, stream.CreatedAt.UnixNano(), stream.LastActiveAt.UnixNano())
	if err != nil {
		return fmt.Errorf("save stream: %w", err)
	}
	return nil
}

func (s *sqliteStreamStore) List(ctx context.Context, tenantID string) ([]*models.ChatStream, error) {
	query := `SELECT stream_id, tenant_id, agent_id, platform, user_info, group_info, created_at, last_active_at
		 FROM chat_streams`
	args := []any{}
	if tenantID != "" {
		query += ` WHERE tenant_id = ?`
		args = append(args, tenantID)
	}
	query += ` ORDER BY stream_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list streams: %w", err)
	}
	defer rows.Close()

	var out []*models.ChatStream
	for rows.Next() {
		var (
			stream              models.ChatStream
			userJSON, grpJSON   sql.NullString
			createdAt, activeAt int64
		)
		if err := rows.Scan(&stream.StreamID, &stream.TenantID, &stream.AgentID, &stream.Platform,
			&userJSON, &grpJSON, &createdAt, &activeAt); err != nil {
			return nil, fmt.Errorf("scan stream: %w", err)
		}
		if userJSON.Valid {
			stream.User = &models.UserInfo{}
			if err := json.Unmarshal([]byte(userJSON.String), stream.User); err != nil {
				return nil, fmt.Errorf("decode user info: %w", err)
			}
		}
		if grpJSON.Valid {
			stream.Group = &models.GroupInfo{}
			if err := json.Unmarshal([]byte(grpJSON.String), stream.Group); err != nil {
				return nil, fmt.Errorf("decode group info: %w", err)
			}
		}
		stream.CreatedAt = time.Unix(0, createdAt)
		stream.LastActiveAt = time.Unix(0, activeAt)
		stream.Saved = true
		out = append(out, &stream)
	}
	return out, rows.Err()
}

type sqliteAgentStore struct {
	db *sql.DB
}

func (s *sqliteAgentStore) Get(ctx context.Context, tenantID, agentID string) (*models.Agent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT tenant_id, agent_id, name, description, persona, tags, bot_overrides, config_overrides, created_at, updated_at
		 FROM agents WHERE tenant_id = ? AND agent_id = ?`, tenantID, agentID)

	var (
		agent                  models.Agent
		persona                string
		tags, botOver, cfgOver sql.NullString
		createdAt, updatedAt   int64
	)
	err := row.Scan(&agent.TenantID, &agent.AgentID, &agent.Name, &agent.Description,
		&persona, &tags, &botOver, &cfgOver, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan agent: %w", err)
	}

	// Corrupt stored persona degrades to the default one; the agent must
	// stay usable.
	if err := json.Unmarshal([]byte(persona), &agent.Persona); err != nil {
		agent.Persona = models.DefaultPersona()
	}
	if tags.Valid {
		_ = json.Unmarshal([]byte(tags.String), &agent.Tags)
	}
	if botOver.Valid {
		_ = json.Unmarshal([]byte(botOver.String), &agent.BotOverrides)
	}
	if cfgOver.Valid {
		_ = json.Unmarshal([]byte(cfgOver.String), &agent.ConfigOverrides)
	}
	agent.CreatedAt = time.Unix(0, createdAt)
	agent.UpdatedAt = time.Unix(0, updatedAt)
	return &agent, nil
}

func (s *sqliteAgentStore) Put(ctx context.Context, agent *models.Agent) error {
	if agent == nil || agent.AgentID == "" {
		return errors.New("agent with id is required")
	}
	persona, err := json.Marshal(agent.Persona)
	if err != nil {
		return fmt.Errorf("encode persona: %w", err)
	}
	tags, err := marshalJSON(agent.Tags)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}
	botOver, err := marshalJSON(agent.BotOverrides)
	if err != nil {
		return fmt.Errorf("encode bot overrides: %w", err)
	}
	cfgOver, err := marshalJSON(agent.ConfigOverrides)
	if err != nil {
		return fmt.Errorf("encode config overrides: %w", err)
	}
	now := time.Now()
	created := agent.CreatedAt
	if created.IsZero() {
		created = now
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO agents (tenant_id, agent_id, name, description, persona, tags, bot_overrides, config_overrides, created_at, updated_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(tenant_id, agent_id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			persona = excluded.persona,
			tags = excluded.tags,
			bot_overrides = excluded.bot_overrides,
			config_overrides = excluded.config_overrides,
			updated_at = excluded.updated_at`,
		agent.TenantID, agent.AgentID, agent.Name, agent.Description,
		string(persona), tags, botOver, cfgOver, created.UnixNano(), now.UnixNano())
	if err != nil {
		return fmt.Errorf("save agent: %w", err)
	}
	return nil
}

func (s *sqliteAgentStore) Exists(ctx context.Context, tenantID, agentID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM agents WHERE tenant_id = ? AND agent_id = ?`, tenantID, agentID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check agent: %w", err)
	}
	return true, nil
}

func (s *sqliteAgentStore) List(ctx context.Context, tenantID string) ([]*models.Agent, error) {
	query := `SELECT tenant_id, agent_id FROM agents`
	args := []any{}
	if tenantID != "" {
		query += ` WHERE tenant_id = ?`
		args = append(args, tenantID)
	}
	query += ` ORDER BY agent_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	type key struct{ tenant, agent string }
	var keys []key
	for rows.Next() {
		var k key
		if err := rows.Scan(&k.tenant, &k.agent); err != nil {
			return nil, fmt.Errorf("scan agent key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*models.Agent, 0, len(keys))
	for _, k := range keys {
		agent, err := s.Get(ctx, k.tenant, k.agent)
		if err != nil {
			return nil, err
		}
		out = append(out, agent)
	}
	return out, nil
}

func (s *sqliteAgentStore) Delete(ctx context.Context, tenantID, agentID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM agents WHERE tenant_id = ? AND agent_id = ?`, tenantID, agentID)
	if err != nil {
		return fmt.Errorf("delete agent: %w", err)
	}
	return nil
}

type sqliteMessageStore struct {
	db *sql.DB
}

func (s *sqliteMessageStore) Append(ctx context.Context, msg *models.Message) error {
	if msg == nil || msg.StreamID == "" {
		return errors.New("message with stream id is required")
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO messages (id, tenant_id, stream_id, payload, created_at) VALUES (?,?,?,?,?)`,
		msg.ID, msg.TenantID, msg.StreamID, string(payload), msg.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	return nil
}

func (s *sqliteMessageStore) query(ctx context.Context, where string, limit int, args ...any) ([]*models.Message, error) {
	// Newest-biased: grab the latest rows descending, then reverse into
	// ascending order.
	query := `SELECT payload FROM messages WHERE ` + where + ` ORDER BY created_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []*models.Message
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		var msg models.Message
		if err := json.Unmarshal([]byte(payload), &msg); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		out = append(out, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *sqliteMessageStore) Since(ctx context.Context, tenantID, streamID string, since time.Time, limit int) ([]*models.Message, error) {
	return s.query(ctx, `tenant_id = ? AND stream_id = ? AND created_at > ?`, limit, tenantID, streamID, since.UnixNano())
}

func (s *sqliteMessageStore) Before(ctx context.Context, tenantID, streamID string, ts time.Time, limit int) ([]*models.Message, error) {
	return s.query(ctx, `tenant_id = ? AND stream_id = ? AND created_at <= ?`, limit, tenantID, streamID, ts.UnixNano())
}

func (s *sqliteMessageStore) CountSince(ctx context.Context, tenantID, streamID string, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE tenant_id = ? AND stream_id = ? AND created_at > ?`,
		tenantID, streamID, since.UnixNano()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return count, nil
}

type sqliteActionStore struct {
	db *sql.DB
}

func (s *sqliteActionStore) Append(ctx context.Context, rec *models.ActionRecord) error {
	if rec == nil || rec.StreamID == "" {
		return errors.New("action record with stream id is required")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	data, err := marshalJSON(rec.Data)
	if err != nil {
		return fmt.Errorf("encode action data: %w", err)
	}
	done := 0
	if rec.Done {
		done = 1
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO action_records (id, stream_id, tenant_id, agent_id, thinking_id, action_type, reasoning, data, done, created_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?)`,
		rec.ID, rec.StreamID, rec.TenantID, rec.AgentID, rec.ThinkingID,
		rec.ActionType, rec.Reasoning, data, done, rec.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("save action record: %w", err)
	}
	return nil
}

func (s *sqliteActionStore) Recent(ctx context.Context, tenantID, streamID string, limit int) ([]*models.ActionRecord, error) {
	query := `SELECT id, stream_id, tenant_id, agent_id, thinking_id, action_type, reasoning, data, done, created_at
		 FROM action_records WHERE tenant_id = ? AND stream_id = ? ORDER BY created_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, tenantID, streamID)
	if err != nil {
		return nil, fmt.Errorf("query action records: %w", err)
	}
	defer rows.Close()

	var out []*models.ActionRecord
	for rows.Next() {
		var (
			rec       models.ActionRecord
			data      sql.NullString
			done      int
			createdAt int64
		)
		if err := rows.Scan(&rec.ID, &rec.StreamID, &rec.TenantID, &rec.AgentID, &rec.ThinkingID,
			&rec.ActionType, &rec.Reasoning, &data, &done, &createdAt); err != nil {
			return nil, fmt.Errorf("scan action record: %w", err)
		}
		if data.Valid {
			_ = json.Unmarshal([]byte(data.String), &rec.Data)
		}
		rec.Done = done == 1
		rec.CreatedAt = time.Unix(0, createdAt)
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
