// Package postgres provides a PostgreSQL implementation of
// storage.MessageStore. It uses pgx/v5 for connection pooling and JSONB
// for the tool-call history.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/buhlergroup/chatengine/pkg/storage"
)

// Store is a PostgreSQL-backed MessageStore.
type Store struct {
	pool *pgxpool.Pool
}

// Ensure Store implements storage.MessageStore at compile time.
var _ storage.MessageStore = (*Store)(nil)

// New creates a new PostgreSQL store with the given configuration. If
// MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

// UpsertMessage writes the message, replacing a previous version with
// the same ID. created_at survives replacement; updated_at advances.
func (s *Store) UpsertMessage(ctx context.Context, msg *storage.Message) error {
	tenantID := storage.GetTenant(ctx)

	var toolCallsJSON []byte
	if len(msg.ToolCalls) > 0 {
		var err error
		toolCallsJSON, err = json.Marshal(msg.ToolCalls)
		if err != nil {
			return fmt.Errorf("marshaling tool calls: %w", err)
		}
	}

	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (
			id, tenant_id, thread_id, role,
			content, reasoning_content, tool_calls,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (id) DO UPDATE SET
			thread_id         = EXCLUDED.thread_id,
			role              = EXCLUDED.role,
			content           = EXCLUDED.content,
			reasoning_content = EXCLUDED.reasoning_content,
			tool_calls        = EXCLUDED.tool_calls,
			updated_at        = now()
	`,
		msg.ID, tenantID, msg.ThreadID, msg.Role,
		msg.Content, msg.ReasoningContent, nullJSON(toolCallsJSON),
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("upserting message: %w", err)
	}
	return nil
}

// GetMessage retrieves a message by ID, scoped by tenant when one is
// present in the context.
func (s *Store) GetMessage(ctx context.Context, id string) (*storage.Message, error) {
	tenantID := storage.GetTenant(ctx)

	row := s.pool.QueryRow(ctx, `
		SELECT id, thread_id, role, content, reasoning_content, tool_calls,
		       created_at, updated_at
		FROM messages
		WHERE id = $1 AND ($2 = '' OR tenant_id = $2)
	`, id, tenantID)

	return scanMessage(row)
}

// ListThread returns all messages of a thread ordered by creation time.
func (s *Store) ListThread(ctx context.Context, threadID string) ([]*storage.Message, error) {
	tenantID := storage.GetTenant(ctx)

	rows, err := s.pool.Query(ctx, `
		SELECT id, thread_id, role, content, reasoning_content, tool_calls,
		       created_at, updated_at
		FROM messages
		WHERE thread_id = $1 AND ($2 = '' OR tenant_id = $2)
		ORDER BY created_at
	`, threadID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("querying thread: %w", err)
	}
	defer rows.Close()

	var msgs []*storage.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

// HealthCheck verifies database connectivity.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// scanMessage reads one message row.
func scanMessage(row pgx.Row) (*storage.Message, error) {
	var msg storage.Message
	var toolCallsJSON []byte

	err := row.Scan(
		&msg.ID, &msg.ThreadID, &msg.Role,
		&msg.Content, &msg.ReasoningContent, &toolCallsJSON,
		&msg.CreatedAt, &msg.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning message: %w", err)
	}

	if len(toolCallsJSON) > 0 {
		if err := json.Unmarshal(toolCallsJSON, &msg.ToolCalls); err != nil {
			return nil, fmt.Errorf("unmarshaling tool calls: %w", err)
		}
	}
	return &msg, nil
}

// nullJSON converts nil/empty byte slices to nil for nullable JSONB
// columns.
func nullJSON(b []byte) *[]byte {
	if len(b) == 0 {
		return nil
	}
	return &b
}
