// Package storage implements the durable tier behind the session store's
// Archiver interface. Postgres keeps the long-lived record - full message
// history plus extracted intelligence - while the fast tier holds only the
// working copy.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/TryMightyAI/decoy/pkg/intel"
	"github.com/TryMightyAI/decoy/pkg/session"
)

// PostgresArchiver persists conversations to Postgres via a pgx pool.
// Every method tolerates duplicate calls: the session store mirrors writes
// asynchronously and may retry or replay them.
type PostgresArchiver struct {
	pool *pgxpool.Pool
}

// NewPostgresArchiver connects a pool and ensures the schema exists.
func NewPostgresArchiver(ctx context.Context, dsn string) (*PostgresArchiver, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MaxConnLifetime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	a := &PostgresArchiver{pool: pool}
	if err := a.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return a, nil
}

// Close releases the connection pool.
func (a *PostgresArchiver) Close() {
	a.pool.Close()
}

func (a *PostgresArchiver) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id                TEXT PRIMARY KEY,
			language          TEXT NOT NULL DEFAULT 'en',
			channel           TEXT NOT NULL DEFAULT '',
			status            TEXT NOT NULL DEFAULT 'active',
			scam_flagged      BOOLEAN NOT NULL DEFAULT FALSE,
			notification_sent BOOLEAN NOT NULL DEFAULT FALSE,
			evidence          JSONB NOT NULL DEFAULT '{}',
			created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS session_messages (
			id         UUID PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			sender     TEXT NOT NULL,
			body       TEXT NOT NULL,
			sent_at    TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_session_messages_session
			ON session_messages (session_id, sent_at)`,
		`CREATE TABLE IF NOT EXISTS scam_intelligence (
			id          UUID PRIMARY KEY,
			session_id  TEXT NOT NULL UNIQUE REFERENCES sessions(id) ON DELETE CASCADE,
			evidence    JSONB NOT NULL DEFAULT '{}',
			captured_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
	for _, stmt := range stmts {
		if _, err := a.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// CreateConversation inserts the session row. Duplicate creates (replayed
// mirrors, reconstructed sessions) are absorbed by the conflict clause.
func (a *PostgresArchiver) CreateConversation(ctx context.Context, conv *session.Conversation) error {
	evidence, err := json.Marshal(conv.Evidence)
	if err != nil {
		return fmt.Errorf("encode evidence: %w", err)
	}
	_, err = a.pool.Exec(ctx,
		`INSERT INTO sessions (id, language, channel, status, scam_flagged, notification_sent, evidence, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO NOTHING`,
		conv.ID, conv.Language, conv.Channel, string(conv.Status),
		conv.ScamFlagged, conv.NotificationSent, evidence,
		conv.CreatedAt, conv.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session %s: %w", conv.ID, err)
	}
	return nil
}

// AppendMessage records one turn. Messages get their own uuid since turn
// content is not unique within a conversation.
func (a *PostgresArchiver) AppendMessage(ctx context.Context, sessionID string, turn session.Turn) error {
	_, err := a.pool.Exec(ctx,
		`INSERT INTO session_messages (id, session_id, sender, body, sent_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		uuid.New(), sessionID, turn.Sender, turn.Text, turn.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert message for %s: %w", sessionID, err)
	}
	return nil
}

// SaveSnapshot upserts the session's current flags and evidence, and keeps
// the scam_intelligence row in step whenever evidence is non-empty.
func (a *PostgresArchiver) SaveSnapshot(ctx context.Context, conv *session.Conversation) error {
	evidence, err := json.Marshal(conv.Evidence)
	if err != nil {
		return fmt.Errorf("encode evidence: %w", err)
	}
	_, err = a.pool.Exec(ctx,
		`INSERT INTO sessions (id, language, channel, status, scam_flagged, notification_sent, evidence, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO UPDATE SET
			status            = EXCLUDED.status,
			scam_flagged      = EXCLUDED.scam_flagged,
			notification_sent = EXCLUDED.notification_sent,
			evidence          = EXCLUDED.evidence,
			updated_at        = EXCLUDED.updated_at`,
		conv.ID, conv.Language, conv.Channel, string(conv.Status),
		conv.ScamFlagged, conv.NotificationSent, evidence,
		conv.CreatedAt, conv.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert session %s: %w", conv.ID, err)
	}

	if conv.Evidence.IsEmpty() {
		return nil
	}
	_, err = a.pool.Exec(ctx,
		`INSERT INTO scam_intelligence (id, session_id, evidence, captured_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (session_id) DO UPDATE SET
			evidence    = EXCLUDED.evidence,
			captured_at = EXCLUDED.captured_at`,
		uuid.New(), conv.ID, evidence,
	)
	if err != nil {
		return fmt.Errorf("upsert intelligence for %s: %w", conv.ID, err)
	}
	return nil
}

// MarkCompleted closes the durable record. The history stays for analysis.
func (a *PostgresArchiver) MarkCompleted(ctx context.Context, sessionID string) error {
	_, err := a.pool.Exec(ctx,
		`UPDATE sessions SET status = $2, updated_at = now() WHERE id = $1`,
		sessionID, string(session.StatusCompleted),
	)
	if err != nil {
		return fmt.Errorf("complete session %s: %w", sessionID, err)
	}
	return nil
}

// LoadConversation rebuilds a conversation from the durable record, message
// history included. Returns nil, nil when the session was never archived.
func (a *PostgresArchiver) LoadConversation(ctx context.Context, sessionID string) (*session.Conversation, error) {
	var (
		conv        session.Conversation
		status      string
		evidenceRaw []byte
	)
	err := a.pool.QueryRow(ctx,
		`SELECT id, language, channel, status, scam_flagged, notification_sent, evidence, created_at, updated_at
		 FROM sessions WHERE id = $1`,
		sessionID,
	).Scan(&conv.ID, &conv.Language, &conv.Channel, &status,
		&conv.ScamFlagged, &conv.NotificationSent, &evidenceRaw,
		&conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	conv.Status = session.Status(status)

	var ev intel.Evidence
	if len(evidenceRaw) > 0 {
		if err := json.Unmarshal(evidenceRaw, &ev); err != nil {
			return nil, fmt.Errorf("decode evidence for %s: %w", sessionID, err)
		}
	}
	conv.Evidence = intel.Merge(intel.Evidence{}, ev)

	rows, err := a.pool.Query(ctx,
		`SELECT sender, body, sent_at FROM session_messages
		 WHERE session_id = $1 ORDER BY sent_at, id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("load messages for %s: %w", sessionID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var t session.Turn
		if err := rows.Scan(&t.Sender, &t.Text, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message for %s: %w", sessionID, err)
		}
		conv.History = append(conv.History, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages for %s: %w", sessionID, err)
	}
	return &conv, nil
}
