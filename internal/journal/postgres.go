package journal

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlEntries = `
CREATE TABLE IF NOT EXISTS onboarding_journal (
    id          BIGINT       PRIMARY KEY,
    session_id  TEXT         NOT NULL,
    kind        TEXT         NOT NULL,
    step        TEXT         NOT NULL DEFAULT '',
    payload     JSONB,
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_onboarding_journal_session
    ON onboarding_journal (session_id, id);
`

// PostgresStore persists entries in the onboarding_journal table.
//
// All methods are safe for concurrent use.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Writer = (*PostgresStore)(nil)

// NewPostgresStore connects to dsn, pings the server and runs [Migrate].
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("journal postgres: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("journal postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("journal postgres: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

// Migrate creates the journal table and index. It is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlEntries); err != nil {
		return fmt.Errorf("journal postgres: migrate: %w", err)
	}
	return nil
}

// Write implements [Writer].
func (s *PostgresStore) Write(ctx context.Context, e Entry) error {
	const q = `
		INSERT INTO onboarding_journal (id, session_id, kind, step, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`

	var payload any
	if len(e.Payload) > 0 {
		payload = string(e.Payload)
	}
	if _, err := s.pool.Exec(ctx, q, e.ID, e.SessionID, string(e.Kind), e.Step, payload, e.Time); err != nil {
		return fmt.Errorf("journal postgres: write: %w", err)
	}
	return nil
}

// List returns every entry of sessionID ordered by ID.
func (s *PostgresStore) List(ctx context.Context, sessionID string) ([]Entry, error) {
	const q = `
		SELECT id, session_id, kind, step, COALESCE(payload::text, ''), created_at
		FROM   onboarding_journal
		WHERE  session_id = $1
		ORDER  BY id`

	rows, err := s.pool.Query(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("journal postgres: list: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var (
			e       Entry
			kind    string
			payload string
		)
		if err := row.Scan(&e.ID, &e.SessionID, &kind, &e.Step, &payload, &e.Time); err != nil {
			return Entry{}, err
		}
		e.Kind = Kind(kind)
		if payload != "" {
			e.Payload = []byte(payload)
		}
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("journal postgres: scan rows: %w", err)
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

// Ping checks connectivity. Used by the readiness probe.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}
