package transcript

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlTurns = `
CREATE TABLE IF NOT EXISTS turns (
    id           BIGSERIAL    PRIMARY KEY,
    session_id   TEXT         NOT NULL,
    turn_id      TEXT         NOT NULL,
    transcript   TEXT         NOT NULL DEFAULT '',
    english      TEXT         NOT NULL DEFAULT '',
    response     TEXT         NOT NULL DEFAULT '',
    reply        TEXT         NOT NULL DEFAULT '',
    failed       BOOLEAN      NOT NULL DEFAULT FALSE,
    started_at   TIMESTAMPTZ  NOT NULL,
    completed_at TIMESTAMPTZ  NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_turns_session_started
    ON turns (session_id, started_at);
`

// PostgresStore writes records to a turns table. All methods are safe for
// concurrent use.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Writer = (*PostgresStore)(nil)

// Open connects to the database at dsn and runs [Migrate].
func Open(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("transcript: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("transcript: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("transcript: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

// Migrate creates the turns table if it does not exist. It is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlTurns); err != nil {
		return fmt.Errorf("transcript: migrate: %w", err)
	}
	return nil
}

// Write inserts r.
func (s *PostgresStore) Write(ctx context.Context, r Record) error {
	const q = `
		INSERT INTO turns
		    (session_id, turn_id, transcript, english, response, reply, failed, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.pool.Exec(ctx, q,
		r.SessionID,
		r.TurnID,
		r.Transcript,
		r.English,
		r.Response,
		r.Reply,
		r.Failed,
		r.Started,
		r.Completed,
	)
	if err != nil {
		return fmt.Errorf("transcript: write turn: %w", err)
	}
	return nil
}

// Session returns every record of sessionID, oldest first.
func (s *PostgresStore) Session(ctx context.Context, sessionID string) ([]Record, error) {
	const q = `
		SELECT session_id, turn_id, transcript, english, response, reply, failed, started_at, completed_at
		FROM   turns
		WHERE  session_id = $1
		ORDER  BY started_at, id`

	rows, err := s.pool.Query(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("transcript: query session: %w", err)
	}
	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
		var r Record
		err := row.Scan(&r.SessionID, &r.TurnID, &r.Transcript, &r.English,
			&r.Response, &r.Reply, &r.Failed, &r.Started, &r.Completed)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("transcript: scan session: %w", err)
	}
	return records, nil
}

// Ping checks the database connection. It backs the readiness probe.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}
