package history

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Compile-time interface check.
var _ Backend = (*PostgresBackend)(nil)

const historySchema = `
CREATE TABLE IF NOT EXISTS history_items (
	seq            BIGSERIAL PRIMARY KEY,
	id             TEXT NOT NULL UNIQUE,
	question       TEXT NOT NULL,
	answer         TEXT NOT NULL,
	stage_id       TEXT NOT NULL,
	stage_title    TEXT NOT NULL,
	exercise_title TEXT NOT NULL DEFAULT '',
	mode           TEXT NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL
);
`

// PostgresBackend stores history items in PostgreSQL. The table is insert-only;
// nothing in the service ever updates or deletes a row.
type PostgresBackend struct {
	pool *pgxpool.Pool
}

// NewPostgresBackend connects to the database at dsn and ensures the schema
// exists.
func NewPostgresBackend(ctx context.Context, dsn string) (*PostgresBackend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("history postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history postgres: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, historySchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history postgres: ensure schema: %w", err)
	}
	return &PostgresBackend{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (pb *PostgresBackend) Close() {
	pb.pool.Close()
}

// Append implements [Backend].
func (pb *PostgresBackend) Append(ctx context.Context, item Item) error {
	_, err := pb.pool.Exec(ctx,
		`INSERT INTO history_items (id, question, answer, stage_id, stage_title, exercise_title, mode, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		item.ID, item.Question, item.Answer, item.StageID, item.StageTitle,
		item.ExerciseTitle, string(item.Mode), item.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("history postgres: insert: %w", err)
	}
	return nil
}

// Load implements [Backend].
func (pb *PostgresBackend) Load(ctx context.Context) ([]Item, error) {
	rows, err := pb.pool.Query(ctx,
		`SELECT id, question, answer, stage_id, stage_title, exercise_title, mode, created_at
		 FROM history_items ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("history postgres: query: %w", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Item, error) {
		var it Item
		var mode string
		err := row.Scan(&it.ID, &it.Question, &it.Answer, &it.StageID, &it.StageTitle,
			&it.ExerciseTitle, &mode, &it.Timestamp)
		it.Mode = Mode(mode)
		return it, err
	})
	if err != nil {
		return nil, fmt.Errorf("history postgres: scan: %w", err)
	}
	return items, nil
}
