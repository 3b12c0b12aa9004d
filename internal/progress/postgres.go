package progress

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Compile-time interface check.
var _ Backend = (*PostgresBackend)(nil)

const progressSchema = `
CREATE TABLE IF NOT EXISTS stage_progress (
	id        TEXT PRIMARY KEY,
	locked    BOOLEAN NOT NULL,
	completed BOOLEAN NOT NULL
);
CREATE TABLE IF NOT EXISTS completed_exercises (
	id TEXT PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS user_profile (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// PostgresBackend persists snapshots in PostgreSQL for multi-device
// deployments. Each save replaces the full snapshot inside one transaction,
// mirroring the file backend's whole-payload semantics.
type PostgresBackend struct {
	pool *pgxpool.Pool
}

// NewPostgresBackend connects to the database at dsn and ensures the schema
// exists. Close the backend when done to release the pool.
func NewPostgresBackend(ctx context.Context, dsn string) (*PostgresBackend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("progress postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("progress postgres: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, progressSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("progress postgres: ensure schema: %w", err)
	}
	return &PostgresBackend{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (pb *PostgresBackend) Close() {
	pb.pool.Close()
}

// Load implements [Backend].
func (pb *PostgresBackend) Load(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{}

	rows, err := pb.pool.Query(ctx, `SELECT id, locked, completed FROM stage_progress ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("progress postgres: query stages: %w", err)
	}
	snap.Stages, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (StageState, error) {
		var st StageState
		err := row.Scan(&st.ID, &st.Locked, &st.Completed)
		return st, err
	})
	if err != nil {
		return nil, fmt.Errorf("progress postgres: scan stages: %w", err)
	}

	exRows, err := pb.pool.Query(ctx, `SELECT id FROM completed_exercises ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("progress postgres: query exercises: %w", err)
	}
	snap.CompletedExercises, err = pgx.CollectRows(exRows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("progress postgres: scan exercises: %w", err)
	}

	profRows, err := pb.pool.Query(ctx, `SELECT key, value FROM user_profile`)
	if err != nil {
		return nil, fmt.Errorf("progress postgres: query profile: %w", err)
	}
	type kv struct {
		Key, Value string
	}
	pairs, err := pgx.CollectRows(profRows, pgx.RowToStructByPos[kv])
	if err != nil {
		return nil, fmt.Errorf("progress postgres: scan profile: %w", err)
	}
	for _, p := range pairs {
		switch p.Key {
		case "user":
			snap.User = p.Value
		case "username":
			snap.Username = p.Value
		}
	}

	if len(snap.Stages) == 0 && len(snap.CompletedExercises) == 0 && snap.User == "" && snap.Username == "" {
		return nil, ErrNoSnapshot
	}
	return snap, nil
}

// Save implements [Backend].
func (pb *PostgresBackend) Save(ctx context.Context, snap *Snapshot) error {
	tx, err := pb.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("progress postgres: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM stage_progress`); err != nil {
		return fmt.Errorf("progress postgres: clear stages: %w", err)
	}
	for _, st := range snap.Stages {
		if _, err := tx.Exec(ctx,
			`INSERT INTO stage_progress (id, locked, completed) VALUES ($1, $2, $3)`,
			st.ID, st.Locked, st.Completed,
		); err != nil {
			return fmt.Errorf("progress postgres: insert stage %q: %w", st.ID, err)
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM completed_exercises`); err != nil {
		return fmt.Errorf("progress postgres: clear exercises: %w", err)
	}
	for _, id := range snap.CompletedExercises {
		if _, err := tx.Exec(ctx,
			`INSERT INTO completed_exercises (id) VALUES ($1)`, id,
		); err != nil {
			return fmt.Errorf("progress postgres: insert exercise %q: %w", id, err)
		}
	}

	for key, value := range map[string]string{"user": snap.User, "username": snap.Username} {
		if _, err := tx.Exec(ctx,
			`INSERT INTO user_profile (key, value) VALUES ($1, $2)
			 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
			key, value,
		); err != nil {
			return fmt.Errorf("progress postgres: upsert profile %q: %w", key, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("progress postgres: commit: %w", err)
	}
	return nil
}
