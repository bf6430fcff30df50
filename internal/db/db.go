package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"timetable-importer/internal/journey"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func Open(dsn string, maxConns int) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

// Connect opens the pool and retries the first ping with exponential backoff
// until the server answers or ctx ends.
func Connect(ctx context.Context, dsn string, maxConns int, log zerolog.Logger) (*sql.DB, error) {
	db, err := Open(dsn, maxConns)
	if err != nil {
		return nil, err
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 2 * time.Minute
	err = backoff.RetryNotify(
		func() error { return Ping(ctx, db) },
		backoff.WithContext(b, ctx),
		func(err error, wait time.Duration) {
			log.Warn().Err(err).Dur("wait", wait).Msg("database not reachable, retrying")
		},
	)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

// Store hands out one transaction per leg from the shared pool.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Begin(ctx context.Context) (journey.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx}, nil
}

// Tx runs journey statements inside a database transaction.
type Tx struct {
	tx *sql.Tx
}

func (t *Tx) QueryID(ctx context.Context, st journey.Statement) (uuid.UUID, error) {
	var id uuid.UUID
	if err := t.tx.QueryRowContext(ctx, st.SQL, st.Args...).Scan(&id); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func (t *Tx) Exec(ctx context.Context, st journey.Statement) error {
	_, err := t.tx.ExecContext(ctx, st.SQL, st.Args...)
	return err
}

func (t *Tx) Commit() error   { return t.tx.Commit() }
func (t *Tx) Rollback() error { return t.tx.Rollback() }
