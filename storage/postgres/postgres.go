// Package postgres implements storage.Repository backed by PostgreSQL.
//
// The client_records table uses a composite primary key (bucket, key) that
// mirrors the key space used by the BBolt and in-memory backends, so a
// persisted session can live on a shared host database instead of a local file.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jmcleod/docsession/storage"
)

// Store implements storage.Repository backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ storage.Repository = (*Store)(nil)

// NewRepository returns a Repository backed by the given pgx connection pool.
func NewRepository(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// NewRepositoryFromDSN creates a connection pool from a DSN string, ensures
// the schema exists, and returns a new Repository.
func NewRepositoryFromDSN(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}
	return NewRepository(pool), nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Put(bucket, key string, value []byte) error {
	_, err := s.pool.Exec(context.Background(),
		`INSERT INTO client_records (bucket, key, value)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (bucket, key)
		 DO UPDATE SET value = $3, updated_at = now()`,
		bucket, key, value)
	return err
}

func (s *Store) Get(bucket, key string) ([]byte, error) {
	var value []byte
	err := s.pool.QueryRow(context.Background(),
		`SELECT value FROM client_records WHERE bucket = $1 AND key = $2`,
		bucket, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s/%s: %w", bucket, key, storage.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (s *Store) Delete(bucket, key string) error {
	tag, err := s.pool.Exec(context.Background(),
		`DELETE FROM client_records WHERE bucket = $1 AND key = $2`,
		bucket, key)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s/%s: %w", bucket, key, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) List(bucket string) ([]string, error) {
	rows, err := s.pool.Query(context.Background(),
		`SELECT key FROM client_records WHERE bucket = $1 ORDER BY key`, bucket)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
