package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ResponseRepository stores canned reply templates keyed by shortcode.
type ResponseRepository interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key, response string) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}

type responseRepository struct {
	pool *pgxpool.Pool
}

// NewResponseRepository instantiates repository.
func NewResponseRepository(pool *pgxpool.Pool) ResponseRepository {
	return &responseRepository{pool: pool}
}

// Get returns the template for key, or "" when the key is unknown.
func (r *responseRepository) Get(ctx context.Context, key string) (string, error) {
	const query = `SELECT response FROM canned_responses WHERE key=$1`
	var response string
	if err := r.pool.QueryRow(ctx, query, key).Scan(&response); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return response, nil
}

func (r *responseRepository) Put(ctx context.Context, key, response string) error {
	const query = `
        INSERT INTO canned_responses (key, response)
        VALUES ($1,$2)
        ON CONFLICT (key) DO UPDATE SET response=EXCLUDED.response`
	_, err := r.pool.Exec(ctx, query, key, response)
	return err
}

func (r *responseRepository) Delete(ctx context.Context, key string) error {
	const query = `DELETE FROM canned_responses WHERE key=$1`
	cmd, err := r.pool.Exec(ctx, query, key)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *responseRepository) Keys(ctx context.Context) ([]string, error) {
	const query = `SELECT key FROM canned_responses ORDER BY key`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}
