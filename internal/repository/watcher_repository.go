package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// WatcherRepository persists per-ticket reply subscriptions.
type WatcherRepository interface {
	Add(ctx context.Context, channelID, modID string) error
	Remove(ctx context.Context, channelID, modID string) error
	List(ctx context.Context, channelID string) ([]string, error)
	Clear(ctx context.Context, channelID string) error
}

type watcherRepository struct {
	pool *pgxpool.Pool
}

// NewWatcherRepository instantiates repository.
func NewWatcherRepository(pool *pgxpool.Pool) WatcherRepository {
	return &watcherRepository{pool: pool}
}

func (r *watcherRepository) Add(ctx context.Context, channelID, modID string) error {
	const query = `
        INSERT INTO ticket_watchers (channel_id, mod_id)
        VALUES ($1,$2)
        ON CONFLICT (channel_id, mod_id) DO NOTHING`
	_, err := r.pool.Exec(ctx, query, channelID, modID)
	return err
}

func (r *watcherRepository) Remove(ctx context.Context, channelID, modID string) error {
	const query = `DELETE FROM ticket_watchers WHERE channel_id=$1 AND mod_id=$2`
	_, err := r.pool.Exec(ctx, query, channelID, modID)
	return err
}

func (r *watcherRepository) List(ctx context.Context, channelID string) ([]string, error) {
	const query = `SELECT mod_id FROM ticket_watchers WHERE channel_id=$1 ORDER BY mod_id`
	rows, err := r.pool.Query(ctx, query, channelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var mods []string
	for rows.Next() {
		var modID string
		if err := rows.Scan(&modID); err != nil {
			return nil, err
		}
		mods = append(mods, modID)
	}
	return mods, rows.Err()
}

// Clear drops every watcher row for the channel. Used after a notification
// round and on close so subscriptions never outlive the reply they waited for.
func (r *watcherRepository) Clear(ctx context.Context, channelID string) error {
	const query = `DELETE FROM ticket_watchers WHERE channel_id=$1`
	_, err := r.pool.Exec(ctx, query, channelID)
	return err
}
