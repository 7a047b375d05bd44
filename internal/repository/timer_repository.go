package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dixielabs/modmail/internal/domain"
)

// TimerRepository persists scheduled ticket actions. Timers survive restarts;
// the worker polls Due and consumes each row exactly once.
type TimerRepository interface {
	Schedule(ctx context.Context, timer *domain.Timer) error
	Cancel(ctx context.Context, channelID string, action domain.TimerAction) (int64, error)
	Due(ctx context.Context, now time.Time) ([]domain.Timer, error)
	Consume(ctx context.Context, id int64) error
}

type timerRepository struct {
	pool *pgxpool.Pool
}

// NewTimerRepository instantiates repository.
func NewTimerRepository(pool *pgxpool.Pool) TimerRepository {
	return &timerRepository{pool: pool}
}

func (r *timerRepository) Schedule(ctx context.Context, timer *domain.Timer) error {
	const query = `
        INSERT INTO ticket_timers (channel_id, user_id, action, execute_at)
        VALUES ($1,$2,$3,$4)
        RETURNING id`
	return r.pool.QueryRow(ctx, query,
		timer.ChannelID,
		timer.UserID,
		timer.Action,
		timer.ExecuteAt,
	).Scan(&timer.ID)
}

// Cancel marks every pending timer of the given action on the channel as
// canceled and returns how many rows it touched. Zero is a valid outcome.
func (r *timerRepository) Cancel(ctx context.Context, channelID string, action domain.TimerAction) (int64, error) {
	const query = `
        UPDATE ticket_timers SET canceled=true
        WHERE channel_id=$1 AND action=$2 AND canceled=false`
	cmd, err := r.pool.Exec(ctx, query, channelID, action)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *timerRepository) Due(ctx context.Context, now time.Time) ([]domain.Timer, error) {
	const query = `
        SELECT id, channel_id, user_id, action, execute_at, canceled
        FROM ticket_timers
        WHERE canceled=false AND execute_at <= $1
        ORDER BY execute_at ASC`
	rows, err := r.pool.Query(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTimers(rows)
}

// Consume removes a fired timer so the next poll does not see it again.
func (r *timerRepository) Consume(ctx context.Context, id int64) error {
	const query = `DELETE FROM ticket_timers WHERE id=$1`
	_, err := r.pool.Exec(ctx, query, id)
	return err
}

func scanTimers(rows pgx.Rows) ([]domain.Timer, error) {
	var result []domain.Timer
	for rows.Next() {
		var timer domain.Timer
		if err := rows.Scan(
			&timer.ID,
			&timer.ChannelID,
			&timer.UserID,
			&timer.Action,
			&timer.ExecuteAt,
			&timer.Canceled,
		); err != nil {
			return nil, err
		}
		result = append(result, timer)
	}
	return result, rows.Err()
}
