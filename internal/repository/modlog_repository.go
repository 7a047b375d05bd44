package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dixielabs/modmail/internal/domain"
)

// ModLogRepository persists the append-only moderation history.
type ModLogRepository interface {
	Append(ctx context.Context, entry *domain.ModLogEntry) error
	ListByUser(ctx context.Context, userID string) ([]domain.ModLogEntry, error)
	ListByModerator(ctx context.Context, moderatorID string) ([]domain.ModLogEntry, error)
	Delete(ctx context.Context, logID int64) error
	SetNotes(ctx context.Context, logID int64, notes string) error
}

type modLogRepository struct {
	pool *pgxpool.Pool
}

// NewModLogRepository instantiates repository.
func NewModLogRepository(pool *pgxpool.Pool) ModLogRepository {
	return &modLogRepository{pool: pool}
}

func (r *modLogRepository) Append(ctx context.Context, entry *domain.ModLogEntry) error {
	const query = `
        INSERT INTO mod_logs (user_id, reason, moderator_id, action_type, timestamp, notes)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING log_id`
	return r.pool.QueryRow(ctx, query,
		entry.UserID,
		entry.Reason,
		entry.ModeratorID,
		entry.ActionType,
		entry.Timestamp,
		entry.Notes,
	).Scan(&entry.LogID)
}

func (r *modLogRepository) ListByUser(ctx context.Context, userID string) ([]domain.ModLogEntry, error) {
	const query = `
        SELECT log_id, user_id, reason, moderator_id, action_type, timestamp, notes
        FROM mod_logs WHERE user_id=$1 ORDER BY timestamp ASC`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanModLogs(rows)
}

func (r *modLogRepository) ListByModerator(ctx context.Context, moderatorID string) ([]domain.ModLogEntry, error) {
	const query = `
        SELECT log_id, user_id, reason, moderator_id, action_type, timestamp, notes
        FROM mod_logs WHERE moderator_id=$1 ORDER BY timestamp ASC`
	rows, err := r.pool.Query(ctx, query, moderatorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanModLogs(rows)
}

func (r *modLogRepository) Delete(ctx context.Context, logID int64) error {
	const query = `DELETE FROM mod_logs WHERE log_id=$1`
	cmd, err := r.pool.Exec(ctx, query, logID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *modLogRepository) SetNotes(ctx context.Context, logID int64, notes string) error {
	const query = `UPDATE mod_logs SET notes=$1 WHERE log_id=$2`
	cmd, err := r.pool.Exec(ctx, query, notes, logID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func scanModLogs(rows pgx.Rows) ([]domain.ModLogEntry, error) {
	var result []domain.ModLogEntry
	for rows.Next() {
		var entry domain.ModLogEntry
		if err := rows.Scan(
			&entry.LogID,
			&entry.UserID,
			&entry.Reason,
			&entry.ModeratorID,
			&entry.ActionType,
			&entry.Timestamp,
			&entry.Notes,
		); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}
