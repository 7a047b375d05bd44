package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dixielabs/modmail/internal/domain"
)

// VerificationRepository tracks members awaiting gate verification.
type VerificationRepository interface {
	Upsert(ctx context.Context, pending *domain.PendingVerification) error
	Get(ctx context.Context, userID string) (*domain.PendingVerification, error)
	Delete(ctx context.Context, userID string) error
	ListJoinedBefore(ctx context.Context, cutoff time.Time) ([]domain.PendingVerification, error)
}

type verificationRepository struct {
	pool *pgxpool.Pool
}

// NewVerificationRepository instantiates repository.
func NewVerificationRepository(pool *pgxpool.Pool) VerificationRepository {
	return &verificationRepository{pool: pool}
}

// Upsert records a pending member. Rejoins refresh the deadline and the
// password in place.
func (r *verificationRepository) Upsert(ctx context.Context, pending *domain.PendingVerification) error {
	const query = `
        INSERT INTO verification_pending (user_id, joined_at, password_hash)
        VALUES ($1,$2,$3)
        ON CONFLICT (user_id) DO UPDATE SET joined_at=EXCLUDED.joined_at, password_hash=EXCLUDED.password_hash`
	_, err := r.pool.Exec(ctx, query, pending.UserID, pending.JoinedAt, pending.PasswordHash)
	return err
}

func (r *verificationRepository) Get(ctx context.Context, userID string) (*domain.PendingVerification, error) {
	const query = `SELECT user_id, joined_at, password_hash FROM verification_pending WHERE user_id=$1`
	var pending domain.PendingVerification
	if err := r.pool.QueryRow(ctx, query, userID).Scan(
		&pending.UserID,
		&pending.JoinedAt,
		&pending.PasswordHash,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &pending, nil
}

func (r *verificationRepository) Delete(ctx context.Context, userID string) error {
	const query = `DELETE FROM verification_pending WHERE user_id=$1`
	_, err := r.pool.Exec(ctx, query, userID)
	return err
}

func (r *verificationRepository) ListJoinedBefore(ctx context.Context, cutoff time.Time) ([]domain.PendingVerification, error) {
	const query = `
        SELECT user_id, joined_at, password_hash
        FROM verification_pending WHERE joined_at <= $1 ORDER BY joined_at ASC`
	rows, err := r.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []domain.PendingVerification
	for rows.Next() {
		var pending domain.PendingVerification
		if err := rows.Scan(&pending.UserID, &pending.JoinedAt, &pending.PasswordHash); err != nil {
			return nil, err
		}
		result = append(result, pending)
	}
	return result, rows.Err()
}
