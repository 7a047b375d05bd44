package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dixielabs/modmail/internal/domain"
	apperrors "github.com/dixielabs/modmail/pkg/util"
)

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	FindOpenChannelByUser(ctx context.Context, userID string) (string, error)
	GetByChannel(ctx context.Context, channelID string) (*domain.Ticket, error)
	AssignModerator(ctx context.Context, channelID, modID, modUsername string) error
	Close(ctx context.Context, channelID string, closedAt time.Time) error
	ListOpen(ctx context.Context) ([]domain.Ticket, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO active_tickets (channel_id, user_id, member_username, mod_username, category_id, channel_name, closed_at, status, ticket_type, mod_id)
        VALUES ($1,$2,$3,$4,$5,$6,NULL,$7,$8,$9)
        RETURNING created_at`
	err := r.pool.QueryRow(ctx, query,
		ticket.ChannelID,
		ticket.UserID,
		ticket.MemberUsername,
		ticket.ModUsername,
		ticket.CategoryID,
		ticket.ChannelName,
		domain.TicketStatusOpen,
		ticket.Type,
		ticket.ModID,
	).Scan(&ticket.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperrors.NewDuplicateOpenTicket(ticket.UserID)
		}
		return err
	}
	ticket.Status = domain.TicketStatusOpen
	return nil
}

func (r *ticketRepository) FindOpenChannelByUser(ctx context.Context, userID string) (string, error) {
	const query = `SELECT channel_id FROM active_tickets WHERE user_id=$1 AND status='open'`
	var channelID string
	if err := r.pool.QueryRow(ctx, query, userID).Scan(&channelID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return channelID, nil
}

func (r *ticketRepository) GetByChannel(ctx context.Context, channelID string) (*domain.Ticket, error) {
	const query = `
        SELECT channel_id, user_id, member_username, mod_username, category_id,
               channel_name, created_at, closed_at, status, ticket_type, mod_id
        FROM active_tickets WHERE channel_id=$1`
	var ticket domain.Ticket
	if err := r.pool.QueryRow(ctx, query, channelID).Scan(
		&ticket.ChannelID,
		&ticket.UserID,
		&ticket.MemberUsername,
		&ticket.ModUsername,
		&ticket.CategoryID,
		&ticket.ChannelName,
		&ticket.CreatedAt,
		&ticket.ClosedAt,
		&ticket.Status,
		&ticket.Type,
		&ticket.ModID,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) AssignModerator(ctx context.Context, channelID, modID, modUsername string) error {
	const query = `
        UPDATE active_tickets SET mod_id=$1, mod_username=$2
        WHERE channel_id=$3 AND status='open'`
	cmd, err := r.pool.Exec(ctx, query, modID, modUsername, channelID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// Close flips an open ticket to closed. Closing an already-closed or unknown
// channel is a no-op, not an error.
func (r *ticketRepository) Close(ctx context.Context, channelID string, closedAt time.Time) error {
	const query = `
        UPDATE active_tickets SET status='closed', closed_at=$1
        WHERE channel_id=$2 AND status='open'`
	_, err := r.pool.Exec(ctx, query, closedAt, channelID)
	return err
}

func (r *ticketRepository) ListOpen(ctx context.Context) ([]domain.Ticket, error) {
	const query = `
        SELECT channel_id, user_id, member_username, mod_username, category_id,
               channel_name, created_at, closed_at, status, ticket_type, mod_id
        FROM active_tickets WHERE status='open' ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := rows.Scan(
			&ticket.ChannelID,
			&ticket.UserID,
			&ticket.MemberUsername,
			&ticket.ModUsername,
			&ticket.CategoryID,
			&ticket.ChannelName,
			&ticket.CreatedAt,
			&ticket.ClosedAt,
			&ticket.Status,
			&ticket.Type,
			&ticket.ModID,
		); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}
