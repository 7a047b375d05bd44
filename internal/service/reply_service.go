package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/dixielabs/modmail/internal/repository"
	"github.com/dixielabs/modmail/internal/transport"
	apperrors "github.com/dixielabs/modmail/pkg/util"
)

// ReplyService relays staff replies to the ticket user and manages canned
// responses.
type ReplyService struct {
	tickets   repository.TicketRepository
	responses repository.ResponseRepository
	messenger transport.Messenger
	logger    *zap.Logger
}

// NewReplyService constructs the service.
func NewReplyService(tickets repository.TicketRepository, responses repository.ResponseRepository, messenger transport.Messenger, logger *zap.Logger) *ReplyService {
	return &ReplyService{
		tickets:   tickets,
		responses: responses,
		messenger: messenger,
		logger:    logger,
	}
}

// Reply DMs the ticket user and mirrors the reply into the ticket channel.
// DELIVERY_FAILED becomes an in-channel notice, not an error.
func (s *ReplyService) Reply(ctx context.Context, channelID, staffUsername, text string) error {
	ticket, err := s.tickets.GetByChannel(ctx, channelID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotATicketChannel(channelID)
		}
		return err
	}
	if !ticket.Open() {
		return apperrors.NewNotATicketChannel(channelID)
	}

	if err := s.messenger.SendDM(ctx, ticket.UserID, fmt.Sprintf("**%s**: %s", staffUsername, text)); err != nil {
		if apperrors.HasCode(err, apperrors.CodeDeliveryFailed) {
			return s.messenger.SendChannel(ctx, channelID,
				fmt.Sprintf("Could not deliver the reply: <@%s> has DMs disabled.", ticket.UserID))
		}
		return err
	}
	return s.messenger.SendChannel(ctx, channelID, fmt.Sprintf("**%s** (staff): %s", staffUsername, text))
}

// SendCanned relays the stored template for key as a staff reply.
func (s *ReplyService) SendCanned(ctx context.Context, channelID, staffUsername, key string) error {
	template, err := s.responses.Get(ctx, key)
	if err != nil {
		return err
	}
	if template == "" {
		return apperrors.NewNotFound("canned response", map[string]any{"key": key})
	}
	return s.Reply(ctx, channelID, staffUsername, template)
}

// PutCanned stores or replaces a canned response.
func (s *ReplyService) PutCanned(ctx context.Context, key, response string) error {
	if key == "" || response == "" {
		return apperrors.NewValidationError("key and response are required", nil)
	}
	return s.responses.Put(ctx, key, response)
}

// RemoveCanned deletes a canned response.
func (s *ReplyService) RemoveCanned(ctx context.Context, key string) error {
	if err := s.responses.Delete(ctx, key); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("canned response", map[string]any{"key": key})
		}
		return err
	}
	return nil
}

// ListCanned returns the stored keys.
func (s *ReplyService) ListCanned(ctx context.Context) ([]string, error) {
	return s.responses.Keys(ctx)
}
