package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/dixielabs/modmail/internal/domain"
	"github.com/dixielabs/modmail/internal/transport"
)

const transcriptHistoryLimit = 100

// StaffResolver reports whether a user carries the staff role.
type StaffResolver interface {
	IsStaff(ctx context.Context, userID string) (bool, error)
}

// TranscriptService renders ticket channel history into a plain-text blob
// and delivers it to the log channel.
type TranscriptService struct {
	messenger    transport.Messenger
	staff        StaffResolver
	logChannelID string
	logger       *zap.Logger
}

// NewTranscriptService constructs the service.
func NewTranscriptService(messenger transport.Messenger, staff StaffResolver, logChannelID string, logger *zap.Logger) *TranscriptService {
	return &TranscriptService{
		messenger:    messenger,
		staff:        staff,
		logChannelID: logChannelID,
		logger:       logger,
	}
}

// Render walks the channel history oldest-first and keeps messages authored
// by the ticket's user or by staff.
func (s *TranscriptService) Render(ctx context.Context, ticket *domain.Ticket) (string, error) {
	history, err := s.messenger.History(ctx, ticket.ChannelID, transcriptHistoryLimit)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Ticket transcript — %s (user %s)\n\n", ticket.ChannelName, ticket.UserID))
	kept := 0
	for _, msg := range history {
		if !s.includeAuthor(ctx, ticket, msg.AuthorID) {
			continue
		}
		sb.WriteString(fmt.Sprintf("[%s] %s: %s\n", msg.Timestamp.Format("2006-01-02 15:04:05"), msg.AuthorName, msg.Content))
		for _, url := range msg.Attachments {
			sb.WriteString("  attachment: " + url + "\n")
		}
		kept++
	}
	if kept == 0 {
		sb.WriteString("(no messages)\n")
	}
	return sb.String(), nil
}

// Deliver posts the rendered transcript as an attachment to the log channel.
func (s *TranscriptService) Deliver(ctx context.Context, ticket *domain.Ticket, body string) error {
	content := fmt.Sprintf("Transcript for ticket %s (user <@%s>)", ticket.ChannelName, ticket.UserID)
	filename := ticket.ChannelName + "-transcript.txt"
	return s.messenger.SendFile(ctx, s.logChannelID, content, filename, body)
}

// Publish renders and delivers in one call. Used by `!log` and the suspend
// auto-close path.
func (s *TranscriptService) Publish(ctx context.Context, ticket *domain.Ticket) error {
	body, err := s.Render(ctx, ticket)
	if err != nil {
		return err
	}
	return s.Deliver(ctx, ticket, body)
}

func (s *TranscriptService) includeAuthor(ctx context.Context, ticket *domain.Ticket, authorID string) bool {
	if authorID == ticket.UserID {
		return true
	}
	isStaff, err := s.staff.IsStaff(ctx, authorID)
	if err != nil {
		s.logger.Warn("staff lookup failed", zap.String("user_id", authorID), zap.Error(err))
		return false
	}
	return isStaff
}
