package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dixielabs/modmail/internal/domain"
	"github.com/dixielabs/modmail/internal/repository"
	"github.com/dixielabs/modmail/internal/transport"
	apperrors "github.com/dixielabs/modmail/pkg/util"
)

// ModLogService records moderation actions against user identities and
// performs the platform side of kicks and bans.
type ModLogService struct {
	logs         repository.ModLogRepository
	messenger    transport.Messenger
	logChannelID string
	logger       *zap.Logger
}

// NewModLogService constructs the service.
func NewModLogService(logs repository.ModLogRepository, messenger transport.Messenger, logChannelID string, logger *zap.Logger) *ModLogService {
	return &ModLogService{
		logs:         logs,
		messenger:    messenger,
		logChannelID: logChannelID,
		logger:       logger,
	}
}

// Warn records a warning and notifies the user by DM. The DM is best-effort:
// DELIVERY_FAILED becomes a notice in the log channel.
func (s *ModLogService) Warn(ctx context.Context, userID string, kind domain.WarningKind, reason, moderatorID string) (*domain.ModLogEntry, error) {
	entry := &domain.ModLogEntry{
		UserID:      userID,
		Reason:      reason,
		ModeratorID: moderatorID,
		ActionType:  kind.Action(),
		Timestamp:   time.Now().UTC(),
	}
	if err := s.logs.Append(ctx, entry); err != nil {
		return nil, err
	}

	notice := fmt.Sprintf("You received a %s warning: %s", kind, reason)
	if err := s.messenger.SendDM(ctx, userID, notice); err != nil {
		if !apperrors.HasCode(err, apperrors.CodeDeliveryFailed) {
			return entry, err
		}
		fallback := fmt.Sprintf("Could not DM <@%s> about their %s warning (log %d).", userID, kind, entry.LogID)
		if sendErr := s.messenger.SendChannel(ctx, s.logChannelID, fallback); sendErr != nil {
			s.logger.Warn("warning fallback notice failed", zap.String("user_id", userID), zap.Error(sendErr))
		}
	}
	return entry, nil
}

// Warnings returns the user's warnings split by kind.
func (s *ModLogService) Warnings(ctx context.Context, userID string) (minor, major []domain.ModLogEntry, err error) {
	entries, err := s.logs.ListByUser(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	for _, entry := range entries {
		switch entry.ActionType {
		case domain.ModActionMinorWarning:
			minor = append(minor, entry)
		case domain.ModActionMajorWarning:
			major = append(major, entry)
		}
	}
	return minor, major, nil
}

// RemoveWarning deletes a warning record by id.
func (s *ModLogService) RemoveWarning(ctx context.Context, logID int64) error {
	if err := s.logs.Delete(ctx, logID); err != nil {
		return apperrors.ToDomainError(err)
	}
	return nil
}

// AddNote attaches a note to an existing record.
func (s *ModLogService) AddNote(ctx context.Context, logID int64, note string) error {
	if err := s.logs.SetNotes(ctx, logID, note); err != nil {
		return apperrors.ToDomainError(err)
	}
	return nil
}

// History returns the full moderation history for a user.
func (s *ModLogService) History(ctx context.Context, userID string) ([]domain.ModLogEntry, error) {
	return s.logs.ListByUser(ctx, userID)
}

// RecordAction appends a non-warning moderation record.
func (s *ModLogService) RecordAction(ctx context.Context, userID string, action domain.ModAction, reason, moderatorID string) (*domain.ModLogEntry, error) {
	entry := &domain.ModLogEntry{
		UserID:      userID,
		Reason:      reason,
		ModeratorID: moderatorID,
		ActionType:  action,
		Timestamp:   time.Now().UTC(),
	}
	if err := s.logs.Append(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Kick removes the member and records the action.
func (s *ModLogService) Kick(ctx context.Context, userID, reason, moderatorID string) error {
	if err := s.messenger.KickMember(ctx, userID, reason); err != nil {
		return err
	}
	_, err := s.RecordAction(ctx, userID, domain.ModActionKick, reason, moderatorID)
	return err
}

// Ban bans the member and records the action.
func (s *ModLogService) Ban(ctx context.Context, userID, reason, moderatorID string) error {
	if err := s.messenger.BanMember(ctx, userID, reason); err != nil {
		return err
	}
	_, err := s.RecordAction(ctx, userID, domain.ModActionBan, reason, moderatorID)
	return err
}
