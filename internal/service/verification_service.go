package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/dixielabs/modmail/internal/config"
	"github.com/dixielabs/modmail/internal/domain"
	"github.com/dixielabs/modmail/internal/repository"
	"github.com/dixielabs/modmail/internal/transport"
	apperrors "github.com/dixielabs/modmail/pkg/util"
)

const passwordAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// VerificationService gates new members behind a DMed password. Only the
// bcrypt hash is stored; losing the plaintext means re-issuing, never
// recovering.
type VerificationService struct {
	pending   repository.VerificationRepository
	messenger transport.Messenger
	cfg       config.VerificationConfig
	discord   config.DiscordConfig
	logger    *zap.Logger
}

// NewVerificationService constructs the service.
func NewVerificationService(pending repository.VerificationRepository, messenger transport.Messenger, cfg config.VerificationConfig, discord config.DiscordConfig, logger *zap.Logger) *VerificationService {
	return &VerificationService{
		pending:   pending,
		messenger: messenger,
		cfg:       cfg,
		discord:   discord,
		logger:    logger,
	}
}

// OnMemberJoin issues a password, stores its hash with the join time, grants
// the unverified role and DMs the plaintext. A rejoin re-issues in place.
func (s *VerificationService) OnMemberJoin(ctx context.Context, userID string) error {
	password, hash, err := s.newPassword()
	if err != nil {
		return err
	}
	if err := s.pending.Upsert(ctx, &domain.PendingVerification{
		UserID:       userID,
		JoinedAt:     time.Now().UTC(),
		PasswordHash: hash,
	}); err != nil {
		return err
	}

	if s.discord.UnverifiedRoleID != "" {
		if err := s.messenger.AddRole(ctx, userID, s.discord.UnverifiedRoleID); err != nil {
			s.logger.Warn("unverified role assignment failed", zap.String("user_id", userID), zap.Error(err))
		}
	}

	welcome := fmt.Sprintf("Welcome! Send this password in the verification channel within %s to get verified:\n%s",
		s.cfg.Deadline, password)
	if err := s.messenger.SendDM(ctx, userID, welcome); err != nil {
		if !apperrors.HasCode(err, apperrors.CodeDeliveryFailed) {
			return err
		}
		notice := fmt.Sprintf("<@%s> — I couldn't DM you your verification password. Enable DMs and run `!dmme`.", userID)
		if sendErr := s.messenger.SendChannel(ctx, s.discord.GateChannelID, notice); sendErr != nil {
			s.logger.Warn("gate notice failed", zap.String("user_id", userID), zap.Error(sendErr))
		}
		return nil
	}

	notice := fmt.Sprintf("Welcome <@%s>! Send the password I just DMed you in this channel within %s.", userID, s.cfg.Deadline)
	if err := s.messenger.SendChannel(ctx, s.discord.GateChannelID, notice); err != nil {
		s.logger.Warn("gate welcome failed", zap.String("user_id", userID), zap.Error(err))
	}
	return nil
}

// Attempt compares text against the stored hash. On a match the member is
// verified: roles swapped, pending row deleted. A wrong password keeps the
// row so the member can retry.
func (s *VerificationService) Attempt(ctx context.Context, userID, text string) (bool, error) {
	row, err := s.pending.Get(ctx, userID)
	if err != nil {
		return false, err
	}
	if row == nil {
		return false, apperrors.NewNotFound("pending verification", map[string]any{"user_id": userID})
	}
	if bcrypt.CompareHashAndPassword([]byte(row.PasswordHash), []byte(text)) != nil {
		return false, nil
	}

	if s.discord.VerifiedRoleID != "" {
		if err := s.messenger.AddRole(ctx, userID, s.discord.VerifiedRoleID); err != nil {
			return false, err
		}
	}
	if s.discord.UnverifiedRoleID != "" {
		if err := s.messenger.RemoveRole(ctx, userID, s.discord.UnverifiedRoleID); err != nil {
			s.logger.Warn("unverified role removal failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
	if err := s.pending.Delete(ctx, userID); err != nil {
		return false, err
	}
	return true, nil
}

// ResendTo re-issues the member's password. The stored hash cannot be
// reversed, so a fresh password replaces it before the DM goes out.
func (s *VerificationService) ResendTo(ctx context.Context, userID string) error {
	row, err := s.pending.Get(ctx, userID)
	if err != nil {
		return err
	}
	if row == nil {
		return apperrors.NewNotFound("pending verification", map[string]any{"user_id": userID})
	}

	password, hash, err := s.newPassword()
	if err != nil {
		return err
	}
	row.PasswordHash = hash
	if err := s.pending.Upsert(ctx, row); err != nil {
		return err
	}
	return s.messenger.SendDM(ctx, userID, "Here is your new verification password:\n"+password)
}

// Sweep kicks members still unverified past the deadline and drops their
// rows. Per-member failures are logged and skipped. Returns how many members
// were kicked.
func (s *VerificationService) Sweep(ctx context.Context, now time.Time) (int, error) {
	expired, err := s.pending.ListJoinedBefore(ctx, now.Add(-s.cfg.Deadline))
	if err != nil {
		return 0, err
	}
	kicked := 0
	for _, row := range expired {
		if err := s.messenger.KickMember(ctx, row.UserID, "Failed to verify within the deadline"); err != nil {
			s.logger.Warn("verification kick failed", zap.String("user_id", row.UserID), zap.Error(err))
			continue
		}
		if err := s.pending.Delete(ctx, row.UserID); err != nil {
			s.logger.Warn("pending row cleanup failed", zap.String("user_id", row.UserID), zap.Error(err))
			continue
		}
		kicked++
	}
	return kicked, nil
}

func (s *VerificationService) newPassword() (string, string, error) {
	length := s.cfg.PasswordLength
	if length <= 0 {
		length = 8
	}
	buf := make([]byte, length)
	max := big.NewInt(int64(len(passwordAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", "", err
		}
		buf[i] = passwordAlphabet[n.Int64()]
	}
	password := string(buf)
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", "", err
	}
	return password, string(hash), nil
}
