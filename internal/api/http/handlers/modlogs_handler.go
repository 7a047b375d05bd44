package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/dixielabs/modmail/internal/domain"
	"github.com/dixielabs/modmail/internal/repository"
	apperrors "github.com/dixielabs/modmail/pkg/util"
)

// ModLogsHandler exposes the read-only moderation history view.
type ModLogsHandler struct {
	logs repository.ModLogRepository
}

// NewModLogsHandler returns a new handler instance.
func NewModLogsHandler(logs repository.ModLogRepository) *ModLogsHandler {
	return &ModLogsHandler{logs: logs}
}

type modLogResponse struct {
	LogID       int64            `json:"log_id"`
	UserID      string           `json:"user_id"`
	Reason      string           `json:"reason"`
	ModeratorID string           `json:"moderator_id"`
	ActionType  domain.ModAction `json:"action_type"`
	Timestamp   time.Time        `json:"timestamp"`
	Notes       *string          `json:"notes,omitempty"`
}

// ListByUser returns a user's full moderation history.
func (h *ModLogsHandler) ListByUser(c *fiber.Ctx) error {
	userID := c.Params("user_id")
	if userID == "" {
		return apperrors.NewValidationError("user_id is required", nil)
	}
	entries, err := h.logs.ListByUser(c.UserContext(), userID)
	if err != nil {
		return err
	}
	response := make([]modLogResponse, 0, len(entries))
	for _, entry := range entries {
		response = append(response, modLogResponse{
			LogID:       entry.LogID,
			UserID:      entry.UserID,
			Reason:      entry.Reason,
			ModeratorID: entry.ModeratorID,
			ActionType:  entry.ActionType,
			Timestamp:   entry.Timestamp,
			Notes:       entry.Notes,
		})
	}
	return c.JSON(fiber.Map{"mod_logs": response})
}

// ListByModerator returns every action a moderator has taken.
func (h *ModLogsHandler) ListByModerator(c *fiber.Ctx) error {
	moderatorID := c.Params("moderator_id")
	if moderatorID == "" {
		return apperrors.NewValidationError("moderator_id is required", nil)
	}
	entries, err := h.logs.ListByModerator(c.UserContext(), moderatorID)
	if err != nil {
		return err
	}
	response := make([]modLogResponse, 0, len(entries))
	for _, entry := range entries {
		response = append(response, modLogResponse{
			LogID:       entry.LogID,
			UserID:      entry.UserID,
			Reason:      entry.Reason,
			ModeratorID: entry.ModeratorID,
			ActionType:  entry.ActionType,
			Timestamp:   entry.Timestamp,
			Notes:       entry.Notes,
		})
	}
	return c.JSON(fiber.Map{"mod_logs": response})
}
