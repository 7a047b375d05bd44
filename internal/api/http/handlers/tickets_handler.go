package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/dixielabs/modmail/internal/domain"
	"github.com/dixielabs/modmail/internal/repository"
)

// TicketsHandler exposes the read-only ticket views.
type TicketsHandler struct {
	tickets repository.TicketRepository
}

// NewTicketsHandler returns a new handler instance.
func NewTicketsHandler(tickets repository.TicketRepository) *TicketsHandler {
	return &TicketsHandler{tickets: tickets}
}

type ticketResponse struct {
	ChannelID      string            `json:"channel_id"`
	UserID         string            `json:"user_id"`
	MemberUsername string            `json:"member_username"`
	ModUsername    *string           `json:"mod_username,omitempty"`
	ChannelName    string            `json:"channel_name"`
	CreatedAt      time.Time         `json:"created_at"`
	Status         string            `json:"status"`
	Type           domain.TicketType `json:"ticket_type"`
	ModID          *string           `json:"mod_id,omitempty"`
}

// ListOpen returns all open tickets ordered by creation time.
func (h *TicketsHandler) ListOpen(c *fiber.Ctx) error {
	tickets, err := h.tickets.ListOpen(c.UserContext())
	if err != nil {
		return err
	}
	response := make([]ticketResponse, 0, len(tickets))
	for _, t := range tickets {
		response = append(response, ticketResponse{
			ChannelID:      t.ChannelID,
			UserID:         t.UserID,
			MemberUsername: t.MemberUsername,
			ModUsername:    t.ModUsername,
			ChannelName:    t.ChannelName,
			CreatedAt:      t.CreatedAt,
			Status:         string(t.Status),
			Type:           t.Type,
			ModID:          t.ModID,
		})
	}
	return c.JSON(fiber.Map{"tickets": response})
}
