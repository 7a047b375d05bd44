package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets. "Suspended" is not a
// stored status: a ticket awaiting a user reply is an open ticket with a
// pending suspend timer.
type TicketStatus string

const (
	TicketStatusOpen   TicketStatus = "open"
	TicketStatusClosed TicketStatus = "closed"
)

// TicketType enumerates the request reasons a user can pick when opening a
// ticket. Advisory only; it never affects the lifecycle.
type TicketType string

const (
	TicketTypeContact      TicketType = "contact"
	TicketTypeTrusted      TicketType = "trusted"
	TicketTypeQuestions    TicketType = "questions"
	TicketTypeSuggestions  TicketType = "suggestions"
	TicketTypePartnerships TicketType = "partnerships"
	TicketTypeReports      TicketType = "reports"
	TicketTypeAppeals      TicketType = "appeals"
	TicketTypeKofi         TicketType = "ko-fi"
	TicketTypeTech         TicketType = "tech"
)

// Ticket is the aggregate for a support conversation. One physical channel
// per ticket; the record outlives the channel, which is deleted on close.
type Ticket struct {
	ChannelID      string
	UserID         string
	MemberUsername string
	ModUsername    *string
	CategoryID     string
	ChannelName    string
	CreatedAt      time.Time
	ClosedAt       *time.Time
	Status         TicketStatus
	Type           TicketType
	ModID          *string
}

// Open reports whether the ticket is still open.
func (t *Ticket) Open() bool {
	return t != nil && t.Status == TicketStatusOpen
}
