package events

import (
	"time"

	"github.com/dixielabs/modmail/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketOpened      EventType = "ticket_opened"
	EventTicketClaimed     EventType = "ticket_claimed"
	EventTicketTransferred EventType = "ticket_transferred"
	EventTicketClosed      EventType = "ticket_closed"
	EventTicketSuspended   EventType = "ticket_suspended"
	EventCloseScheduled    EventType = "close_scheduled"
	EventCloseCanceled     EventType = "close_canceled"
	EventWatchersNotified  EventType = "watchers_notified"
)

// ActorType distinguishes who triggered an event.
type ActorType string

const (
	ActorUser      ActorType = "user"
	ActorModerator ActorType = "moderator"
	ActorSystem    ActorType = "system"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Type ActorType `json:"type"`
	ID   string    `json:"id,omitempty"`
}

// SystemActor is the actor used by timer-driven transitions.
var SystemActor = Actor{Type: ActorSystem}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	ChannelID string      `json:"channel_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketOpenedPayload payload.
type TicketOpenedPayload struct {
	UserID     string            `json:"user_id"`
	Username   string            `json:"username"`
	TicketType domain.TicketType `json:"ticket_type"`
}

// TicketClaimedPayload payload.
type TicketClaimedPayload struct {
	ModID       string `json:"mod_id"`
	ModUsername string `json:"mod_username"`
}

// TicketTransferredPayload payload.
type TicketTransferredPayload struct {
	FromModID string `json:"from_mod_id,omitempty"`
	ToModID   string `json:"to_mod_id"`
}

// TicketClosedPayload payload.
type TicketClosedPayload struct {
	UserID    string `json:"user_id"`
	Suspended bool   `json:"suspended"`
}

// TicketSuspendedPayload payload.
type TicketSuspendedPayload struct {
	UserID    string    `json:"user_id"`
	ExecuteAt time.Time `json:"execute_at"`
}

// CloseScheduledPayload payload.
type CloseScheduledPayload struct {
	ExecuteAt time.Time `json:"execute_at"`
}

// CloseCanceledPayload payload.
type CloseCanceledPayload struct {
	Action domain.TimerAction `json:"action"`
}

// WatchersNotifiedPayload payload.
type WatchersNotifiedPayload struct {
	ModIDs []string `json:"mod_ids"`
}
