package transport

import (
	"context"
	"time"
)

// ChannelMessage is one fetched history entry, oldest-first when returned
// from History.
type ChannelMessage struct {
	Timestamp   time.Time
	AuthorID    string
	AuthorName  string
	Content     string
	Attachments []string
}

// CreateChannelParams describe a new ticket channel.
type CreateChannelParams struct {
	Name       string
	CategoryID string
	Topic      string
	UserID     string
}

// Messenger abstracts the chat platform. The lifecycle engine only talks to
// this interface; the discord package provides the production adapter.
type Messenger interface {
	// SendChannel posts content to a guild channel.
	SendChannel(ctx context.Context, channelID, content string) error
	// SendDM opens (or reuses) a direct-message channel and posts content.
	// Returns a DELIVERY_FAILED domain error when the recipient blocks DMs.
	SendDM(ctx context.Context, userID, content string) error
	// SendFile posts content with a named attachment to a guild channel.
	SendFile(ctx context.Context, channelID, content, filename, body string) error
	// CreateTicketChannel creates a text channel under the category and
	// returns its id.
	CreateTicketChannel(ctx context.Context, params CreateChannelParams) (string, error)
	// DeleteChannel removes a guild channel. Deleting an already-gone
	// channel is not an error.
	DeleteChannel(ctx context.Context, channelID string) error
	// ChannelExists reports whether the channel still exists on the
	// platform.
	ChannelExists(ctx context.Context, channelID string) (bool, error)
	// History returns up to limit messages from the channel, oldest first.
	History(ctx context.Context, channelID string, limit int) ([]ChannelMessage, error)
	// Username resolves a display name for the user id.
	Username(ctx context.Context, userID string) (string, error)
	// KickMember removes the member from the guild.
	KickMember(ctx context.Context, userID, reason string) error
	// BanMember bans the member from the guild.
	BanMember(ctx context.Context, userID, reason string) error
	// AddRole grants roleID to the member.
	AddRole(ctx context.Context, userID, roleID string) error
	// RemoveRole revokes roleID from the member.
	RemoveRole(ctx context.Context, userID, roleID string) error
	// DeleteMessage removes a single message.
	DeleteMessage(ctx context.Context, channelID, messageID string) error
}
