package repository

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	openTicketKeyPrefix = "modmail:open-ticket:"
	openTicketTTL       = 12 * time.Hour
)

// TicketCache is a best-effort cache mapping a user to their open ticket
// channel. A miss falls through to Postgres; a nil client disables caching.
type TicketCache struct {
	client *redis.Client
}

// NewTicketCache instantiates the cache. client may be nil.
func NewTicketCache(client *redis.Client) *TicketCache {
	return &TicketCache{client: client}
}

// OpenChannel returns the cached channel for the user, "" on miss.
func (c *TicketCache) OpenChannel(ctx context.Context, userID string) string {
	if c == nil || c.client == nil {
		return ""
	}
	value, err := c.client.Get(ctx, openTicketKeyPrefix+userID).Result()
	if err != nil {
		// miss and transport errors degrade the same way; Postgres is authoritative
		return ""
	}
	return value
}

// SetOpenChannel caches the user's open channel.
func (c *TicketCache) SetOpenChannel(ctx context.Context, userID, channelID string) {
	if c == nil || c.client == nil {
		return
	}
	c.client.Set(ctx, openTicketKeyPrefix+userID, channelID, openTicketTTL)
}

// Invalidate drops the cached mapping, e.g. after a close.
func (c *TicketCache) Invalidate(ctx context.Context, userID string) {
	if c == nil || c.client == nil {
		return
	}
	c.client.Del(ctx, openTicketKeyPrefix+userID)
}
