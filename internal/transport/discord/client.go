package discord

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/dixielabs/modmail/internal/config"
	"github.com/dixielabs/modmail/internal/transport"
	apperrors "github.com/dixielabs/modmail/pkg/util"
)

// Client adapts a discordgo session to the transport.Messenger interface.
type Client struct {
	session     *discordgo.Session
	guildID     string
	staffRoleID string
	logger      *zap.Logger
}

// NewSession builds a gateway session with the intents the bot needs.
func NewSession(cfg config.DiscordConfig) (*discordgo.Session, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, err
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent
	return session, nil
}

// NewClient wraps an open session.
func NewClient(session *discordgo.Session, cfg config.DiscordConfig, logger *zap.Logger) *Client {
	return &Client{session: session, guildID: cfg.GuildID, staffRoleID: cfg.StaffRoleID, logger: logger}
}

// IsStaff reports whether the user carries the staff role.
func (c *Client) IsStaff(ctx context.Context, userID string) (bool, error) {
	member, err := c.session.State.Member(c.guildID, userID)
	if err != nil {
		member, err = c.session.GuildMember(c.guildID, userID, discordgo.WithContext(ctx))
		if err != nil {
			return false, err
		}
	}
	for _, roleID := range member.Roles {
		if roleID == c.staffRoleID {
			return true, nil
		}
	}
	return false, nil
}

func (c *Client) SendChannel(ctx context.Context, channelID, content string) error {
	_, err := c.session.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
	if isUnknownChannel(err) {
		return apperrors.NewChannelGone(channelID)
	}
	return err
}

func (c *Client) SendDM(ctx context.Context, userID, content string) error {
	dm, err := c.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return apperrors.NewDeliveryFailed(userID, err)
	}
	if _, err := c.session.ChannelMessageSend(dm.ID, content, discordgo.WithContext(ctx)); err != nil {
		return apperrors.NewDeliveryFailed(userID, err)
	}
	return nil
}

func (c *Client) SendFile(ctx context.Context, channelID, content, filename, body string) error {
	_, err := c.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content: content,
		Files: []*discordgo.File{
			{Name: filename, ContentType: "text/plain", Reader: strings.NewReader(body)},
		},
	}, discordgo.WithContext(ctx))
	if isUnknownChannel(err) {
		return apperrors.NewChannelGone(channelID)
	}
	return err
}

func (c *Client) CreateTicketChannel(ctx context.Context, params transport.CreateChannelParams) (string, error) {
	channel, err := c.session.GuildChannelCreateComplex(c.guildID, discordgo.GuildChannelCreateData{
		Name:     params.Name,
		Type:     discordgo.ChannelTypeGuildText,
		Topic:    params.Topic,
		ParentID: params.CategoryID,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", err
	}
	return channel.ID, nil
}

func (c *Client) DeleteChannel(ctx context.Context, channelID string) error {
	_, err := c.session.ChannelDelete(channelID, discordgo.WithContext(ctx))
	if isUnknownChannel(err) {
		return nil
	}
	return err
}

func (c *Client) ChannelExists(ctx context.Context, channelID string) (bool, error) {
	if _, err := c.session.State.Channel(channelID); err == nil {
		return true, nil
	}
	_, err := c.session.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		if isUnknownChannel(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (c *Client) History(ctx context.Context, channelID string, limit int) ([]transport.ChannelMessage, error) {
	msgs, err := c.session.ChannelMessages(channelID, limit, "", "", "", discordgo.WithContext(ctx))
	if err != nil {
		if isUnknownChannel(err) {
			return nil, apperrors.NewChannelGone(channelID)
		}
		return nil, err
	}
	result := make([]transport.ChannelMessage, 0, len(msgs))
	for _, m := range msgs {
		entry := transport.ChannelMessage{
			Timestamp:  m.Timestamp,
			AuthorID:   m.Author.ID,
			AuthorName: m.Author.Username,
			Content:    m.Content,
		}
		for _, a := range m.Attachments {
			entry.Attachments = append(entry.Attachments, a.URL)
		}
		result = append(result, entry)
	}
	// the API returns newest first
	sort.Slice(result, func(i, j int) bool { return result[i].Timestamp.Before(result[j].Timestamp) })
	return result, nil
}

func (c *Client) Username(ctx context.Context, userID string) (string, error) {
	if member, err := c.session.State.Member(c.guildID, userID); err == nil && member.User != nil {
		return member.User.Username, nil
	}
	user, err := c.session.User(userID, discordgo.WithContext(ctx))
	if err != nil {
		return "", err
	}
	return user.Username, nil
}

func (c *Client) KickMember(ctx context.Context, userID, reason string) error {
	return c.session.GuildMemberDeleteWithReason(c.guildID, userID, reason, discordgo.WithContext(ctx))
}

func (c *Client) BanMember(ctx context.Context, userID, reason string) error {
	return c.session.GuildBanCreateWithReason(c.guildID, userID, reason, 0, discordgo.WithContext(ctx))
}

func (c *Client) AddRole(ctx context.Context, userID, roleID string) error {
	return c.session.GuildMemberRoleAdd(c.guildID, userID, roleID, discordgo.WithContext(ctx))
}

func (c *Client) RemoveRole(ctx context.Context, userID, roleID string) error {
	return c.session.GuildMemberRoleRemove(c.guildID, userID, roleID, discordgo.WithContext(ctx))
}

func (c *Client) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	return c.session.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx))
}

func isUnknownChannel(err error) bool {
	if err == nil {
		return false
	}
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Message != nil {
		return restErr.Message.Code == discordgo.ErrCodeUnknownChannel
	}
	return false
}
