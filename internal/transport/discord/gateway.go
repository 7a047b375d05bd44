package discord

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/dixielabs/modmail/internal/config"
	"github.com/dixielabs/modmail/internal/domain"
	"github.com/dixielabs/modmail/internal/events"
	"github.com/dixielabs/modmail/internal/service"
	apperrors "github.com/dixielabs/modmail/pkg/util"
)

var mentionPattern = regexp.MustCompile(`^<@!?(\d+)>$`)

// Gateway registers discordgo event handlers and translates Discord events
// and prefix commands into service calls. All the real rules live in the
// services; this layer only parses and permission-gates.
type Gateway struct {
	session      *discordgo.Session
	client       *Client
	cfg          config.DiscordConfig
	lifecycle    *service.LifecycleService
	replies      *service.ReplyService
	transcripts  *service.TranscriptService
	modlogs      *service.ModLogService
	verification *service.VerificationService
	pricing      *service.PricingService
	logger       *zap.Logger
}

// GatewayDependencies bundles collaborators for the gateway.
type GatewayDependencies struct {
	Session      *discordgo.Session
	Client       *Client
	Config       config.DiscordConfig
	Lifecycle    *service.LifecycleService
	Replies      *service.ReplyService
	Transcripts  *service.TranscriptService
	ModLogs      *service.ModLogService
	Verification *service.VerificationService
	Pricing      *service.PricingService
	Logger       *zap.Logger
}

// NewGateway constructs the gateway.
func NewGateway(deps GatewayDependencies) *Gateway {
	return &Gateway{
		session:      deps.Session,
		client:       deps.Client,
		cfg:          deps.Config,
		lifecycle:    deps.Lifecycle,
		replies:      deps.Replies,
		transcripts:  deps.Transcripts,
		modlogs:      deps.ModLogs,
		verification: deps.Verification,
		pricing:      deps.Pricing,
		logger:       deps.Logger,
	}
}

// Start registers handlers and opens the gateway connection.
func (g *Gateway) Start() error {
	g.session.AddHandler(g.onReady)
	g.session.AddHandler(g.onMessageCreate)
	g.session.AddHandler(g.onGuildMemberAdd)
	g.session.AddHandler(g.onChannelDelete)
	return g.session.Open()
}

// Close shuts the gateway connection.
func (g *Gateway) Close() error {
	return g.session.Close()
}

func (g *Gateway) onReady(session *discordgo.Session, _ *discordgo.Ready) {
	g.logger.Info("discord gateway ready", zap.String("user", session.State.User.Username))
}

func (g *Gateway) onMessageCreate(_ *discordgo.Session, msg *discordgo.MessageCreate) {
	if msg.Author == nil || msg.Author.Bot {
		return
	}
	ctx := context.Background()

	if msg.GuildID == "" {
		g.handleDM(ctx, msg)
		return
	}
	if msg.GuildID != g.cfg.GuildID {
		return
	}

	if msg.ChannelID == g.cfg.GateChannelID {
		g.handleGateMessage(ctx, msg)
		return
	}

	if strings.HasPrefix(msg.Content, g.cfg.CommandPrefix) {
		g.handleCommand(ctx, msg)
		return
	}

	if g.pricing.Monitored(msg.ChannelID) {
		if _, err := g.pricing.HandleMessage(ctx, msg.ChannelID, msg.ID, msg.Author.ID, msg.Content); err != nil {
			g.logger.Warn("pricing check failed", zap.String("message_id", msg.ID), zap.Error(err))
		}
	}
}

func (g *Gateway) handleDM(ctx context.Context, msg *discordgo.MessageCreate) {
	if _, err := g.lifecycle.HandleInboundDM(ctx, msg.Author.ID, msg.Author.Username, msg.Content); err != nil {
		g.logger.Error("inbound dm routing failed", zap.String("user_id", msg.Author.ID), zap.Error(err))
	}
}

func (g *Gateway) handleGateMessage(ctx context.Context, msg *discordgo.MessageCreate) {
	command, args := g.splitCommand(msg.Content)
	switch command {
	case "dmme":
		if err := g.verification.ResendTo(ctx, msg.Author.ID); err != nil {
			g.reply(msg.ChannelID, fmt.Sprintf("<@%s>, I couldn't resend your password: no pending verification found.", msg.Author.ID))
			return
		}
		g.reply(msg.ChannelID, fmt.Sprintf("<@%s>, check your DMs.", msg.Author.ID))
		return
	case "dmuser":
		g.handleDMUser(ctx, msg, args)
		return
	}

	verified, err := g.verification.Attempt(ctx, msg.Author.ID, msg.Content)
	if err != nil {
		if apperrors.HasCode(err, apperrors.CodeNotFound) {
			g.reply(msg.ChannelID, fmt.Sprintf("<@%s>, I couldn't find your verification details. Rejoin the server to get a new password.", msg.Author.ID))
			return
		}
		g.logger.Error("verification attempt failed", zap.String("user_id", msg.Author.ID), zap.Error(err))
		return
	}
	if !verified {
		g.reply(msg.ChannelID, fmt.Sprintf("<@%s>, that password is incorrect. Please try again.", msg.Author.ID))
	}
}

func (g *Gateway) handleCommand(ctx context.Context, msg *discordgo.MessageCreate) {
	command, args := g.splitCommand(msg.Content)
	if command == "" {
		return
	}

	isStaff, err := g.client.IsStaff(ctx, msg.Author.ID)
	if err != nil {
		g.logger.Warn("staff check failed", zap.String("user_id", msg.Author.ID), zap.Error(err))
		return
	}
	if !isStaff {
		return
	}

	switch command {
	case "close":
		g.handleClose(ctx, msg, args)
	case "cancelclose":
		canceled, err := g.lifecycle.CancelScheduledClose(ctx, msg.ChannelID, msg.Author.ID)
		if err != nil {
			g.replyError(msg.ChannelID, err)
			return
		}
		if canceled == 0 {
			g.reply(msg.ChannelID, "No scheduled close to cancel.")
			return
		}
		g.reply(msg.ChannelID, "Scheduled close canceled.")
	case "suspend":
		timer, err := g.lifecycle.Suspend(ctx, msg.ChannelID, msg.Author.ID)
		if err != nil {
			g.replyError(msg.ChannelID, err)
			return
		}
		g.reply(msg.ChannelID, fmt.Sprintf("Ticket suspended. It auto-closes at %s unless the user replies.", timer.ExecuteAt.UTC().Format(time.RFC3339)))
	case "claim":
		if err := g.lifecycle.Claim(ctx, msg.ChannelID, msg.Author.ID, msg.Author.Username); err != nil {
			g.replyError(msg.ChannelID, err)
			return
		}
		g.reply(msg.ChannelID, fmt.Sprintf("Ticket claimed by **%s**.", msg.Author.Username))
	case "transfer":
		g.handleTransfer(ctx, msg, args)
	case "notifyme":
		if err := g.lifecycle.Watch(ctx, msg.ChannelID, msg.Author.ID); err != nil {
			g.replyError(msg.ChannelID, err)
			return
		}
		g.reply(msg.ChannelID, "You will be pinged on the user's next reply.")
	case "cancelnotifyme":
		if err := g.lifecycle.Unwatch(ctx, msg.ChannelID, msg.Author.ID); err != nil {
			g.replyError(msg.ChannelID, err)
			return
		}
		g.reply(msg.ChannelID, "Notification canceled.")
	case "log":
		g.handleLog(ctx, msg)
	case "r":
		if args == "" {
			g.reply(msg.ChannelID, "Usage: "+g.cfg.CommandPrefix+"r <message>")
			return
		}
		if err := g.replies.Reply(ctx, msg.ChannelID, msg.Author.Username, args); err != nil {
			g.replyError(msg.ChannelID, err)
		}
	case "dx":
		if err := g.replies.SendCanned(ctx, msg.ChannelID, msg.Author.Username, strings.TrimSpace(args)); err != nil {
			g.replyError(msg.ChannelID, err)
		}
	case "dxadd":
		g.handleCannedAdd(ctx, msg, args)
	case "dxremove":
		if err := g.replies.RemoveCanned(ctx, strings.TrimSpace(args)); err != nil {
			g.replyError(msg.ChannelID, err)
			return
		}
		g.reply(msg.ChannelID, "Canned response removed.")
	case "dxlist":
		keys, err := g.replies.ListCanned(ctx)
		if err != nil {
			g.replyError(msg.ChannelID, err)
			return
		}
		if len(keys) == 0 {
			g.reply(msg.ChannelID, "No canned responses stored.")
			return
		}
		g.reply(msg.ChannelID, "Canned responses: "+strings.Join(keys, ", "))
	case "contact":
		g.handleContact(ctx, msg, args)
	case "wminor":
		g.handleWarn(ctx, msg, args, domain.WarningMinor)
	case "wmajor":
		g.handleWarn(ctx, msg, args, domain.WarningMajor)
	case "warnings":
		g.handleWarnings(ctx, msg, args)
	case "removewarning":
		g.handleRemoveWarning(ctx, msg, args)
	case "note":
		g.handleNote(ctx, msg, args)
	case "kick":
		g.handleModAction(ctx, msg, args, "kick", g.modlogs.Kick)
	case "ban":
		g.handleModAction(ctx, msg, args, "ban", g.modlogs.Ban)
	}
}

// handleClose supports "!close" for an immediate close and "!close hh:mm"
// for a scheduled one.
func (g *Gateway) handleClose(ctx context.Context, msg *discordgo.MessageCreate, args string) {
	args = strings.TrimSpace(args)
	if args == "" {
		if err := g.lifecycle.CloseNow(ctx, msg.ChannelID, moderatorActor(msg.Author.ID)); err != nil {
			g.replyError(msg.ChannelID, err)
		}
		return
	}
	delay, err := parseDelay(args)
	if err != nil {
		g.reply(msg.ChannelID, "Usage: "+g.cfg.CommandPrefix+"close [hh:mm]")
		return
	}
	timer, err := g.lifecycle.ScheduleClose(ctx, msg.ChannelID, msg.Author.ID, delay)
	if err != nil {
		g.replyError(msg.ChannelID, err)
		return
	}
	g.reply(msg.ChannelID, fmt.Sprintf("Ticket will close at %s.", timer.ExecuteAt.UTC().Format(time.RFC3339)))
}

func (g *Gateway) handleTransfer(ctx context.Context, msg *discordgo.MessageCreate, args string) {
	targetID := parseMention(strings.TrimSpace(args))
	if targetID == "" {
		g.reply(msg.ChannelID, "Usage: "+g.cfg.CommandPrefix+"transfer @moderator")
		return
	}
	username, err := g.client.Username(ctx, targetID)
	if err != nil {
		g.replyError(msg.ChannelID, err)
		return
	}
	if err := g.lifecycle.Transfer(ctx, msg.ChannelID, targetID, username); err != nil {
		g.replyError(msg.ChannelID, err)
		return
	}
	g.reply(msg.ChannelID, fmt.Sprintf("Ticket transferred to **%s**.", username))
}

func (g *Gateway) handleLog(ctx context.Context, msg *discordgo.MessageCreate) {
	ticket, err := g.lifecycle.TicketByChannel(ctx, msg.ChannelID)
	if err != nil {
		g.replyError(msg.ChannelID, err)
		return
	}
	if err := g.transcripts.Publish(ctx, ticket); err != nil {
		g.replyError(msg.ChannelID, err)
		return
	}
	g.reply(msg.ChannelID, "Transcript posted to the log channel.")
}

func (g *Gateway) handleContact(ctx context.Context, msg *discordgo.MessageCreate, args string) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		g.reply(msg.ChannelID, "Usage: "+g.cfg.CommandPrefix+"contact @user <reason>")
		return
	}
	targetID := parseMention(fields[0])
	if targetID == "" {
		g.reply(msg.ChannelID, "Usage: "+g.cfg.CommandPrefix+"contact @user <reason>")
		return
	}
	reason := strings.TrimSpace(strings.TrimPrefix(args, fields[0]))
	username, err := g.client.Username(ctx, targetID)
	if err != nil {
		g.replyError(msg.ChannelID, err)
		return
	}
	ticket, err := g.lifecycle.OpenTicket(ctx, service.OpenTicketInput{
		UserID:      targetID,
		Username:    username,
		Type:        domain.TicketTypeContact,
		ModID:       msg.Author.ID,
		ModUsername: msg.Author.Username,
		Greeting:    reason,
	})
	if err != nil {
		g.replyError(msg.ChannelID, err)
		return
	}
	g.reply(msg.ChannelID, fmt.Sprintf("Opened ticket <#%s> for **%s**.", ticket.ChannelID, username))
}

func (g *Gateway) handleCannedAdd(ctx context.Context, msg *discordgo.MessageCreate, args string) {
	fields := strings.SplitN(strings.TrimSpace(args), " ", 2)
	if len(fields) != 2 {
		g.reply(msg.ChannelID, "Usage: "+g.cfg.CommandPrefix+"dxadd <key> <response>")
		return
	}
	if err := g.replies.PutCanned(ctx, fields[0], strings.TrimSpace(fields[1])); err != nil {
		g.replyError(msg.ChannelID, err)
		return
	}
	g.reply(msg.ChannelID, "Canned response saved as `"+fields[0]+"`.")
}

func (g *Gateway) handleWarn(ctx context.Context, msg *discordgo.MessageCreate, args string, kind domain.WarningKind) {
	fields := strings.Fields(args)
	if len(fields) < 2 {
		g.reply(msg.ChannelID, fmt.Sprintf("Usage: %sw%s @user <reason>", g.cfg.CommandPrefix, kind))
		return
	}
	targetID := parseMention(fields[0])
	if targetID == "" {
		g.reply(msg.ChannelID, fmt.Sprintf("Usage: %sw%s @user <reason>", g.cfg.CommandPrefix, kind))
		return
	}
	reason := strings.TrimSpace(strings.TrimPrefix(args, fields[0]))
	entry, err := g.modlogs.Warn(ctx, targetID, kind, reason, msg.Author.ID)
	if err != nil {
		g.replyError(msg.ChannelID, err)
		return
	}
	g.reply(msg.ChannelID, fmt.Sprintf("Recorded %s warning %d for <@%s>.", kind, entry.LogID, targetID))
}

func (g *Gateway) handleWarnings(ctx context.Context, msg *discordgo.MessageCreate, args string) {
	targetID := parseMention(strings.TrimSpace(args))
	if targetID == "" {
		g.reply(msg.ChannelID, "Usage: "+g.cfg.CommandPrefix+"warnings @user")
		return
	}
	minor, major, err := g.modlogs.Warnings(ctx, targetID)
	if err != nil {
		g.replyError(msg.ChannelID, err)
		return
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("<@%s> has %d minor and %d major warning(s).\n", targetID, len(minor), len(major)))
	for _, entry := range append(minor, major...) {
		sb.WriteString(fmt.Sprintf("`%d` [%s] %s\n", entry.LogID, entry.ActionType, entry.Reason))
	}
	g.reply(msg.ChannelID, sb.String())
}

func (g *Gateway) handleRemoveWarning(ctx context.Context, msg *discordgo.MessageCreate, args string) {
	logID, err := strconv.ParseInt(strings.TrimSpace(args), 10, 64)
	if err != nil {
		g.reply(msg.ChannelID, "Usage: "+g.cfg.CommandPrefix+"removewarning <log id>")
		return
	}
	if err := g.modlogs.RemoveWarning(ctx, logID); err != nil {
		g.replyError(msg.ChannelID, err)
		return
	}
	g.reply(msg.ChannelID, fmt.Sprintf("Warning %d removed.", logID))
}

func (g *Gateway) handleNote(ctx context.Context, msg *discordgo.MessageCreate, args string) {
	fields := strings.SplitN(strings.TrimSpace(args), " ", 2)
	if len(fields) != 2 {
		g.reply(msg.ChannelID, "Usage: "+g.cfg.CommandPrefix+"note <log id> <text>")
		return
	}
	logID, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		g.reply(msg.ChannelID, "Usage: "+g.cfg.CommandPrefix+"note <log id> <text>")
		return
	}
	if err := g.modlogs.AddNote(ctx, logID, strings.TrimSpace(fields[1])); err != nil {
		g.replyError(msg.ChannelID, err)
		return
	}
	g.reply(msg.ChannelID, fmt.Sprintf("Note added to log %d.", logID))
}

func (g *Gateway) handleModAction(ctx context.Context, msg *discordgo.MessageCreate, args, name string,
	action func(ctx context.Context, userID, reason, moderatorID string) error) {
	fields := strings.Fields(args)
	if len(fields) < 2 {
		g.reply(msg.ChannelID, fmt.Sprintf("Usage: %s%s @user <reason>", g.cfg.CommandPrefix, name))
		return
	}
	targetID := parseMention(fields[0])
	if targetID == "" {
		g.reply(msg.ChannelID, fmt.Sprintf("Usage: %s%s @user <reason>", g.cfg.CommandPrefix, name))
		return
	}
	reason := strings.TrimSpace(strings.TrimPrefix(args, fields[0]))
	if err := action(ctx, targetID, reason, msg.Author.ID); err != nil {
		g.replyError(msg.ChannelID, err)
		return
	}
	g.reply(msg.ChannelID, fmt.Sprintf("Done: %s recorded for <@%s>.", name, targetID))
}

func (g *Gateway) handleDMUser(ctx context.Context, msg *discordgo.MessageCreate, args string) {
	isStaff, err := g.client.IsStaff(ctx, msg.Author.ID)
	if err != nil || !isStaff {
		return
	}
	targetID := parseMention(strings.TrimSpace(args))
	if targetID == "" {
		targetID = strings.TrimSpace(args)
	}
	if targetID == "" {
		g.reply(msg.ChannelID, "Usage: "+g.cfg.CommandPrefix+"dmuser @user")
		return
	}
	if err := g.verification.ResendTo(ctx, targetID); err != nil {
		g.reply(msg.ChannelID, fmt.Sprintf("Couldn't resend a password to <@%s>: no pending verification found.", targetID))
		return
	}
	g.reply(msg.ChannelID, fmt.Sprintf("Sent a new verification password to <@%s>.", targetID))
}

func (g *Gateway) onGuildMemberAdd(_ *discordgo.Session, event *discordgo.GuildMemberAdd) {
	if event.GuildID != g.cfg.GuildID || event.User == nil || event.User.Bot {
		return
	}
	ctx := context.Background()
	if err := g.verification.OnMemberJoin(ctx, event.User.ID); err != nil {
		g.logger.Error("member join handling failed", zap.String("user_id", event.User.ID), zap.Error(err))
	}
}

func (g *Gateway) onChannelDelete(_ *discordgo.Session, event *discordgo.ChannelDelete) {
	if event.Channel == nil || event.Channel.GuildID != g.cfg.GuildID {
		return
	}
	ctx := context.Background()
	if err := g.lifecycle.ReconcileDeletedChannel(ctx, event.Channel.ID); err != nil {
		g.logger.Error("channel delete reconciliation failed", zap.String("channel_id", event.Channel.ID), zap.Error(err))
	}
}

func (g *Gateway) splitCommand(content string) (string, string) {
	if !strings.HasPrefix(content, g.cfg.CommandPrefix) {
		return "", ""
	}
	rest := strings.TrimPrefix(content, g.cfg.CommandPrefix)
	parts := strings.SplitN(rest, " ", 2)
	command := strings.ToLower(strings.TrimSpace(parts[0]))
	args := ""
	if len(parts) == 2 {
		args = strings.TrimSpace(parts[1])
	}
	return command, args
}

func (g *Gateway) reply(channelID, content string) {
	if _, err := g.session.ChannelMessageSend(channelID, content); err != nil {
		g.logger.Warn("command reply failed", zap.String("channel_id", channelID), zap.Error(err))
	}
}

func (g *Gateway) replyError(channelID string, err error) {
	var domainErr *apperrors.DomainError
	if errors.As(err, &domainErr) {
		g.reply(channelID, domainErr.Message)
		return
	}
	g.logger.Error("command failed", zap.String("channel_id", channelID), zap.Error(err))
	g.reply(channelID, "Something went wrong; check the logs.")
}

func parseMention(token string) string {
	if match := mentionPattern.FindStringSubmatch(token); match != nil {
		return match[1]
	}
	return ""
}

// parseDelay accepts "hh:mm".
func parseDelay(text string) (time.Duration, error) {
	parts := strings.Split(text, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("expected hh:mm, got %q", text)
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil || hours < 0 {
		return 0, fmt.Errorf("invalid hours in %q", text)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("invalid minutes in %q", text)
	}
	delay := time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute
	if delay <= 0 {
		return 0, fmt.Errorf("delay must be positive")
	}
	return delay, nil
}

func moderatorActor(modID string) events.Actor {
	return events.Actor{Type: events.ActorModerator, ID: modID}
}
