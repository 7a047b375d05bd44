package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/dixielabs/modmail/internal/config"
	"github.com/dixielabs/modmail/internal/domain"
	"github.com/dixielabs/modmail/internal/events"
	"github.com/dixielabs/modmail/internal/observability"
	"github.com/dixielabs/modmail/internal/repository"
	"github.com/dixielabs/modmail/internal/transport"
	apperrors "github.com/dixielabs/modmail/pkg/util"
)

const suspendWarning = "This ticket received no response and is being closed. Open a new ticket by sending another DM if you still need help."

// TranscriptPublisher renders a ticket transcript and delivers it to the log
// channel.
type TranscriptPublisher interface {
	Publish(ctx context.Context, ticket *domain.Ticket) error
}

// LifecycleService owns ticket state transitions and the timer poll cycle.
// It takes no in-process locks: the partial unique index on open tickets and
// conditional row updates close the races between concurrent DMs, commands
// and the poller.
type LifecycleService struct {
	tickets     repository.TicketRepository
	timers      repository.TimerRepository
	watchers    repository.WatcherRepository
	cache       *repository.TicketCache
	messenger   transport.Messenger
	transcripts TranscriptPublisher
	dispatcher  events.Dispatcher
	cfg         config.TicketConfig
	categoryID  string
	metrics     *observability.Metrics
	logger      *zap.Logger
}

// LifecycleDependencies bundles collaborators for the lifecycle service.
type LifecycleDependencies struct {
	TicketRepo  repository.TicketRepository
	TimerRepo   repository.TimerRepository
	WatcherRepo repository.WatcherRepository
	Cache       *repository.TicketCache
	Messenger   transport.Messenger
	Transcripts TranscriptPublisher
	Dispatcher  events.Dispatcher
	Config      config.TicketConfig
	CategoryID  string
	Metrics     *observability.Metrics
	Logger      *zap.Logger
}

// OpenTicketInput describes a ticket creation request. ModID is set when a
// staff member opens the ticket on the user's behalf.
type OpenTicketInput struct {
	UserID      string
	Username    string
	Type        domain.TicketType
	ModID       string
	ModUsername string
	Greeting    string
}

// NewLifecycleService constructs the service.
func NewLifecycleService(deps LifecycleDependencies) *LifecycleService {
	return &LifecycleService{
		tickets:     deps.TicketRepo,
		timers:      deps.TimerRepo,
		watchers:    deps.WatcherRepo,
		cache:       deps.Cache,
		messenger:   deps.Messenger,
		transcripts: deps.Transcripts,
		dispatcher:  deps.Dispatcher,
		cfg:         deps.Config,
		categoryID:  deps.CategoryID,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
	}
}

// HandleInboundDM routes a user's direct message. With no open ticket it
// opens one; otherwise it cancels a pending suspend timer, drains and
// notifies watchers once, and forwards the content into the ticket channel.
func (s *LifecycleService) HandleInboundDM(ctx context.Context, userID, username, content string) (*domain.Ticket, error) {
	channelID, err := s.openChannelFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	if channelID != "" {
		exists, err := s.messenger.ChannelExists(ctx, channelID)
		if err != nil {
			return nil, err
		}
		if !exists {
			// channel deleted out-of-band: reconcile and fall through
			// to opening a fresh ticket
			if err := s.reconcileStale(ctx, channelID, userID); err != nil {
				return nil, err
			}
			channelID = ""
		}
	}

	if channelID == "" {
		return s.OpenTicket(ctx, OpenTicketInput{
			UserID:   userID,
			Username: username,
			Type:     domain.TicketTypeContact,
			Greeting: content,
		})
	}

	// a reply is the "user responded" signal: the suspend timer dies first
	canceled, err := s.timers.Cancel(ctx, channelID, domain.TimerActionSuspend)
	if err != nil {
		return nil, err
	}
	if canceled > 0 {
		s.publish(ctx, events.EventCloseCanceled, channelID, events.Actor{Type: events.ActorUser, ID: userID},
			events.CloseCanceledPayload{Action: domain.TimerActionSuspend})
	}

	if err := s.notifyWatchers(ctx, channelID, userID); err != nil {
		s.logger.Warn("watcher notification failed", zap.String("channel_id", channelID), zap.Error(err))
	}

	if err := s.messenger.SendChannel(ctx, channelID, fmt.Sprintf("**%s**: %s", username, content)); err != nil {
		return nil, err
	}
	ticket, err := s.tickets.GetByChannel(ctx, channelID)
	if err != nil {
		return nil, apperrors.ToDomainError(err)
	}
	return ticket, nil
}

// OpenTicket creates the channel and the ticket record, then greets the user
// by DM. The welcome DM is best-effort: DELIVERY_FAILED becomes an in-channel
// notice instead of an error.
func (s *LifecycleService) OpenTicket(ctx context.Context, input OpenTicketInput) (*domain.Ticket, error) {
	channelName := ticketChannelName(input.Username)
	channelID, err := s.messenger.CreateTicketChannel(ctx, transport.CreateChannelParams{
		Name:       channelName,
		CategoryID: s.categoryID,
		Topic:      input.UserID,
		UserID:     input.UserID,
	})
	if err != nil {
		return nil, err
	}

	ticket := &domain.Ticket{
		ChannelID:      channelID,
		UserID:         input.UserID,
		MemberUsername: input.Username,
		CategoryID:     s.categoryID,
		ChannelName:    channelName,
		Type:           input.Type,
	}
	if input.ModID != "" {
		ticket.ModID = &input.ModID
		ticket.ModUsername = &input.ModUsername
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		// lost the create race; the channel we just made is an orphan
		if delErr := s.messenger.DeleteChannel(ctx, channelID); delErr != nil {
			s.logger.Warn("orphan channel cleanup failed", zap.String("channel_id", channelID), zap.Error(delErr))
		}
		return nil, err
	}
	s.cache.SetOpenChannel(ctx, input.UserID, channelID)

	if input.Greeting != "" {
		if err := s.messenger.SendChannel(ctx, channelID, fmt.Sprintf("**%s**: %s", input.Username, input.Greeting)); err != nil {
			s.logger.Warn("greeting forward failed", zap.String("channel_id", channelID), zap.Error(err))
		}
	}
	if err := s.messenger.SendDM(ctx, input.UserID, "Thanks for reaching out! A staff member will be with you shortly."); err != nil {
		if apperrors.HasCode(err, apperrors.CodeDeliveryFailed) {
			notice := fmt.Sprintf("Could not DM <@%s>; their DMs appear to be closed.", input.UserID)
			if sendErr := s.messenger.SendChannel(ctx, channelID, notice); sendErr != nil {
				s.logger.Warn("delivery notice failed", zap.String("channel_id", channelID), zap.Error(sendErr))
			}
		} else {
			return nil, err
		}
	}

	actor := events.Actor{Type: events.ActorUser, ID: input.UserID}
	if input.ModID != "" {
		actor = events.Actor{Type: events.ActorModerator, ID: input.ModID}
	}
	s.publish(ctx, events.EventTicketOpened, channelID, actor, events.TicketOpenedPayload{
		UserID:     input.UserID,
		Username:   input.Username,
		TicketType: ticket.Type,
	})
	return ticket, nil
}

// Claim assigns the invoking moderator to the ticket.
func (s *LifecycleService) Claim(ctx context.Context, channelID, modID, modUsername string) error {
	if err := s.tickets.AssignModerator(ctx, channelID, modID, modUsername); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotATicketChannel(channelID)
		}
		return err
	}
	s.publish(ctx, events.EventTicketClaimed, channelID, events.Actor{Type: events.ActorModerator, ID: modID},
		events.TicketClaimedPayload{ModID: modID, ModUsername: modUsername})
	return nil
}

// Transfer reassigns the ticket to another moderator.
func (s *LifecycleService) Transfer(ctx context.Context, channelID, toModID, toModUsername string) error {
	ticket, err := s.tickets.GetByChannel(ctx, channelID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotATicketChannel(channelID)
		}
		return err
	}
	if !ticket.Open() {
		return apperrors.NewNotATicketChannel(channelID)
	}
	if err := s.tickets.AssignModerator(ctx, channelID, toModID, toModUsername); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotATicketChannel(channelID)
		}
		return err
	}
	payload := events.TicketTransferredPayload{ToModID: toModID}
	if ticket.ModID != nil {
		payload.FromModID = *ticket.ModID
	}
	s.publish(ctx, events.EventTicketTransferred, channelID, events.Actor{Type: events.ActorModerator, ID: toModID}, payload)
	return nil
}

// ScheduleClose arms a close timer at now+delay. A second schedule replaces
// the first: the pending timer is canceled before the new row is inserted,
// so a channel never accumulates competing close timers.
func (s *LifecycleService) ScheduleClose(ctx context.Context, channelID, modID string, delay time.Duration) (*domain.Timer, error) {
	ticket, err := s.requireOpenTicket(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if delay <= 0 {
		return nil, apperrors.NewValidationError("delay must be positive", nil)
	}
	if _, err := s.timers.Cancel(ctx, channelID, domain.TimerActionClose); err != nil {
		return nil, err
	}
	timer := &domain.Timer{
		ChannelID: channelID,
		UserID:    ticket.UserID,
		Action:    domain.TimerActionClose,
		ExecuteAt: time.Now().Add(delay),
	}
	if err := s.timers.Schedule(ctx, timer); err != nil {
		return nil, err
	}
	s.publish(ctx, events.EventCloseScheduled, channelID, events.Actor{Type: events.ActorModerator, ID: modID},
		events.CloseScheduledPayload{ExecuteAt: timer.ExecuteAt})
	return timer, nil
}

// CancelScheduledClose disarms any pending close timer and reports how many
// it canceled. Zero is not an error.
func (s *LifecycleService) CancelScheduledClose(ctx context.Context, channelID, modID string) (int64, error) {
	canceled, err := s.timers.Cancel(ctx, channelID, domain.TimerActionClose)
	if err != nil {
		return 0, err
	}
	if canceled > 0 {
		s.publish(ctx, events.EventCloseCanceled, channelID, events.Actor{Type: events.ActorModerator, ID: modID},
			events.CloseCanceledPayload{Action: domain.TimerActionClose})
	}
	return canceled, nil
}

// Suspend arms a suspend timer at now+window. The ticket stays open;
// "suspended" is only the pending timer. Re-suspending replaces the timer.
func (s *LifecycleService) Suspend(ctx context.Context, channelID, modID string) (*domain.Timer, error) {
	ticket, err := s.requireOpenTicket(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if _, err := s.timers.Cancel(ctx, channelID, domain.TimerActionSuspend); err != nil {
		return nil, err
	}
	timer := &domain.Timer{
		ChannelID: channelID,
		UserID:    ticket.UserID,
		Action:    domain.TimerActionSuspend,
		ExecuteAt: time.Now().Add(s.cfg.SuspendWindow),
	}
	if err := s.timers.Schedule(ctx, timer); err != nil {
		return nil, err
	}
	s.publish(ctx, events.EventTicketSuspended, channelID, events.Actor{Type: events.ActorModerator, ID: modID},
		events.TicketSuspendedPayload{UserID: ticket.UserID, ExecuteAt: timer.ExecuteAt})
	return timer, nil
}

// Watch subscribes a moderator to the ticket's next user reply.
func (s *LifecycleService) Watch(ctx context.Context, channelID, modID string) error {
	if _, err := s.requireOpenTicket(ctx, channelID); err != nil {
		return err
	}
	return s.watchers.Add(ctx, channelID, modID)
}

// Unwatch removes the moderator's subscription.
func (s *LifecycleService) Unwatch(ctx context.Context, channelID, modID string) error {
	if _, err := s.requireOpenTicket(ctx, channelID); err != nil {
		return err
	}
	return s.watchers.Remove(ctx, channelID, modID)
}

// CloseNow closes the ticket immediately and deletes the channel. Safe to
// call on an already-closed ticket.
func (s *LifecycleService) CloseNow(ctx context.Context, channelID string, actor events.Actor) error {
	ticket, err := s.tickets.GetByChannel(ctx, channelID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotATicketChannel(channelID)
		}
		return err
	}
	if err := s.closeTicket(ctx, ticket, time.Now(), actor, false); err != nil {
		return err
	}
	if err := s.messenger.DeleteChannel(ctx, channelID); err != nil {
		// the record is already closed; the physical delete is cleanup
		s.logger.Warn("channel delete failed", zap.String("channel_id", channelID), zap.Error(err))
	}
	return nil
}

// PollOnce runs one timer poll cycle. The due set is a snapshot: timers
// armed during the cycle wait for the next one. A failing timer is logged
// and left due so the next cycle retries it; it never aborts the cycle.
func (s *LifecycleService) PollOnce(ctx context.Context, now time.Time) {
	due, err := s.timers.Due(ctx, now)
	if err != nil {
		s.logger.Error("due timer fetch failed", zap.Error(err))
		return
	}
	for _, timer := range due {
		err := s.fireTimer(ctx, timer, now)
		s.metrics.RecordTimerFired(string(timer.Action), err != nil)
		if err != nil {
			s.logger.Error("timer processing failed",
				zap.Int64("timer_id", timer.ID),
				zap.String("channel_id", timer.ChannelID),
				zap.String("action", string(timer.Action)),
				zap.Error(err))
			continue
		}
		if err := s.timers.Consume(ctx, timer.ID); err != nil {
			s.logger.Error("timer consume failed", zap.Int64("timer_id", timer.ID), zap.Error(err))
		}
	}
}

func (s *LifecycleService) fireTimer(ctx context.Context, timer domain.Timer, now time.Time) error {
	exists, err := s.messenger.ChannelExists(ctx, timer.ChannelID)
	if err != nil {
		return err
	}
	if !exists {
		return s.reconcileStale(ctx, timer.ChannelID, timer.UserID)
	}

	ticket, err := s.tickets.GetByChannel(ctx, timer.ChannelID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return err
	}
	if !ticket.Open() {
		return nil
	}

	suspended := timer.Action == domain.TimerActionSuspend
	if suspended {
		if err := s.messenger.SendChannel(ctx, timer.ChannelID, suspendWarning); err != nil {
			s.logger.Warn("suspend warning failed", zap.String("channel_id", timer.ChannelID), zap.Error(err))
		}
		if err := s.transcripts.Publish(ctx, ticket); err != nil {
			s.logger.Warn("transcript publish failed", zap.String("channel_id", timer.ChannelID), zap.Error(err))
		}
	}

	if err := s.closeTicket(ctx, ticket, now, events.SystemActor, suspended); err != nil {
		return err
	}
	if err := s.messenger.DeleteChannel(ctx, timer.ChannelID); err != nil {
		s.logger.Warn("channel delete failed", zap.String("channel_id", timer.ChannelID), zap.Error(err))
	}
	return nil
}

// closeTicket performs the store-side transition: flip status, disarm every
// timer, drop watchers, invalidate the cache.
func (s *LifecycleService) closeTicket(ctx context.Context, ticket *domain.Ticket, closedAt time.Time, actor events.Actor, suspended bool) error {
	if err := s.tickets.Close(ctx, ticket.ChannelID, closedAt); err != nil {
		return err
	}
	for _, action := range []domain.TimerAction{domain.TimerActionClose, domain.TimerActionSuspend} {
		if _, err := s.timers.Cancel(ctx, ticket.ChannelID, action); err != nil {
			return err
		}
	}
	if err := s.watchers.Clear(ctx, ticket.ChannelID); err != nil {
		return err
	}
	s.cache.Invalidate(ctx, ticket.UserID)
	s.publish(ctx, events.EventTicketClosed, ticket.ChannelID, actor,
		events.TicketClosedPayload{UserID: ticket.UserID, Suspended: suspended})
	return nil
}

// notifyWatchers drains the watcher set and posts one aggregated mention.
// Every subscription fires at most once; the set is empty afterwards.
func (s *LifecycleService) notifyWatchers(ctx context.Context, channelID, userID string) error {
	mods, err := s.watchers.List(ctx, channelID)
	if err != nil {
		return err
	}
	if len(mods) == 0 {
		return nil
	}
	if err := s.watchers.Clear(ctx, channelID); err != nil {
		return err
	}
	mentions := make([]string, len(mods))
	for i, modID := range mods {
		mentions[i] = "<@" + modID + ">"
	}
	notice := fmt.Sprintf("%s — the user has replied.", strings.Join(mentions, " "))
	if err := s.messenger.SendChannel(ctx, channelID, notice); err != nil {
		return err
	}
	s.publish(ctx, events.EventWatchersNotified, channelID, events.Actor{Type: events.ActorUser, ID: userID},
		events.WatchersNotifiedPayload{ModIDs: mods})
	return nil
}

// TicketByChannel resolves the ticket backing a channel.
func (s *LifecycleService) TicketByChannel(ctx context.Context, channelID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByChannel(ctx, channelID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotATicketChannel(channelID)
		}
		return nil, err
	}
	return ticket, nil
}

// ReconcileDeletedChannel handles an out-of-band channel deletion observed
// on the gateway: the backing record is closed if it was still open.
func (s *LifecycleService) ReconcileDeletedChannel(ctx context.Context, channelID string) error {
	ticket, err := s.tickets.GetByChannel(ctx, channelID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return err
	}
	if !ticket.Open() {
		return nil
	}
	return s.reconcileStale(ctx, channelID, ticket.UserID)
}

// reconcileStale closes the record behind a channel that no longer exists.
func (s *LifecycleService) reconcileStale(ctx context.Context, channelID, userID string) error {
	if err := s.tickets.Close(ctx, channelID, time.Now()); err != nil {
		return err
	}
	for _, action := range []domain.TimerAction{domain.TimerActionClose, domain.TimerActionSuspend} {
		if _, err := s.timers.Cancel(ctx, channelID, action); err != nil {
			return err
		}
	}
	if err := s.watchers.Clear(ctx, channelID); err != nil {
		return err
	}
	s.cache.Invalidate(ctx, userID)
	s.publish(ctx, events.EventTicketClosed, channelID, events.SystemActor,
		events.TicketClosedPayload{UserID: userID})
	return nil
}

func (s *LifecycleService) openChannelFor(ctx context.Context, userID string) (string, error) {
	if channelID := s.cache.OpenChannel(ctx, userID); channelID != "" {
		return channelID, nil
	}
	channelID, err := s.tickets.FindOpenChannelByUser(ctx, userID)
	if err != nil {
		return "", err
	}
	if channelID != "" {
		s.cache.SetOpenChannel(ctx, userID, channelID)
	}
	return channelID, nil
}

func (s *LifecycleService) requireOpenTicket(ctx context.Context, channelID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByChannel(ctx, channelID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotATicketChannel(channelID)
		}
		return nil, err
	}
	if !ticket.Open() {
		return nil, apperrors.NewNotATicketChannel(channelID)
	}
	return ticket, nil
}

func (s *LifecycleService) publish(ctx context.Context, eventType events.EventType, channelID string, actor events.Actor, payload interface{}) {
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		ChannelID: channelID,
		Actor:     actor,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	})
}

func ticketChannelName(username string) string {
	name := strings.ToLower(username)
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			return r
		default:
			return -1
		}
	}, name)
	if name == "" {
		name = "ticket"
	}
	return name + "-ticket"
}
