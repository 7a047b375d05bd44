package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dixielabs/modmail/internal/domain"
	"github.com/dixielabs/modmail/internal/events"
	"github.com/dixielabs/modmail/internal/transport"
	apperrors "github.com/dixielabs/modmail/pkg/util"
)

// fakeTicketStore mirrors the single-open-ticket constraint the database
// enforces with its partial unique index.
type fakeTicketStore struct {
	mu      sync.Mutex
	tickets map[string]*domain.Ticket
}

func newFakeTicketStore() *fakeTicketStore {
	return &fakeTicketStore{tickets: make(map[string]*domain.Ticket)}
}

func (s *fakeTicketStore) Create(_ context.Context, ticket *domain.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.tickets {
		if existing.UserID == ticket.UserID && existing.Status == domain.TicketStatusOpen {
			return apperrors.NewDuplicateOpenTicket(ticket.UserID)
		}
	}
	ticket.Status = domain.TicketStatusOpen
	ticket.CreatedAt = time.Now()
	clone := *ticket
	s.tickets[ticket.ChannelID] = &clone
	return nil
}

func (s *fakeTicketStore) FindOpenChannelByUser(_ context.Context, userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for channelID, ticket := range s.tickets {
		if ticket.UserID == userID && ticket.Status == domain.TicketStatusOpen {
			return channelID, nil
		}
	}
	return "", nil
}

func (s *fakeTicketStore) GetByChannel(_ context.Context, channelID string) (*domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ticket, ok := s.tickets[channelID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *ticket
	return &clone, nil
}

func (s *fakeTicketStore) AssignModerator(_ context.Context, channelID, modID, modUsername string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ticket, ok := s.tickets[channelID]
	if !ok || ticket.Status != domain.TicketStatusOpen {
		return pgx.ErrNoRows
	}
	ticket.ModID = &modID
	ticket.ModUsername = &modUsername
	return nil
}

func (s *fakeTicketStore) Close(_ context.Context, channelID string, closedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ticket, ok := s.tickets[channelID]
	if !ok || ticket.Status != domain.TicketStatusOpen {
		return nil
	}
	ticket.Status = domain.TicketStatusClosed
	ticket.ClosedAt = &closedAt
	return nil
}

func (s *fakeTicketStore) ListOpen(_ context.Context) ([]domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var open []domain.Ticket
	for _, ticket := range s.tickets {
		if ticket.Status == domain.TicketStatusOpen {
			open = append(open, *ticket)
		}
	}
	return open, nil
}

type fakeTimerStore struct {
	mu     sync.Mutex
	nextID int64
	timers []*domain.Timer
}

func newFakeTimerStore() *fakeTimerStore {
	return &fakeTimerStore{}
}

func (s *fakeTimerStore) Schedule(_ context.Context, timer *domain.Timer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	timer.ID = s.nextID
	clone := *timer
	s.timers = append(s.timers, &clone)
	return nil
}

func (s *fakeTimerStore) Cancel(_ context.Context, channelID string, action domain.TimerAction) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var canceled int64
	for _, timer := range s.timers {
		if timer.ChannelID == channelID && timer.Action == action && !timer.Canceled {
			timer.Canceled = true
			canceled++
		}
	}
	return canceled, nil
}

func (s *fakeTimerStore) Due(_ context.Context, now time.Time) ([]domain.Timer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []domain.Timer
	for _, timer := range s.timers {
		if !timer.Canceled && !timer.ExecuteAt.After(now) {
			due = append(due, *timer)
		}
	}
	return due, nil
}

func (s *fakeTimerStore) Consume(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, timer := range s.timers {
		if timer.ID == id {
			s.timers = append(s.timers[:i], s.timers[i+1:]...)
			return nil
		}
	}
	return nil
}

// pending reports armed timers for the channel and action.
func (s *fakeTimerStore) pending(channelID string, action domain.TimerAction) []domain.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	var armed []domain.Timer
	for _, timer := range s.timers {
		if timer.ChannelID == channelID && timer.Action == action && !timer.Canceled {
			armed = append(armed, *timer)
		}
	}
	return armed
}

type fakeWatcherStore struct {
	mu       sync.Mutex
	watchers map[string][]string
}

func newFakeWatcherStore() *fakeWatcherStore {
	return &fakeWatcherStore{watchers: make(map[string][]string)}
}

func (s *fakeWatcherStore) Add(_ context.Context, channelID, modID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.watchers[channelID] {
		if existing == modID {
			return nil
		}
	}
	s.watchers[channelID] = append(s.watchers[channelID], modID)
	return nil
}

func (s *fakeWatcherStore) Remove(_ context.Context, channelID, modID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	mods := s.watchers[channelID]
	for i, existing := range mods {
		if existing == modID {
			s.watchers[channelID] = append(mods[:i], mods[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *fakeWatcherStore) List(_ context.Context, channelID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.watchers[channelID]...), nil
}

func (s *fakeWatcherStore) Clear(_ context.Context, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.watchers, channelID)
	return nil
}

// fakeMessenger records every platform call and simulates channel existence.
type fakeMessenger struct {
	mu          sync.Mutex
	seq         int
	channels    map[string]bool
	channelMsgs map[string][]string
	dms         map[string][]string
	files       map[string][]string
	deleted     []string
	kicked      []string
	banned      []string
	rolesAdded  map[string][]string
	rolesGone   map[string][]string
	history     map[string][]transport.ChannelMessage
	usernames   map[string]string
	closedDMs   map[string]bool
	removedMsgs []string
	createErr   error
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{
		channels:    make(map[string]bool),
		channelMsgs: make(map[string][]string),
		dms:         make(map[string][]string),
		files:       make(map[string][]string),
		rolesAdded:  make(map[string][]string),
		rolesGone:   make(map[string][]string),
		history:     make(map[string][]transport.ChannelMessage),
		usernames:   make(map[string]string),
		closedDMs:   make(map[string]bool),
	}
}

func (m *fakeMessenger) SendChannel(_ context.Context, channelID, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channelMsgs[channelID] = append(m.channelMsgs[channelID], content)
	return nil
}

func (m *fakeMessenger) SendDM(_ context.Context, userID, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closedDMs[userID] {
		return apperrors.NewDeliveryFailed(userID, fmt.Errorf("cannot send messages to this user"))
	}
	m.dms[userID] = append(m.dms[userID], content)
	return nil
}

func (m *fakeMessenger) SendFile(_ context.Context, channelID, content, filename, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[channelID] = append(m.files[channelID], filename+"\n"+body)
	m.channelMsgs[channelID] = append(m.channelMsgs[channelID], content)
	return nil
}

func (m *fakeMessenger) CreateTicketChannel(_ context.Context, params transport.CreateChannelParams) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return "", m.createErr
	}
	m.seq++
	channelID := fmt.Sprintf("chan-%d", m.seq)
	m.channels[channelID] = true
	return channelID, nil
}

func (m *fakeMessenger) DeleteChannel(_ context.Context, channelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[channelID] = false
	m.deleted = append(m.deleted, channelID)
	return nil
}

func (m *fakeMessenger) ChannelExists(_ context.Context, channelID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.channels[channelID], nil
}

func (m *fakeMessenger) History(_ context.Context, channelID string, _ int) ([]transport.ChannelMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]transport.ChannelMessage{}, m.history[channelID]...), nil
}

func (m *fakeMessenger) Username(_ context.Context, userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if name, ok := m.usernames[userID]; ok {
		return name, nil
	}
	return "user-" + userID, nil
}

func (m *fakeMessenger) KickMember(_ context.Context, userID, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kicked = append(m.kicked, userID)
	return nil
}

func (m *fakeMessenger) BanMember(_ context.Context, userID, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.banned = append(m.banned, userID)
	return nil
}

func (m *fakeMessenger) AddRole(_ context.Context, userID, roleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rolesAdded[userID] = append(m.rolesAdded[userID], roleID)
	return nil
}

func (m *fakeMessenger) RemoveRole(_ context.Context, userID, roleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rolesGone[userID] = append(m.rolesGone[userID], roleID)
	return nil
}

func (m *fakeMessenger) DeleteMessage(_ context.Context, channelID, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removedMsgs = append(m.removedMsgs, channelID+"/"+messageID)
	return nil
}

func (m *fakeMessenger) messagesIn(channelID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.channelMsgs[channelID]...)
}

func (m *fakeMessenger) dmsTo(userID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.dms[userID]...)
}

func (m *fakeMessenger) deleteCount(channelID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, deleted := range m.deleted {
		if deleted == channelID {
			count++
		}
	}
	return count
}

func (m *fakeMessenger) dropChannel(channelID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[channelID] = false
}

type fakeTranscripts struct {
	mu        sync.Mutex
	published []string
}

func (f *fakeTranscripts) Publish(_ context.Context, ticket *domain.Ticket) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, ticket.ChannelID)
	return nil
}

// recordingDispatcher captures every published event.
type recordingDispatcher struct {
	mu     sync.Mutex
	events []events.Event
}

func (d *recordingDispatcher) Publish(_ context.Context, event events.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return nil
}

func (d *recordingDispatcher) Subscribe(events.EventType, events.EventHandler) {}

func (d *recordingDispatcher) ofType(eventType events.EventType) []events.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	var matched []events.Event
	for _, event := range d.events {
		if event.Type == eventType {
			matched = append(matched, event)
		}
	}
	return matched
}
