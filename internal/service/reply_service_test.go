package service

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dixielabs/modmail/internal/domain"
	apperrors "github.com/dixielabs/modmail/pkg/util"
)

type fakeResponseStore struct {
	mu        sync.Mutex
	responses map[string]string
}

func newFakeResponseStore() *fakeResponseStore {
	return &fakeResponseStore{responses: make(map[string]string)}
}

func (s *fakeResponseStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.responses[key], nil
}

func (s *fakeResponseStore) Put(_ context.Context, key, response string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[key] = response
	return nil
}

func (s *fakeResponseStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.responses[key]; !ok {
		return pgx.ErrNoRows
	}
	delete(s.responses, key)
	return nil
}

func (s *fakeResponseStore) Keys(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.responses))
	for key := range s.responses {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

type replyFixture struct {
	tickets   *fakeTicketStore
	responses *fakeResponseStore
	messenger *fakeMessenger
	svc       *ReplyService
}

func newReplyFixture() *replyFixture {
	f := &replyFixture{
		tickets:   newFakeTicketStore(),
		responses: newFakeResponseStore(),
		messenger: newFakeMessenger(),
	}
	f.svc = NewReplyService(f.tickets, f.responses, f.messenger, zap.NewNop())
	return f
}

func (f *replyFixture) openTicket(t *testing.T, channelID, userID string) {
	t.Helper()
	err := f.tickets.Create(context.Background(), &domain.Ticket{
		ChannelID:      channelID,
		UserID:         userID,
		MemberUsername: "Ada",
		ChannelName:    "ada-ticket",
		Type:           domain.TicketTypeContact,
	})
	require.NoError(t, err)
}

func TestReplyMirrorsIntoChannel(t *testing.T) {
	f := newReplyFixture()
	f.openTicket(t, "chan-1", "user-1")

	require.NoError(t, f.svc.Reply(context.Background(), "chan-1", "ModName", "we are looking into it"))

	dms := f.messenger.dmsTo("user-1")
	require.Len(t, dms, 1)
	assert.Equal(t, "**ModName**: we are looking into it", dms[0])

	msgs := f.messenger.messagesIn("chan-1")
	require.Len(t, msgs, 1)
	assert.Equal(t, "**ModName** (staff): we are looking into it", msgs[0])
}

func TestReplyOutsideTicketChannel(t *testing.T) {
	f := newReplyFixture()
	err := f.svc.Reply(context.Background(), "not-a-ticket", "ModName", "hello")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotATicketChannel))
}

func TestReplyToClosedTicketRejected(t *testing.T) {
	f := newReplyFixture()
	f.openTicket(t, "chan-1", "user-1")
	require.NoError(t, f.tickets.Close(context.Background(), "chan-1", time.Now()))

	err := f.svc.Reply(context.Background(), "chan-1", "ModName", "hello")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotATicketChannel))
}

func TestReplyClosedDMsPostsNotice(t *testing.T) {
	f := newReplyFixture()
	f.openTicket(t, "chan-1", "user-1")
	f.messenger.closedDMs["user-1"] = true

	require.NoError(t, f.svc.Reply(context.Background(), "chan-1", "ModName", "hello"))

	msgs := f.messenger.messagesIn("chan-1")
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "DMs disabled")
	assert.Empty(t, f.messenger.dmsTo("user-1"))
}

func TestCannedResponses(t *testing.T) {
	f := newReplyFixture()
	ctx := context.Background()
	f.openTicket(t, "chan-1", "user-1")

	require.NoError(t, f.svc.PutCanned(ctx, "tat", "Current turnaround time is two weeks."))
	require.NoError(t, f.svc.SendCanned(ctx, "chan-1", "ModName", "tat"))

	dms := f.messenger.dmsTo("user-1")
	require.Len(t, dms, 1)
	assert.Equal(t, "**ModName**: Current turnaround time is two weeks.", dms[0])

	keys, err := f.svc.ListCanned(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"tat"}, keys)

	require.NoError(t, f.svc.RemoveCanned(ctx, "tat"))
	keys, err = f.svc.ListCanned(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestSendCannedUnknownKey(t *testing.T) {
	f := newReplyFixture()
	f.openTicket(t, "chan-1", "user-1")

	err := f.svc.SendCanned(context.Background(), "chan-1", "ModName", "missing")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestPutCannedValidation(t *testing.T) {
	f := newReplyFixture()
	err := f.svc.PutCanned(context.Background(), "", "body")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidationFailed))

	err = f.svc.PutCanned(context.Background(), "key", "")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidationFailed))
}

func TestRemoveCannedUnknownKey(t *testing.T) {
	f := newReplyFixture()
	err := f.svc.RemoveCanned(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}
