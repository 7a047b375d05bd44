package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/dixielabs/modmail/internal/config"
	"github.com/dixielabs/modmail/internal/domain"
	apperrors "github.com/dixielabs/modmail/pkg/util"
)

type fakeVerificationStore struct {
	mu   sync.Mutex
	rows map[string]*domain.PendingVerification
}

func newFakeVerificationStore() *fakeVerificationStore {
	return &fakeVerificationStore{rows: make(map[string]*domain.PendingVerification)}
}

func (s *fakeVerificationStore) Upsert(_ context.Context, pending *domain.PendingVerification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *pending
	s.rows[pending.UserID] = &clone
	return nil
}

func (s *fakeVerificationStore) Get(_ context.Context, userID string) (*domain.PendingVerification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[userID]
	if !ok {
		return nil, nil
	}
	clone := *row
	return &clone, nil
}

func (s *fakeVerificationStore) Delete(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, userID)
	return nil
}

func (s *fakeVerificationStore) ListJoinedBefore(_ context.Context, cutoff time.Time) ([]domain.PendingVerification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var expired []domain.PendingVerification
	for _, row := range s.rows {
		if row.JoinedAt.Before(cutoff) {
			expired = append(expired, *row)
		}
	}
	return expired, nil
}

type verificationFixture struct {
	pending   *fakeVerificationStore
	messenger *fakeMessenger
	svc       *VerificationService
}

func newVerificationFixture() *verificationFixture {
	f := &verificationFixture{
		pending:   newFakeVerificationStore(),
		messenger: newFakeMessenger(),
	}
	f.svc = NewVerificationService(f.pending, f.messenger,
		config.VerificationConfig{
			Deadline:       48 * time.Hour,
			SweepInterval:  time.Hour,
			PasswordLength: 8,
		},
		config.DiscordConfig{
			GateChannelID:    "gate",
			VerifiedRoleID:   "role-verified",
			UnverifiedRoleID: "role-unverified",
		},
		zap.NewNop())
	return f
}

// dmPassword pulls the issued password out of the welcome DM.
func dmPassword(t *testing.T, dm string) string {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(dm), "\n")
	require.GreaterOrEqual(t, len(lines), 2)
	return lines[len(lines)-1]
}

func TestOnMemberJoinIssuesPassword(t *testing.T) {
	f := newVerificationFixture()
	ctx := context.Background()

	require.NoError(t, f.svc.OnMemberJoin(ctx, "user-1"))

	dms := f.messenger.dmsTo("user-1")
	require.Len(t, dms, 1)
	password := dmPassword(t, dms[0])
	assert.Len(t, password, 8)

	row, err := f.pending.Get(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(row.PasswordHash), []byte(password)))
	assert.NotContains(t, row.PasswordHash, password)

	assert.Equal(t, []string{"role-unverified"}, f.messenger.rolesAdded["user-1"])
	gate := f.messenger.messagesIn("gate")
	require.Len(t, gate, 1)
	assert.Contains(t, gate[0], "<@user-1>")
}

func TestOnMemberJoinClosedDMsPostsGateNotice(t *testing.T) {
	f := newVerificationFixture()
	f.messenger.closedDMs["user-1"] = true

	require.NoError(t, f.svc.OnMemberJoin(context.Background(), "user-1"))

	gate := f.messenger.messagesIn("gate")
	require.Len(t, gate, 1)
	assert.Contains(t, gate[0], "!dmme")

	// the pending row still exists so a resend can reach them later
	row, err := f.pending.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.NotNil(t, row)
}

func TestAttemptCorrectPasswordVerifies(t *testing.T) {
	f := newVerificationFixture()
	ctx := context.Background()

	require.NoError(t, f.svc.OnMemberJoin(ctx, "user-1"))
	password := dmPassword(t, f.messenger.dmsTo("user-1")[0])

	ok, err := f.svc.Attempt(ctx, "user-1", password)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Contains(t, f.messenger.rolesAdded["user-1"], "role-verified")
	assert.Contains(t, f.messenger.rolesGone["user-1"], "role-unverified")

	row, err := f.pending.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestAttemptWrongPasswordKeepsRow(t *testing.T) {
	f := newVerificationFixture()
	ctx := context.Background()

	require.NoError(t, f.svc.OnMemberJoin(ctx, "user-1"))

	ok, err := f.svc.Attempt(ctx, "user-1", "not-the-password")
	require.NoError(t, err)
	assert.False(t, ok)

	row, err := f.pending.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.NotNil(t, row)
	assert.NotContains(t, f.messenger.rolesAdded["user-1"], "role-verified")
}

func TestAttemptWithoutPendingRow(t *testing.T) {
	f := newVerificationFixture()
	_, err := f.svc.Attempt(context.Background(), "stranger", "whatever")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestResendToReplacesPassword(t *testing.T) {
	f := newVerificationFixture()
	ctx := context.Background()

	require.NoError(t, f.svc.OnMemberJoin(ctx, "user-1"))
	original := dmPassword(t, f.messenger.dmsTo("user-1")[0])

	require.NoError(t, f.svc.ResendTo(ctx, "user-1"))
	dms := f.messenger.dmsTo("user-1")
	require.Len(t, dms, 2)
	reissued := dmPassword(t, dms[1])

	// the old password no longer verifies
	ok, err := f.svc.Attempt(ctx, "user-1", original)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.svc.Attempt(ctx, "user-1", reissued)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSweepKicksOnlyExpiredMembers(t *testing.T) {
	f := newVerificationFixture()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, f.pending.Upsert(ctx, &domain.PendingVerification{
		UserID: "expired-1", JoinedAt: now.Add(-72 * time.Hour), PasswordHash: "x",
	}))
	require.NoError(t, f.pending.Upsert(ctx, &domain.PendingVerification{
		UserID: "fresh-1", JoinedAt: now.Add(-1 * time.Hour), PasswordHash: "x",
	}))

	kicked, err := f.svc.Sweep(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, kicked)
	assert.Equal(t, []string{"expired-1"}, f.messenger.kicked)

	row, err := f.pending.Get(ctx, "expired-1")
	require.NoError(t, err)
	assert.Nil(t, row)
	row, err = f.pending.Get(ctx, "fresh-1")
	require.NoError(t, err)
	assert.NotNil(t, row)
}
