package domain

import "time"

// PendingVerification tracks a member who joined but has not yet provided the
// DMed password. The password itself is only stored hashed.
type PendingVerification struct {
	UserID       string
	JoinedAt     time.Time
	PasswordHash string
}

// Expired reports whether the member missed the verification deadline.
func (p PendingVerification) Expired(now time.Time, deadline time.Duration) bool {
	return now.Sub(p.JoinedAt) >= deadline
}
