package domain

import "time"

// ModAction enumerates recorded moderation action types.
type ModAction string

const (
	ModActionMinorWarning ModAction = "minor_warning"
	ModActionMajorWarning ModAction = "major_warning"
	ModActionKick         ModAction = "kick"
	ModActionBan          ModAction = "ban"
	ModActionUnban        ModAction = "unban"
	ModActionTimeout      ModAction = "timeout"
)

// WarningKind selects between minor and major warnings.
type WarningKind string

const (
	WarningMinor WarningKind = "minor"
	WarningMajor WarningKind = "major"
)

// Action returns the mod-log action type for the warning kind.
func (k WarningKind) Action() ModAction {
	if k == WarningMajor {
		return ModActionMajorWarning
	}
	return ModActionMinorWarning
}

// ModLogEntry is one append-only moderation record against a user identity.
type ModLogEntry struct {
	LogID       int64
	UserID      string
	Reason      string
	ModeratorID string
	ActionType  ModAction
	Timestamp   time.Time
	Notes       *string
}
