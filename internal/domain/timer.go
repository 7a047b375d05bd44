package domain

import "time"

// TimerAction enumerates the scheduled transitions a timer can drive.
type TimerAction string

const (
	// TimerActionClose closes the ticket and deletes its channel.
	TimerActionClose TimerAction = "close"
	// TimerActionSuspend posts a no-response warning, logs a transcript,
	// then closes.
	TimerActionSuspend TimerAction = "suspend"
)

// Timer is a persisted scheduled action bound to a ticket channel. UserID is
// a denormalized copy so the ticket can be resolved even after the channel
// is gone.
type Timer struct {
	ID        int64
	ChannelID string
	UserID    string
	Action    TimerAction
	ExecuteAt time.Time
	Canceled  bool
}
