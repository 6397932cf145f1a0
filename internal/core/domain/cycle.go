package domain

import "time"

// CycleResult records the outcome of one polling cycle.
type CycleResult struct {
	ID        int64
	StartedAt time.Time
	EndedAt   time.Time

	// Synced is the number of history records inserted by the cycle's sync.
	Synced int

	// Listed is the number of candidate messages returned by the mailbox.
	Listed int

	Drafted int
	Skipped int
	Failed  int

	// SyncError holds the sync failure message, if any.
	SyncError string
}

// MessageOutcome is the result of handling one message in a cycle.
type MessageOutcome string

// Message outcomes.
const (
	OutcomeDrafted        MessageOutcome = "drafted"
	OutcomeTooShort       MessageOutcome = "too_short"
	OutcomeAlreadyHandled MessageOutcome = "already_processed"
	OutcomeNotToday       MessageOutcome = "not_today"
	OutcomeFailed         MessageOutcome = "failed"
)
