package driving

import "context"

// Scheduler drives polling cycles at a fixed interval.
type Scheduler interface {
	// Start runs cycles until the context is cancelled or Stop is called.
	Start(ctx context.Context) error

	// Stop gracefully stops the loop after the current cycle.
	Stop() error
}
