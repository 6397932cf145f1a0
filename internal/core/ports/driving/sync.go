package driving

import (
	"context"

	"github.com/custodia-labs/triage/internal/core/domain"
)

// ResponsePipeline drafts a reply to one message.
type ResponsePipeline interface {
	// Run executes every stage in order. Any stage failure fails the whole
	// run with a *domain.PipelineError and no partial output.
	Run(ctx context.Context, input domain.PipelineInput) (*domain.PipelineState, error)
}

// Poller runs triage cycles against the mailbox.
type Poller interface {
	// RunCycle syncs history and drafts replies for new messages.
	RunCycle(ctx context.Context) (*domain.CycleResult, error)
}
