package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/triage/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/triage/internal/core/domain"
)

var longReply = strings.Repeat("Thank you for your message about the order. ", 10)

// fakePipeline replies by subject.
type fakePipeline struct {
	replies map[string]string
	fail    map[string]error
	inputs  []domain.PipelineInput
}

func (p *fakePipeline) Run(_ context.Context, in domain.PipelineInput) (*domain.PipelineState, error) {
	p.inputs = append(p.inputs, in)
	if err := p.fail[in.Subject]; err != nil {
		return nil, &domain.PipelineError{Stage: domain.StageDrafting, Err: err}
	}
	return &domain.PipelineState{
		Input:  in,
		Status: domain.PipelineDone,
		FinalDraft: domain.Draft{
			ContextSummary: "ctx",
			Response:       p.replies[in.Subject],
		},
	}, nil
}

// failingHistory fails every sync.
type failingHistory struct{ calls int }

func (h *failingHistory) AddEmail(context.Context, domain.EmailRecord) error { return nil }
func (h *failingHistory) SearchSimilar(context.Context, string, int) ([]domain.EmailMatch, error) {
	return nil, nil
}
func (h *failingHistory) Recent(context.Context, int) ([]domain.EmailRecord, error) { return nil, nil }
func (h *failingHistory) SyncFromWatermark(context.Context) (*domain.SyncReport, error) {
	h.calls++
	return nil, domain.NewError(domain.ErrSync, "history.sync", errors.New("quota exceeded"))
}

type pollerFixture struct {
	poller    *Poller
	mailbox   *fakeMailbox
	pipeline  *fakePipeline
	processed *memory.ProcessedStore
}

func newPollerFixture(cfg PollerConfig) *pollerFixture {
	f := &pollerFixture{
		mailbox:   newFakeMailbox(),
		pipeline:  &fakePipeline{replies: map[string]string{}, fail: map[string]error{}},
		processed: memory.NewProcessedStore(),
	}
	f.poller = NewPoller(f.mailbox, f.mailbox, f.processed, nil, f.pipeline, cfg)
	f.poller.now = func() time.Time { return t0.Add(2 * time.Hour) }
	return f
}

func defaultPollerConfig() PollerConfig {
	return PollerConfig{MinWords: 50, Label: "AI-Drafted"}
}

func incoming(id, subject string) domain.Message {
	return domain.Message{
		ID:         id,
		ThreadID:   "thread-" + id,
		From:       "Jane Doe <jane@example.com>",
		Subject:    subject,
		Body:       "Where is my order?",
		ReceivedAt: t0,
	}
}

func TestPoller_DraftThreadsUnderOriginal(t *testing.T) {
	f := newPollerFixture(defaultPollerConfig())
	msg := incoming("m1", "Order status")
	msg.MessageID = "<m1@mail.example.com>"
	msg.References = []string{"<m0@mail.example.com>"}
	f.mailbox.add(msg, true)
	f.pipeline.replies["Order status"] = longReply

	_, err := f.poller.RunCycle(context.Background())
	require.NoError(t, err)

	require.Len(t, f.mailbox.drafts, 1)
	d := f.mailbox.drafts[0]
	assert.Equal(t, "<m1@mail.example.com>", d.InReplyTo)
	assert.Equal(t, []string{"<m0@mail.example.com>", "<m1@mail.example.com>"}, d.References)
}

func TestPoller_DraftsReply(t *testing.T) {
	ctx := context.Background()
	f := newPollerFixture(defaultPollerConfig())
	f.mailbox.add(incoming("m1", "Order status"), true)
	f.pipeline.replies["Order status"] = longReply

	res, err := f.poller.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Listed)
	assert.Equal(t, 1, res.Drafted)

	require.Len(t, f.mailbox.drafts, 1)
	d := f.mailbox.drafts[0]
	assert.Equal(t, "thread-m1", d.ThreadID)
	assert.Equal(t, "jane@example.com", d.To)
	assert.Equal(t, "Re: Order status", d.Subject)
	assert.Contains(t, d.Body, domain.HeadingDraftResponse)
	assert.Contains(t, d.Body, "Thank you for your message")

	assert.Equal(t, []string{"AI-Drafted"}, f.mailbox.labels["m1"])
	ids, err := f.processed.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, ids)

	require.Len(t, f.pipeline.inputs, 1)
	assert.Equal(t, "jane@example.com", f.pipeline.inputs[0].Sender)
}

func TestPoller_ShortReplyIsNotDrafted(t *testing.T) {
	ctx := context.Background()
	f := newPollerFixture(defaultPollerConfig())
	f.mailbox.add(incoming("m1", "Thanks"), true)
	f.pipeline.replies["Thanks"] = "You're welcome."

	outcome, err := f.poller.HandleMessage(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeTooShort, outcome)
	assert.Empty(t, f.mailbox.drafts)
	assert.Empty(t, f.mailbox.labels)

	done, err := f.processed.Contains(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, done)
}

func TestPoller_ExactlyMinWordsIsTooShort(t *testing.T) {
	f := newPollerFixture(defaultPollerConfig())
	f.mailbox.add(incoming("m1", "Edge"), true)
	f.pipeline.replies["Edge"] = strings.TrimSpace(strings.Repeat("word ", 50))

	outcome, err := f.poller.HandleMessage(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeTooShort, outcome)
}

func TestPoller_AlreadyProcessed(t *testing.T) {
	ctx := context.Background()
	f := newPollerFixture(defaultPollerConfig())
	f.mailbox.add(incoming("m1", "Order status"), true)
	f.pipeline.replies["Order status"] = longReply
	require.NoError(t, f.processed.Add(ctx, "m1"))

	outcome, err := f.poller.HandleMessage(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeAlreadyHandled, outcome)
	assert.Empty(t, f.pipeline.inputs)
}

func TestPoller_TodayOnly(t *testing.T) {
	ctx := context.Background()
	cfg := defaultPollerConfig()
	cfg.TodayOnly = true
	f := newPollerFixture(cfg)

	old := incoming("m-old", "Old question")
	old.ReceivedAt = t0.Add(-48 * time.Hour)
	f.mailbox.add(old, true)

	outcome, err := f.poller.HandleMessage(ctx, "m-old")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeNotToday, outcome)
	assert.Empty(t, f.pipeline.inputs)

	done, err := f.processed.Contains(ctx, "m-old")
	require.NoError(t, err)
	assert.False(t, done)
}

func TestPoller_FailureIsIsolated(t *testing.T) {
	ctx := context.Background()
	f := newPollerFixture(defaultPollerConfig())
	f.mailbox.add(incoming("m1", "Broken"), true)
	f.mailbox.add(incoming("m2", "Order status"), true)
	f.pipeline.fail["Broken"] = domain.NewError(domain.ErrModelInvocation, "pipeline.drafting", errors.New("timeout"))
	f.pipeline.replies["Order status"] = longReply

	res, err := f.poller.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Drafted)
	require.Len(t, f.mailbox.drafts, 1)
	assert.Equal(t, "thread-m2", f.mailbox.drafts[0].ThreadID)

	ids, err := f.processed.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"m2"}, ids)

	// The failed message is retried on the next cycle.
	delete(f.pipeline.fail, "Broken")
	f.pipeline.replies["Broken"] = longReply
	res, err = f.poller.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Drafted)
	assert.Equal(t, 1, res.Skipped)
}

func TestPoller_DraftSinkFailure(t *testing.T) {
	ctx := context.Background()
	f := newPollerFixture(defaultPollerConfig())
	f.mailbox.add(incoming("m1", "Order status"), true)
	f.pipeline.replies["Order status"] = longReply
	f.mailbox.draftErr = errors.New("insufficient permissions")

	outcome, err := f.poller.HandleMessage(ctx, "m1")
	assert.Equal(t, domain.OutcomeFailed, outcome)
	assert.ErrorIs(t, err, domain.ErrPersistence)

	done, err := f.processed.Contains(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, done)
}

func TestPoller_MissingMessage(t *testing.T) {
	f := newPollerFixture(defaultPollerConfig())

	outcome, err := f.poller.HandleMessage(context.Background(), "ghost")
	assert.Equal(t, domain.OutcomeFailed, outcome)
	assert.ErrorIs(t, err, domain.ErrSync)
}

func TestPoller_SyncErrorDoesNotStopCycle(t *testing.T) {
	f := newPollerFixture(defaultPollerConfig())
	history := &failingHistory{}
	f.poller.history = history
	f.mailbox.add(incoming("m1", "Order status"), true)
	f.pipeline.replies["Order status"] = longReply

	res, err := f.poller.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, history.calls)
	assert.Contains(t, res.SyncError, "quota exceeded")
	assert.Equal(t, 1, res.Drafted)
}

func TestPoller_SyncsHistoryFirst(t *testing.T) {
	h := newHistoryFixture()
	h.mailbox.head = 77
	h.mailbox.window = historyMessages(70, 72)

	f := newPollerFixture(defaultPollerConfig())
	f.poller.history = h.store

	res, err := f.poller.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Synced)
	assert.Empty(t, res.SyncError)
}

func TestPoller_ListError(t *testing.T) {
	f := newPollerFixture(defaultPollerConfig())
	f.mailbox.listErr = errors.New("unauthorized")

	_, err := f.poller.RunCycle(context.Background())
	assert.ErrorIs(t, err, domain.ErrSync)
}

func TestSenderAddress(t *testing.T) {
	tests := []struct {
		from string
		want string
	}{
		{"jane@example.com", "jane@example.com"},
		{"Jane Doe <jane@example.com>", "jane@example.com"},
		{`"Doe, Jane" <jane@example.com>`, "jane@example.com"},
		{"broken <jane@example.com", "jane@example.com"},
		{"  not an address  ", "not an address"},
	}
	for _, tt := range tests {
		t.Run(tt.from, func(t *testing.T) {
			assert.Equal(t, tt.want, SenderAddress(tt.from))
		})
	}
}

func TestReplySubject(t *testing.T) {
	assert.Equal(t, "Re: Order status", ReplySubject("Order status"))
	assert.Equal(t, "Re: Order status", ReplySubject("Re: Order status"))
	assert.Equal(t, "RE: hello", ReplySubject("RE: hello"))
	assert.Equal(t, "Re: ", ReplySubject(""))
}
