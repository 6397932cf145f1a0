package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/triage/internal/core/domain"
)

const scriptedDraft = `# Context Summary
Customer asks about the refund window.

# Knowledge Base Insights
Refunds within 30 days.

# Relevant Email History
None.

# Draft Response
Hi, you can return items within 30 days.`

const scriptedReview = `# Context Summary
Customer asks about the refund window.

# Knowledge Base Insights
Refunds within 30 days (refund policy).

# Relevant Email History
None.

# Draft Response
Hello, thank you for reaching out. You can return items within 30 days of purchase for a full refund.`

type stubKnowledge struct {
	hits []domain.ScoredChunk
	err  error
}

func (s *stubKnowledge) Search(_ context.Context, _ string, _ int) ([]domain.ScoredChunk, error) {
	return s.hits, s.err
}

type pipelineFixture struct {
	llm      *scriptedLLM
	history  *historyFixture
	pipeline *ResponsePipeline
}

func newPipelineFixture(t *testing.T, knowledge *stubKnowledge) *pipelineFixture {
	t.Helper()
	f := &pipelineFixture{llm: newScriptedLLM(), history: newHistoryFixture()}
	f.llm.replies["[query]"] = `"refund timeframe"`
	f.llm.replies["[synthesis]"] = "Refunds are accepted within 30 days."
	f.llm.replies["[context]"] = "Customer asks about the refund window."
	f.llm.replies["[draft]"] = scriptedDraft
	f.llm.replies["[review]"] = scriptedReview

	if knowledge == nil {
		knowledge = &stubKnowledge{hits: []domain.ScoredChunk{{
			Chunk: domain.Chunk{Content: refundText},
			Score: 0.9,
		}}}
	}
	f.pipeline = NewResponsePipeline(f.llm, knowledge, f.history.store, testPrompts{}, nil, PipelineConfig{
		Address: "support@example.com",
	})
	return f
}

func refundInput() domain.PipelineInput {
	return domain.PipelineInput{
		Subject: "Refund question",
		Body:    "How long do I have to request a refund?",
		Sender:  "jane@example.com",
	}
}

func TestResponsePipeline_RunsAllStagesInOrder(t *testing.T) {
	f := newPipelineFixture(t, nil)

	st, err := f.pipeline.Run(context.Background(), refundInput())
	require.NoError(t, err)

	assert.Equal(t, domain.PipelineDone, st.Status)
	assert.Equal(t, f.pipeline.Stages(), st.Completed)
	assert.Equal(t, []domain.StageName{
		domain.StageQueryGeneration,
		domain.StageKnowledgeRetrieval,
		domain.StageHistoryRetrieval,
		domain.StageDrafting,
		domain.StageFinalReview,
	}, st.Completed)

	assert.Equal(t, "refund timeframe", st.Query)
	assert.Equal(t, "Refunds are accepted within 30 days.", st.KnowledgeSummary)
	assert.Equal(t, noHistoryText, st.HistoryDigest)
	assert.Equal(t, "Hi, you can return items within 30 days.", st.InitialDraft.Response)
	assert.Contains(t, st.FinalDraft.Response, "full refund")
	assert.Equal(t, []float64{0.7, 0.7, 0.7, 0.7, 0.3}, f.llm.temps)
}

func TestResponsePipeline_PromptsCarryStageInputs(t *testing.T) {
	f := newPipelineFixture(t, nil)

	_, err := f.pipeline.Run(context.Background(), refundInput())
	require.NoError(t, err)
	require.Len(t, f.llm.prompts, 5)

	assert.Contains(t, f.llm.prompts[0], "subject=Refund question")
	assert.Contains(t, f.llm.prompts[1], "query=refund timeframe")
	assert.Contains(t, f.llm.prompts[1], refundText)
	assert.Contains(t, f.llm.prompts[3], "from=support@example.com")
	assert.Contains(t, f.llm.prompts[3], "sender=jane@example.com")
	assert.Contains(t, f.llm.prompts[3], "context=Customer asks about the refund window.")
	assert.Contains(t, f.llm.prompts[4], domain.HeadingDraftResponse)
}

func TestResponsePipeline_HistoryDigest(t *testing.T) {
	f := newPipelineFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.history.store.AddEmail(ctx, domain.EmailRecord{
		ID: "old-1", Sender: "jane@example.com", Subject: "Earlier refund",
		Body: "I returned a kettle last month", Timestamp: t0,
	}))

	st, err := f.pipeline.Run(ctx, refundInput())
	require.NoError(t, err)

	assert.Contains(t, st.HistoryDigest, "**Subject:** Earlier refund")
	assert.Contains(t, st.HistoryDigest, "**Summary:** summary of I returned a kettle")
	assert.Equal(t, 1, f.llm.summaries)
}

func TestResponsePipeline_NoKnowledgeSkipsSynthesis(t *testing.T) {
	f := newPipelineFixture(t, &stubKnowledge{})

	st, err := f.pipeline.Run(context.Background(), refundInput())
	require.NoError(t, err)

	assert.Equal(t, noKnowledgeText, st.KnowledgeSummary)
	for _, p := range f.llm.prompts {
		assert.False(t, strings.HasPrefix(p, "[synthesis]"))
	}
}

func TestResponsePipeline_StageFailureIsTerminal(t *testing.T) {
	f := newPipelineFixture(t, nil)
	f.llm.failOn = "[draft]"

	st, err := f.pipeline.Run(context.Background(), refundInput())
	require.Error(t, err)
	assert.Nil(t, st)

	var perr *domain.PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, domain.StageDrafting, perr.Stage)
	assert.ErrorIs(t, err, domain.ErrModelInvocation)

	// The failed run leaves nothing behind for the next one.
	f.llm.failOn = ""
	st, err = f.pipeline.Run(context.Background(), refundInput())
	require.NoError(t, err)
	assert.Equal(t, domain.PipelineDone, st.Status)
}

func TestResponsePipeline_KnowledgeFailure(t *testing.T) {
	f := newPipelineFixture(t, &stubKnowledge{err: errors.New("index gone")})

	_, err := f.pipeline.Run(context.Background(), refundInput())

	var perr *domain.PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, domain.StageKnowledgeRetrieval, perr.Stage)
	assert.ErrorIs(t, err, domain.ErrRetrieval)
}

func TestResponsePipeline_HistoryEmbeddingFailure(t *testing.T) {
	f := newPipelineFixture(t, nil)
	f.history.embedder.failOn = "refund timeframe"

	_, err := f.pipeline.Run(context.Background(), refundInput())

	var perr *domain.PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, domain.StageHistoryRetrieval, perr.Stage)
	assert.ErrorIs(t, err, domain.ErrRetrieval)
}

func TestResponsePipeline_EmptyQueryFails(t *testing.T) {
	f := newPipelineFixture(t, nil)
	f.llm.replies["[query]"] = `  ""  `

	_, err := f.pipeline.Run(context.Background(), refundInput())

	var perr *domain.PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, domain.StageQueryGeneration, perr.Stage)
}

func TestResponsePipeline_HeadinglessDraftBecomesResponse(t *testing.T) {
	f := newPipelineFixture(t, nil)
	f.llm.replies["[draft]"] = "Thanks for asking, refunds take 30 days."
	f.llm.replies["[review]"] = "Thanks for asking. Refunds are accepted for 30 days."

	st, err := f.pipeline.Run(context.Background(), refundInput())
	require.NoError(t, err)

	assert.Equal(t, "Thanks for asking, refunds take 30 days.", st.InitialDraft.Response)
	assert.Equal(t, "Customer asks about the refund window.", st.InitialDraft.ContextSummary)
	assert.Equal(t, "Refunds are accepted within 30 days.", st.InitialDraft.KnowledgeInsights)
	assert.Equal(t, "Thanks for asking. Refunds are accepted for 30 days.", st.FinalDraft.Response)

	rendered := st.FinalDraft.Render()
	for _, h := range []string{
		domain.HeadingContextSummary, domain.HeadingKnowledgeInsights,
		domain.HeadingRelevantHistory, domain.HeadingDraftResponse,
	} {
		assert.Contains(t, rendered, h)
	}
}

func TestResponsePipeline_CancelledContext(t *testing.T) {
	f := newPipelineFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.pipeline.Run(ctx, refundInput())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.llm.prompts)
}

func TestNormaliseDraft(t *testing.T) {
	fallback := domain.Draft{ContextSummary: "ctx", KnowledgeInsights: "kb", RelevantHistory: "hist"}

	d := normaliseDraft("# Draft Response\nHello", fallback)
	assert.Equal(t, "Hello", d.Response)
	assert.Equal(t, "ctx", d.ContextSummary)
	assert.Equal(t, "hist", d.RelevantHistory)

	d = normaliseDraft("plain reply", fallback)
	assert.Equal(t, "plain reply", d.Response)
	assert.Equal(t, "kb", d.KnowledgeInsights)
}
