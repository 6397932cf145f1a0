package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/triage/internal/core/domain"
)

func newTestServer(t *testing.T, ports *Ports) *Server {
	t.Helper()
	server, err := NewServer(ports)
	require.NoError(t, err)
	return server
}

func TestServer_handleSearchKnowledge(t *testing.T) {
	ctx := context.Background()

	t.Run("returns scored chunks", func(t *testing.T) {
		knowledge := &mockKnowledge{hits: []domain.ScoredChunk{{
			Chunk:   domain.Chunk{ID: "faq.md#0", SourceID: "faq.md", Ordinal: 0, Content: "Refunds take 5 days."},
			Score:   0.8,
			Dense:   0.8,
			Lexical: 0.4,
		}}}
		server := newTestServer(t, &Ports{Knowledge: knowledge})

		_, output, err := server.handleSearchKnowledge(ctx, nil, SearchInput{Query: "refund", Limit: 2})
		require.NoError(t, err)

		assert.Equal(t, 2, knowledge.gotK)
		require.Equal(t, 1, output.Count)
		hit := output.Results[0]
		assert.Equal(t, "faq.md", hit.Source)
		assert.Equal(t, 0.8, hit.Score)
		assert.Equal(t, 0.4, hit.Lexical)
		assert.Equal(t, "Refunds take 5 days.", hit.Content)
	})

	t.Run("default limit", func(t *testing.T) {
		knowledge := &mockKnowledge{}
		server := newTestServer(t, &Ports{Knowledge: knowledge})

		_, output, err := server.handleSearchKnowledge(ctx, nil, SearchInput{Query: "refund"})
		require.NoError(t, err)
		assert.Equal(t, defaultKnowledgeLimit, knowledge.gotK)
		assert.Zero(t, output.Count)
	})

	t.Run("blank query is rejected", func(t *testing.T) {
		knowledge := &mockKnowledge{}
		server := newTestServer(t, &Ports{Knowledge: knowledge})

		_, _, err := server.handleSearchKnowledge(ctx, nil, SearchInput{Query: "  "})
		require.Error(t, err)
		assert.False(t, knowledge.called)
	})

	t.Run("search failure", func(t *testing.T) {
		server := newTestServer(t, &Ports{Knowledge: &mockKnowledge{err: errors.New("index broken")}})

		_, _, err := server.handleSearchKnowledge(ctx, nil, SearchInput{Query: "refund"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "index broken")
	})
}

func TestServer_handleSearchHistory(t *testing.T) {
	ctx := context.Background()
	when := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	history := &mockHistory{matches: []domain.EmailMatch{{
		Record: domain.EmailRecord{
			ID: "m1", ThreadID: "t1", Sender: "ann@example.com",
			Subject: "Invoice", Body: "Where is my invoice?", Timestamp: when,
		},
		Score: 0.91,
	}}}
	server := newTestServer(t, &Ports{Knowledge: &mockKnowledge{}, History: history})

	_, output, err := server.handleSearchHistory(ctx, nil, SearchInput{Query: "invoice"})
	require.NoError(t, err)

	assert.Equal(t, defaultHistoryLimit, history.gotK)
	require.Len(t, output.Results, 1)
	assert.Equal(t, "m1", output.Results[0].ID)
	assert.Equal(t, "ann@example.com", output.Results[0].Sender)
	assert.Equal(t, when, output.Results[0].Date)
	assert.Equal(t, 0.91, output.Results[0].Score)
}

func TestServer_handleDraftReply(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the final draft", func(t *testing.T) {
		pipeline := &mockPipeline{state: &domain.PipelineState{
			Query: "refund status",
			FinalDraft: domain.Draft{
				ContextSummary:    "Customer wants a refund.",
				KnowledgeInsights: "Refunds take 5 days.",
				RelevantHistory:   "None.",
				Response:          "Hi, your refund is on its way.",
			},
			Completed: []domain.StageName{domain.StageQueryGeneration, domain.StageFinalReview},
			Status:    domain.PipelineDone,
		}}
		server := newTestServer(t, &Ports{Knowledge: &mockKnowledge{}, Pipeline: pipeline})

		_, output, err := server.handleDraftReply(ctx, nil, DraftInput{
			Subject: "Refund", Body: "Where is my refund?", Sender: "bob@example.com",
		})
		require.NoError(t, err)

		assert.Equal(t, "bob@example.com", pipeline.got.Sender)
		assert.Equal(t, "refund status", output.Query)
		assert.Equal(t, "Hi, your refund is on its way.", output.Response)
		assert.Contains(t, output.Text, domain.HeadingDraftResponse)
		assert.Equal(t, []string{"query_generation", "final_review"}, output.Stages)
	})

	t.Run("empty email is rejected", func(t *testing.T) {
		server := newTestServer(t, &Ports{Knowledge: &mockKnowledge{}, Pipeline: &mockPipeline{}})

		_, _, err := server.handleDraftReply(ctx, nil, DraftInput{})
		require.Error(t, err)
	})

	t.Run("pipeline failure", func(t *testing.T) {
		failure := &domain.PipelineError{Stage: domain.StageDrafting, Err: domain.ErrLLMUnavailable}
		server := newTestServer(t, &Ports{Knowledge: &mockKnowledge{}, Pipeline: &mockPipeline{err: failure}})

		_, _, err := server.handleDraftReply(ctx, nil, DraftInput{Body: "hello"})
		assert.ErrorIs(t, err, domain.ErrLLMUnavailable)
	})
}

func TestServer_handleRecentHistory(t *testing.T) {
	history := &mockHistory{recent: []domain.EmailRecord{
		{ID: "m2", Subject: "Newer"},
		{ID: "m1", Subject: "Older"},
	}}
	server := newTestServer(t, &Ports{Knowledge: &mockKnowledge{}, History: history})

	req := &mcp.ReadResourceRequest{Params: &mcp.ReadResourceParams{URI: "triage://history/recent"}}
	result, err := server.handleRecentHistory(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, recentDays, history.gotDays)
	require.Len(t, result.Contents, 1)
	assert.Equal(t, "application/json", result.Contents[0].MIMEType)

	var hits []HistoryHit
	require.NoError(t, json.Unmarshal([]byte(result.Contents[0].Text), &hits))
	require.Len(t, hits, 2)
	assert.Equal(t, "m2", hits[0].ID)
}
