package cli

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/triage/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/triage/internal/core/domain"
)

func TestSearchCmd(t *testing.T) {
	useServices(t)
	knowledge := &stubKnowledge{hits: []domain.ScoredChunk{{
		Chunk: domain.Chunk{SourceID: "refunds.md", Ordinal: 2, Content: "Refunds   are issued\nwithin 5 days."},
		Score: 0.8, Dense: 0.8, Lexical: 0.3,
	}}}
	knowledgeSearch = knowledge

	out, err := execute(t, "", "search", "refund", "policy", "-n", "2")
	requireNoErr(t, out, err)

	assert.Equal(t, 2, knowledge.gotK)
	assert.Contains(t, out, "refunds.md #2")
	assert.Contains(t, out, "Refunds are issued within 5 days.")
}

func TestSearchCmd_JSON(t *testing.T) {
	useServices(t)
	knowledgeSearch = &stubKnowledge{hits: []domain.ScoredChunk{{
		Chunk: domain.Chunk{SourceID: "faq.txt", Content: "hello"}, Score: 0.5,
	}}}
	t.Cleanup(func() { searchJSON = false })

	out, err := execute(t, "", "search", "hello", "--json")
	requireNoErr(t, out, err)

	var hits []searchHit
	require.NoError(t, json.Unmarshal([]byte(out), &hits))
	require.Len(t, hits, 1)
	assert.Equal(t, "faq.txt", hits[0].Source)
}

func TestSearchCmd_NoResults(t *testing.T) {
	useServices(t)
	knowledgeSearch = &stubKnowledge{}

	out, err := execute(t, "", "search", "nothing")
	requireNoErr(t, out, err)
	assert.Contains(t, out, "No results found.")
}

func TestHistoryCmds(t *testing.T) {
	useServices(t)
	when := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	history := &stubHistory{
		matches: []domain.EmailMatch{{
			Record: domain.EmailRecord{ID: "abc", Subject: "Invoice", Sender: "ann@example.com", Timestamp: when},
			Score:  0.87,
		}},
		recent: []domain.EmailRecord{{ID: "r1", Subject: "Hello", Timestamp: when}},
		report: &domain.SyncReport{FullSync: true, Fetched: 4, Inserted: 3, To: 99},
	}
	historyService = history

	out, err := execute(t, "", "history", "similar", "invoice")
	requireNoErr(t, out, err)
	assert.Contains(t, out, "(0.87)")
	assert.Contains(t, out, "ann@example.com")
	assert.Contains(t, out, "#all/abc")

	out, err = execute(t, "", "history", "recent", "--days", "3")
	requireNoErr(t, out, err)
	assert.Equal(t, 3, history.gotDays)
	assert.Contains(t, out, "Hello")

	out, err = execute(t, "", "history", "sync")
	requireNoErr(t, out, err)
	assert.Contains(t, out, "full window")
	assert.Contains(t, out, "stored 3 new")
}

func TestDraftCmd(t *testing.T) {
	useServices(t)
	pipeline := &stubPipeline{state: &domain.PipelineState{
		FinalDraft: domain.Draft{
			ContextSummary: "Asks about a refund.", KnowledgeInsights: "5 days.",
			RelevantHistory: "None.", Response: "Your refund will arrive within five days.",
		},
		Status: domain.PipelineDone,
	}}
	responsePipeline = pipeline
	historyService = &stubHistory{}
	t.Cleanup(func() { draftSubject, draftBody, draftSender = "", "", "" })

	out, err := execute(t, "Where is my refund?\n", "draft", "--subject", "Refund", "--body", "-", "--sender", "a@b.c")
	requireNoErr(t, out, err)

	assert.Equal(t, "Refund", pipeline.got.Subject)
	assert.Equal(t, "Where is my refund?\n", pipeline.got.Body)
	assert.Equal(t, "a@b.c", pipeline.got.Sender)
	assert.Contains(t, out, domain.HeadingDraftResponse)
	assert.Contains(t, out, "(7 words in the response)")
}

func TestDraftCmd_RequiresInput(t *testing.T) {
	useServices(t)
	responsePipeline = &stubPipeline{}
	historyService = &stubHistory{}

	_, err := execute(t, "", "draft")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--subject or --body")
}

func TestDraftCmd_StageFailure(t *testing.T) {
	useServices(t)
	responsePipeline = &stubPipeline{err: &domain.PipelineError{Stage: domain.StageFinalReview, Err: errors.New("boom")}}
	historyService = &stubHistory{}
	t.Cleanup(func() { draftSubject = "" })

	out, err := execute(t, "", "draft", "--subject", "Hi")
	require.Error(t, err)
	assert.Contains(t, out, "final_review")
}

func TestOnceCmd_RecordsCycle(t *testing.T) {
	useServices(t)
	start := time.Now()
	cyclePoller = &stubPoller{result: &domain.CycleResult{
		StartedAt: start, EndedAt: start.Add(time.Second), Listed: 3, Drafted: 2, Skipped: 1,
	}}
	historyService = &stubHistory{}
	runs := memory.NewRunStore()
	runStore = runs

	out, err := execute(t, "", "once")
	requireNoErr(t, out, err)
	assert.Contains(t, out, "Drafted: 2")

	recorded, err := runs.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, recorded, 1)
}

func TestStatusCmd(t *testing.T) {
	useServices(t)
	runs := memory.NewRunStore()
	runStore = runs

	out, err := execute(t, "", "status")
	requireNoErr(t, out, err)
	assert.Contains(t, out, "No cycles recorded yet")

	start := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, runs.Record(context.Background(), &domain.CycleResult{
		StartedAt: start, EndedAt: start.Add(3 * time.Second), Drafted: 4, SyncError: "quota",
	}))

	out, err = execute(t, "", "status")
	requireNoErr(t, out, err)
	assert.Contains(t, out, "DRAFTED")
	assert.Contains(t, out, "sync error: quota")
}

func TestAuthStatus_NoToken(t *testing.T) {
	useSettings(t, nil)

	out, err := execute(t, "", "auth", "status")
	requireNoErr(t, out, err)
	assert.Contains(t, out, "Not authorised")
}

func TestSatisfied(t *testing.T) {
	useServices(t)
	assert.False(t, satisfied(needKnowledge))

	knowledgeSearch = &stubKnowledge{}
	assert.True(t, satisfied(needKnowledge))
	assert.False(t, satisfied(needKnowledge|needHistory))

	historyService = &stubHistory{}
	assert.True(t, satisfied(needKnowledge|needHistory|needMailbox))
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "a b c", snippet("a\n\tb   c", 10))
	assert.Equal(t, "héll...", snippet("héllo world", 4))
	assert.True(t, strings.HasSuffix(snippet(strings.Repeat("x ", 200), 20), "..."))
}
