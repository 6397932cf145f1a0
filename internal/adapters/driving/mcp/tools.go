package mcp

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/triage/internal/core/domain"
)

const (
	defaultKnowledgeLimit = 3
	defaultHistoryLimit   = 5
)

// SearchInput is the input schema for both search tools.
type SearchInput struct {
	Query string `json:"query" jsonschema:"the text to search for"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of results to return"`
}

// KnowledgeOutput is the output schema for search_knowledge.
type KnowledgeOutput struct {
	Results []KnowledgeHit `json:"results"`
	Count   int            `json:"count"`
}

// KnowledgeHit is one retrieved chunk.
type KnowledgeHit struct {
	Source  string  `json:"source"`
	Ordinal int     `json:"ordinal"`
	Score   float64 `json:"score"`
	Dense   float64 `json:"dense"`
	Lexical float64 `json:"lexical"`
	Content string  `json:"content"`
}

// HistoryOutput is the output schema for search_history.
type HistoryOutput struct {
	Results []HistoryHit `json:"results"`
	Count   int          `json:"count"`
}

// HistoryHit is one similar past email.
type HistoryHit struct {
	ID       string    `json:"id"`
	ThreadID string    `json:"thread_id"`
	Sender   string    `json:"sender"`
	Subject  string    `json:"subject"`
	Date     time.Time `json:"date"`
	Score    float64   `json:"score"`
	Body     string    `json:"body"`
}

// DraftInput is the input schema for draft_reply.
type DraftInput struct {
	Subject string `json:"subject" jsonschema:"subject of the incoming email"`
	Body    string `json:"body" jsonschema:"body of the incoming email"`
	Sender  string `json:"sender,omitempty" jsonschema:"address of the sender"`
}

// DraftOutput is the output schema for draft_reply.
type DraftOutput struct {
	Query             string   `json:"query"`
	ContextSummary    string   `json:"context_summary"`
	KnowledgeInsights string   `json:"knowledge_insights"`
	RelevantHistory   string   `json:"relevant_history"`
	Response          string   `json:"response"`
	Text              string   `json:"text"`
	Stages            []string `json:"stages"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search_knowledge",
		Description: "Hybrid semantic and keyword search over the support knowledge base",
	}, s.handleSearchKnowledge)

	if s.ports.History != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "search_history",
			Description: "Find past emails similar to the given text",
		}, s.handleSearchHistory)
	}

	if s.ports.Pipeline != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "draft_reply",
			Description: "Draft a four-section reply to an email using the knowledge base and email history",
		}, s.handleDraftReply)
	}
}

func (s *Server) handleSearchKnowledge(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, KnowledgeOutput, error) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, KnowledgeOutput{}, errors.New("query is required")
	}
	limit := input.Limit
	if limit <= 0 {
		limit = defaultKnowledgeLimit
	}

	hits, err := s.ports.Knowledge.Search(ctx, input.Query, limit)
	if err != nil {
		return nil, KnowledgeOutput{}, err
	}

	output := KnowledgeOutput{Results: make([]KnowledgeHit, len(hits)), Count: len(hits)}
	for i, h := range hits {
		output.Results[i] = KnowledgeHit{
			Source:  h.Chunk.SourceID,
			Ordinal: h.Chunk.Ordinal,
			Score:   h.Score,
			Dense:   h.Dense,
			Lexical: h.Lexical,
			Content: h.Chunk.Content,
		}
	}
	return nil, output, nil
}

func (s *Server) handleSearchHistory(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, HistoryOutput, error) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, HistoryOutput{}, errors.New("query is required")
	}
	limit := input.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	matches, err := s.ports.History.SearchSimilar(ctx, input.Query, limit)
	if err != nil {
		return nil, HistoryOutput{}, err
	}

	output := HistoryOutput{Results: make([]HistoryHit, len(matches)), Count: len(matches)}
	for i, m := range matches {
		output.Results[i] = historyHit(m.Record, m.Score)
	}
	return nil, output, nil
}

func (s *Server) handleDraftReply(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input DraftInput,
) (*mcp.CallToolResult, DraftOutput, error) {
	if strings.TrimSpace(input.Body) == "" && strings.TrimSpace(input.Subject) == "" {
		return nil, DraftOutput{}, errors.New("subject or body is required")
	}

	state, err := s.ports.Pipeline.Run(ctx, domain.PipelineInput{
		Subject: input.Subject,
		Body:    input.Body,
		Sender:  input.Sender,
	})
	if err != nil {
		return nil, DraftOutput{}, err
	}

	d := state.FinalDraft
	output := DraftOutput{
		Query:             state.Query,
		ContextSummary:    d.ContextSummary,
		KnowledgeInsights: d.KnowledgeInsights,
		RelevantHistory:   d.RelevantHistory,
		Response:          d.Response,
		Text:              d.Render(),
	}
	for _, st := range state.Completed {
		output.Stages = append(output.Stages, string(st))
	}
	return nil, output, nil
}

func historyHit(r domain.EmailRecord, score float64) HistoryHit {
	return HistoryHit{
		ID:       r.ID,
		ThreadID: r.ThreadID,
		Sender:   r.Sender,
		Subject:  r.Subject,
		Date:     r.Timestamp,
		Score:    score,
		Body:     r.Body,
	}
}
