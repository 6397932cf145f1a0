package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/triage/internal/core/domain"
	"github.com/custodia-labs/triage/internal/core/ports/driven"
	"github.com/custodia-labs/triage/internal/core/ports/driving"
	"github.com/custodia-labs/triage/internal/logger"
)

// Ensure ResponsePipeline implements the interface.
var _ driving.ResponsePipeline = (*ResponsePipeline)(nil)

// Sampling temperatures.
const (
	generationTemperature = 0.7
	reviewTemperature     = 0.3
)

// Fallback section text used when retrieval finds nothing.
const (
	noKnowledgeText = "No relevant knowledge base entries were found."
	noHistoryText   = "No related email history was found."
)

// PipelineConfig tunes the response pipeline.
type PipelineConfig struct {
	// Address is the mailbox the assistant replies from.
	Address string

	KnowledgeTopK int
	HistoryTopK   int

	// SummaryLength bounds each history summary.
	SummaryLength int

	// MaxTokens bounds every completion.
	MaxTokens int

	// Timeout bounds every model call. Zero means no per-call timeout.
	Timeout time.Duration

	// PromptTokens caps retrieved text and message bodies placed in prompts.
	PromptTokens int
}

// PipelineConfigFromSettings derives the pipeline configuration.
func PipelineConfigFromSettings(s domain.Settings) PipelineConfig {
	return PipelineConfig{
		Address:       s.Gmail.Address,
		KnowledgeTopK: s.Retrieval.TopK,
		HistoryTopK:   s.History.TopK,
		SummaryLength: s.History.SummaryLength,
		MaxTokens:     s.LLM.MaxTokens,
		Timeout:       s.LLM.Timeout,
		PromptTokens:  s.Retrieval.PromptTokens,
	}
}

// stage is one named step of the pipeline.
type stage struct {
	name domain.StageName
	run  func(ctx context.Context, st *domain.PipelineState) error
}

// ResponsePipeline drafts a reply through a fixed sequence of stages.
// It keeps no state between runs.
type ResponsePipeline struct {
	llm        driven.LLMService
	knowledge  driving.KnowledgeSearch
	history    driving.HistoryService
	summarizer *Summarizer
	prompts    driven.PromptStore
	budget     driven.TokenBudget
	cfg        PipelineConfig
	stages     []stage
}

// NewResponsePipeline creates the pipeline. budget may be nil, in which case
// prompt inputs are not truncated.
func NewResponsePipeline(
	llm driven.LLMService,
	knowledge driving.KnowledgeSearch,
	history driving.HistoryService,
	prompts driven.PromptStore,
	budget driven.TokenBudget,
	cfg PipelineConfig,
) *ResponsePipeline {
	defaults := domain.DefaultSettings()
	if cfg.KnowledgeTopK <= 0 {
		cfg.KnowledgeTopK = defaults.Retrieval.TopK
	}
	if cfg.HistoryTopK <= 0 {
		cfg.HistoryTopK = defaults.History.TopK
	}
	if cfg.SummaryLength <= 0 {
		cfg.SummaryLength = defaults.History.SummaryLength
	}

	p := &ResponsePipeline{
		llm:        llm,
		knowledge:  knowledge,
		history:    history,
		summarizer: NewSummarizer(llm),
		prompts:    prompts,
		budget:     budget,
		cfg:        cfg,
	}
	p.stages = []stage{
		{domain.StageQueryGeneration, p.generateQuery},
		{domain.StageKnowledgeRetrieval, p.retrieveKnowledge},
		{domain.StageHistoryRetrieval, p.retrieveHistory},
		{domain.StageDrafting, p.draft},
		{domain.StageFinalReview, p.review},
	}
	return p
}

// Stages returns the stage names in execution order.
func (p *ResponsePipeline) Stages() []domain.StageName {
	names := make([]domain.StageName, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.name
	}
	return names
}

// Run executes every stage in order. The first failing stage ends the run
// with a *domain.PipelineError; no partial state is returned.
func (p *ResponsePipeline) Run(ctx context.Context, input domain.PipelineInput) (*domain.PipelineState, error) {
	logger.Section("Response Pipeline")

	st := &domain.PipelineState{Input: input, Status: domain.PipelineRunning}
	for _, s := range p.stages {
		if err := ctx.Err(); err != nil {
			return nil, &domain.PipelineError{Stage: s.name, Err: err}
		}

		started := time.Now()
		if err := s.run(ctx, st); err != nil {
			st.Status = domain.PipelineFailed
			logger.Warn("pipeline stage failed", "stage", s.name, "error", err)
			return nil, &domain.PipelineError{Stage: s.name, Err: err}
		}
		st.Completed = append(st.Completed, s.name)
		logger.Debug("pipeline stage done", "stage", s.name, "elapsed", time.Since(started))
	}

	st.Status = domain.PipelineDone
	return st, nil
}

func (p *ResponsePipeline) generateQuery(ctx context.Context, st *domain.PipelineState) error {
	out, err := p.complete(ctx, driven.PromptQueryGeneration, generationTemperature,
		st.Input.Subject, p.trim(st.Input.Body))
	if err != nil {
		return err
	}
	query := strings.Trim(strings.TrimSpace(out), `"`)
	if query == "" {
		return domain.NewError(domain.ErrModelInvocation, "pipeline.query_generation", errors.New("empty query"))
	}
	st.Query = query
	logger.Debug("search query", "query", query)
	return nil
}

func (p *ResponsePipeline) retrieveKnowledge(ctx context.Context, st *domain.PipelineState) error {
	hits, err := p.knowledge.Search(ctx, st.Query, p.cfg.KnowledgeTopK)
	if err != nil {
		return domain.NewError(domain.ErrRetrieval, "pipeline.knowledge_retrieval", err)
	}
	if len(hits) == 0 {
		st.KnowledgeSummary = noKnowledgeText
		return nil
	}

	parts := make([]string, len(hits))
	for i, h := range hits {
		parts[i] = fmt.Sprintf("Result %d (score %.3f):\n%s", i+1, h.Score, h.Chunk.Content)
	}
	results := p.trim(strings.Join(parts, "\n\n"))

	out, err := p.complete(ctx, driven.PromptKnowledgeSynthesis, generationTemperature, st.Query, results)
	if err != nil {
		return err
	}
	st.KnowledgeSummary = strings.TrimSpace(out)
	return nil
}

func (p *ResponsePipeline) retrieveHistory(ctx context.Context, st *domain.PipelineState) error {
	matches, err := p.history.SearchSimilar(ctx, st.Query, p.cfg.HistoryTopK)
	if err != nil {
		return domain.NewError(domain.ErrRetrieval, "pipeline.history_retrieval", err)
	}
	if len(matches) == 0 {
		st.HistoryDigest = noHistoryText
		return nil
	}

	records := make([]domain.EmailRecord, len(matches))
	for i, m := range matches {
		records[i] = m.Record
	}
	// The summarizer makes one call per record.
	sctx, cancel := ctx, context.CancelFunc(func() {})
	if p.cfg.Timeout > 0 {
		sctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout*MaxDigestRecords)
	}
	defer cancel()

	digest, err := p.summarizer.Summarize(sctx, records, p.cfg.SummaryLength)
	if err != nil {
		return err
	}
	st.HistoryDigest = digest
	return nil
}

func (p *ResponsePipeline) draft(ctx context.Context, st *domain.PipelineState) error {
	in := st.Input
	body := p.trim(in.Body)

	summary, err := p.complete(ctx, driven.PromptContextSummary, generationTemperature, in.Subject, body)
	if err != nil {
		return err
	}
	st.ContextSummary = strings.TrimSpace(summary)

	out, err := p.complete(ctx, driven.PromptDrafting, generationTemperature,
		p.cfg.Address, in.Subject, body, in.Sender, st.KnowledgeSummary, st.HistoryDigest, st.ContextSummary)
	if err != nil {
		return err
	}

	st.InitialDraft = normaliseDraft(out, domain.Draft{
		ContextSummary:    st.ContextSummary,
		KnowledgeInsights: st.KnowledgeSummary,
		RelevantHistory:   st.HistoryDigest,
	})
	return nil
}

func (p *ResponsePipeline) review(ctx context.Context, st *domain.PipelineState) error {
	out, err := p.complete(ctx, driven.PromptFinalReview, reviewTemperature, st.Query, st.InitialDraft.Render())
	if err != nil {
		return err
	}
	final := normaliseDraft(out, st.InitialDraft)
	if strings.TrimSpace(final.Response) == "" {
		final.Response = st.InitialDraft.Response
	}
	st.FinalDraft = final
	return nil
}

// normaliseDraft parses model output into the four sections. Output without
// a reply heading is taken as the reply itself; empty sections are filled
// from fallback.
func normaliseDraft(text string, fallback domain.Draft) domain.Draft {
	d, ok := domain.ParseDraft(text)
	if !ok {
		d = domain.Draft{Response: strings.TrimSpace(text)}
	}
	if d.ContextSummary == "" {
		d.ContextSummary = fallback.ContextSummary
	}
	if d.KnowledgeInsights == "" {
		d.KnowledgeInsights = fallback.KnowledgeInsights
	}
	if d.RelevantHistory == "" {
		d.RelevantHistory = fallback.RelevantHistory
	}
	return d
}

// complete renders a prompt template and sends it to the model.
func (p *ResponsePipeline) complete(
	ctx context.Context, name string, temperature float64, args ...any,
) (string, error) {
	op := "pipeline." + name

	tmpl, err := p.prompts.Load(name)
	if err != nil {
		return "", domain.NewError(domain.ErrModelInvocation, op, err)
	}
	prompt := fmt.Sprintf(tmpl, args...)

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	out, err := p.llm.Generate(ctx, prompt, driven.GenerateOptions{
		MaxTokens:   p.cfg.MaxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return "", domain.NewError(domain.ErrModelInvocation, op, err)
	}
	return out, nil
}

func (p *ResponsePipeline) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.cfg.Timeout)
}

func (p *ResponsePipeline) trim(text string) string {
	if p.budget == nil || p.cfg.PromptTokens <= 0 {
		return text
	}
	return p.budget.Truncate(text, p.cfg.PromptTokens)
}
