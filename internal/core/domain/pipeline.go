package domain

import (
	"strings"
)

// StageName identifies a step of the response pipeline.
type StageName string

// Pipeline stages in execution order.
const (
	StageQueryGeneration    StageName = "query_generation"
	StageKnowledgeRetrieval StageName = "knowledge_retrieval"
	StageHistoryRetrieval   StageName = "history_retrieval"
	StageDrafting           StageName = "drafting"
	StageFinalReview        StageName = "final_review"
)

// PipelineStatus is the state of a pipeline run.
type PipelineStatus string

// Pipeline run states.
const (
	PipelineRunning PipelineStatus = "running"
	PipelineDone    PipelineStatus = "done"
	PipelineFailed  PipelineStatus = "failed"
)

// PipelineInput is the triple handed to the pipeline by the poller.
type PipelineInput struct {
	Subject string
	Body    string
	Sender  string
}

// PipelineState accumulates stage outputs during a run.
// Each stage reads what earlier stages wrote and fills in its own field.
type PipelineState struct {
	Input PipelineInput

	Query            string
	KnowledgeSummary string
	HistoryDigest    string
	ContextSummary   string
	InitialDraft     Draft
	FinalDraft       Draft

	// Completed lists the stages that finished, in order.
	Completed []StageName
	Status    PipelineStatus
}

// Draft section headings, in the order they are rendered.
const (
	HeadingContextSummary    = "# Context Summary"
	HeadingKnowledgeInsights = "# Knowledge Base Insights"
	HeadingRelevantHistory   = "# Relevant Email History"
	HeadingDraftResponse     = "# Draft Response"
)

// Draft is the four-section structured reply produced by the pipeline.
type Draft struct {
	ContextSummary    string
	KnowledgeInsights string
	RelevantHistory   string
	Response          string
}

// Render formats the draft with its four Markdown headings.
func (d Draft) Render() string {
	var b strings.Builder
	sections := []struct {
		heading string
		body    string
	}{
		{HeadingContextSummary, d.ContextSummary},
		{HeadingKnowledgeInsights, d.KnowledgeInsights},
		{HeadingRelevantHistory, d.RelevantHistory},
		{HeadingDraftResponse, d.Response},
	}
	for i, s := range sections {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(s.heading)
		b.WriteString("\n")
		b.WriteString(strings.TrimSpace(s.body))
	}
	return b.String()
}

// WordCount returns the number of words in the reply section.
func (d Draft) WordCount() int {
	return len(strings.Fields(d.Response))
}

// ParseDraft splits model output into the four sections.
// Headings are matched case-insensitively at the start of a line and any
// suffix such as "(with citations)" is ignored. Text before the first
// heading is discarded. ok is false when the reply heading is missing.
func ParseDraft(text string) (draft Draft, ok bool) {
	targets := map[string]*string{
		normaliseHeading(HeadingContextSummary):    &draft.ContextSummary,
		normaliseHeading(HeadingKnowledgeInsights): &draft.KnowledgeInsights,
		normaliseHeading(HeadingRelevantHistory):   &draft.RelevantHistory,
		normaliseHeading(HeadingDraftResponse):     &draft.Response,
	}

	var current *string
	var buf []string
	flush := func() {
		if current != nil {
			*current = strings.TrimSpace(strings.Join(buf, "\n"))
		}
		buf = buf[:0]
	}

	for _, line := range strings.Split(text, "\n") {
		if dst := matchHeading(line, targets); dst != nil {
			flush()
			current = dst
			if dst == &draft.Response {
				ok = true
			}
			continue
		}
		buf = append(buf, line)
	}
	flush()

	return draft, ok
}

func matchHeading(line string, targets map[string]*string) *string {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "#") {
		return nil
	}
	key := normaliseHeading(trimmed)
	for heading, dst := range targets {
		if strings.HasPrefix(key, heading) {
			return dst
		}
	}
	return nil
}

func normaliseHeading(h string) string {
	h = strings.TrimLeft(strings.TrimSpace(h), "#")
	return strings.ToLower(strings.TrimSpace(h))
}
