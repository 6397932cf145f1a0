package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/custodia-labs/triage/internal/core/domain"
	"github.com/custodia-labs/triage/internal/core/ports/driven"
)

// MaxDigestRecords is the number of history records a digest covers.
const MaxDigestRecords = 3

// DefaultSummaryLength bounds each per-record summary, in words.
const DefaultSummaryLength = 50

// digestTimeLayout is the timestamp layout used in digests.
const digestTimeLayout = "2006-01-02 15:04"

// Summarizer condenses history records into a fixed-format digest.
type Summarizer struct {
	llm driven.LLMService
}

// NewSummarizer creates a summarizer backed by llm.
func NewSummarizer(llm driven.LLMService) *Summarizer {
	return &Summarizer{llm: llm}
}

// Summarize renders the first three records, in the order given, as
//
//	**Date:** 2024-05-01 09:30
//	**Sender:** ...
//	**Subject:** ...
//	**Summary:** ...
//
// with blocks separated by a blank line. Each summary is produced by the
// language model and bounded by maxLength. No records yield "".
func (s *Summarizer) Summarize(ctx context.Context, records []domain.EmailRecord, maxLength int) (string, error) {
	if len(records) == 0 {
		return "", nil
	}
	if len(records) > MaxDigestRecords {
		records = records[:MaxDigestRecords]
	}
	if maxLength <= 0 {
		maxLength = DefaultSummaryLength
	}

	blocks := make([]string, 0, len(records))
	for _, rec := range records {
		summary, err := s.llm.Summarise(ctx, rec.Body, maxLength)
		if err != nil {
			return "", domain.NewError(domain.ErrModelInvocation, "summarizer.summarize",
				fmt.Errorf("email %s: %w", rec.ID, err))
		}
		blocks = append(blocks, fmt.Sprintf("**Date:** %s\n**Sender:** %s\n**Subject:** %s\n**Summary:** %s\n",
			rec.Timestamp.Format(digestTimeLayout), rec.Sender, rec.Subject, strings.TrimSpace(summary)))
	}
	return strings.Join(blocks, "\n"), nil
}
