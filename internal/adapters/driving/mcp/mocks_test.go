package mcp

import (
	"context"

	"github.com/custodia-labs/triage/internal/core/domain"
)

type mockKnowledge struct {
	hits   []domain.ScoredChunk
	err    error
	gotK   int
	called bool
}

func (m *mockKnowledge) Search(_ context.Context, _ string, k int) ([]domain.ScoredChunk, error) {
	m.called = true
	m.gotK = k
	return m.hits, m.err
}

type mockHistory struct {
	matches []domain.EmailMatch
	recent  []domain.EmailRecord
	err     error
	gotK    int
	gotDays int
}

func (m *mockHistory) AddEmail(context.Context, domain.EmailRecord) error { return nil }

func (m *mockHistory) SearchSimilar(_ context.Context, _ string, k int) ([]domain.EmailMatch, error) {
	m.gotK = k
	return m.matches, m.err
}

func (m *mockHistory) SyncFromWatermark(context.Context) (*domain.SyncReport, error) {
	return &domain.SyncReport{}, nil
}

func (m *mockHistory) Recent(_ context.Context, days int) ([]domain.EmailRecord, error) {
	m.gotDays = days
	return m.recent, m.err
}

type mockPipeline struct {
	state *domain.PipelineState
	err   error
	got   domain.PipelineInput
}

func (m *mockPipeline) Run(_ context.Context, input domain.PipelineInput) (*domain.PipelineState, error) {
	m.got = input
	return m.state, m.err
}
