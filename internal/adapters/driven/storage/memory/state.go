package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/triage/internal/core/domain"
	"github.com/custodia-labs/triage/internal/core/ports/driven"
)

// Ensure the stores implement the interfaces.
var (
	_ driven.WatermarkStore     = (*WatermarkStore)(nil)
	_ driven.ProcessedStore     = (*ProcessedStore)(nil)
	_ driven.IndexSnapshotStore = (*SnapshotStore)(nil)
	_ driven.RunStore           = (*RunStore)(nil)
)

// WatermarkStore is an in-memory implementation of driven.WatermarkStore.
type WatermarkStore struct {
	mu     sync.RWMutex
	cursor uint64
	set    bool

	// Saves counts successful Save calls.
	Saves int
}

// NewWatermarkStore creates an empty watermark store.
func NewWatermarkStore() *WatermarkStore {
	return &WatermarkStore{}
}

// Get returns the stored cursor.
func (s *WatermarkStore) Get(_ context.Context) (uint64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursor, s.set, nil
}

// Save replaces the stored cursor.
func (s *WatermarkStore) Save(_ context.Context, cursor uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor = cursor
	s.set = true
	s.Saves++
	return nil
}

// ProcessedStore is an in-memory implementation of driven.ProcessedStore.
type ProcessedStore struct {
	mu  sync.RWMutex
	ids []string
	set map[string]struct{}
}

// NewProcessedStore creates an empty processed set.
func NewProcessedStore() *ProcessedStore {
	return &ProcessedStore{set: make(map[string]struct{})}
}

// Contains reports whether id was recorded.
func (s *ProcessedStore) Contains(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.set[id]
	return ok, nil
}

// Add records id.
func (s *ProcessedStore) Add(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.set[id]; ok {
		return nil
	}
	s.set[id] = struct{}{}
	s.ids = append(s.ids, id)
	return nil
}

// List returns the recorded IDs in insertion order.
func (s *ProcessedStore) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.ids...), nil
}

// SnapshotStore is an in-memory implementation of driven.IndexSnapshotStore.
type SnapshotStore struct {
	mu   sync.RWMutex
	snap *domain.IndexSnapshot
}

// NewSnapshotStore creates an empty snapshot store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{}
}

// Save stores a copy of the snapshot.
func (s *SnapshotStore) Save(_ context.Context, snapshot *domain.IndexSnapshot) error {
	cp := *snapshot
	cp.Chunks = append([]domain.Chunk(nil), snapshot.Chunks...)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = &cp
	return nil
}

// Load returns the stored snapshot.
func (s *SnapshotStore) Load(_ context.Context) (*domain.IndexSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snap == nil {
		return nil, domain.ErrNotFound
	}
	cp := *s.snap
	return &cp, nil
}

// Close is a no-op.
func (s *SnapshotStore) Close() error {
	return nil
}

// RunStore is an in-memory implementation of driven.RunStore.
type RunStore struct {
	mu      sync.RWMutex
	results []domain.CycleResult
	nextID  int64
}

// NewRunStore creates an empty run store.
func NewRunStore() *RunStore {
	return &RunStore{}
}

// Record stores a cycle result and assigns its ID.
func (s *RunStore) Record(_ context.Context, result *domain.CycleResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	result.ID = s.nextID
	s.results = append(s.results, *result)
	return nil
}

// Recent returns the latest results, newest first.
func (s *RunStore) Recent(_ context.Context, limit int) ([]domain.CycleResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]domain.CycleResult(nil), s.results...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Prune keeps only the newest keep results.
func (s *RunStore) Prune(_ context.Context, keep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if keep >= 0 && len(s.results) > keep {
		s.results = append([]domain.CycleResult(nil), s.results[len(s.results)-keep:]...)
	}
	return nil
}
