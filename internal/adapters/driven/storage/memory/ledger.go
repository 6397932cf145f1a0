package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/triage/internal/core/domain"
	"github.com/custodia-labs/triage/internal/core/ports/driven"
	"github.com/custodia-labs/triage/internal/vecmath"
)

// Ensure Ledger implements the interface.
var _ driven.EmailLedger = (*Ledger)(nil)

// Ledger is an in-memory implementation of driven.EmailLedger.
type Ledger struct {
	mu       sync.RWMutex
	records  map[string]domain.EmailRecord
	vectors  map[string]domain.VectorEntry
	byVector map[string]string

	// FailInsert, when set, is returned by Insert without storing anything.
	FailInsert error
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		records:  make(map[string]domain.EmailRecord),
		vectors:  make(map[string]domain.VectorEntry),
		byVector: make(map[string]string),
	}
}

// Exists reports whether a record is stored.
func (l *Ledger) Exists(_ context.Context, id string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.records[id]
	return ok, nil
}

// Insert stores the record and its vector together.
func (l *Ledger) Insert(_ context.Context, record domain.EmailRecord, vector domain.VectorEntry) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.FailInsert != nil {
		return false, l.FailInsert
	}
	if _, ok := l.records[record.ID]; ok {
		return false, nil
	}

	record.VectorID = vector.VectorID
	vector.EmailID = record.ID
	vector.Embedding = append([]float32(nil), vector.Embedding...)

	l.records[record.ID] = record
	l.vectors[vector.VectorID] = vector
	l.byVector[vector.VectorID] = record.ID
	return true, nil
}

// Get retrieves a record by ID.
func (l *Ledger) Get(_ context.Context, id string) (*domain.EmailRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &rec, nil
}

// GetByVectorID resolves a vector to its record.
func (l *Ledger) GetByVectorID(ctx context.Context, vectorID string) (*domain.EmailRecord, error) {
	l.mu.RLock()
	id, ok := l.byVector[vectorID]
	l.mu.RUnlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	return l.Get(ctx, id)
}

// DropRecord removes a record but keeps its vector, leaving a dangling hit.
func (l *Ledger) DropRecord(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.records, id)
}

// SearchVectors ranks stored vectors by cosine similarity to query.
func (l *Ledger) SearchVectors(_ context.Context, query []float32, k int) ([]domain.VectorHit, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	hits := make([]domain.VectorHit, 0, len(l.vectors))
	for _, v := range l.vectors {
		hits = append(hits, domain.VectorHit{
			VectorID:   v.VectorID,
			EmailID:    v.EmailID,
			Similarity: vecmath.Cosine(query, v.Embedding),
		})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].EmailID < hits[j].EmailID
	})
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// ListByDateRange returns records received in [from, to), newest first.
func (l *Ledger) ListByDateRange(_ context.Context, from, to time.Time) ([]domain.EmailRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []domain.EmailRecord
	for _, r := range l.records {
		if !r.Timestamp.Before(from) && r.Timestamp.Before(to) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out, nil
}

// Count returns the number of records and vectors.
func (l *Ledger) Count(_ context.Context) (records, vectors int, err error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records), len(l.vectors), nil
}
