package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/custodia-labs/triage/internal/core/domain"
	"github.com/custodia-labs/triage/internal/core/ports/driven"
	"github.com/custodia-labs/triage/internal/vecmath"
)

// ledger implements driven.EmailLedger over the emails and email_vectors tables.
type ledger struct {
	store *Store
}

var _ driven.EmailLedger = (*ledger)(nil)

const emailColumns = "id, sender, recipient, subject, body, received_at, thread_id, vector_id"

// Exists reports whether a record with this ID is stored.
func (l *ledger) Exists(ctx context.Context, id string) (bool, error) {
	var n int
	err := l.store.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM emails WHERE id = ?", id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking email %s: %w", id, err)
	}
	return n > 0, nil
}

// Insert writes the record and its vector in one transaction.
func (l *ledger) Insert(ctx context.Context, rec domain.EmailRecord, vec domain.VectorEntry) (bool, error) {
	if rec.ID == "" || vec.VectorID == "" {
		return false, domain.ErrInvalidInput
	}
	if vec.EmailID != "" && vec.EmailID != rec.ID {
		return false, fmt.Errorf("vector %s belongs to %s, not %s: %w", vec.VectorID, vec.EmailID, rec.ID, domain.ErrInvalidInput)
	}

	tx, err := l.store.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO emails (`+emailColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, rec.ID, rec.Sender, rec.Recipient, rec.Subject, rec.Body,
		toUnix(rec.Timestamp), rec.ThreadID, vec.VectorID)
	if err != nil {
		return false, fmt.Errorf("inserting email %s: %w", rec.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO email_vectors (vector_id, email_id, dimensions, embedding)
		VALUES (?, ?, ?, ?)
	`, vec.VectorID, rec.ID, len(vec.Embedding), float32SliceToBytes(vec.Embedding))
	if err != nil {
		return false, fmt.Errorf("inserting vector for %s: %w", rec.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing email %s: %w", rec.ID, err)
	}
	return true, nil
}

// Get retrieves a record by ID.
func (l *ledger) Get(ctx context.Context, id string) (*domain.EmailRecord, error) {
	row := l.store.db.QueryRowContext(ctx, "SELECT "+emailColumns+" FROM emails WHERE id = ?", id)
	return scanEmail(row)
}

// GetByVectorID resolves a vector hit to its record.
func (l *ledger) GetByVectorID(ctx context.Context, vectorID string) (*domain.EmailRecord, error) {
	row := l.store.db.QueryRowContext(ctx, "SELECT "+emailColumns+" FROM emails WHERE vector_id = ?", vectorID)
	return scanEmail(row)
}

// SearchVectors scores every stored vector against query.
func (l *ledger) SearchVectors(ctx context.Context, query []float32, k int) ([]domain.VectorHit, error) {
	rows, err := l.store.db.QueryContext(ctx, "SELECT vector_id, email_id, embedding FROM email_vectors")
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	var hits []domain.VectorHit
	for rows.Next() {
		var h domain.VectorHit
		var blob []byte
		if err := rows.Scan(&h.VectorID, &h.EmailID, &blob); err != nil {
			return nil, fmt.Errorf("scanning vector: %w", err)
		}
		h.Similarity = vecmath.Cosine(query, bytesToFloat32Slice(blob))
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating vectors: %w", err)
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
func (l *ledger) ListByDateRange(ctx context.Context, from, to time.Time) ([]domain.EmailRecord, error) {
	rows, err := l.store.db.QueryContext(ctx, `
		SELECT `+emailColumns+` FROM emails
		WHERE received_at >= ? AND received_at < ?
		ORDER BY received_at DESC, id ASC
	`, toUnix(from), toUnix(to))
	if err != nil {
		return nil, fmt.Errorf("querying emails by date: %w", err)
	}
	defer rows.Close()

	var out []domain.EmailRecord
	for rows.Next() {
		rec, err := scanEmail(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating emails: %w", err)
	}
	return out, nil
}

// Count returns the number of records and vectors.
func (l *ledger) Count(ctx context.Context) (records, vectors int, err error) {
	err = l.store.db.QueryRowContext(ctx,
		"SELECT (SELECT COUNT(1) FROM emails), (SELECT COUNT(1) FROM email_vectors)").
		Scan(&records, &vectors)
	if err != nil {
		return 0, 0, fmt.Errorf("counting ledger: %w", err)
	}
	return records, vectors, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEmail(row rowScanner) (*domain.EmailRecord, error) {
	var rec domain.EmailRecord
	var received int64
	err := row.Scan(&rec.ID, &rec.Sender, &rec.Recipient, &rec.Subject, &rec.Body,
		&received, &rec.ThreadID, &rec.VectorID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning email: %w", err)
	}
	rec.Timestamp = fromUnix(received)
	return &rec, nil
}
