package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/triage/internal/core/domain"
	"github.com/custodia-labs/triage/internal/core/ports/driven"
	"github.com/custodia-labs/triage/internal/core/ports/driving"
	"github.com/custodia-labs/triage/internal/logger"
)

// Ensure HistoryStore implements the interface.
var _ driving.HistoryService = (*HistoryStore)(nil)

// HistoryStore is the email history ledger together with its mailbox sync.
// Writes are serialised; a record and its vector are always stored together.
type HistoryStore struct {
	ledger    driven.EmailLedger
	embedder  driven.EmbeddingService
	source    driven.MessageSource
	watermark driven.WatermarkStore
	settings  domain.HistorySettings
	now       func() time.Time

	writeMu sync.Mutex
	syncMu  sync.Mutex
}

// NewHistoryStore creates a history store. source and watermark may be nil
// when only AddEmail and SearchSimilar are needed.
func NewHistoryStore(
	ledger driven.EmailLedger,
	embedder driven.EmbeddingService,
	source driven.MessageSource,
	watermark driven.WatermarkStore,
	settings domain.HistorySettings,
) *HistoryStore {
	if settings.FullSyncDays <= 0 {
		settings.FullSyncDays = domain.DefaultSettings().History.FullSyncDays
	}
	return &HistoryStore{
		ledger:    ledger,
		embedder:  embedder,
		source:    source,
		watermark: watermark,
		settings:  settings,
		now:       time.Now,
	}
}

// AddEmail stores the record and its body embedding. Adding an ID that is
// already stored does nothing.
func (h *HistoryStore) AddEmail(ctx context.Context, record domain.EmailRecord) error {
	_, err := h.addEmail(ctx, record)
	return err
}

func (h *HistoryStore) addEmail(ctx context.Context, record domain.EmailRecord) (bool, error) {
	const op = "history.add_email"

	if strings.TrimSpace(record.ID) == "" {
		return false, domain.NewError(domain.ErrPersistence, op, domain.ErrInvalidInput)
	}

	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	exists, err := h.ledger.Exists(ctx, record.ID)
	if err != nil {
		return false, domain.NewError(domain.ErrPersistence, op, err)
	}
	if exists {
		logger.Debug("email already stored", "email_id", record.ID)
		return false, nil
	}

	if h.embedder == nil {
		return false, domain.NewError(domain.ErrRetrieval, op, domain.ErrEmbeddingUnavailable)
	}
	embedding, err := h.embedder.Embed(ctx, embeddingText(record))
	if err != nil {
		return false, domain.NewError(domain.ErrRetrieval, op, err)
	}

	record.VectorID = uuid.NewString()
	vector := domain.VectorEntry{
		VectorID:  record.VectorID,
		EmailID:   record.ID,
		Embedding: embedding,
	}

	inserted, err := h.ledger.Insert(ctx, record, vector)
	if err != nil {
		return false, domain.NewError(domain.ErrPersistence, op, err)
	}
	if inserted {
		logger.Debug("email stored", "email_id", record.ID, "vector_id", record.VectorID)
	}
	return inserted, nil
}

// emptyBodyText stands in for messages with neither body nor subject, such
// as attachment-only mail. Embedding APIs reject empty input.
const emptyBodyText = "(no content)"

// embeddingText is the body, or the subject when the body is blank.
func embeddingText(record domain.EmailRecord) string {
	if body := strings.TrimSpace(record.Body); body != "" {
		return record.Body
	}
	if subject := strings.TrimSpace(record.Subject); subject != "" {
		return subject
	}
	return emptyBodyText
}

// Get returns a stored record by ID.
func (h *HistoryStore) Get(ctx context.Context, id string) (*domain.EmailRecord, error) {
	rec, err := h.ledger.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, domain.NewError(domain.ErrPersistence, "history.get", err)
	}
	return rec, nil
}

// SearchSimilar returns at most k stored records whose bodies are closest to
// query, most similar first. Hits whose record cannot be resolved are skipped.
func (h *HistoryStore) SearchSimilar(ctx context.Context, query string, k int) ([]domain.EmailMatch, error) {
	const op = "history.search_similar"

	if k <= 0 || strings.TrimSpace(query) == "" {
		return []domain.EmailMatch{}, nil
	}
	if h.embedder == nil {
		return nil, domain.NewError(domain.ErrRetrieval, op, domain.ErrEmbeddingUnavailable)
	}

	vec, err := h.embedder.Embed(ctx, query)
	if err != nil {
		return nil, domain.NewError(domain.ErrRetrieval, op, err)
	}

	hits, err := h.ledger.SearchVectors(ctx, vec, k)
	if err != nil {
		return nil, domain.NewError(domain.ErrRetrieval, op, err)
	}

	matches := make([]domain.EmailMatch, 0, len(hits))
	for _, hit := range hits {
		rec, err := h.ledger.GetByVectorID(ctx, hit.VectorID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				logger.Warn("vector has no record, skipping", "vector_id", hit.VectorID)
				continue
			}
			return nil, domain.NewError(domain.ErrPersistence, op, err)
		}
		matches = append(matches, domain.EmailMatch{Record: *rec, Score: hit.Similarity})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Record.ID < matches[j].Record.ID
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Recent returns records received within the last days, newest first.
func (h *HistoryStore) Recent(ctx context.Context, days int) ([]domain.EmailRecord, error) {
	if days <= 0 {
		days = 1
	}
	to := h.now()
	from := to.AddDate(0, 0, -days)
	records, err := h.ledger.ListByDateRange(ctx, from, to.Add(time.Second))
	if err != nil {
		return nil, domain.NewError(domain.ErrPersistence, "history.recent", err)
	}
	return records, nil
}

// Count returns the number of stored records and vectors.
func (h *HistoryStore) Count(ctx context.Context) (records, vectors int, err error) {
	records, vectors, err = h.ledger.Count(ctx)
	if err != nil {
		return 0, 0, domain.NewError(domain.ErrPersistence, "history.count", err)
	}
	return records, vectors, nil
}

// SyncFromWatermark copies new mailbox messages into the ledger.
//
// With a stored watermark only messages added after it are fetched, and the
// watermark advances as each message is stored. Without one, the last
// FullSyncDays of mail are fetched and the mailbox's current position is
// stored only once every message is in. A cursor the mailbox no longer
// recognises falls back to the window fetch. On failure the watermark keeps
// the last fully processed position, so a rerun resumes from there.
func (h *HistoryStore) SyncFromWatermark(ctx context.Context) (*domain.SyncReport, error) {
	const op = "history.sync"

	if h.source == nil || h.watermark == nil {
		return nil, domain.NewError(domain.ErrSync, op, errors.New("no message source configured"))
	}

	h.syncMu.Lock()
	defer h.syncMu.Unlock()

	logger.Section("History Sync")

	cursor, ok, err := h.watermark.Get(ctx)
	if err != nil {
		return nil, domain.NewError(domain.ErrPersistence, op, err)
	}

	report := &domain.SyncReport{From: cursor, To: cursor}
	if ok {
		err := h.syncSince(ctx, cursor, report)
		if !errors.Is(err, domain.ErrCursorExpired) {
			logSync(report, err)
			return report, err
		}
		logger.Warn("sync cursor expired, falling back to window fetch", "cursor", cursor)
	}

	err = h.syncWindow(ctx, report)
	logSync(report, err)
	return report, err
}

func logSync(report *domain.SyncReport, err error) {
	if err != nil {
		logger.Warn("history sync stopped", "fetched", report.Fetched, "inserted", report.Inserted,
			"watermark", report.To, "error", err)
		return
	}
	logger.Info("history synced", "full", report.FullSync, "fetched", report.Fetched,
		"inserted", report.Inserted, "watermark", report.To)
}

func (h *HistoryStore) syncSince(ctx context.Context, cursor uint64, report *domain.SyncReport) error {
	const op = "history.sync_since"

	token := ""
	for {
		page, err := h.source.ListSince(ctx, cursor, token)
		if err != nil {
			if errors.Is(err, domain.ErrCursorExpired) {
				return err
			}
			return domain.NewError(domain.ErrSync, op, err)
		}

		for i, msg := range page.Messages {
			report.Fetched++
			inserted, err := h.addEmail(ctx, msg.Record())
			if err != nil {
				return domain.NewError(domain.ErrSync, op, fmt.Errorf("message %s: %w", msg.ID, err))
			}
			if inserted {
				report.Inserted++
			}
			// One history record can add several messages. Its cursor is
			// only safe to store once the last of them is in.
			if i+1 < len(page.Messages) && page.Messages[i+1].Cursor == msg.Cursor {
				continue
			}
			if err := h.advance(ctx, report, msg.Cursor); err != nil {
				return err
			}
		}

		if err := h.advance(ctx, report, page.Cursor); err != nil {
			return err
		}
		if !page.More {
			return nil
		}
		token = page.NextPageToken
	}
}

func (h *HistoryStore) syncWindow(ctx context.Context, report *domain.SyncReport) error {
	const op = "history.sync_window"

	report.FullSync = true

	// Captured before listing so messages arriving mid-fetch are picked up
	// by the next incremental run.
	head, err := h.source.CurrentCursor(ctx)
	if err != nil {
		return domain.NewError(domain.ErrSync, op, err)
	}

	since := h.now().AddDate(0, 0, -h.settings.FullSyncDays)
	token := ""
	for {
		page, err := h.source.ListWindow(ctx, since, token)
		if err != nil {
			return domain.NewError(domain.ErrSync, op, err)
		}

		for _, msg := range page.Messages {
			report.Fetched++
			inserted, err := h.addEmail(ctx, msg.Record())
			if err != nil {
				return domain.NewError(domain.ErrSync, op, fmt.Errorf("message %s: %w", msg.ID, err))
			}
			if inserted {
				report.Inserted++
			}
		}

		if !page.More {
			break
		}
		token = page.NextPageToken
	}

	return h.advance(ctx, report, head)
}

// advance stores cursor as the new watermark when it moves forward.
func (h *HistoryStore) advance(ctx context.Context, report *domain.SyncReport, cursor uint64) error {
	if cursor == 0 || cursor <= report.To {
		return nil
	}
	if err := h.watermark.Save(ctx, cursor); err != nil {
		return domain.NewError(domain.ErrPersistence, "history.save_watermark", err)
	}
	report.To = cursor
	return nil
}
