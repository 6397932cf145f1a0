package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/triage/internal/core/domain"
	"github.com/custodia-labs/triage/internal/core/ports/driven"
	"github.com/custodia-labs/triage/internal/core/ports/driving"
	"github.com/custodia-labs/triage/internal/logger"
	"github.com/custodia-labs/triage/internal/vecmath"
)

// Ensure RetrievalIndex implements the interfaces.
var (
	_ driving.KnowledgeSearch  = (*RetrievalIndex)(nil)
	_ driving.KnowledgeIndexer = (*RetrievalIndex)(nil)
)

// embedBatchSize bounds the number of chunks sent per EmbedBatch call.
const embedBatchSize = 32

// ProgressFunc reports indexing progress as chunks are embedded.
type ProgressFunc func(done, total int)

// RetrievalIndex is the hybrid dense and TF-IDF index over the knowledge base.
// Searches take a read lock. A rebuild stages and embeds new chunks without
// blocking searches and swaps them in under the write lock only once both
// indexes are built, so a failed rebuild leaves the previous index serving.
type RetrievalIndex struct {
	loader     driven.CorpusLoader
	chunker    driven.PostProcessorPipeline
	embedder   driven.EmbeddingService
	snapshots  driven.IndexSnapshotStore
	corpusPath string

	// buildMu serialises Ingest and Index.
	buildMu sync.Mutex
	staged  []domain.Chunk

	mu       sync.RWMutex
	chunks   []domain.Chunk
	lexical  *lexicalModel
	model    string
	indexed  bool
	progress ProgressFunc
}

// NewRetrievalIndex creates an empty index.
// The embedder and snapshot store may be nil: without an embedder ranking is
// lexical only, and without a store Save and Load are unavailable.
func NewRetrievalIndex(
	loader driven.CorpusLoader,
	chunker driven.PostProcessorPipeline,
	embedder driven.EmbeddingService,
	snapshots driven.IndexSnapshotStore,
	corpusPath string,
) *RetrievalIndex {
	return &RetrievalIndex{
		loader:     loader,
		chunker:    chunker,
		embedder:   embedder,
		snapshots:  snapshots,
		corpusPath: corpusPath,
	}
}

// SetProgress registers a callback invoked while chunks are embedded.
func (r *RetrievalIndex) SetProgress(fn ProgressFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = fn
}

// Len returns the number of searchable chunks.
func (r *RetrievalIndex) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.chunks)
}

// Ingest loads the corpus at corpusPath and stages its chunks for the next
// Index call. A missing or empty corpus stages an empty index and is logged,
// not returned. Searches keep using the current index until Index succeeds.
func (r *RetrievalIndex) Ingest(ctx context.Context, corpusPath string) ([]domain.Chunk, error) {
	logger.Section("Ingest")

	docs, err := r.loader.Load(ctx, corpusPath)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Warn("corpus unavailable, index will be empty",
			"path", corpusPath, "error", domain.NewError(domain.ErrIngestion, "retrieval.ingest", err))
		docs = nil
	}

	var chunks []domain.Chunk
	for i := range docs {
		docChunks, err := r.chunker.Process(ctx, &docs[i])
		if err != nil {
			logger.Warn("skipping document", "document", docs[i].ID, "error", err)
			continue
		}
		chunks = append(chunks, docChunks...)
	}

	if len(chunks) == 0 {
		logger.Warn("corpus produced no chunks", "path", corpusPath,
			"error", domain.NewError(domain.ErrIngestion, "retrieval.ingest", errors.New("empty corpus")))
	}
	logger.Debug("ingested corpus", "documents", len(docs), "chunks", len(chunks))

	r.buildMu.Lock()
	r.staged = chunks
	r.buildMu.Unlock()

	out := make([]domain.Chunk, len(chunks))
	copy(out, chunks)
	return out, nil
}

// Index embeds the staged chunks and fits the TF-IDF model over them. Both
// indexes are built before either replaces the live one. On failure the
// staged chunks are kept for a retry and searches are unaffected.
func (r *RetrievalIndex) Index(ctx context.Context) error {
	logger.Section("Index")

	r.buildMu.Lock()
	defer r.buildMu.Unlock()

	chunks := make([]domain.Chunk, len(r.staged))
	copy(chunks, r.staged)
	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Content
	}

	r.mu.RLock()
	progress := r.progress
	model := r.model
	r.mu.RUnlock()

	if r.embedder != nil && len(texts) > 0 {
		vectors, err := r.embedAll(ctx, texts, progress)
		if err != nil {
			return domain.NewError(domain.ErrRetrieval, "retrieval.index", err)
		}
		for i := range chunks {
			chunks[i].Embedding = vectors[i]
		}
		model = r.embedder.ModelName()
	}

	lexical, weights := fitLexical(texts)
	for i := range chunks {
		chunks[i].Terms = weights[i]
	}

	r.mu.Lock()
	r.chunks = chunks
	r.lexical = lexical
	r.model = model
	r.indexed = true
	r.mu.Unlock()
	r.staged = nil

	logger.Info("index built", "chunks", len(chunks), "vocabulary", len(lexical.IDF()), "embedding_model", model)
	return nil
}

// embedAll embeds texts in batches.
func (r *RetrievalIndex) embedAll(ctx context.Context, texts []string, progress ProgressFunc) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		vectors, err := r.embedder.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed chunks %d-%d: %w", start, end, err)
		}
		if len(vectors) != end-start {
			return nil, fmt.Errorf("embed chunks %d-%d: got %d vectors", start, end, len(vectors))
		}
		out = append(out, vectors...)
		if progress != nil {
			progress(len(out), len(texts))
		}
	}
	return out, nil
}

// Search ranks chunks by dense and lexical cosine similarity. The top k of
// each ranking are merged, scored by the larger of the two similarities and
// sorted descending; equal scores keep index order. An empty or unindexed
// index yields no results.
func (r *RetrievalIndex) Search(ctx context.Context, query string, k int) ([]domain.ScoredChunk, error) {
	logger.Section("Knowledge Search")
	logger.Debug("search", "query", query, "k", k)

	query = strings.TrimSpace(query)
	if query == "" || k <= 0 {
		return []domain.ScoredChunk{}, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.indexed || len(r.chunks) == 0 {
		return []domain.ScoredChunk{}, nil
	}

	dense := r.denseScores(ctx, query)
	lexical := r.lexicalScores(query)
	if dense == nil && lexical == nil {
		return []domain.ScoredChunk{}, nil
	}

	candidates := make(map[int]struct{})
	if dense != nil {
		for _, pos := range topPositions(dense, k) {
			candidates[pos] = struct{}{}
		}
	}
	if lexical != nil {
		for _, pos := range topPositions(lexical, k) {
			candidates[pos] = struct{}{}
		}
	}

	results := make([]domain.ScoredChunk, 0, len(candidates))
	for pos := range candidates {
		hit := domain.ScoredChunk{Chunk: r.chunks[pos], Position: pos}
		if dense != nil {
			hit.Dense = dense[pos]
		}
		if lexical != nil {
			hit.Lexical = lexical[pos]
		}
		hit.Score = hit.Dense
		if dense == nil || hit.Lexical > hit.Score {
			hit.Score = hit.Lexical
		}
		results = append(results, hit)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Position < results[j].Position
	})
	if len(results) > k {
		results = results[:k]
	}

	logger.Debug("search results", "candidates", len(candidates), "returned", len(results))
	return results, nil
}

// denseScores returns the cosine similarity of every chunk to the query, or
// nil when the query cannot be embedded. Caller must hold the read lock.
func (r *RetrievalIndex) denseScores(ctx context.Context, query string) []float64 {
	if r.embedder == nil {
		return nil
	}
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		logger.Warn("query embedding failed, ranking lexically",
			"error", domain.NewError(domain.ErrRetrieval, "retrieval.search", err))
		return nil
	}
	scores := make([]float64, len(r.chunks))
	for i := range r.chunks {
		scores[i] = vecmath.Cosine(vec, r.chunks[i].Embedding)
	}
	return scores
}

// lexicalScores returns the TF-IDF cosine of every chunk to the query.
// Caller must hold the read lock.
func (r *RetrievalIndex) lexicalScores(query string) []float64 {
	if r.lexical == nil {
		return nil
	}
	q := r.lexical.Transform(query)
	scores := make([]float64, len(r.chunks))
	for i := range r.chunks {
		scores[i] = sparseDot(q, r.chunks[i].Terms)
	}
	return scores
}

// Save writes the index to the snapshot store.
func (r *RetrievalIndex) Save(ctx context.Context) error {
	if r.snapshots == nil {
		return domain.NewError(domain.ErrPersistence, "retrieval.save", errors.New("no snapshot store"))
	}

	r.mu.RLock()
	if !r.indexed {
		r.mu.RUnlock()
		return domain.NewError(domain.ErrPersistence, "retrieval.save", errors.New("index not built"))
	}
	snap := &domain.IndexSnapshot{
		Chunks:         r.chunks,
		IDF:            r.lexical.IDF(),
		EmbeddingModel: r.model,
		BuiltAt:        time.Now().UTC(),
	}
	if len(r.chunks) > 0 {
		snap.Dimensions = len(r.chunks[0].Embedding)
	}
	err := r.snapshots.Save(ctx, snap)
	r.mu.RUnlock()

	if err != nil {
		return domain.NewError(domain.ErrPersistence, "retrieval.save", err)
	}
	logger.Debug("index snapshot saved", "chunks", len(snap.Chunks))
	return nil
}

// Load replaces the in-memory index with the stored snapshot.
// A snapshot built with a different embedding model is rejected.
func (r *RetrievalIndex) Load(ctx context.Context) error {
	if r.snapshots == nil {
		return domain.NewError(domain.ErrPersistence, "retrieval.load", errors.New("no snapshot store"))
	}

	snap, err := r.snapshots.Load(ctx)
	if err != nil {
		return domain.NewError(domain.ErrPersistence, "retrieval.load", err)
	}

	if r.embedder != nil && snap.EmbeddingModel != "" && snap.EmbeddingModel != r.embedder.ModelName() {
		return domain.NewError(domain.ErrRetrieval, "retrieval.load",
			fmt.Errorf("snapshot built with %q but embedder is %q, rebuild the index",
				snap.EmbeddingModel, r.embedder.ModelName()))
	}

	r.mu.Lock()
	r.chunks = snap.Chunks
	r.lexical = loadLexical(snap.IDF)
	r.model = snap.EmbeddingModel
	r.indexed = true
	r.mu.Unlock()

	logger.Info("index snapshot loaded", "chunks", len(snap.Chunks), "built_at", snap.BuiltAt)
	return nil
}

// Rebuild ingests the configured corpus, indexes it and saves a snapshot when
// a store is configured.
func (r *RetrievalIndex) Rebuild(ctx context.Context) (int, error) {
	chunks, err := r.Ingest(ctx, r.corpusPath)
	if err != nil {
		return 0, err
	}
	if err := r.Index(ctx); err != nil {
		return 0, err
	}
	if r.snapshots != nil {
		if err := r.Save(ctx); err != nil {
			return 0, err
		}
	}
	return len(chunks), nil
}

// LoadOrRebuild loads the stored snapshot, rebuilding from the corpus when
// none exists or it is stale.
func (r *RetrievalIndex) LoadOrRebuild(ctx context.Context) error {
	if r.snapshots != nil {
		err := r.Load(ctx)
		if err == nil {
			return nil
		}
		logger.Info("rebuilding index", "reason", err)
	}
	_, err := r.Rebuild(ctx)
	return err
}
