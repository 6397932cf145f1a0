package domain

import "time"

// IndexSnapshot is the persisted form of the retrieval index.
// Reloading a snapshot reproduces identical search results.
type IndexSnapshot struct {
	// Chunks in index order, with embeddings and TF-IDF weights.
	Chunks []Chunk

	// IDF is the inverse document frequency of every vocabulary term.
	IDF map[string]float64

	// EmbeddingModel names the model that produced the chunk embeddings.
	EmbeddingModel string

	Dimensions int
	BuiltAt    time.Time
}
