package domain

// Document is a corpus file after text extraction.
// It is the input to chunking.
type Document struct {
	// ID identifies the document within the corpus, normally its relative path.
	ID string

	// URI is the original location on disk.
	URI string

	// Title is a human-readable title.
	Title string

	// Content is the full extracted text.
	Content string

	// Metadata contains format-specific key-value pairs.
	Metadata map[string]any
}

// Chunk is a bounded, overlapping window of text derived from a Document.
// Chunks are immutable once ingested and are owned by the retrieval index.
type Chunk struct {
	// ID is the unique identifier for the chunk.
	ID string

	// SourceID links to the Document the chunk was cut from.
	SourceID string

	// Ordinal is the position of the chunk within its document.
	Ordinal int

	// Content is the text of this window.
	Content string

	// Embedding is the dense vector for semantic scoring.
	Embedding []float32

	// Terms holds the TF-IDF weights of the chunk, L2-normalised.
	Terms map[string]float64
}

// ScoredChunk is a retrieval hit.
type ScoredChunk struct {
	Chunk Chunk

	// Score is max(Dense, Lexical).
	Score float64

	// Dense is the cosine similarity between query and chunk embeddings.
	Dense float64

	// Lexical is the TF-IDF cosine similarity.
	Lexical float64

	// Position is the chunk's index in the retrieval index, used for tie-breaks.
	Position int
}
