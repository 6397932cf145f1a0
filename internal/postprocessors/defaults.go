package postprocessors

import (
	"github.com/custodia-labs/triage/internal/core/domain"
	"github.com/custodia-labs/triage/internal/core/ports/driven"
	"github.com/custodia-labs/triage/internal/postprocessors/chunker"
	"github.com/custodia-labs/triage/internal/postprocessors/cleaner"
)

// RegisterDefaults registers all built-in processors with the registry.
func RegisterDefaults(r *Registry) {
	r.Register("chunker", buildChunker)
	r.Register("cleaner", buildCleaner)
}

// DefaultPipeline builds the chunker followed by the cleaner, sized from
// the retrieval settings.
func DefaultPipeline(s domain.RetrievalSettings) (*Pipeline, error) {
	r := NewRegistry()
	RegisterDefaults(r)

	chunk, err := r.Build("chunker", map[string]any{
		"chunk_size": s.ChunkSize,
		"overlap":    s.ChunkOverlap,
	})
	if err != nil {
		return nil, err
	}
	clean, err := r.Build("cleaner", nil)
	if err != nil {
		return nil, err
	}
	return NewPipeline(chunk, clean), nil
}

// buildChunker creates a chunker processor from generic config.
// Supported config keys:
//   - chunk_size (int): Characters per chunk (default: 1000)
//   - overlap (int): Overlapping characters between chunks (default: 200)
func buildChunker(cfg map[string]any) (driven.PostProcessor, error) {
	var opts []chunker.Option

	if size, ok := getIntFromConfig(cfg, "chunk_size"); ok {
		opts = append(opts, chunker.WithChunkSize(size))
	}
	if overlap, ok := getIntFromConfig(cfg, "overlap"); ok {
		opts = append(opts, chunker.WithOverlap(overlap))
	}

	return chunker.New(opts...), nil
}

func buildCleaner(_ map[string]any) (driven.PostProcessor, error) {
	return cleaner.New(), nil
}

// getIntFromConfig extracts an int from a generic config map.
// TOML and JSON decoding produce int64 and float64 respectively.
func getIntFromConfig(cfg map[string]any, key string) (int, bool) {
	val, ok := cfg[key]
	if !ok {
		return 0, false
	}

	switch v := val.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
