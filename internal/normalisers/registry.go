package normalisers

import (
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/triage/internal/core/domain"
	"github.com/custodia-labs/triage/internal/core/ports/driven"
)

var _ driven.NormaliserRegistry = (*Registry)(nil)

// extensionTypes covers formats mime.TypeByExtension does not know on every
// platform.
var extensionTypes = map[string]string{
	".txt":      "text/plain",
	".text":     "text/plain",
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".eml":      "message/rfc822",
	".pdf":      "application/pdf",
	".html":     "text/html",
	".htm":      "text/html",
	".csv":      "text/csv",
}

// MIMEType guesses the content type of a corpus file from its extension.
func MIMEType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if t, ok := extensionTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		if i := strings.IndexByte(t, ';'); i >= 0 {
			t = t[:i]
		}
		return t
	}
	return "application/octet-stream"
}

// Registry dispatches raw files to the highest-priority normaliser that
// supports their MIME type.
type Registry struct {
	mu     sync.RWMutex
	byType map[string][]driven.Normaliser
}

// NewRegistry creates a registry holding the given normalisers.
func NewRegistry(normalisers ...driven.Normaliser) *Registry {
	r := &Registry{byType: make(map[string][]driven.Normaliser)}
	for _, n := range normalisers {
		r.Register(n)
	}
	return r
}

// Register adds a normaliser.
func (r *Registry) Register(n driven.Normaliser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range n.SupportedMIMETypes() {
		list := append(r.byType[t], n)
		sort.SliceStable(list, func(i, j int) bool { return list[i].Priority() > list[j].Priority() })
		r.byType[t] = list
	}
}

// Supports reports whether some normaliser handles mimeType.
func (r *Registry) Supports(mimeType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byType[mimeType]) > 0
}

// SupportedMIMETypes returns every handled MIME type, sorted.
func (r *Registry) SupportedMIMETypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.byType))
	for t := range r.byType {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Normalise converts raw using the best matching normaliser.
func (r *Registry) Normalise(ctx context.Context, raw *domain.RawDocument) (*domain.Document, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}
	r.mu.RLock()
	candidates := r.byType[raw.MIMEType]
	r.mu.RUnlock()
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no normaliser for %s (%s): %w", raw.RelPath, raw.MIMEType, domain.ErrInvalidInput)
	}
	return candidates[0].Normalise(ctx, raw)
}

// NewDocument builds the document for raw. The ID is the corpus-relative
// path so it stays stable across rebuilds.
func NewDocument(raw *domain.RawDocument, title, content, format string) *domain.Document {
	id := raw.RelPath
	if id == "" {
		id = raw.URI
	}
	if title == "" {
		title = TitleFromPath(raw.URI)
	}
	return &domain.Document{
		ID:      filepath.ToSlash(id),
		URI:     raw.URI,
		Title:   title,
		Content: content,
		Metadata: map[string]any{
			"mime_type": raw.MIMEType,
			"format":    format,
		},
	}
}

// TitleFromPath turns "refund_policy-2024.txt" into "refund policy 2024".
func TitleFromPath(path string) string {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	return strings.NewReplacer("_", " ", "-", " ").Replace(name)
}
