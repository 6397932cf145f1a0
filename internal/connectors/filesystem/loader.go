// Package filesystem loads the knowledge corpus from a directory tree and
// watches it for changes.
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/custodia-labs/triage/internal/core/domain"
	"github.com/custodia-labs/triage/internal/core/ports/driven"
	"github.com/custodia-labs/triage/internal/logger"
	"github.com/custodia-labs/triage/internal/normalisers"
)

// Ensure Loader implements the interface.
var _ driven.CorpusLoader = (*Loader)(nil)

// DefaultMaxFileSize skips files larger than 20 MiB.
const DefaultMaxFileSize int64 = 20 << 20

// Loader walks a corpus root and normalises every file matching the include
// globs and none of the exclude globs. Globs are matched against the
// slash-separated path relative to the root.
type Loader struct {
	registry    driven.NormaliserRegistry
	include     []string
	exclude     []string
	maxFileSize int64
}

// NewLoader creates a loader. An empty include list matches every file.
func NewLoader(registry driven.NormaliserRegistry, include, exclude []string) *Loader {
	if len(include) == 0 {
		include = []string{"**/*"}
	}
	return &Loader{
		registry:    registry,
		include:     include,
		exclude:     exclude,
		maxFileSize: DefaultMaxFileSize,
	}
}

// Load returns the documents under root in path order. Files that cannot be
// read or normalised are logged and skipped.
func (l *Loader) Load(ctx context.Context, root string) ([]domain.Document, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, domain.NewError(domain.ErrIngestion, "corpus.load", err)
	}
	if !info.IsDir() {
		return nil, domain.NewError(domain.ErrIngestion, "corpus.load",
			fmt.Errorf("%s is not a directory", root))
	}

	var docs []domain.Document
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logger.Warn("skipping unreadable path", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if l.excludedDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !l.Matches(rel) {
			return nil
		}

		doc, ok := l.loadFile(ctx, path, rel)
		if ok {
			docs = append(docs, *doc)
		}
		return nil
	})
	if walkErr != nil {
		return docs, domain.NewError(domain.ErrIngestion, "corpus.load", walkErr)
	}

	logger.Debug("corpus loaded", "root", root, "documents", len(docs))
	return docs, nil
}

// Matches reports whether a relative path is part of the corpus.
func (l *Loader) Matches(rel string) bool {
	return matchAny(l.include, rel) && !l.Excluded(rel)
}

// Excluded reports whether a relative path hits an exclude glob.
func (l *Loader) Excluded(rel string) bool {
	return matchAny(l.exclude, rel)
}

// excludedDir checks a directory both bare and with a trailing slash, so
// "**/.*" prunes ".git" and "drafts/**" prunes "drafts".
func (l *Loader) excludedDir(rel string) bool {
	return l.Excluded(rel) || l.Excluded(rel+"/")
}

func (l *Loader) loadFile(ctx context.Context, path, rel string) (*domain.Document, bool) {
	info, err := os.Stat(path)
	if err != nil {
		logger.Warn("skipping unreadable file", "path", rel, "error", err)
		return nil, false
	}
	if l.maxFileSize > 0 && info.Size() > l.maxFileSize {
		logger.Warn("skipping oversized file", "path", rel, "size", info.Size())
		return nil, false
	}

	content, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("skipping unreadable file", "path", rel, "error", err)
		return nil, false
	}

	raw := &domain.RawDocument{
		URI:      path,
		RelPath:  rel,
		MIMEType: normalisers.MIMEType(path),
		Content:  content,
	}
	doc, err := l.registry.Normalise(ctx, raw)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			logger.Debug("skipping unsupported file", "path", rel, "mime_type", raw.MIMEType, "error", err)
		} else {
			logger.Warn("failed to normalise file", "path", rel, "error", err)
		}
		return nil, false
	}
	if doc.Content == "" {
		logger.Debug("skipping empty document", "path", rel)
		return nil, false
	}
	return doc, true
}

func matchAny(patterns []string, rel string) bool {
	for _, pattern := range patterns {
		if matched, err := doublestar.Match(pattern, rel); err == nil && matched {
			return true
		}
	}
	return false
}
