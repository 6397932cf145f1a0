package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/triage/internal/logger"
)

// DefaultDebounce coalesces bursts of editor writes into one rebuild.
const DefaultDebounce = 2 * time.Second

// ErrWatcherClosed is returned when Run is called on a closed watcher.
var ErrWatcherClosed = errors.New("watcher closed")

// Watcher notifies a callback when corpus files change.
type Watcher struct {
	loader   *Loader
	root     string
	debounce time.Duration

	fsw *fsnotify.Watcher
}

// NewWatcher creates a watcher over root. Events are filtered with the
// loader's globs.
func NewWatcher(loader *Loader, root string, debounce time.Duration) (*Watcher, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("root path error: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root path error: %s is not a directory", root)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	w := &Watcher{loader: loader, root: root, debounce: debounce, fsw: fsw}
	if err := w.addTree(root); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// Run blocks until ctx is cancelled, calling onChange once per quiet period
// after relevant changes. Callback errors are logged.
func (w *Watcher) Run(ctx context.Context, onChange func(ctx context.Context) error) error {
	if w.fsw == nil {
		return ErrWatcherClosed
	}

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.fsw.Events:
			if !ok {
				return ErrWatcherClosed
			}
			if rel, relevant := w.handleEvent(event); relevant {
				logger.Debug("corpus change", "path", rel, "op", event.Op.String())
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return ErrWatcherClosed
			}
			logger.Warn("corpus watcher error", "error", err)

		case <-timer.C:
			logger.Info("corpus changed, rebuilding index", "root", w.root)
			if err := onChange(ctx); err != nil {
				logger.Error("corpus rebuild failed", "error", err)
			}
		}
	}
}

// Close stops watching. It is safe to call more than once.
func (w *Watcher) Close() error {
	if w.fsw == nil {
		return nil
	}
	err := w.fsw.Close()
	w.fsw = nil
	return err
}

// handleEvent reports whether event touches a corpus file. New directories
// are added to the watch list and reported only if they are not excluded.
func (w *Watcher) handleEvent(event fsnotify.Event) (string, bool) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return "", false
	}

	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)

	if event.Has(fsnotify.Create) {
		if info, statErr := os.Stat(event.Name); statErr == nil && info.IsDir() {
			if w.loader.excludedDir(rel) {
				return "", false
			}
			if err := w.addTree(event.Name); err != nil {
				logger.Warn("failed to watch new directory", "path", rel, "error", err)
			}
			return rel, true
		}
	}
	return rel, w.loader.Matches(rel)
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if rel, relErr := filepath.Rel(w.root, path); relErr == nil && rel != "." &&
			w.loader.excludedDir(filepath.ToSlash(rel)) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}
