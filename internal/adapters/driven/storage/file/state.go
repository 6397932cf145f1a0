// Package file keeps the small pieces of poller state in plain files inside
// the data directory, so they can be inspected and reset by hand:
//
//   - watermark: the Gmail history ID as decimal text
//   - processed.json: the IDs of messages that received a draft, as a JSON array
//
// Writes go through a temp file and a rename.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/custodia-labs/triage/internal/core/ports/driven"
)

// File names inside the data directory.
const (
	WatermarkFile = "watermark"
	ProcessedFile = "processed.json"
)

var (
	_ driven.WatermarkStore = (*WatermarkStore)(nil)
	_ driven.ProcessedStore = (*ProcessedStore)(nil)
)

// WatermarkStore persists the history cursor.
type WatermarkStore struct {
	mu   sync.Mutex
	path string
}

// NewWatermarkStore stores the cursor at <dataDir>/watermark.
func NewWatermarkStore(dataDir string) *WatermarkStore {
	return &WatermarkStore{path: filepath.Join(dataDir, WatermarkFile)}
}

// Get returns the stored cursor. ok is false when the file does not exist.
func (s *WatermarkStore) Get(_ context.Context) (uint64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read watermark: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return 0, false, nil
	}
	cursor, err := strconv.ParseUint(text, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse watermark %q: %w", text, err)
	}
	return cursor, true, nil
}

// Save replaces the stored cursor.
func (s *WatermarkStore) Save(_ context.Context, cursor uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeAtomic(s.path, []byte(strconv.FormatUint(cursor, 10)+"\n"))
}

// Path returns the file path.
func (s *WatermarkStore) Path() string { return s.path }

// ProcessedStore persists the processed message IDs. The file is read once
// and kept in memory; every Add rewrites it.
type ProcessedStore struct {
	mu     sync.Mutex
	path   string
	loaded bool
	ids    []string
	set    map[string]struct{}
}

// NewProcessedStore stores the IDs at <dataDir>/processed.json.
func NewProcessedStore(dataDir string) *ProcessedStore {
	return &ProcessedStore{path: filepath.Join(dataDir, ProcessedFile)}
}

// Contains reports whether id was recorded.
func (s *ProcessedStore) Contains(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return false, err
	}
	_, ok := s.set[id]
	return ok, nil
}

// Add records id. Recording a known ID does not touch the file.
func (s *ProcessedStore) Add(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return err
	}
	if _, ok := s.set[id]; ok {
		return nil
	}

	data, err := json.MarshalIndent(append(s.ids, id), "", "  ")
	if err != nil {
		return fmt.Errorf("encode processed ids: %w", err)
	}
	if err := writeAtomic(s.path, data); err != nil {
		return err
	}
	s.ids = append(s.ids, id)
	s.set[id] = struct{}{}
	return nil
}

// List returns the IDs in insertion order.
func (s *ProcessedStore) List(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return nil, err
	}
	return append([]string(nil), s.ids...), nil
}

// load reads the file once (caller must hold the lock).
func (s *ProcessedStore) load() error {
	if s.loaded {
		return nil
	}
	s.set = make(map[string]struct{})
	s.ids = nil

	data, err := os.ReadFile(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read processed ids: %w", err)
	}
	if len(strings.TrimSpace(string(data))) > 0 {
		var ids []string
		if err := json.Unmarshal(data, &ids); err != nil {
			return fmt.Errorf("parse %s: %w", s.path, err)
		}
		for _, id := range ids {
			if _, dup := s.set[id]; dup {
				continue
			}
			s.set[id] = struct{}{}
			s.ids = append(s.ids, id)
		}
	}
	s.loaded = true
	return nil
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
