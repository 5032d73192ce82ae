package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/miofuku/ai-diary/pkg/logger"
	"go.uber.org/zap"
)

// JSONStore persists named documents as pretty-printed JSON files inside a
// single data directory. A document that is missing or unreadable is reset to
// the empty shape of the target value instead of failing, so a corrupt file
// never prevents startup.
type JSONStore struct {
	dir    string
	mu     sync.Mutex
	logger *zap.Logger
}

// New creates the data directory if needed and returns a store rooted there.
func New(dir string) (*JSONStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dir, err)
	}
	return &JSONStore{
		dir:    dir,
		logger: logger.Get(),
	}, nil
}

// Dir returns the data directory path.
func (s *JSONStore) Dir() string {
	return s.dir
}

// Load reads the named document into v. If the file does not exist it is
// created from v's current (empty) state. If the file contains invalid JSON
// it is reset the same way and the occurrence is logged; v is left untouched.
func (s *JSONStore) Load(name string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, name)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		s.logger.Info("Creating new document", zap.String("document", name))
		return s.writeLocked(name, v)
	}
	if err != nil {
		s.logger.Warn("Document unreadable, resetting to empty",
			zap.String("document", name),
			zap.Error(err),
		)
		return s.writeLocked(name, v)
	}

	if err := json.Unmarshal(data, v); err != nil {
		s.logger.Warn("Document contains invalid JSON, resetting to empty",
			zap.String("document", name),
			zap.Error(err),
		)
		return s.writeLocked(name, v)
	}

	return nil
}

// Save writes v as the named document.
func (s *JSONStore) Save(name string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(name, v)
}

// writeLocked marshals v and replaces the document atomically via a temp file
// rename, so a crash mid-write never leaves a torn document behind.
func (s *JSONStore) writeLocked(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal document %s: %w", name, err)
	}

	path := filepath.Join(s.dir, name)
	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", name, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write document %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file for %s: %w", name, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace document %s: %w", name, err)
	}

	return nil
}
