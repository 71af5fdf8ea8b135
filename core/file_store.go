package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// FileStore persists each key as one JSON document file in a directory.
// It is the durable local-storage analogue: state written by one process run
// is readable by the next, the way browser local storage survives reloads.
//
// TTLs are not honored by this backend; the mirror document has no expiry.
// Single writer at a time is assumed (one "tab"); a second process writing
// the same directory simply overwrites on next write, last write wins.
type FileStore struct {
	mu     sync.Mutex
	dir    string
	logger Logger
}

// NewFileStore creates the directory when missing.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("file store needs a directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	return &FileStore{dir: dir, logger: &NoOpLogger{}}, nil
}

// SetLogger configures the logger for this store
func (f *FileStore) SetLogger(logger Logger) {
	if logger != nil {
		f.logger = logger
	}
}

// path maps a storage key to a file name, keeping keys like
// "unimerch.cart" readable on disk.
func (f *FileStore) path(key string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, key)
	return filepath.Join(f.dir, safe+".json")
}

// Get retrieves a value; a missing key returns "" without error.
func (f *FileStore) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path(key))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", key, err)
	}
	return string(data), nil
}

// Set writes the value; the ttl argument is accepted for interface parity
// and ignored.
func (f *FileStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.WriteFile(f.path(key), []byte(value), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	f.logger.Debug("Mirror persisted", map[string]interface{}{
		"operation":  "storage_set",
		"key":        key,
		"value_size": len(value),
	})
	return nil
}

// Delete removes the key's file; deleting a missing key is not an error.
func (f *FileStore) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	err := os.Remove(f.path(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

// Exists checks whether the key's file is present.
func (f *FileStore) Exists(ctx context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, err := os.Stat(f.path(key))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
