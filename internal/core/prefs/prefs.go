// Package prefs persists small user preferences, such as the zoom level, as
// plain strings under fixed keys.
package prefs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
)

// ErrNotFound is returned by Get for a key that has never been set.
var ErrNotFound = errors.New("preference not found")

// Store reads and writes preference values.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

var validKey = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

// ValidateKey rejects keys that cannot be used as a file name.
func ValidateKey(key string) error {
	if !validKey.MatchString(key) {
		return fmt.Errorf("invalid preference key %q", key)
	}
	return nil
}

// FileStore keeps one file per key under a directory.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a store rooted at dir. The directory is created on
// first write.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Get returns the stored value or ErrNotFound.
func (s *FileStore) Get(_ context.Context, key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(s.dir, key))
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("prefs get %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("prefs get %q: %w", key, err)
	}
	return string(data), nil
}

// Set writes the value atomically via a temp file and rename.
func (s *FileStore) Set(_ context.Context, key, value string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create prefs dir: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+key+".*")
	if err != nil {
		return fmt.Errorf("prefs set %q: %w", key, err)
	}
	if _, err := tmp.WriteString(value); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("prefs set %q: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("prefs set %q: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, key)); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("prefs set %q: %w", key, err)
	}
	return nil
}

// MemoryStore is an in-process Store, used when nothing should touch disk.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]string
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]string)}
}

// Get returns the stored value or ErrNotFound.
func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return "", fmt.Errorf("prefs get %q: %w", key, ErrNotFound)
	}
	return v, nil
}

// Set stores the value.
func (s *MemoryStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}
