// Package store persists registry snapshots.
//
// Two backends implement [registry.Store]:
//   - [FileStore]: one JSON document on disk, the default for the CLI
//   - [MongoStore]: one MongoDB document per artifact and per repository,
//     for the long-running server
//
// [Open] picks the backend from a DSN: "mongodb://" and "mongodb+srv://"
// URIs select MongoDB, anything else is a file path.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/matzehuels/lamacheck/pkg/registry"
)

// Backend is a registry.Store that holds resources until closed.
type Backend interface {
	registry.Store
	Close() error
}

// Open returns the backend selected by dsn. database names the MongoDB
// database and is ignored by the file backend.
func Open(ctx context.Context, dsn, database string) (Backend, error) {
	if strings.HasPrefix(dsn, "mongodb://") || strings.HasPrefix(dsn, "mongodb+srv://") {
		return NewMongoStore(ctx, MongoOptions{URI: dsn, Database: database})
	}
	return NewFileStore(dsn)
}

// FileStore keeps the registry in a single JSON file.
type FileStore struct {
	mu   sync.RWMutex
	path string
}

// NewFileStore creates a file store at path, creating its directory.
// If path is empty, defaults to ~/.local/share/lamacheck/registry.json.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home dir: %w", err)
		}
		path = filepath.Join(home, ".local", "share", "lamacheck", "registry.json")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create registry dir: %w", err)
	}
	return &FileStore{path: path}, nil
}

// Load reads the snapshot. A missing file yields nil, nil.
func (s *FileStore) Load(ctx context.Context) (*registry.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read registry file: %w", err)
	}

	var snap registry.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse registry file %s: %w", s.path, err)
	}
	return &snap, nil
}

// Save writes the snapshot through a temporary file so a crash never
// leaves a truncated registry behind.
func (s *FileStore) Save(ctx context.Context, snap *registry.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal registry: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".registry-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write registry file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write registry file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0600); err != nil {
		return fmt.Errorf("write registry file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace registry file: %w", err)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }

// Path returns the registry file path.
func (s *FileStore) Path() string {
	return s.path
}

var _ Backend = (*FileStore)(nil)
