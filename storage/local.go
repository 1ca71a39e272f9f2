package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// LocalBackend stores entries as files in a directory.
type LocalBackend struct {
	dir    string
	logger *slog.Logger
}

// NewLocal creates the directory if needed and returns a file backend.
func NewLocal(dir string, logger *slog.Logger) (*LocalBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create local storage directory: %w", err)
	}
	return &LocalBackend{dir: dir, logger: logger}, nil
}

// Name identifies the backend in logs.
func (b *LocalBackend) Name() string {
	return "local"
}

// Get reads the file for key.
func (b *LocalBackend) Get(_ context.Context, key string) ([]byte, error) {
	if !validKey(key) {
		return nil, errors.New("invalid key format")
	}
	data, err := os.ReadFile(filepath.Join(b.dir, key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read from local storage: %w", err)
	}
	return data, nil
}

// Put writes to a temp file in the same directory and renames it over the
// entry, so concurrent readers see either the old or the new file.
func (b *LocalBackend) Put(_ context.Context, key string, data []byte) error {
	if !validKey(key) {
		return errors.New("invalid key format")
	}

	tmp, err := os.CreateTemp(b.dir, key+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		// No-op once the rename succeeded.
		if rmErr := os.Remove(tmpPath); rmErr != nil && !os.IsNotExist(rmErr) {
			b.logger.Warn("Failed to remove temp file", "path", tmpPath, "error", rmErr)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}

	filePath := filepath.Join(b.dir, key)
	if err := os.Rename(tmpPath, filePath); err != nil {
		return fmt.Errorf("write to local storage: %w", err)
	}
	return nil
}

// List returns the keys starting with prefix.
func (b *LocalBackend) List(_ context.Context, prefix string) ([]string, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, fmt.Errorf("read local storage directory: %w", err)
	}

	var keys []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		keys = append(keys, name)
	}
	return keys, nil
}

// validKey rejects anything that could escape the storage directory.
func validKey(key string) bool {
	return key != "" && !strings.ContainsAny(key, `/\`) && !strings.Contains(key, "..")
}
