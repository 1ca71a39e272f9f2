// Package storage handles persistence of cached upstream collection records.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"bin-kiosk/pkg/collection"
)

const keyPrefix = "bins-"

// ErrNotFound indicates that no entry exists for a key.
var ErrNotFound = errors.New("storage: object doesn't exist")

// Backend is a key/value blob store. Put must replace the whole value atomically.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	List(ctx context.Context, prefix string) ([]string, error)
	Name() string
}

var (
	_ Backend = (*LocalBackend)(nil)
	_ Backend = (*GCSBackend)(nil)
	_ Backend = (*RedisBackend)(nil)
)

// Entry is one cached adapter payload.
type Entry struct {
	StoredAt time.Time              `json:"-"`
	Payload  []collection.RawRecord `json:"-"`
}

// wireEntry is the persisted JSON shape.
type wireEntry struct {
	StoredAt int64           `json:"storedAt"`
	Payload  json.RawMessage `json:"payload"`
}

// Info summarizes a cached entry without its payload.
type Info struct {
	Key      string    `json:"key"`
	StoredAt time.Time `json:"storedAt"`
	Records  int       `json:"records"`
	Fresh    bool      `json:"fresh"`
}

// Store is a two-tier (fresh, then stale) cache over a Backend.
type Store struct {
	backend Backend
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a new cache store.
func New(backend Backend, logger *slog.Logger) *Store {
	return &Store{
		backend: backend,
		logger:  logger,
		now:     time.Now,
	}
}

// Key derives a stable entry name from a source identity.
// Distinct properties or calendars never share an entry.
func Key(identity string) string {
	h := sha256.Sum256([]byte(strings.TrimSpace(identity)))
	return keyPrefix + hex.EncodeToString(h[:8]) + ".json"
}

// IsFresh reports whether an entry stored at storedAt is still inside window at now.
func IsFresh(storedAt, now time.Time, window time.Duration) bool {
	if storedAt.IsZero() {
		return false
	}
	return now.Sub(storedAt) < window
}

// Read loads an entry regardless of age. Callers apply IsFresh themselves.
func (s *Store) Read(ctx context.Context, key string) (*Entry, error) {
	data, err := s.backend.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	var w wireEntry
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("unmarshal cache entry: %w", err)
	}

	var payload []collection.RawRecord
	if len(w.Payload) > 0 {
		if err := json.Unmarshal(w.Payload, &payload); err != nil {
			return nil, fmt.Errorf("unmarshal cache payload: %w", err)
		}
	}

	s.logger.Debug("Cache entry read", "key", key, "backend", s.backend.Name(), "records", len(payload))
	return &Entry{
		StoredAt: time.Unix(w.StoredAt, 0),
		Payload:  payload,
	}, nil
}

// ReadFresh loads an entry only if it is younger than window.
func (s *Store) ReadFresh(ctx context.Context, key string, window time.Duration) (*Entry, error) {
	entry, err := s.Read(ctx, key)
	if err != nil {
		return nil, err
	}
	if !IsFresh(entry.StoredAt, s.now(), window) {
		return nil, ErrNotFound
	}
	return entry, nil
}

// Write replaces the entry for key with payload, stamped with the current time.
func (s *Store) Write(ctx context.Context, key string, payload []collection.RawRecord) error {
	if payload == nil {
		payload = []collection.RawRecord{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal cache payload: %w", err)
	}
	data, err := json.MarshalIndent(wireEntry{StoredAt: s.now().Unix(), Payload: raw}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := s.backend.Put(ctx, key, data); err != nil {
		return err
	}

	s.logger.Info("Cache entry saved", "key", key, "backend", s.backend.Name(), "records", len(payload))
	return nil
}

// List summarizes every cache entry.
func (s *Store) List(ctx context.Context, window time.Duration) ([]Info, error) {
	keys, err := s.backend.List(ctx, keyPrefix)
	if err != nil {
		return nil, fmt.Errorf("list cache entries: %w", err)
	}

	now := s.now()
	infos := make([]Info, 0, len(keys))
	for _, key := range keys {
		entry, err := s.Read(ctx, key)
		if err != nil {
			s.logger.Warn("Failed to load cache entry", "key", key, "error", err)
			continue
		}
		infos = append(infos, Info{
			Key:      key,
			StoredAt: entry.StoredAt,
			Records:  len(entry.Payload),
			Fresh:    IsFresh(entry.StoredAt, now, window),
		})
	}
	return infos, nil
}

// IsNotFound checks if an error indicates a cache miss.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
