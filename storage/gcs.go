package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"cloud.google.com/go/storage"
	"github.com/codeGROOVE-dev/retry"
	"google.golang.org/api/iterator"
)

// GCSBackend stores entries as Cloud Storage objects.
// Object writes become visible only when the writer is closed, so readers never see partial data.
type GCSBackend struct {
	client *storage.Client
	bucket string
	logger *slog.Logger
}

// NewGCS creates a Cloud Storage backend.
func NewGCS(client *storage.Client, bucket string, logger *slog.Logger) *GCSBackend {
	return &GCSBackend{
		client: client,
		bucket: bucket,
		logger: logger,
	}
}

// Name identifies the backend in logs.
func (b *GCSBackend) Name() string {
	return "gcs"
}

func (b *GCSBackend) retryOpts(ctx context.Context, op, key string) []retry.Option {
	return []retry.Option{
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(10 * time.Second),
		retry.MaxJitter(time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			b.logger.Info("Retrying storage operation after error", "op", op, "attempt", n, "key", key, "error", err)
		}),
	}
}

// Get reads the object for key.
func (b *GCSBackend) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	notFound := false
	err := retry.Do(
		func() error {
			r, openErr := b.client.Bucket(b.bucket).Object(key).NewReader(ctx)
			if openErr != nil {
				// Don't retry on "not found" errors
				if errors.Is(openErr, storage.ErrObjectNotExist) {
					notFound = true
					return retry.Unrecoverable(openErr)
				}
				return fmt.Errorf("open storage reader: %w", openErr)
			}
			defer func() {
				if closeErr := r.Close(); closeErr != nil {
					b.logger.Warn("Failed to close storage reader", "error", closeErr)
				}
			}()

			var readErr error
			data, readErr = io.ReadAll(r)
			if readErr != nil {
				return fmt.Errorf("read from storage: %w", readErr)
			}
			return nil
		},
		b.retryOpts(ctx, "get", key)...,
	)
	if notFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load after retries: %w", err)
	}
	return data, nil
}

// Put replaces the object for key.
func (b *GCSBackend) Put(ctx context.Context, key string, data []byte) error {
	err := retry.Do(
		func() error {
			w := b.client.Bucket(b.bucket).Object(key).NewWriter(ctx)
			w.ContentType = "application/json"
			if _, writeErr := w.Write(data); writeErr != nil {
				if closeErr := w.Close(); closeErr != nil {
					b.logger.Warn("Failed to close writer after error", "error", closeErr)
				}
				return fmt.Errorf("write to storage: %w", writeErr)
			}
			if closeErr := w.Close(); closeErr != nil {
				return fmt.Errorf("close storage writer: %w", closeErr)
			}
			return nil
		},
		b.retryOpts(ctx, "put", key)...,
	)
	if err != nil {
		return fmt.Errorf("save after retries: %w", err)
	}
	return nil
}

// List returns the object names starting with prefix.
func (b *GCSBackend) List(ctx context.Context, prefix string) ([]string, error) {
	it := b.client.Bucket(b.bucket).Objects(ctx, &storage.Query{
		Prefix: prefix,
	})

	var keys []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterate storage: %w", err)
		}
		keys = append(keys, attrs.Name)
	}
	return keys, nil
}
