// FAME - Artist Performance Status Cache and Sync Engine
// Copyright 2026 Htoo Aung (HtooAg)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/HtooAg/FAME-sub001

package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	gcs "cloud.google.com/go/storage"
	"golang.org/x/time/rate"
	"google.golang.org/api/iterator"

	"github.com/HtooAg/FAME-sub001/internal/logging"
)

// GCSConfig controls the Google Cloud Storage backend.
type GCSConfig struct {
	// Bucket is the bucket name. Required.
	Bucket string

	// Prefix is prepended to every object name so multiple deployments
	// can share a bucket. Normalized to end with "/" when non-empty.
	Prefix string

	// RequestsPerSecond paces outbound API calls. GCS rate-limits
	// per-object mutations, and a full event sync touches hundreds of
	// objects in a burst.
	RequestsPerSecond float64

	// Burst is the rate limiter bucket size.
	Burst int

	// RequestTimeout bounds each individual API call.
	RequestTimeout time.Duration
}

// DefaultGCSConfig returns production settings for the given bucket.
func DefaultGCSConfig(bucket string) GCSConfig {
	return GCSConfig{
		Bucket:            bucket,
		Prefix:            "fame/",
		RequestsPerSecond: 50,
		Burst:             20,
		RequestTimeout:    30 * time.Second,
	}
}

// GCSStore implements Store on a Google Cloud Storage bucket. Each key
// maps to one object; values are stored as application/json. Credentials
// come from the environment (Application Default Credentials, or
// STORAGE_EMULATOR_HOST against an emulator).
type GCSStore struct {
	client  *gcs.Client
	bucket  *gcs.BucketHandle
	config  GCSConfig
	limiter *rate.Limiter

	mu     sync.RWMutex
	closed bool
}

// NewGCSStore connects to the configured bucket. The bucket must already
// exist; creation is a deployment concern, not a runtime one.
func NewGCSStore(ctx context.Context, config GCSConfig) (*GCSStore, error) {
	if config.Bucket == "" {
		return nil, fmt.Errorf("gcs store: bucket is required")
	}
	if config.Prefix != "" && !strings.HasSuffix(config.Prefix, "/") {
		config.Prefix += "/"
	}
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = 50
	}
	if config.Burst <= 0 {
		config.Burst = 20
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 30 * time.Second
	}

	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	s := &GCSStore{
		client:  client,
		bucket:  client.Bucket(config.Bucket),
		config:  config,
		limiter: rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst),
	}

	logging.Info().
		Str("bucket", config.Bucket).
		Str("prefix", config.Prefix).
		Float64("requests_per_second", config.RequestsPerSecond).
		Msg("GCS store connected")

	return s, nil
}

// object returns the handle for a logical key.
func (s *GCSStore) object(key string) *gcs.ObjectHandle {
	return s.bucket.Object(s.config.Prefix + key)
}

// Get reads one object. Returns ErrKeyNotFound when the object does not
// exist.
func (s *GCSStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()

	reader, err := s.object(key).NewReader(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open object %s: %w", key, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", key, err)
	}
	return data, nil
}

// Set writes one object. The writer's Close finalizes the upload, so its
// error is the one that matters.
func (s *GCSStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()

	writer := s.object(key).NewWriter(ctx)
	writer.ContentType = "application/json"

	if _, err := writer.Write(value); err != nil {
		writer.Close()
		return fmt.Errorf("failed to write object %s: %w", key, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize object %s: %w", key, err)
	}
	return nil
}

// Delete removes one object. Deleting a missing object is not an error.
func (s *GCSStore) Delete(ctx context.Context, key string) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()

	err := s.object(key).Delete(ctx)
	if err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}
	return nil
}

// List returns every object under the prefix. Each listed object costs a
// separate read, so the limiter paces the loop.
func (s *GCSStore) List(ctx context.Context, prefix string) ([]KV, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}

	query := &gcs.Query{Prefix: s.config.Prefix + prefix}
	it := s.bucket.Objects(ctx, query)

	var results []KV
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list objects under %s: %w", prefix, err)
		}

		key := strings.TrimPrefix(attrs.Name, s.config.Prefix)
		value, err := s.Get(ctx, key)
		if errors.Is(err, ErrKeyNotFound) {
			// Deleted between listing and reading.
			continue
		}
		if err != nil {
			return nil, err
		}
		results = append(results, KV{Key: key, Value: value})
	}
	return results, nil
}

// Healthy probes the bucket. Failure means the remote side of a sync run
// is unreachable and the run should not start.
func (s *GCSStore) Healthy(ctx context.Context) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()

	if _, err := s.bucket.Attrs(ctx); err != nil {
		return fmt.Errorf("%w: bucket %q: %v", ErrStoreUnavailable, s.config.Bucket, err)
	}
	return nil
}

// Close releases the API client.
func (s *GCSStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	logging.Info().Str("bucket", s.config.Bucket).Msg("closing GCS store")
	return s.client.Close()
}

// acquire checks the closed flag and waits for a limiter token.
func (s *GCSStore) acquire(ctx context.Context) error {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return ErrStoreClosed
	}
	return s.limiter.Wait(ctx)
}
