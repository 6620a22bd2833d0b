//go:build gcp

package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"

	"github.com/lyzr/jukebox/common/models"
)

// GCSBackend stores artifacts as objects under <prefix><kind>/<name>
type GCSBackend struct {
	kindFilter
	client *storage.Client
	bucket string
	prefix string
}

// GCSConfig holds configuration for GCSBackend
type GCSConfig struct {
	Bucket string
	Prefix string
}

// NewGCSBackend creates the backend using application default credentials
func NewGCSBackend(ctx context.Context, cfg GCSConfig, options map[string]any) (*GCSBackend, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("gcs bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &GCSBackend{
		kindFilter: newKindFilter(options),
		client:     client,
		bucket:     cfg.Bucket,
		prefix:     cfg.Prefix,
	}, nil
}

func (b *GCSBackend) Name() string { return "gcs" }

func (b *GCSBackend) object(key models.CacheKey) *storage.ObjectHandle {
	return b.client.Bucket(b.bucket).Object(b.prefix + key.Kind.Dir() + "/" + key.Name)
}

func (b *GCSBackend) IsStored(ctx context.Context, key models.CacheKey) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	_, err := b.object(key).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("gcs attrs failed for %s: %w", key, err)
	}
	return true, nil
}

func (b *GCSBackend) Store(ctx context.Context, key models.CacheKey, r io.Reader, mimeType, clientUID string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if !b.ShouldStore(key.Kind) {
		return fmt.Errorf("%s: %w", key.Kind, models.ErrStorageUnsupported)
	}

	w := b.object(key).NewWriter(ctx)
	w.ContentType = mimeType
	if clientUID != "" {
		w.Metadata = map[string]string{"client-uid": clientUID}
	}

	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("gcs write failed for %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs close failed for %s: %w", key, err)
	}
	return nil
}

func (b *GCSBackend) Provide(ctx context.Context, key models.CacheKey) (*models.Artifact, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	reader, err := b.object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%s: %w", key, models.ErrNotStored)
	}
	if err != nil {
		return nil, fmt.Errorf("gcs get failed for %s: %w", key, err)
	}

	mimeType := reader.Attrs.ContentType
	if mimeType == "" {
		mimeType = models.MimeDefaultAudio
	}
	return &models.Artifact{
		Key:      key,
		MimeType: mimeType,
		Size:     reader.Attrs.Size,
		Body:     reader,
	}, nil
}

// Close closes the GCS client
func (b *GCSBackend) Close() error {
	return b.client.Close()
}
