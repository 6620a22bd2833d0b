//go:build gcp

package storage

import (
	"context"

	"github.com/lyzr/jukebox/common/config"
)

func newGCSBackendFromConfig(ctx context.Context, cfg *config.Config) (Backend, error) {
	return NewGCSBackend(ctx, GCSConfig{
		Bucket: cfg.Storage.GCSBucket,
		Prefix: cfg.Storage.GCSPrefix,
	}, cfg.StorageOptions)
}
