package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/lyzr/jukebox/common/config"
	"github.com/lyzr/jukebox/common/db"
)

// NewBackendFromConfig creates the backend selected by STORAGE_TYPE.
// pool may be nil unless the postgres backend is selected.
func NewBackendFromConfig(ctx context.Context, cfg *config.Config, pool *db.DB) (Backend, error) {
	switch cfg.Storage.Type {
	case config.StorageLocal, "":
		return NewLocalBackend(cfg.Storage.LocalDir, cfg.StorageOptions)
	case config.StorageS3:
		return NewS3Backend(ctx, S3Config{
			Bucket:   cfg.Storage.S3Bucket,
			Region:   cfg.Storage.S3Region,
			Endpoint: cfg.Storage.S3Endpoint,
			Prefix:   cfg.Storage.S3Prefix,
		}, cfg.StorageOptions)
	case config.StorageGCS:
		return newGCSBackendFromConfig(ctx, cfg)
	case config.StoragePostgres:
		if pool == nil {
			return nil, errors.New("postgres storage requires a database connection")
		}
		return NewPostgresBackend(pool.Pool, cfg.StorageOptions), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}
}
