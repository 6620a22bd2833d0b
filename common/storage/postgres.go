package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/lyzr/jukebox/common/models"
)

// Querier is the part of pgxpool.Pool the postgres backend needs
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresBackend keeps artifacts in the stored_artifact table
type PostgresBackend struct {
	kindFilter
	db Querier
}

// NewPostgresBackend creates a backend over an existing pool
func NewPostgresBackend(db Querier, options map[string]any) *PostgresBackend {
	return &PostgresBackend{kindFilter: newKindFilter(options), db: db}
}

func (b *PostgresBackend) Name() string { return "postgres" }

func (b *PostgresBackend) IsStored(ctx context.Context, key models.CacheKey) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	query := `SELECT EXISTS(SELECT 1 FROM stored_artifact WHERE name = $1 AND kind = $2)`

	var exists bool
	if err := b.db.QueryRow(ctx, query, key.Name, string(key.Kind)).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check artifact existence: %w", err)
	}
	return exists, nil
}

// Store upserts the artifact row; a re-store replaces content and metadata
func (b *PostgresBackend) Store(ctx context.Context, key models.CacheKey, r io.Reader, mimeType, clientUID string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if !b.ShouldStore(key.Kind) {
		return fmt.Errorf("%s: %w", key.Kind, models.ErrStorageUnsupported)
	}

	content, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", key, err)
	}

	query := `
		INSERT INTO stored_artifact (name, kind, mime_type, content, size_bytes, client_uid, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), now())
		ON CONFLICT (name, kind) DO UPDATE
		SET mime_type = EXCLUDED.mime_type,
		    content = EXCLUDED.content,
		    size_bytes = EXCLUDED.size_bytes,
		    client_uid = EXCLUDED.client_uid,
		    created_at = EXCLUDED.created_at
	`

	if _, err := b.db.Exec(ctx, query,
		key.Name,
		string(key.Kind),
		mimeType,
		content,
		int64(len(content)),
		clientUID,
	); err != nil {
		return fmt.Errorf("failed to store artifact %s: %w", key, err)
	}
	return nil
}

func (b *PostgresBackend) Provide(ctx context.Context, key models.CacheKey) (*models.Artifact, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	query := `
		SELECT mime_type, content, size_bytes
		FROM stored_artifact
		WHERE name = $1 AND kind = $2
	`

	row := models.StoredArtifact{Name: key.Name, Kind: key.Kind}
	err := b.db.QueryRow(ctx, query, key.Name, string(key.Kind)).Scan(
		&row.MimeType,
		&row.Content,
		&row.SizeBytes,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", key, models.ErrNotStored)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load artifact %s: %w", key, err)
	}

	return &models.Artifact{
		Key:      key,
		MimeType: row.MimeType,
		Size:     row.SizeBytes,
		Body:     io.NopCloser(bytes.NewReader(row.Content)),
	}, nil
}
