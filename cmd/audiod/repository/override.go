package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/lyzr/jukebox/common/models"
	"github.com/lyzr/jukebox/common/storage"
)

// OverrideRepository handles database operations for audio overrides
type OverrideRepository struct {
	db storage.Querier
}

// NewOverrideRepository creates a new override repository
func NewOverrideRepository(db storage.Querier) *OverrideRepository {
	return &OverrideRepository{db: db}
}

// AudioOverride returns the replacement URL for a track, if one is set
func (r *OverrideRepository) AudioOverride(ctx context.Context, trackID string) (string, bool, error) {
	query := `SELECT url FROM audio_override WHERE track_id = $1`

	var url string
	err := r.db.QueryRow(ctx, query, trackID).Scan(&url)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get audio override: %w", err)
	}
	return url, true, nil
}

// Upsert sets or replaces the override of a track
func (r *OverrideRepository) Upsert(ctx context.Context, o *models.AudioOverride) error {
	query := `
		INSERT INTO audio_override (track_id, url)
		VALUES ($1, $2)
		ON CONFLICT (track_id) DO UPDATE SET url = EXCLUDED.url, created_at = now()
	`

	if _, err := r.db.Exec(ctx, query, o.TrackID, o.URL); err != nil {
		return fmt.Errorf("failed to upsert audio override: %w", err)
	}
	return nil
}

// Delete removes a track's override
func (r *OverrideRepository) Delete(ctx context.Context, trackID string) error {
	query := `DELETE FROM audio_override WHERE track_id = $1`

	if _, err := r.db.Exec(ctx, query, trackID); err != nil {
		return fmt.Errorf("failed to delete audio override: %w", err)
	}
	return nil
}

// StaticOverrides serves overrides from "id=url" entries in the options file
type StaticOverrides map[string]string

// NewStaticOverrides parses entries, skipping malformed ones
func NewStaticOverrides(entries []string) StaticOverrides {
	o := make(StaticOverrides, len(entries))
	for _, e := range entries {
		id, url, ok := strings.Cut(e, "=")
		id, url = strings.TrimSpace(id), strings.TrimSpace(url)
		if ok && id != "" && url != "" {
			o[id] = url
		}
	}
	return o
}

func (o StaticOverrides) AudioOverride(_ context.Context, trackID string) (string, bool, error) {
	url, ok := o[trackID]
	return url, ok, nil
}
