package service

import (
	"context"

	"github.com/lyzr/jukebox/common/models"
)

// AudioSource is one way of turning a track into playable audio.
// Provide returns an error wrapping models.ErrSourceUnavailable when it cannot help,
// so the resolver moves on to the next source.
type AudioSource interface {
	Name() string
	Provide(ctx context.Context, track *models.Track, req models.Request) (models.Outcome, error)

	// ProvideLocation is best-effort and must not fetch or store anything
	ProvideLocation(ctx context.Context, track *models.Track, clientUID string) (string, bool)
}

// MetadataProvider resolves a track id to its metadata
type MetadataProvider interface {
	GetInfo(ctx context.Context, id string) (*models.Track, error)
}

// OverrideProvider maps a track id to an external URL that replaces it
type OverrideProvider interface {
	AudioOverride(ctx context.Context, trackID string) (string, bool, error)
}

// NoOverrides is used when no override store is configured
type NoOverrides struct{}

func (NoOverrides) AudioOverride(context.Context, string) (string, bool, error) {
	return "", false, nil
}
