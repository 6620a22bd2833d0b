package service

import (
	"context"
	"fmt"
	"net/url"

	"github.com/lyzr/jukebox/common/logger"
	"github.com/lyzr/jukebox/common/models"
)

// Locator finds a healthy peer for a relative node path
type Locator interface {
	Locate(ctx context.Context, relativePath string) (string, bool)
}

// NodeAudioSource hands requests to a healthy peer node. It never fetches locally.
type NodeAudioSource struct {
	locator Locator
	log     *logger.Logger
}

// NewNodeAudioSource creates a delegating source
func NewNodeAudioSource(locator Locator, log *logger.Logger) *NodeAudioSource {
	return &NodeAudioSource{locator: locator, log: log.WithComponent("node-source")}
}

func (s *NodeAudioSource) Name() string { return "node" }

// Provide redirects to {peer}/api/node/audio/{id}?user_uid={uid}
func (s *NodeAudioSource) Provide(ctx context.Context, track *models.Track, req models.Request) (models.Outcome, error) {
	path := "audio/" + url.PathEscape(track.ID) + "?user_uid=" + url.QueryEscape(req.ClientUID)

	target, ok := s.locator.Locate(ctx, path)
	if !ok {
		return models.Outcome{}, fmt.Errorf("%w: no healthy peer for %s", models.ErrSourceUnavailable, track.ID)
	}

	s.log.Debug("delegating to peer", "track_id", track.ID, "client_uid", req.ClientUID, "target", target)
	return models.Redirect(target), nil
}

func (s *NodeAudioSource) ProvideLocation(context.Context, *models.Track, string) (string, bool) {
	return "", false
}
