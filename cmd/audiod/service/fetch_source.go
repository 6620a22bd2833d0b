package service

import (
	"context"
	"net/url"
	"strings"

	"github.com/lyzr/jukebox/common/models"
)

// FetchAudioSource downloads a track by searching for "<artists> - <title>",
// then transcodes and caches it under <id>.<format>.
type FetchAudioSource struct {
	pipeline         *Pipeline
	searchTemplate   string
	locationTemplate string
}

// NewFetchAudioSource creates a source from printf-style templates taking the search term
func NewFetchAudioSource(pipeline *Pipeline, searchTemplate, locationTemplate string) *FetchAudioSource {
	return &FetchAudioSource{
		pipeline:         pipeline,
		searchTemplate:   searchTemplate,
		locationTemplate: locationTemplate,
	}
}

func (s *FetchAudioSource) Name() string { return "fetch" }

func (s *FetchAudioSource) Provide(ctx context.Context, track *models.Track, req models.Request) (models.Outcome, error) {
	return s.pipeline.Run(ctx, Job{
		Source:    s.query(track),
		Base:      track.ID,
		Kind:      models.KindAudio,
		ClientUID: req.ClientUID,
		Update:    req.Update,
		Track:     track,
	})
}

// ProvideLocation points at a search results page for the track
func (s *FetchAudioSource) ProvideLocation(_ context.Context, track *models.Track, _ string) (string, bool) {
	if s.locationTemplate == "" {
		return "", false
	}
	return fill(s.locationTemplate, url.QueryEscape(track.SearchTerm())), true
}

func (s *FetchAudioSource) query(track *models.Track) string {
	if track.URL != "" {
		return track.URL
	}
	return fill(s.searchTemplate, track.SearchTerm())
}

// fill substitutes the first %s, or appends when the template has none
func fill(template, value string) string {
	if !strings.Contains(template, "%s") {
		return template + value
	}
	return strings.Replace(template, "%s", value, 1)
}
