package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lyzr/jukebox/common/cache"
	"github.com/lyzr/jukebox/common/models"
)

// ErrTrackNotFound is returned when the metadata service does not know a track
var ErrTrackNotFound = models.ErrTrackNotFound

// MetadataClient looks tracks up at GET {baseURL}/tracks/{id}
type MetadataClient struct {
	http    *HTTPClient
	baseURL string
	logger  Logger
}

// NewMetadataClient creates a client for the track metadata service
func NewMetadataClient(httpClient *HTTPClient, baseURL string, logger Logger) *MetadataClient {
	return &MetadataClient{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// GetInfo fetches a track's metadata
func (c *MetadataClient) GetInfo(ctx context.Context, id string) (*models.Track, error) {
	endpoint := c.baseURL + "/tracks/" + url.PathEscape(id)

	resp, err := c.http.DoRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("metadata request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrTrackNotFound, id)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("metadata service returned %d for %s", resp.StatusCode, id)
	}

	var track models.Track
	if err := json.NewDecoder(resp.Body).Decode(&track); err != nil {
		return nil, fmt.Errorf("failed to decode track %s: %w", id, err)
	}
	if track.ID == "" {
		track.ID = id
	}
	return &track, nil
}

// TrackLookup is anything that resolves track metadata
type TrackLookup interface {
	GetInfo(ctx context.Context, id string) (*models.Track, error)
}

// CachedMetadata memoizes successful lookups in a Cache
type CachedMetadata struct {
	next   TrackLookup
	cache  cache.Cache
	ttl    time.Duration
	logger Logger
}

// NewCachedMetadata wraps next with c
func NewCachedMetadata(next TrackLookup, c cache.Cache, ttl time.Duration, logger Logger) *CachedMetadata {
	return &CachedMetadata{next: next, cache: c, ttl: ttl, logger: logger}
}

func (m *CachedMetadata) GetInfo(ctx context.Context, id string) (*models.Track, error) {
	key := "track:" + id

	if data, ok, err := m.cache.Get(ctx, key); err != nil {
		m.logger.Warn("metadata cache read failed", "track_id", id, "error", err)
	} else if ok {
		var track models.Track
		if err := json.Unmarshal(data, &track); err == nil {
			return &track, nil
		}
	}

	track, err := m.next.GetInfo(ctx, id)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(track); err == nil {
		if err := m.cache.Set(ctx, key, data, m.ttl); err != nil {
			m.logger.Warn("metadata cache write failed", "track_id", id, "error", err)
		}
	}
	return track, nil
}

// StaticMetadata serves a fixed catalog, used when no metadata service is configured.
// Entries are "<artists> - <title>" strings keyed by track id.
type StaticMetadata struct {
	tracks map[string]*models.Track
}

// NewStaticMetadata parses a catalog map
func NewStaticMetadata(catalog map[string]string) *StaticMetadata {
	tracks := make(map[string]*models.Track, len(catalog))
	for id, entry := range catalog {
		t := &models.Track{ID: id, Title: strings.TrimSpace(entry)}
		if artists, title, ok := strings.Cut(entry, " - "); ok {
			t.Title = strings.TrimSpace(title)
			for _, a := range strings.Split(artists, ",") {
				if a = strings.TrimSpace(a); a != "" {
					t.Artists = append(t.Artists, a)
				}
			}
		}
		tracks[id] = t
	}
	return &StaticMetadata{tracks: tracks}
}

func (s *StaticMetadata) GetInfo(_ context.Context, id string) (*models.Track, error) {
	t, ok := s.tracks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTrackNotFound, id)
	}
	copied := *t
	return &copied, nil
}
