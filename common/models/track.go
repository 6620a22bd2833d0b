package models

import (
	"strings"
	"time"
)

// Track is the metadata for a playable song, as returned by the metadata provider
type Track struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Artists     []string `json:"artists,omitempty"`
	DurationMS  int64    `json:"duration_ms"`
	AnalysisRef string   `json:"analysis_ref,omitempty"`
	URL         string   `json:"url,omitempty"`
}

// SearchTerm is "<artists> - <title>", or just the title without artists
func (t *Track) SearchTerm() string {
	if len(t.Artists) == 0 {
		return t.Title
	}
	return strings.Join(t.Artists, ", ") + " - " + t.Title
}

// AudioOverride replaces a track's audio with an external URL
// Maps to: audio_override table
type AudioOverride struct {
	TrackID   string    `db:"track_id" json:"track_id"`
	URL       string    `db:"url" json:"url"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
