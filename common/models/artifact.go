package models

import (
	"io"
	"time"
)

// Artifact is a stored blob handed back by a storage backend.
// The caller owns Body and must close it.
type Artifact struct {
	Key      CacheKey
	MimeType string
	Size     int64 // -1 when unknown
	Body     io.ReadCloser
}

// Close releases the artifact body
func (a *Artifact) Close() error {
	if a == nil || a.Body == nil {
		return nil
	}
	return a.Body.Close()
}

// StoredArtifact is a persisted row in the stored_artifact table
// Maps to: stored_artifact table
type StoredArtifact struct {
	Name      string      `db:"name" json:"name"`
	Kind      StorageKind `db:"kind" json:"kind"`
	MimeType  string      `db:"mime_type" json:"mime_type"`
	SizeBytes int64       `db:"size_bytes" json:"size_bytes"`
	Content   []byte      `db:"content" json:"-"`
	ClientUID string      `db:"client_uid" json:"client_uid,omitempty"`
	CreatedAt time.Time   `db:"created_at" json:"created_at"`
}

// Mime types for audio formats
var formatMimes = map[string]string{
	"m4a":  "audio/mp4",
	"aac":  "audio/aac",
	"mp3":  "audio/mpeg",
	"ogg":  "audio/ogg",
	"opus": "audio/opus",
	"webm": "audio/webm",
	"wav":  "audio/wav",
	"flac": "audio/flac",
}

const (
	MimeDefaultAudio = "audio/mpeg"
	MimeLog          = "text/plain"
)

// MimeForFormat returns the MIME type of an audio format, defaulting to audio/mpeg
func MimeForFormat(format string) string {
	if m, ok := formatMimes[format]; ok {
		return m
	}
	return MimeDefaultAudio
}
