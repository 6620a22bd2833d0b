package service

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/jukebox/common/logger"
	"github.com/lyzr/jukebox/common/models"
	"github.com/lyzr/jukebox/common/storage"
)

func TestPipelineFetchesAndCaches(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	job := Job{Source: "ytsearch1:A - Song", Base: "track1", Kind: models.KindAudio, ClientUID: "u1"}

	outcome, err := e.pipeline.Run(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, "converted:raw-audio", body(t, outcome))
	assert.Equal(t, "audio/mp4", outcome.Artifact.MimeType)

	assert.True(t, e.stored(models.KindAudio, "track1.m4a"))
	assert.Empty(t, e.workspaceFiles(t))

	logs := e.storedLogs(t)
	require.Len(t, logs, 2)
	for _, name := range logs {
		assert.True(t, strings.HasPrefix(name, "track1-"), name)
	}

	// second run is served from storage without fetching
	outcome, err = e.pipeline.Run(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, "converted:raw-audio", body(t, outcome))
	assert.Equal(t, 1, e.fetcher.callCount())
	assert.Equal(t, 1, e.transcoder.callCount())
}

func TestPipelineUpdateRefetches(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	job := Job{Source: "q", Base: "track1", Kind: models.KindAudio}

	_, err := e.pipeline.Run(ctx, job)
	require.NoError(t, err)

	e.fetcher.content = "newer"
	job.Update = true
	outcome, err := e.pipeline.Run(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, "converted:newer", body(t, outcome))
	assert.Equal(t, 2, e.fetcher.callCount())
}

func TestPipelineSkipsTranscodeWhenTargetExists(t *testing.T) {
	e := newEnv(t, nil)
	e.fetcher.direct = true
	e.fetcher.content = "already-m4a"

	outcome, err := e.pipeline.Run(context.Background(), Job{Source: "q", Base: "t", Kind: models.KindAudio})
	require.NoError(t, err)
	assert.Equal(t, "already-m4a", body(t, outcome))
	assert.Equal(t, 0, e.transcoder.callCount())
	assert.Empty(t, e.workspaceFiles(t))
}

func TestPipelineFailuresCleanWorkspace(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(e *env)
		wantErr error
	}{
		{
			name: "download produced nothing",
			setup: func(e *env) {
				e.fetcher.content = ""
				e.fetcher.logLine = "ERROR: no results"
				e.fetcher.err = errors.New("exit status 1")
			},
			wantErr: models.ErrSourceUnavailable,
		},
		{
			name: "download killed after writing a partial file",
			setup: func(e *env) {
				e.fetcher.err = models.ErrProcessTimeout
				e.transcoder.err = errors.New("invalid data found when processing input")
			},
			wantErr: models.ErrSourceUnavailable,
		},
		{
			name:    "transcoder missing",
			setup:   func(e *env) { e.transcoder.available = false },
			wantErr: models.ErrProcessMissing,
		},
		{
			name:    "transcode failed",
			setup:   func(e *env) { e.transcoder.err = errors.New("exited with code 1") },
			wantErr: models.ErrSourceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, nil)
			tt.setup(e)

			_, err := e.pipeline.Run(context.Background(), Job{Source: "q", Base: "track1", Kind: models.KindAudio})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)

			assert.Empty(t, e.workspaceFiles(t))
			assert.False(t, e.stored(models.KindAudio, "track1.m4a"))
			assert.NotEmpty(t, e.storedLogs(t), "download log is kept")
		})
	}
}

// failingStore rejects every write of one kind
type failingStore struct {
	storage.Backend
	kind     models.StorageKind
	attempts int
}

func (f *failingStore) Store(ctx context.Context, key models.CacheKey, r io.Reader, mimeType, clientUID string) error {
	if key.Kind == f.kind {
		f.attempts++
		return errors.New("no space left on device")
	}
	return f.Backend.Store(ctx, key, r, mimeType, clientUID)
}

func TestPipelineStoreFailureCleansWorkspace(t *testing.T) {
	e := newEnv(t, nil)
	backend := &failingStore{Backend: e.backend, kind: models.KindAudio}
	p, err := NewPipeline(backend, e.fetcher, e.transcoder, e.tempDir, testFormat, logger.Discard(), nil)
	require.NoError(t, err)

	_, err = p.Run(context.Background(), Job{Source: "q", Base: "track1", Kind: models.KindAudio})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrSourceUnavailable)

	// stored once after transcoding and retried during cleanup
	assert.Equal(t, 2, backend.attempts)
	assert.Empty(t, e.workspaceFiles(t))
	assert.False(t, e.stored(models.KindAudio, "track1.m4a"))
	assert.Len(t, e.storedLogs(t), 2)
}

func TestPipelineStorageDisabled(t *testing.T) {
	e := newEnv(t, map[string]any{"EXTERNAL_AUDIO_IS_DISABLED": "true"})

	_, err := e.pipeline.Run(context.Background(), Job{Source: "https://x", Base: "abc", Kind: models.KindExternalAudio})
	assert.ErrorIs(t, err, models.ErrStorageUnsupported)
	assert.Equal(t, 0, e.fetcher.callCount())
}

func TestPipelineLogsDisabled(t *testing.T) {
	e := newEnv(t, map[string]any{"LOG_IS_DISABLED": true})

	_, err := e.pipeline.Run(context.Background(), Job{Source: "q", Base: "t", Kind: models.KindAudio})
	require.NoError(t, err)
	assert.Empty(t, e.storedLogs(t))
	assert.Empty(t, e.workspaceFiles(t))
}

func TestPipelineCallerGoneStillPersists(t *testing.T) {
	e := newEnv(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.fetcher.onDownload = cancel

	outcome, err := e.pipeline.Run(ctx, Job{Source: "q", Base: "track1", Kind: models.KindAudio})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeAbandoned, outcome.Kind)

	assert.True(t, e.stored(models.KindAudio, "track1.m4a"))
	assert.Len(t, e.storedLogs(t), 2)
	assert.Empty(t, e.workspaceFiles(t))
}

func TestLastLine(t *testing.T) {
	e := newEnv(t, nil)
	path := filepath.Join(e.tempDir, "x.log")
	require.NoError(t, os.WriteFile(path, []byte("first\nsecond\n\n"), 0o644))
	assert.Equal(t, "second", lastLine(path))
	assert.Equal(t, "", lastLine(filepath.Join(e.tempDir, "missing.log")))
}

func TestPipelineTagsMP3Output(t *testing.T) {
	e := newEnv(t, nil)
	p, err := NewPipeline(e.backend, e.fetcher, e.transcoder, e.tempDir, "mp3", logger.Discard(), nil)
	require.NoError(t, err)

	track := &models.Track{ID: "track1", Title: "Song", Artists: []string{"A"}}
	outcome, err := p.Run(context.Background(), Job{Source: "q", Base: "track1", Kind: models.KindAudio, Track: track})
	require.NoError(t, err)

	data := body(t, outcome)
	assert.True(t, strings.HasPrefix(data, "ID3"))
	assert.True(t, strings.HasSuffix(data, "converted:raw-audio"))
	assert.True(t, e.stored(models.KindAudio, "track1.mp3"))
	assert.Empty(t, e.workspaceFiles(t))
}

func TestPipelineCachesUntaggedWhenTaggingFails(t *testing.T) {
	e := newEnv(t, nil)
	p, err := NewPipeline(e.backend, e.fetcher, e.transcoder, e.tempDir, "mp3", logger.Discard(), nil)
	require.NoError(t, err)

	// too short to carry a tag header
	e.fetcher.content = "tiny"
	e.fetcher.direct = true

	track := &models.Track{ID: "track1", Title: "Song"}
	outcome, err := p.Run(context.Background(), Job{Source: "q", Base: "track1", Kind: models.KindAudio, Track: track})
	require.NoError(t, err)

	assert.Equal(t, "tiny", body(t, outcome))
	assert.True(t, e.stored(models.KindAudio, "track1.mp3"))
	assert.Equal(t, 0, e.transcoder.callCount())
	assert.Empty(t, e.workspaceFiles(t))
}
