package service

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/jukebox/common/cas"
	"github.com/lyzr/jukebox/common/clients"
	"github.com/lyzr/jukebox/common/logger"
	"github.com/lyzr/jukebox/common/models"
)

const fallbackID = "7GhIk7Il098yCjg4BQjzvb"

type resolverEnv struct {
	*env
	resolver *Resolver
	locator  *fakeLocator
	prober   *fakeProber
}

func newResolverEnv(t *testing.T, options map[string]any, overrides OverrideProvider, withNode bool) *resolverEnv {
	t.Helper()
	e := newEnv(t, options)
	re := &resolverEnv{
		env:     e,
		locator: &fakeLocator{},
		prober:  &fakeProber{result: clients.ProbeResult{StatusCode: http.StatusOK, ContentType: "text/html"}},
	}

	var sources []AudioSource
	if withNode {
		sources = append(sources, NewNodeAudioSource(re.locator, logger.Discard()))
	}
	sources = append(sources, NewFetchAudioSource(e.pipeline, "ytsearch1:%s", "https://www.youtube.com/results?search_query=%s"))

	re.resolver = NewResolver(ResolverDeps{
		Storage: e.backend,
		Sources: sources,
		Metadata: clients.NewStaticMetadata(map[string]string{
			"track1":   "Artist - Song",
			fallbackID: "Rick Astley - Never Gonna Give You Up",
		}),
		Overrides:    overrides,
		Pipeline:     e.pipeline,
		Uploader:     NewUploader(e.backend, e.transcoder, e.tempDir, testFormat, 1024, logger.Discard(), nil),
		Prober:       re.prober,
		FallbackID:   fallbackID,
		ProbeTimeout: time.Second,
		Logger:       logger.Discard(),
	})
	return re
}

func TestJukeboxFetchesAndStores(t *testing.T) {
	re := newResolverEnv(t, nil, nil, false)
	ctx := context.Background()

	outcome := re.resolver.Jukebox(ctx, "track1", models.Request{ClientUID: "u1"})
	assert.Equal(t, "converted:raw-audio", body(t, outcome))
	assert.True(t, re.stored(models.KindAudio, "track1.m4a"))
	assert.Equal(t, []string{"ytsearch1:Artist - Song"}, re.fetcher.sources)
	assert.Empty(t, re.workspaceFiles(t))

	// cached
	outcome = re.resolver.Jukebox(ctx, "track1", models.Request{ClientUID: "u1"})
	assert.Equal(t, http.StatusOK, outcome.StatusCode())
	outcome.Artifact.Close()
	assert.Equal(t, 1, re.fetcher.callCount())

	// forced refresh
	outcome = re.resolver.Jukebox(ctx, "track1", models.Request{Update: true})
	outcome.Artifact.Close()
	assert.Equal(t, 2, re.fetcher.callCount())
}

func TestJukeboxStorageUnsupported(t *testing.T) {
	re := newResolverEnv(t, map[string]any{"AUDIO_IS_DISABLED": true}, nil, false)

	outcome := re.resolver.Jukebox(context.Background(), "track1", models.Request{})
	assert.Equal(t, models.OutcomeUnsupported, outcome.Kind)
	assert.Equal(t, "Configured storage method does not support storing AUDIO", outcome.Reason)
	assert.Equal(t, http.StatusNotImplemented, outcome.StatusCode())
}

func TestJukeboxOverrideRedirects(t *testing.T) {
	re := newResolverEnv(t, nil, mapOverrides{"track1": "https://cdn.example.com/a b.mp3"}, false)

	outcome := re.resolver.Jukebox(context.Background(), "track1", models.Request{})
	assert.Equal(t, models.OutcomeRedirect, outcome.Kind)
	assert.Equal(t, "/api/audio/external?url=https%3A%2F%2Fcdn.example.com%2Fa+b.mp3", outcome.Location)
	assert.Equal(t, 0, re.fetcher.callCount())
}

func TestJukeboxUnknownTrack(t *testing.T) {
	re := newResolverEnv(t, nil, nil, false)

	outcome := re.resolver.Jukebox(context.Background(), "nope", models.Request{})
	assert.Equal(t, models.OutcomeNotFound, outcome.Kind)
	assert.Equal(t, "Track info not found for nope", outcome.Reason)
	assert.Equal(t, http.StatusBadRequest, outcome.StatusCode())
}

func TestJukeboxInvalidID(t *testing.T) {
	re := newResolverEnv(t, nil, nil, false)

	outcome := re.resolver.Jukebox(context.Background(), "../etc", models.Request{})
	assert.Equal(t, models.OutcomeInvalid, outcome.Kind)
}

func TestJukeboxFallsBack(t *testing.T) {
	re := newResolverEnv(t, nil, nil, false)
	re.fetcher.content = ""
	re.fetcher.err = errors.New("exit status 1")

	outcome := re.resolver.Jukebox(context.Background(), "track1", models.Request{})
	assert.Equal(t, models.OutcomeRedirect, outcome.Kind)
	assert.True(t, outcome.Fallback)
	assert.Equal(t, "/api/audio/jukebox/"+fallbackID, outcome.Location)
	assert.Empty(t, re.workspaceFiles(t))

	// the fallback track itself failing must not redirect to itself
	outcome = re.resolver.Jukebox(context.Background(), fallbackID, models.Request{})
	assert.Equal(t, models.OutcomeFailed, outcome.Kind)
	assert.Equal(t, "Audio is null", outcome.Reason)
}

func TestJukeboxNodeSourceFirst(t *testing.T) {
	re := newResolverEnv(t, nil, nil, true)
	re.locator.peer = "http://peer-b:8080"

	outcome := re.resolver.Jukebox(context.Background(), "track1", models.Request{ClientUID: "u 1"})
	assert.Equal(t, models.OutcomeRedirect, outcome.Kind)
	assert.False(t, outcome.Fallback)
	assert.Equal(t, "http://peer-b:8080/api/node/audio/track1?user_uid=u+1", outcome.Location)
	assert.Equal(t, 0, re.fetcher.callCount())
}

func TestJukeboxNodeUnavailableFallsThroughToFetch(t *testing.T) {
	re := newResolverEnv(t, nil, nil, true)

	outcome := re.resolver.Jukebox(context.Background(), "track1", models.Request{})
	assert.Equal(t, "converted:raw-audio", body(t, outcome))
	assert.Len(t, re.locator.paths, 1)
}

func TestLocation(t *testing.T) {
	overrides := mapOverrides{
		"ov":  "https://cdn.example.com/a.mp3",
		"upl": "upl:abcdef",
	}
	re := newResolverEnv(t, nil, overrides, false)
	ctx := context.Background()

	loc, ok, err := re.resolver.Location(ctx, "ov", models.Request{})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "https://cdn.example.com/a.mp3", loc)

	_, ok, err = re.resolver.Location(ctx, "upl", models.Request{})
	require.NoError(t, err)
	assert.False(t, ok)

	loc, ok, err = re.resolver.Location(ctx, "track1", models.Request{})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "https://www.youtube.com/results?search_query=Artist+-+Song", loc)

	_, _, err = re.resolver.Location(ctx, "nope", models.Request{})
	assert.ErrorIs(t, err, models.ErrTrackNotFound)
	assert.Equal(t, 0, re.fetcher.callCount())
}

func TestExternalNoURL(t *testing.T) {
	re := newResolverEnv(t, nil, nil, false)

	outcome := re.resolver.External(context.Background(), "  ", models.Request{})
	assert.Equal(t, models.OutcomeInvalid, outcome.Kind)
	assert.Equal(t, "No URL provided", outcome.Reason)
}

func TestExternalAudioRedirectsDirectly(t *testing.T) {
	re := newResolverEnv(t, nil, nil, false)
	re.prober.result = clients.ProbeResult{StatusCode: http.StatusOK, ContentType: "audio/mpeg"}

	outcome := re.resolver.External(context.Background(), "cdn.example.com/a.mp3", models.Request{})
	assert.Equal(t, models.OutcomeRedirect, outcome.Kind)
	assert.False(t, outcome.Fallback)
	assert.Equal(t, "https://cdn.example.com/a.mp3", outcome.Location)
	assert.Equal(t, 0, re.fetcher.callCount())
}

func TestExternalFetchesAndStoresByURLHash(t *testing.T) {
	re := newResolverEnv(t, nil, nil, false)
	raw := "https://video.example.com/watch?v=1"

	outcome := re.resolver.External(context.Background(), raw, models.Request{})
	assert.Equal(t, "converted:raw-audio", body(t, outcome))
	assert.True(t, re.stored(models.KindExternalAudio, cas.URLKey(raw)+".m4a"))
	assert.Equal(t, []string{raw}, re.fetcher.sources)

	outcome = re.resolver.External(context.Background(), raw, models.Request{})
	outcome.Artifact.Close()
	assert.Equal(t, 1, re.fetcher.callCount())
}

func TestExternalFallbacks(t *testing.T) {
	tests := []struct {
		name    string
		options map[string]any
		url     string
		setup   func(re *resolverEnv)
		req     models.Request
		want    string
	}{
		{
			name: "unsupported protocol",
			url:  "ftp://files.example.com/a.mp3",
			want: "/api/audio/jukebox/" + fallbackID,
		},
		{
			name:  "upstream error status",
			url:   "https://example.com/missing",
			setup: func(re *resolverEnv) { re.prober.result.StatusCode = http.StatusNotFound },
			want:  "/api/audio/jukebox/" + fallbackID,
		},
		{
			name:  "upstream unreachable",
			url:   "https://example.com/",
			setup: func(re *resolverEnv) { re.prober.err = errors.New("connection refused") },
			want:  "/api/audio/jukebox/" + fallbackID,
		},
		{
			name:    "external storage disabled",
			options: map[string]any{"EXTERNAL_AUDIO_IS_DISABLED": true},
			url:     "https://example.com/page",
			want:    "/api/audio/jukebox/" + fallbackID,
		},
		{
			name:  "pipeline failure with request fallback",
			url:   "https://example.com/page",
			setup: func(re *resolverEnv) { re.fetcher.content = "" },
			req:   models.Request{FallbackID: "other"},
			want:  "/api/audio/jukebox/other",
		},
		{
			name:    "upload storage disabled",
			options: map[string]any{"UPLOADED_AUDIO_IS_DISABLED": true},
			url:     "upl:" + strings.Repeat("ab", 64),
			want:    "/api/audio/jukebox/" + fallbackID,
		},
		{
			name: "upload not stored",
			url:  "upl:" + strings.Repeat("ab", 64),
			want: "/api/audio/jukebox/" + fallbackID,
		},
		{
			name: "malformed upload reference",
			url:  "upl:../../etc/passwd",
			want: "/api/audio/jukebox/" + fallbackID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			re := newResolverEnv(t, tt.options, nil, false)
			if tt.setup != nil {
				tt.setup(re)
			}

			outcome := re.resolver.External(context.Background(), tt.url, tt.req)
			assert.Equal(t, models.OutcomeRedirect, outcome.Kind)
			assert.True(t, outcome.Fallback)
			assert.Equal(t, tt.want, outcome.Location)
			assert.Empty(t, re.workspaceFiles(t))
		})
	}
}

func TestExternalUploadedAudio(t *testing.T) {
	re := newResolverEnv(t, nil, nil, false)
	ctx := context.Background()

	hash, err := re.resolver.Upload(ctx, strings.NewReader("pcm"), "song.wav", models.Request{ClientUID: "u1"})
	require.NoError(t, err)

	outcome := re.resolver.External(ctx, "upl:"+hash, models.Request{})
	assert.Equal(t, "converted:pcm", body(t, outcome))
	assert.Equal(t, 0, re.prober.calls)
}
