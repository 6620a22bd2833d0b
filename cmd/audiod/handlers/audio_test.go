package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/jukebox/cmd/audiod/container"
	"github.com/lyzr/jukebox/cmd/audiod/service"
	"github.com/lyzr/jukebox/common/bootstrap"
	"github.com/lyzr/jukebox/common/clients"
	"github.com/lyzr/jukebox/common/config"
	"github.com/lyzr/jukebox/common/logger"
	"github.com/lyzr/jukebox/common/middleware"
	"github.com/lyzr/jukebox/common/ratelimit"
	"github.com/lyzr/jukebox/common/storage"
)

const fallbackID = "7GhIk7Il098yCjg4BQjzvb"

type stubFetcher struct{}

func (stubFetcher) Download(_ context.Context, _, out, _, logPath string) error {
	_ = os.WriteFile(logPath, []byte("downloading\n"), 0o644)
	return os.WriteFile(out, []byte("raw"), 0o644)
}

type stubTranscoder struct{ available bool }

func (s stubTranscoder) Available(context.Context) bool { return s.available }

func (stubTranscoder) Convert(_ context.Context, in, out, _ string) error {
	data, err := os.ReadFile(in)
	if err != nil {
		return err
	}
	return os.WriteFile(out, append([]byte("converted:"), data...), 0o644)
}

type htmlProber struct{}

func (htmlProber) Probe(context.Context, string, time.Duration) (clients.ProbeResult, error) {
	return clients.ProbeResult{StatusCode: http.StatusOK, ContentType: "text/html"}, nil
}

func newTestContainer(t *testing.T, options map[string]any, ffmpeg bool) *container.Container {
	t.Helper()
	log := logger.Discard()
	tempDir := t.TempDir()

	backend, err := storage.NewLocalBackend(t.TempDir(), options)
	require.NoError(t, err)

	transcoder := stubTranscoder{available: ffmpeg}
	pipeline, err := service.NewPipeline(backend, stubFetcher{}, transcoder, tempDir, "m4a", log, nil)
	require.NoError(t, err)
	uploader := service.NewUploader(backend, transcoder, tempDir, "m4a", 1<<20, log, nil)

	fetch := service.NewFetchAudioSource(pipeline, "ytsearch1:%s", "https://www.youtube.com/results?search_query=%s")
	resolver := service.NewResolver(service.ResolverDeps{
		Storage:      backend,
		Sources:      []service.AudioSource{fetch},
		Metadata:     clients.NewStaticMetadata(map[string]string{"track1": "Artist - Song"}),
		Pipeline:     pipeline,
		Uploader:     uploader,
		Prober:       htmlProber{},
		FallbackID:   fallbackID,
		ProbeTimeout: time.Second,
		Logger:       log,
	})

	return &container.Container{
		Components:    &bootstrap.Components{Config: &config.Config{}, Logger: log},
		Storage:       backend,
		Pipeline:      pipeline,
		Uploader:      uploader,
		Resolver:      resolver,
		PeerResolver:  resolver,
		UploadLimiter: ratelimit.NewLocalLimiter(ratelimit.DefaultUploadConfig),
	}
}

// serve runs a handler behind the client identity middleware
func serve(t *testing.T, h echo.HandlerFunc, req *http.Request, params ...string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req.Header.Set(clients.ClientUIDHeader, "uid-1")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if len(params) == 2 {
		c.SetParamNames(params[0])
		c.SetParamValues(params[1])
	}
	require.NoError(t, middleware.ExtractClientUID()(h)(c))
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestJukeboxServesAudio(t *testing.T) {
	h := NewAudioHandler(newTestContainer(t, nil, true))

	rec := serve(t, h.Jukebox, httptest.NewRequest(http.MethodGet, "/api/audio/jukebox/track1", nil), "id", "track1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "audio/mp4", rec.Header().Get(echo.HeaderContentType))
	assert.Equal(t, "converted:raw", rec.Body.String())
}

func TestJukeboxErrors(t *testing.T) {
	tests := []struct {
		name       string
		options    map[string]any
		id         string
		wantStatus int
		wantError  string
	}{
		{name: "unknown track", id: "nope", wantStatus: http.StatusBadRequest, wantError: "Track info not found for nope"},
		{
			name:       "audio storage disabled",
			options:    map[string]any{"AUDIO_IS_DISABLED": true},
			id:         "track1",
			wantStatus: http.StatusNotImplemented,
			wantError:  "Configured storage method does not support storing AUDIO",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewAudioHandler(newTestContainer(t, tt.options, true))

			rec := serve(t, h.Jukebox, httptest.NewRequest(http.MethodGet, "/", nil), "id", tt.id)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "uid-1", rec.Header().Get(clients.ClientUIDHeader))

			body := decodeError(t, rec)
			assert.Equal(t, tt.wantError, body.Error)
			assert.Equal(t, "uid-1", body.ClientUID)
		})
	}
}

func TestLocationHandler(t *testing.T) {
	h := NewAudioHandler(newTestContainer(t, nil, true))

	rec := serve(t, h.Location, httptest.NewRequest(http.MethodGet, "/", nil), "id", "track1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"url":"https://www.youtube.com/results?search_query=Artist+-+Song"}`, rec.Body.String())

	rec = serve(t, h.Location, httptest.NewRequest(http.MethodGet, "/", nil), "id", "nope")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExternalHandler(t *testing.T) {
	h := NewAudioHandler(newTestContainer(t, nil, true))

	rec := serve(t, h.External, httptest.NewRequest(http.MethodGet, "/api/audio/external", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No URL provided", decodeError(t, rec).Error)

	rec = serve(t, h.External, httptest.NewRequest(http.MethodGet, "/api/audio/external?url=ftp://x/a.mp3", nil))
	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, "/api/audio/jukebox/"+fallbackID, rec.Header().Get(echo.HeaderLocation))

	rec = serve(t, h.External, httptest.NewRequest(http.MethodGet, "/api/audio/external?url=ftp://x/a.mp3&fallbackID=abc", nil))
	assert.Equal(t, "/api/audio/jukebox/abc", rec.Header().Get(echo.HeaderLocation))

	rec = serve(t, h.External, httptest.NewRequest(http.MethodGet, "/api/audio/external?url=https://example.com/page", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "converted:raw", rec.Body.String())
}

func uploadRequest(t *testing.T, field, filename, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/audio/upload", &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return req
}

func TestUploadHandler(t *testing.T) {
	c := newTestContainer(t, nil, true)
	h := NewAudioHandler(c)

	rec := serve(t, h.Upload, uploadRequest(t, "file", "song.wav", "pcm"))
	require.Equal(t, http.StatusCreated, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body["id"], 128)

	// the returned id resolves through the external endpoint
	rec = serve(t, h.External, httptest.NewRequest(http.MethodGet, "/api/audio/external?url=upl:"+body["id"], nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "converted:pcm", rec.Body.String())

	rec = serve(t, h.Upload, uploadRequest(t, "other", "song.wav", "pcm"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No file uploads", decodeError(t, rec).Error)
}

func TestUploadHandlerUnsupported(t *testing.T) {
	tests := []struct {
		name    string
		options map[string]any
		ffmpeg  bool
	}{
		{name: "no transcoder", ffmpeg: false},
		{name: "storage disabled", options: map[string]any{"UPLOADED_AUDIO_IS_DISABLED": "true"}, ffmpeg: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewAudioHandler(newTestContainer(t, tt.options, tt.ffmpeg))

			rec := serve(t, h.Upload, uploadRequest(t, "file", "song.wav", "pcm"))
			assert.Equal(t, http.StatusBadGateway, rec.Code)
			assert.Equal(t, "This server does not support uploaded audio", decodeError(t, rec).Error)
		})
	}
}

func TestNodeHandler(t *testing.T) {
	h := NewNodeHandler(newTestContainer(t, nil, true))

	rec := serve(t, h.Healthy, httptest.NewRequest(http.MethodGet, "/api/node/healthy", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, h.Audio, httptest.NewRequest(http.MethodGet, "/api/node/audio/track1?user_uid=peer-user", nil), "id", "track1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "converted:"))
}
