package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lyzr/jukebox/common/cas"
	"github.com/lyzr/jukebox/common/clients"
	"github.com/lyzr/jukebox/common/logger"
	"github.com/lyzr/jukebox/common/models"
	"github.com/lyzr/jukebox/common/storage"
	"github.com/lyzr/jukebox/common/telemetry"
	"github.com/lyzr/jukebox/common/validation"
)

const (
	JukeboxPath  = "/api/audio/jukebox/"
	ExternalPath = "/api/audio/external"
)

// Prober checks an upstream URL without downloading it
type Prober interface {
	Probe(ctx context.Context, url string, timeout time.Duration) (clients.ProbeResult, error)
}

// ResolverDeps are the collaborators of a Resolver
type ResolverDeps struct {
	Storage   storage.Backend
	Sources   []AudioSource
	Metadata  MetadataProvider
	Overrides OverrideProvider
	Pipeline  *Pipeline
	Uploader  *Uploader
	Prober    Prober

	FallbackID   string
	ProbeTimeout time.Duration

	Logger    *logger.Logger
	Telemetry *telemetry.Telemetry
}

// Resolver turns audio requests into outcomes. It never writes HTTP responses itself.
type Resolver struct {
	storage   storage.Backend
	sources   []AudioSource
	metadata  MetadataProvider
	overrides OverrideProvider
	pipeline  *Pipeline
	uploader  *Uploader
	prober    Prober
	urls      *validation.URLValidator

	fallbackID   string
	probeTimeout time.Duration

	log *logger.Logger
	tel *telemetry.Telemetry
}

// NewResolver wires a resolver; sources are tried in the given order
func NewResolver(deps ResolverDeps) *Resolver {
	overrides := deps.Overrides
	if overrides == nil {
		overrides = NoOverrides{}
	}
	return &Resolver{
		storage:      deps.Storage,
		sources:      deps.Sources,
		metadata:     deps.Metadata,
		overrides:    overrides,
		pipeline:     deps.Pipeline,
		uploader:     deps.Uploader,
		prober:       deps.Prober,
		urls:         validation.NewURLValidator(),
		fallbackID:   deps.FallbackID,
		probeTimeout: deps.ProbeTimeout,
		log:          deps.Logger.WithComponent("resolver"),
		tel:          deps.Telemetry,
	}
}

// Jukebox resolves a track id through override, cache and then each source in turn
func (r *Resolver) Jukebox(ctx context.Context, id string, req models.Request) models.Outcome {
	start := time.Now()
	defer r.tel.RecordDuration("resolve.jukebox", start, "track_id", id)

	log := r.log.WithClientUID(req.ClientUID)

	if err := validation.ValidateTrackID(id); err != nil {
		return models.Invalid(err.Error())
	}
	if !r.storage.ShouldStore(models.KindAudio) {
		return models.Unsupported("Configured storage method does not support storing AUDIO")
	}

	if override, ok := r.override(ctx, id, log); ok {
		return models.Redirect(ExternalPath + "?url=" + url.QueryEscape(override))
	}

	if !req.Update {
		key := models.NewCacheKey(id, r.pipeline.Format(), models.KindAudio)
		if outcome, ok := storage.ProvideIfStored(ctx, r.storage, key, log); ok {
			return outcome
		}
	} else {
		log.Debug("update requested", "track_id", id, "remote_addr", req.RemoteAddr)
	}

	track, err := r.metadata.GetInfo(ctx, id)
	if err != nil {
		if !errors.Is(err, models.ErrTrackNotFound) {
			log.Warn("metadata lookup failed", "track_id", id, "error", err)
		}
		return models.NotFound("Track info not found for " + id)
	}

	for _, src := range r.sources {
		outcome, err := src.Provide(ctx, track, req)
		if err == nil {
			return outcome
		}
		if ctx.Err() != nil {
			return models.Abandoned()
		}
		log.Info("source could not provide audio", "source", src.Name(), "track_id", id, "error", err)
	}

	return r.fallback(id, req, log)
}

// Location returns where a track's audio can be found, if anywhere
func (r *Resolver) Location(ctx context.Context, id string, req models.Request) (string, bool, error) {
	log := r.log.WithClientUID(req.ClientUID)

	if override, ok := r.override(ctx, id, log); ok {
		if strings.HasPrefix(override, "upl") {
			return "", false, nil
		}
		return override, true, nil
	}

	track, err := r.metadata.GetInfo(ctx, id)
	if err != nil {
		return "", false, fmt.Errorf("%w: %s", models.ErrTrackNotFound, id)
	}

	for _, src := range r.sources {
		if loc, ok := src.ProvideLocation(ctx, track, req.ClientUID); ok {
			return loc, true, nil
		}
	}
	return "", false, nil
}

// External resolves an arbitrary URL or an upl:<hash> reference to uploaded audio
func (r *Resolver) External(ctx context.Context, rawURL string, req models.Request) models.Outcome {
	start := time.Now()
	defer r.tel.RecordDuration("resolve.external", start)

	log := r.log.WithClientUID(req.ClientUID)

	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return models.Invalid("No URL provided")
	}

	if strings.HasPrefix(rawURL, validation.UploadPrefix) {
		return r.uploaded(ctx, rawURL, req, log)
	}

	target, err := r.urls.Normalize(rawURL)
	if err != nil {
		log.Info("rejected external URL", "url", rawURL, "error", err)
		return r.fallback("", req, log)
	}

	probe, err := r.prober.Probe(ctx, target, r.probeTimeout)
	if err != nil {
		if ctx.Err() != nil {
			return models.Abandoned()
		}
		log.Info("external URL unreachable", "url", target, "error", err)
		return r.fallback("", req, log)
	}
	if probe.StatusCode >= http.StatusMultipleChoices {
		log.Info("external URL answered with error", "url", target, "status", probe.StatusCode)
		return r.fallback("", req, log)
	}
	if strings.HasPrefix(strings.ToLower(probe.ContentType), "audio") {
		return models.Redirect(target)
	}

	if !r.storage.ShouldStore(models.KindExternalAudio) {
		return r.fallback("", req, log)
	}

	outcome, err := r.pipeline.Run(ctx, Job{
		Source:    target,
		Base:      cas.URLKey(rawURL),
		Kind:      models.KindExternalAudio,
		ClientUID: req.ClientUID,
		Update:    req.Update,
	})
	if err != nil {
		if ctx.Err() != nil {
			return models.Abandoned()
		}
		log.Warn("external audio pipeline failed", "url", target, "error", err)
		return r.fallback("", req, log)
	}
	return outcome
}

// Upload stores client audio and returns its content hash
func (r *Resolver) Upload(ctx context.Context, body io.Reader, filename string, req models.Request) (string, error) {
	return r.uploader.Upload(ctx, body, filename, req)
}

// UploadSupported reports whether Upload could succeed before the body is read
func (r *Resolver) UploadSupported(ctx context.Context) error {
	return r.uploader.Supported(ctx)
}

func (r *Resolver) uploaded(ctx context.Context, rawURL string, req models.Request, log *logger.Logger) models.Outcome {
	if !r.storage.ShouldStore(models.KindUploadedAudio) {
		log.Warn("uploaded audio requested but not supported", "url", rawURL)
		return r.fallback("", req, log)
	}

	hash, ok := validation.UploadHash(rawURL)
	if !ok {
		log.Info("malformed upload reference", "url", rawURL)
		return r.fallback("", req, log)
	}

	key := models.NewCacheKey(hash, r.pipeline.Format(), models.KindUploadedAudio)
	if outcome, ok := storage.ProvideIfStored(ctx, r.storage, key, log); ok {
		return outcome
	}

	log.Warn("no stored upload", "key", key.String())
	return r.fallback("", req, log)
}

func (r *Resolver) override(ctx context.Context, id string, log *logger.Logger) (string, bool) {
	override, ok, err := r.overrides.AudioOverride(ctx, id)
	if err != nil {
		log.Warn("override lookup failed", "track_id", id, "error", err)
		return "", false
	}
	return override, ok && override != ""
}

// fallback redirects to the fallback track, unless that is what just failed
func (r *Resolver) fallback(failedID string, req models.Request, log *logger.Logger) models.Outcome {
	fallbackID := r.fallbackID
	if req.FallbackID != "" {
		fallbackID = req.FallbackID
	}

	if fallbackID == "" || fallbackID == failedID || validation.ValidateTrackID(fallbackID) != nil {
		return models.Failed("Audio is null")
	}

	log.Info("redirecting to fallback track", "fallback_id", fallbackID)
	return models.FallbackRedirect(JukeboxPath + fallbackID)
}
