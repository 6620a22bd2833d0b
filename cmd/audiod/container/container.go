package container

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lyzr/jukebox/cmd/audiod/repository"
	"github.com/lyzr/jukebox/cmd/audiod/service"
	"github.com/lyzr/jukebox/common/bootstrap"
	"github.com/lyzr/jukebox/common/clients"
	"github.com/lyzr/jukebox/common/config"
	"github.com/lyzr/jukebox/common/node"
	"github.com/lyzr/jukebox/common/process"
	"github.com/lyzr/jukebox/common/ratelimit"
	"github.com/lyzr/jukebox/common/storage"
)

// Container holds all initialized services and repositories (singleton pattern)
type Container struct {
	// Components
	Components *bootstrap.Components
	HTTPClient *clients.HTTPClient

	// Infrastructure
	Storage    storage.Backend
	FFmpeg     *process.FFmpeg
	Downloader *process.Downloader
	Delegator  *node.Delegator // nil unless the node source is enabled

	// Services
	Pipeline *service.Pipeline
	Uploader *service.Uploader
	Resolver *service.Resolver

	// PeerResolver serves requests delegated by other nodes and never delegates again
	PeerResolver *service.Resolver

	UploadLimiter ratelimit.Limiter
}

// NewContainer initializes all services and repositories once
func NewContainer(ctx context.Context, components *bootstrap.Components) (*Container, error) {
	cfg := components.Config
	log := components.Logger
	tel := components.Telemetry

	backend, err := storage.NewBackendFromConfig(ctx, cfg, components.DB)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage backend: %w", err)
	}
	log.Info("storage backend ready", "backend", backend.Name(), "format", cfg.Audio.Format)

	httpClient := clients.NewHTTPClient(&http.Client{Timeout: 30 * time.Second}, log)

	// External tools
	runner := process.NewExecRunner()
	ffmpeg := process.NewFFmpeg(runner, cfg.Audio.FFmpegBinary, cfg.Audio.TranscodeTimeout, log)
	downloader, err := process.NewDownloader(runner, cfg.Audio.DownloaderCommand, cfg.Audio.DownloadTimeout, log)
	if err != nil {
		return nil, err
	}

	pipeline, err := service.NewPipeline(backend, downloader, ffmpeg, cfg.Audio.TempDir, cfg.Audio.Format, log, tel)
	if err != nil {
		return nil, err
	}
	uploader := service.NewUploader(backend, ffmpeg, cfg.Audio.TempDir, cfg.Audio.Format, cfg.Audio.MaxUploadBytes, log, tel)

	fetchSource := service.NewFetchAudioSource(pipeline, cfg.Audio.SearchTemplate, cfg.Audio.LocationTemplate)

	// Sources, in configured order
	var delegator *node.Delegator
	sources := make([]service.AudioSource, 0, len(cfg.Audio.Sources))
	for _, name := range cfg.Audio.Sources {
		switch name {
		case config.SourceNode:
			delegator, err = node.NewDelegator(cfg.Audio.NodeHosts, httpClient, log,
				node.WithProbeTimeout(cfg.Audio.ProbeTimeout),
				node.WithTelemetry(tel),
			)
			if err != nil {
				return nil, fmt.Errorf("node audio source: %w", err)
			}
			sources = append(sources, service.NewNodeAudioSource(delegator, log))
		case config.SourceFetch:
			sources = append(sources, fetchSource)
		default:
			return nil, fmt.Errorf("unknown audio source: %s", name)
		}
	}

	deps := service.ResolverDeps{
		Storage:      backend,
		Sources:      sources,
		Metadata:     newMetadata(components, httpClient),
		Overrides:    newOverrides(components),
		Pipeline:     pipeline,
		Uploader:     uploader,
		Prober:       httpClient,
		FallbackID:   cfg.Audio.FallbackID,
		ProbeTimeout: cfg.Audio.ProbeTimeout,
		Logger:       log,
		Telemetry:    tel,
	}
	resolver := service.NewResolver(deps)

	deps.Sources = []service.AudioSource{fetchSource}
	peerResolver := service.NewResolver(deps)

	return &Container{
		Components:    components,
		HTTPClient:    httpClient,
		Storage:       backend,
		FFmpeg:        ffmpeg,
		Downloader:    downloader,
		Delegator:     delegator,
		Pipeline:      pipeline,
		Uploader:      uploader,
		Resolver:      resolver,
		PeerResolver:  peerResolver,
		UploadLimiter: newUploadLimiter(components),
	}, nil
}

// newMetadata prefers the metadata service, else the TRACKS catalog from the options file
func newMetadata(components *bootstrap.Components, httpClient *clients.HTTPClient) service.MetadataProvider {
	cfg := components.Config

	var lookup clients.TrackLookup
	if cfg.Audio.MetadataBaseURL != "" {
		lookup = clients.NewMetadataClient(httpClient, cfg.Audio.MetadataBaseURL, components.Logger)
	} else {
		lookup = clients.NewStaticMetadata(catalog(config.OptionStrings(cfg.AudioSourceOptions, "TRACKS")))
	}

	if components.Cache != nil {
		return clients.NewCachedMetadata(lookup, components.Cache, cfg.Cache.DefaultTTL, components.Logger)
	}
	return lookup
}

// catalog parses "id=artists - title" entries
func catalog(entries []string) map[string]string {
	tracks := make(map[string]string, len(entries))
	for _, e := range entries {
		if id, info, ok := strings.Cut(e, "="); ok && strings.TrimSpace(id) != "" {
			tracks[strings.TrimSpace(id)] = strings.TrimSpace(info)
		}
	}
	return tracks
}

func newOverrides(components *bootstrap.Components) service.OverrideProvider {
	if components.DB != nil {
		return repository.NewOverrideRepository(components.DB.Pool)
	}
	return repository.NewStaticOverrides(config.OptionStrings(components.Config.AudioSourceOptions, "OVERRIDES"))
}

func newUploadLimiter(components *bootstrap.Components) ratelimit.Limiter {
	cfg := ratelimit.Config{
		Name:   "upload",
		Limit:  int64(components.Config.RateLimit.UploadsPerMinute),
		Window: time.Minute,
	}
	if components.Redis != nil {
		return ratelimit.NewRedisLimiter(components.Redis.GetUnderlying(), cfg, components.Logger)
	}
	return ratelimit.NewLocalLimiter(cfg)
}
