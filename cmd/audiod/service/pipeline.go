package service

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/lyzr/jukebox/common/logger"
	"github.com/lyzr/jukebox/common/models"
	"github.com/lyzr/jukebox/common/storage"
	"github.com/lyzr/jukebox/common/tags"
	"github.com/lyzr/jukebox/common/telemetry"
)

// cleanupTimeout bounds log and artifact persistence after the caller has gone
const cleanupTimeout = 30 * time.Second

// Fetcher downloads a source into a local file
type Fetcher interface {
	Download(ctx context.Context, url, out, format, logPath string) error
}

// Transcoder converts a local file into the target format
type Transcoder interface {
	Available(ctx context.Context) bool
	Convert(ctx context.Context, in, out, logPath string) error
}

// Job is one fetch-and-cache request
type Job struct {
	// Source is handed to the downloader verbatim (a URL or a search query)
	Source string

	// Base is the key name without extension, a track id or content hash
	Base      string
	Kind      models.StorageKind
	ClientUID string
	Update    bool

	// Track, when set, is written into the output's tags for formats that carry them
	Track *models.Track
}

// Pipeline downloads, transcodes, stores and serves audio for a key.
// Every temp file it creates is removed before Run returns.
type Pipeline struct {
	storage    storage.Backend
	fetcher    Fetcher
	transcoder Transcoder
	tempDir    string
	format     string
	log        *logger.Logger
	tel        *telemetry.Telemetry
}

// NewPipeline creates a pipeline writing its workspace under tempDir
func NewPipeline(backend storage.Backend, fetcher Fetcher, transcoder Transcoder, tempDir, format string, log *logger.Logger, tel *telemetry.Telemetry) (*Pipeline, error) {
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create temp dir %s: %w", tempDir, err)
	}
	return &Pipeline{
		storage:    backend,
		fetcher:    fetcher,
		transcoder: transcoder,
		tempDir:    tempDir,
		format:     format,
		log:        log.WithComponent("pipeline"),
		tel:        tel,
	}, nil
}

// Format is the target audio format
func (p *Pipeline) Format() string { return p.format }

// Key returns the cache key a job resolves to
func (p *Pipeline) Key(job Job) models.CacheKey {
	return models.NewCacheKey(job.Base, p.format, job.Kind)
}

// workspace names the temp files of one run
type workspace struct {
	token        string
	download     string
	target       string
	downloadLog  string
	transcodeLog string

	converted bool
	persisted bool
}

func (p *Pipeline) newWorkspace(base string) *workspace {
	token := uuid.NewString()
	download := filepath.Join(p.tempDir, token+".tmp")
	return &workspace{
		token:        token,
		download:     download,
		target:       download + "." + p.format,
		downloadLog:  filepath.Join(p.tempDir, base+"-"+token+".log"),
		transcodeLog: filepath.Join(p.tempDir, base+"-"+token+"-ffmpeg.log"),
	}
}

// Run serves job's key from storage, or fetches and caches it first.
// The returned error wraps a models sentinel; the caller falls back on any error.
func (p *Pipeline) Run(ctx context.Context, job Job) (models.Outcome, error) {
	key := p.Key(job)
	log := p.log.WithClientUID(job.ClientUID).WithFields(map[string]any{"key": key.String()})

	if !job.Update {
		if outcome, ok := storage.ProvideIfStored(ctx, p.storage, key, log); ok {
			log.Debug("served from storage")
			return outcome, nil
		}
	}
	if !p.storage.ShouldStore(key.Kind) {
		return models.Outcome{}, fmt.Errorf("%w: %s", models.ErrStorageUnsupported, key.Kind)
	}

	ws := p.newWorkspace(job.Base)
	defer p.cleanup(ctx, ws, key, job.ClientUID, log)

	start := time.Now()
	if err := p.fetcher.Download(ctx, job.Source, ws.download, p.format, ws.downloadLog); err != nil {
		// the file check below decides whether anything usable arrived
		log.Warn("download stage failed", "source", job.Source, "error", err)
	}
	p.tel.RecordDuration("pipeline.download", start, "kind", string(key.Kind))

	if fileSize(ws.target) <= 0 {
		if err := p.transcode(ctx, ws, log); err != nil {
			return models.Outcome{}, err
		}
	}
	ws.converted = true

	if job.Track != nil && tags.Supported(p.format) {
		if err := tags.WriteID3(ws.target, job.Track); err != nil {
			log.Warn("failed to tag audio", "error", err)
		}
	}

	if err := p.persist(ctx, ws, key, job.ClientUID); err != nil {
		log.Warn("failed to store audio, retrying during cleanup", "error", err)
	}

	outcome, err := storage.SafeProvide(ctx, p.storage, key, log)
	if err != nil {
		return models.Outcome{}, fmt.Errorf("%w: %v", models.ErrSourceUnavailable, err)
	}
	return outcome, nil
}

func (p *Pipeline) transcode(ctx context.Context, ws *workspace, log *logger.Logger) error {
	size := fileSize(ws.download)
	if size <= 0 {
		log.Warn("download produced no audio", "last_log_line", lastLine(ws.downloadLog))
		return fmt.Errorf("%w: download produced no file", models.ErrSourceUnavailable)
	}

	if !p.transcoder.Available(ctx) {
		return fmt.Errorf("%w: transcoder not installed", models.ErrProcessMissing)
	}

	start := time.Now()
	err := p.transcoder.Convert(ctx, ws.download, ws.target, ws.transcodeLog)
	p.tel.RecordDuration("pipeline.transcode", start, "input_size", humanize.Bytes(uint64(size)))
	if err != nil {
		log.Warn("transcode stage failed", "error", err, "last_log_line", lastLine(ws.transcodeLog))
		return fmt.Errorf("%w: %v", models.ErrSourceUnavailable, err)
	}
	return nil
}

func (p *Pipeline) persist(ctx context.Context, ws *workspace, key models.CacheKey, clientUID string) error {
	f, err := os.Open(ws.target)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := p.storage.Store(ctx, key, f, models.MimeForFormat(p.format), clientUID); err != nil {
		return err
	}
	ws.persisted = true
	return nil
}

// cleanup runs detached from the caller so logs survive a dropped connection
func (p *Pipeline) cleanup(ctx context.Context, ws *workspace, key models.CacheKey, clientUID string, log *logger.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	removeFile(ws.download, log)

	for _, path := range []string{ws.downloadLog, ws.transcodeLog} {
		p.persistLog(ctx, path, clientUID, log)
		removeFile(path, log)
	}

	if ws.converted && !ws.persisted {
		if err := p.persist(ctx, ws, key, clientUID); err != nil {
			log.Error("failed to store audio", "error", err)
		}
	}
	removeFile(ws.target, log)

	// downloaders may leave partial files next to the requested name
	if strays, err := filepath.Glob(filepath.Join(p.tempDir, ws.token+"*")); err == nil {
		for _, s := range strays {
			removeFile(s, log)
		}
	}
}

func (p *Pipeline) persistLog(ctx context.Context, path, clientUID string, log *logger.Logger) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	if err := storage.StoreLog(ctx, p.storage, filepath.Base(path), f, clientUID); err != nil {
		log.Warn("failed to store process log", "log", filepath.Base(path), "error", err)
	}
}

func removeFile(path string, log *logger.Logger) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("failed to remove temp file", "path", path, "error", err)
	}
}

// fileSize returns -1 when path does not exist
func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return -1
	}
	return info.Size()
}

// lastLine returns the last non-empty line of a log file
func lastLine(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	var last string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			last = line
		}
	}
	return last
}
