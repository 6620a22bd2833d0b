package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/lyzr/jukebox/common/cas"
	"github.com/lyzr/jukebox/common/logger"
	"github.com/lyzr/jukebox/common/models"
	"github.com/lyzr/jukebox/common/storage"
	"github.com/lyzr/jukebox/common/telemetry"
)

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Uploader transcodes client-supplied audio and stores it by content hash
type Uploader struct {
	storage    storage.Backend
	transcoder Transcoder
	tempDir    string
	format     string
	maxBytes   int64
	log        *logger.Logger
	tel        *telemetry.Telemetry
}

// NewUploader creates an uploader sharing the pipeline's workspace and format
func NewUploader(backend storage.Backend, transcoder Transcoder, tempDir, format string, maxBytes int64, log *logger.Logger, tel *telemetry.Telemetry) *Uploader {
	return &Uploader{
		storage:    backend,
		transcoder: transcoder,
		tempDir:    tempDir,
		format:     format,
		maxBytes:   maxBytes,
		log:        log.WithComponent("uploader"),
		tel:        tel,
	}
}

// Supported reports whether uploads can be accepted right now
func (u *Uploader) Supported(ctx context.Context) error {
	if !u.storage.ShouldStore(models.KindUploadedAudio) {
		return fmt.Errorf("%w: %s", models.ErrStorageUnsupported, models.KindUploadedAudio)
	}
	if !u.transcoder.Available(ctx) {
		return fmt.Errorf("%w: transcoder not installed", models.ErrProcessMissing)
	}
	return nil
}

// Upload stores r as <sha512>.<format> and returns the hash.
// Errors wrap ErrStorageUnsupported or ErrProcessMissing when uploads are not possible at all.
func (u *Uploader) Upload(ctx context.Context, r io.Reader, filename string, req models.Request) (string, error) {
	if err := u.Supported(ctx); err != nil {
		return "", err
	}

	log := u.log.WithClientUID(req.ClientUID)
	token := uuid.NewString()
	input := filepath.Join(u.tempDir, token+".upload")
	target := filepath.Join(u.tempDir, token+"."+u.format)
	logPath := filepath.Join(u.tempDir, logName(filename)+"-"+token+".log")

	defer func() {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
		defer cancel()
		removeFile(input, log)
		if f, err := os.Open(logPath); err == nil {
			if err := storage.StoreLog(cctx, u.storage, filepath.Base(logPath), f, req.ClientUID); err != nil {
				log.Warn("failed to store process log", "error", err)
			}
			f.Close()
		}
		removeFile(logPath, log)
		removeFile(target, log)
	}()

	size, err := u.spool(r, input)
	if err != nil {
		return "", err
	}
	log.Info("upload received", "filename", filename, "size", humanize.Bytes(uint64(size)))

	start := time.Now()
	if err := u.transcoder.Convert(ctx, input, target, logPath); err != nil {
		return "", fmt.Errorf("failed to convert upload: %w", err)
	}
	u.tel.RecordDuration("upload.transcode", start)

	hash, err := cas.FileKey(target)
	if err != nil {
		return "", fmt.Errorf("failed to hash upload: %w", err)
	}

	f, err := os.Open(target)
	if err != nil {
		return "", err
	}
	defer f.Close()

	key := models.NewCacheKey(hash, u.format, models.KindUploadedAudio)
	if err := u.storage.Store(ctx, key, f, models.MimeForFormat(u.format), req.ClientUID); err != nil {
		return "", fmt.Errorf("failed to store upload: %w", err)
	}

	log.Info("upload stored", "key", key.String())
	return hash, nil
}

// spool copies the request body into the workspace, enforcing the size limit
func (u *Uploader) spool(r io.Reader, path string) (int64, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("failed to create upload file: %w", err)
	}
	defer f.Close()

	src := r
	if u.maxBytes > 0 {
		src = io.LimitReader(r, u.maxBytes+1)
	}
	n, err := io.Copy(f, src)
	if err != nil {
		return 0, fmt.Errorf("failed to read upload: %w", err)
	}
	if u.maxBytes > 0 && n > u.maxBytes {
		return 0, fmt.Errorf("%w: upload exceeds %s", models.ErrValidation, humanize.Bytes(uint64(u.maxBytes)))
	}
	if n == 0 {
		return 0, fmt.Errorf("%w: empty upload", models.ErrValidation)
	}
	return n, nil
}

func logName(filename string) string {
	name := unsafeName.ReplaceAllString(filepath.Base(filename), "_")
	if name == "" || name == "." || name == ".." {
		return "upload"
	}
	return name
}
