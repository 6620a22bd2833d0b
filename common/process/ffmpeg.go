package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/lyzr/jukebox/common/logger"
	"github.com/lyzr/jukebox/common/models"
)

const (
	DefaultConvertTimeout = 60 * time.Second
	DefaultCheckTimeout   = 5 * time.Second

	ffmpegBanner = "ffmpeg version"
)

// FFmpeg wraps the transcoder binary
type FFmpeg struct {
	runner       Runner
	binary       string
	timeout      time.Duration
	checkTimeout time.Duration
	log          *logger.Logger
}

// NewFFmpeg creates a transcoder; an empty binary defaults to "ffmpeg"
func NewFFmpeg(runner Runner, binary string, timeout time.Duration, log *logger.Logger) *FFmpeg {
	if binary == "" {
		binary = "ffmpeg"
	}
	if timeout <= 0 {
		timeout = DefaultConvertTimeout
	}
	return &FFmpeg{
		runner:       runner,
		binary:       binary,
		timeout:      timeout,
		checkTimeout: DefaultCheckTimeout,
		log:          log.WithComponent("ffmpeg"),
	}
}

// Available reports whether the transcoder answers `-version` with its banner.
// Checked per call, never cached.
func (f *FFmpeg) Available(ctx context.Context) bool {
	res, err := f.runner.Run(ctx, Command{
		Name:    f.binary,
		Args:    []string{"-version"},
		Timeout: f.checkTimeout,
	})
	if err != nil {
		f.log.Debug("transcoder unavailable", "binary", f.binary, "error", err)
		return false
	}
	return bytes.HasPrefix(bytes.TrimLeft(res.Output, " \t\r\n"), []byte(ffmpegBanner))
}

// Convert transcodes in to out, replacing any file already at out; the output
// format follows out's extension. Success requires exit 0 and a non-empty out.
func (f *FFmpeg) Convert(ctx context.Context, in, out, logPath string) error {
	res, err := f.runner.Run(ctx, Command{
		Name:    f.binary,
		Args:    []string{"-y", "-i", in, out},
		Timeout: f.timeout,
		LogPath: logPath,
	})
	if err != nil {
		if errors.Is(err, models.ErrProcessTimeout) {
			f.log.Warn("transcode killed after timeout", "input", in, "timeout", f.timeout)
		}
		return fmt.Errorf("transcode failed: %w", err)
	}

	info, statErr := os.Stat(out)
	if statErr != nil {
		return fmt.Errorf("transcode produced no output %s: %w", out, statErr)
	}
	if info.Size() == 0 {
		return fmt.Errorf("transcode produced empty output %s", out)
	}

	f.log.Debug("transcode finished",
		"input", in,
		"output", out,
		"size", humanize.Bytes(uint64(info.Size())),
		"duration_ms", res.Duration.Milliseconds(),
	)
	return nil
}
