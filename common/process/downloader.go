package process

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lyzr/jukebox/common/logger"
	"github.com/lyzr/jukebox/common/models"
)

const DefaultDownloadTimeout = 90 * time.Second

// Downloader runs the external fetch tool as `<command...> <url> <out> <format>`
type Downloader struct {
	runner  Runner
	command []string
	timeout time.Duration
	log     *logger.Logger
}

// NewDownloader creates a downloader from a whitespace separated command line
func NewDownloader(runner Runner, commandLine string, timeout time.Duration, log *logger.Logger) (*Downloader, error) {
	command := strings.Fields(commandLine)
	if len(command) == 0 {
		return nil, errors.New("downloader command is empty")
	}
	if timeout <= 0 {
		timeout = DefaultDownloadTimeout
	}
	return &Downloader{
		runner:  runner,
		command: command,
		timeout: timeout,
		log:     log.WithComponent("downloader"),
	}, nil
}

// Download fetches url into out. A timeout kills the tool and is reported as a failed stage.
func (d *Downloader) Download(ctx context.Context, url, out, format, logPath string) error {
	args := append(append([]string{}, d.command[1:]...), url, out, format)

	res, err := d.runner.Run(ctx, Command{
		Name:    d.command[0],
		Args:    args,
		Timeout: d.timeout,
		LogPath: logPath,
	})
	if err != nil {
		if errors.Is(err, models.ErrProcessTimeout) {
			d.log.Warn("download killed after timeout", "url", url, "timeout", d.timeout)
		}
		return fmt.Errorf("download failed: %w", err)
	}

	d.log.Debug("download finished", "url", url, "duration_ms", res.Duration.Milliseconds())
	return nil
}
