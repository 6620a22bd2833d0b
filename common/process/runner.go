// Package process runs the external audio tools (downloader, ffmpeg) with
// hard timeouts and file-backed logs.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"time"

	"github.com/lyzr/jukebox/common/models"
)

// Command describes one external invocation
type Command struct {
	Name    string
	Args    []string
	Timeout time.Duration

	// LogPath receives stdout and stderr through a single descriptor.
	// Empty means stdout is captured into Result.Output and stderr is dropped.
	LogPath string
}

// Result reports how a command finished
type Result struct {
	ExitCode int
	Killed   bool
	Duration time.Duration
	Output   []byte
}

// Runner executes commands. Implementations must be safe for concurrent use.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// ExecRunner runs commands with os/exec
type ExecRunner struct {
	// WaitDelay bounds how long Wait may block after the process is killed
	WaitDelay time.Duration
}

// NewExecRunner creates a runner backed by real processes
func NewExecRunner() *ExecRunner {
	return &ExecRunner{WaitDelay: 2 * time.Second}
}

// Run starts the command and waits for it to exit or for its timeout to fire.
// On timeout the process is killed and reaped before Run returns.
func (r *ExecRunner) Run(ctx context.Context, c Command) (Result, error) {
	var res Result

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.WaitDelay = r.WaitDelay

	var stdout bytes.Buffer
	if c.LogPath != "" {
		logFile, err := os.OpenFile(c.LogPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
		if err != nil {
			return res, fmt.Errorf("failed to open log for %s: %w", c.Name, err)
		}
		defer logFile.Close()

		// same descriptor for both streams keeps emission order
		cmd.Stdout = logFile
		cmd.Stderr = logFile
	} else {
		cmd.Stdout = &stdout
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return res, fmt.Errorf("%s: %w: %v", c.Name, models.ErrProcessMissing, err)
		}
		return res, fmt.Errorf("failed to start %s: %w", c.Name, err)
	}

	waitErr := cmd.Wait()
	res.Duration = time.Since(start)
	res.Output = stdout.Bytes()
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		res.Killed = true
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return res, fmt.Errorf("%s timed out after %v: %w", c.Name, c.Timeout, models.ErrProcessTimeout)
		}
		return res, fmt.Errorf("%s cancelled: %w", c.Name, ctxErr)
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return res, fmt.Errorf("%s exited with code %d", c.Name, res.ExitCode)
		}
		return res, fmt.Errorf("%s failed: %w", c.Name, waitErr)
	}

	return res, nil
}
