package service

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lyzr/jukebox/common/clients"
	"github.com/lyzr/jukebox/common/logger"
	"github.com/lyzr/jukebox/common/models"
	"github.com/lyzr/jukebox/common/storage"
)

const testFormat = "m4a"

// fakeFetcher writes canned content where the downloader would
type fakeFetcher struct {
	mu      sync.Mutex
	calls   int
	sources []string

	content    string
	direct     bool // write the already-converted target
	logLine    string
	err        error
	onDownload func()
}

func (f *fakeFetcher) Download(_ context.Context, url, out, format, logPath string) error {
	f.mu.Lock()
	f.calls++
	f.sources = append(f.sources, url)
	f.mu.Unlock()

	if logPath != "" {
		_ = os.WriteFile(logPath, []byte("fetching "+url+"\n"+f.logLine+"\n"), 0o644)
	}
	if f.onDownload != nil {
		f.onDownload()
	}
	if f.content != "" {
		path := out
		if f.direct {
			path = out + "." + format
		}
		if err := os.WriteFile(path, []byte(f.content), 0o644); err != nil {
			return err
		}
	}
	return f.err
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeTranscoder prefixes the input with "converted:"
type fakeTranscoder struct {
	mu        sync.Mutex
	calls     int
	available bool
	err       error
}

func (f *fakeTranscoder) Available(context.Context) bool { return f.available }

func (f *fakeTranscoder) Convert(_ context.Context, in, out, logPath string) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if logPath != "" {
		_ = os.WriteFile(logPath, []byte("ffmpeg version test\nconverting\n"), 0o644)
	}
	if f.err != nil {
		return f.err
	}
	data, err := os.ReadFile(in)
	if err != nil {
		return err
	}
	return os.WriteFile(out, append([]byte("converted:"), data...), 0o644)
}

func (f *fakeTranscoder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeLocator answers Locate with a fixed peer, or nothing
type fakeLocator struct {
	peer  string
	paths []string
}

func (l *fakeLocator) Locate(_ context.Context, path string) (string, bool) {
	l.paths = append(l.paths, path)
	if l.peer == "" {
		return "", false
	}
	return l.peer + "/api/node/" + path, true
}

type fakeProber struct {
	result clients.ProbeResult
	err    error
	calls  int
}

func (p *fakeProber) Probe(context.Context, string, time.Duration) (clients.ProbeResult, error) {
	p.calls++
	return p.result, p.err
}

type mapOverrides map[string]string

func (m mapOverrides) AudioOverride(_ context.Context, id string) (string, bool, error) {
	u, ok := m[id]
	return u, ok, nil
}

// env is a pipeline over a local backend in temp dirs
type env struct {
	tempDir    string
	storeDir   string
	backend    *storage.LocalBackend
	fetcher    *fakeFetcher
	transcoder *fakeTranscoder
	pipeline   *Pipeline
}

func newEnv(t *testing.T, options map[string]any) *env {
	t.Helper()
	e := &env{
		tempDir:    t.TempDir(),
		storeDir:   t.TempDir(),
		fetcher:    &fakeFetcher{content: "raw-audio"},
		transcoder: &fakeTranscoder{available: true},
	}

	backend, err := storage.NewLocalBackend(e.storeDir, options)
	require.NoError(t, err)
	e.backend = backend

	p, err := NewPipeline(backend, e.fetcher, e.transcoder, e.tempDir, testFormat, logger.Discard(), nil)
	require.NoError(t, err)
	e.pipeline = p
	return e
}

func (e *env) workspaceFiles(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(e.tempDir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names
}

func (e *env) stored(kind models.StorageKind, name string) bool {
	_, err := os.Stat(filepath.Join(e.storeDir, kind.Dir(), name))
	return err == nil
}

// storedLogs lists LOG artifact names, without mime sidecars
func (e *env) storedLogs(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(e.storeDir, models.KindLog.Dir()))
	require.NoError(t, err)
	var names []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".log") {
			names = append(names, entry.Name())
		}
	}
	return names
}

func body(t *testing.T, o models.Outcome) string {
	t.Helper()
	require.Equal(t, models.OutcomeServed, o.Kind)
	defer o.Artifact.Close()
	data, err := io.ReadAll(o.Artifact.Body)
	require.NoError(t, err)
	return string(data)
}
