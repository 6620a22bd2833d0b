package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/lyzr/jukebox/common/models"
)

const mimeSuffix = ".mime"

// LocalBackend stores artifacts on disk under <dir>/<kind>/<name>.
// LOG artifacts are zstd-compressed at rest.
type LocalBackend struct {
	kindFilter
	dir string
}

// NewLocalBackend creates the backend and its kind directories
func NewLocalBackend(dir string, options map[string]any) (*LocalBackend, error) {
	if dir == "" {
		return nil, errors.New("local storage directory is required")
	}
	for _, kind := range models.AllKinds {
		if err := os.MkdirAll(filepath.Join(dir, kind.Dir()), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
	}
	return &LocalBackend{kindFilter: newKindFilter(options), dir: dir}, nil
}

func (b *LocalBackend) Name() string { return "local" }

func (b *LocalBackend) path(key models.CacheKey) string {
	return filepath.Join(b.dir, key.Kind.Dir(), key.Name)
}

// IsStored checks the artifact file
func (b *LocalBackend) IsStored(_ context.Context, key models.CacheKey) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	info, err := os.Stat(b.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", key, err)
	}
	return info.Mode().IsRegular(), nil
}

// Store writes to a temp file in the target directory and renames it into place
func (b *LocalBackend) Store(ctx context.Context, key models.CacheKey, r io.Reader, mimeType, _ string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if !b.ShouldStore(key.Kind) {
		return fmt.Errorf("%s: %w", key.Kind, models.ErrStorageUnsupported)
	}

	target := b.path(key)
	tmp, err := os.CreateTemp(filepath.Dir(target), "."+key.Name+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op after a successful rename

	if err := writeBody(ctx, tmp, r, key.Kind == models.KindLog); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.WriteFile(target+mimeSuffix, []byte(mimeType), 0o644); err != nil {
		return fmt.Errorf("failed to write mime sidecar: %w", err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		return fmt.Errorf("failed to rename into place: %w", err)
	}
	return nil
}

func writeBody(ctx context.Context, w io.Writer, r io.Reader, compress bool) error {
	r = &ctxReader{ctx: ctx, r: r}
	if !compress {
		_, err := io.Copy(w, r)
		return err
	}

	enc, err := zstd.NewWriter(w)
	if err != nil {
		return err
	}
	if _, err := io.Copy(enc, r); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

// Provide opens the artifact file, decompressing LOG artifacts on the fly
func (b *LocalBackend) Provide(_ context.Context, key models.CacheKey) (*models.Artifact, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	path := b.path(key)
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", key, models.ErrNotStored)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", key, err)
	}

	mimeType := models.MimeDefaultAudio
	if data, err := os.ReadFile(path + mimeSuffix); err == nil {
		if m := strings.TrimSpace(string(data)); m != "" {
			mimeType = m
		}
	}

	artifact := &models.Artifact{Key: key, MimeType: mimeType, Size: -1}

	if key.Kind == models.KindLog {
		dec, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("open zstd stream for %s: %w", key, err)
		}
		artifact.Body = &zstdBody{dec: dec, file: f}
		return artifact, nil
	}

	if info, err := f.Stat(); err == nil {
		artifact.Size = info.Size()
	}
	artifact.Body = f
	return artifact, nil
}

// zstdBody closes both the decoder and the underlying file
type zstdBody struct {
	dec  *zstd.Decoder
	file *os.File
}

func (z *zstdBody) Read(p []byte) (int, error) { return z.dec.Read(p) }

func (z *zstdBody) Close() error {
	z.dec.Close()
	return z.file.Close()
}

// ctxReader stops a copy once the context is cancelled
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
