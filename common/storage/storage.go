// Package storage persists cached audio and process logs behind a single
// Backend interface with local, S3, GCS and Postgres variants.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/lyzr/jukebox/common/config"
	"github.com/lyzr/jukebox/common/logger"
	"github.com/lyzr/jukebox/common/models"
)

// Backend stores artifacts addressed by CacheKey.
// Implementations must be safe for concurrent calls on different keys.
type Backend interface {
	// ShouldStore reports whether this backend accepts the kind
	ShouldStore(kind models.StorageKind) bool

	// IsStored reports existence without side effects
	IsStored(ctx context.Context, key models.CacheKey) (bool, error)

	// Store writes r under key; re-storing an existing key overwrites it
	Store(ctx context.Context, key models.CacheKey, r io.Reader, mimeType, clientUID string) error

	// Provide opens a stored artifact; returns models.ErrNotStored when absent
	Provide(ctx context.Context, key models.CacheKey) (*models.Artifact, error)

	Name() string
}

// kindFilter implements ShouldStore from the <KIND>_IS_DISABLED options
type kindFilter struct {
	disabled map[models.StorageKind]bool
}

func newKindFilter(options map[string]any) kindFilter {
	return kindFilter{disabled: DisabledKinds(options)}
}

func (f kindFilter) ShouldStore(kind models.StorageKind) bool {
	return !f.disabled[kind]
}

// DisabledKinds parses <KIND>_IS_DISABLED flags from a storage options map
func DisabledKinds(options map[string]any) map[models.StorageKind]bool {
	disabled := make(map[models.StorageKind]bool)
	for _, kind := range models.AllKinds {
		if config.OptionBool(options, kind.DisabledFlag()) {
			disabled[kind] = true
		}
	}
	return disabled
}

// SafeProvide serves key unless the caller has already gone away, in which case
// it reports Abandoned without touching the backend. Abandoned counts as handled.
func SafeProvide(ctx context.Context, b Backend, key models.CacheKey, log *logger.Logger) (models.Outcome, error) {
	if ctx.Err() != nil {
		log.Debug("caller gone, skipping provide", "key", key.String())
		return models.Abandoned(), nil
	}

	artifact, err := b.Provide(ctx, key)
	if err != nil {
		return models.Outcome{}, fmt.Errorf("provide %s: %w", key, err)
	}
	return models.Served(artifact), nil
}

// ProvideIfStored serves key when it exists. A provide failure after a positive
// existence check is logged and reported as not handled.
func ProvideIfStored(ctx context.Context, b Backend, key models.CacheKey, log *logger.Logger) (models.Outcome, bool) {
	stored, err := b.IsStored(ctx, key)
	if err != nil {
		log.Warn("existence check failed", "key", key.String(), "backend", b.Name(), "error", err)
		return models.Outcome{}, false
	}
	if !stored {
		return models.Outcome{}, false
	}

	outcome, err := SafeProvide(ctx, b, key, log)
	if err != nil {
		log.Warn("stored artifact could not be provided", "key", key.String(), "backend", b.Name(), "error", err)
		return models.Outcome{}, false
	}
	return outcome, true
}

// StoreLog persists a process log as a LOG artifact, if the backend accepts logs
func StoreLog(ctx context.Context, b Backend, name string, r io.Reader, clientUID string) error {
	if !b.ShouldStore(models.KindLog) {
		return nil
	}
	return b.Store(ctx, models.CacheKey{Name: name, Kind: models.KindLog}, r, models.MimeLog, clientUID)
}

var errInvalidKey = errors.New("invalid cache key")

// validateKey rejects names that could escape a directory or prefix
func validateKey(key models.CacheKey) error {
	switch {
	case key.Name == "", key.Name == ".", key.Name == "..":
		return fmt.Errorf("%w: %q", errInvalidKey, key.Name)
	case strings.ContainsAny(key.Name, `/\`), strings.Contains(key.Name, "\x00"):
		return fmt.Errorf("%w: %q", errInvalidKey, key.Name)
	}
	if _, err := models.ParseKind(string(key.Kind)); err != nil {
		return fmt.Errorf("%w: %v", errInvalidKey, err)
	}
	return nil
}

// readSeeker returns r as an io.ReadSeeker, buffering it when necessary
func readSeeker(r io.Reader) (io.ReadSeeker, int64, error) {
	if rs, ok := r.(io.ReadSeeker); ok {
		size, err := rs.Seek(0, io.SeekEnd)
		if err != nil {
			return nil, 0, err
		}
		if _, err := rs.Seek(0, io.SeekStart); err != nil {
			return nil, 0, err
		}
		return rs, size, nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, 0, err
	}
	return bytes.NewReader(data), int64(len(data)), nil
}
