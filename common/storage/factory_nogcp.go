//go:build !gcp

package storage

import (
	"context"
	"errors"

	"github.com/lyzr/jukebox/common/config"
)

func newGCSBackendFromConfig(context.Context, *config.Config) (Backend, error) {
	return nil, errors.New("GCS storage is not enabled in this build (use -tags gcp)")
}
