package models

import "errors"

// Error taxonomy for the resolution pipeline.
// Stage failures wrap one of these so callers can branch with errors.Is.
var (
	// ErrSourceUnavailable means no source could answer; triggers fallback
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrStorageUnsupported means the backend declines the artifact kind
	ErrStorageUnsupported = errors.New("storage kind not supported")

	// ErrProcessTimeout means an external tool exceeded its bound and was killed
	ErrProcessTimeout = errors.New("process timed out")

	// ErrProcessMissing means an external tool is not installed
	ErrProcessMissing = errors.New("process not available")

	// ErrValidation means the input URL or scheme was rejected
	ErrValidation = errors.New("validation failed")

	// ErrTransientNetwork means a probe or lookup failed; try the next candidate
	ErrTransientNetwork = errors.New("transient network failure")

	// ErrNotStored means the requested key does not exist in storage
	ErrNotStored = errors.New("artifact not stored")

	// ErrTrackNotFound means metadata lookup found nothing for a track id
	ErrTrackNotFound = errors.New("track not found")
)
