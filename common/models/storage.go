package models

import (
	"fmt"
	"strings"
)

// StorageKind classifies a stored artifact
type StorageKind string

const (
	KindAudio         StorageKind = "AUDIO"
	KindUploadedAudio StorageKind = "UPLOADED_AUDIO"
	KindExternalAudio StorageKind = "EXTERNAL_AUDIO"
	KindLog           StorageKind = "LOG"
)

// AllKinds lists every storage kind, in declaration order
var AllKinds = []StorageKind{KindAudio, KindUploadedAudio, KindExternalAudio, KindLog}

// ParseKind resolves a kind name case-insensitively
func ParseKind(s string) (StorageKind, error) {
	upper := StorageKind(strings.ToUpper(strings.TrimSpace(s)))
	for _, k := range AllKinds {
		if k == upper {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown storage kind: %q", s)
}

// DisabledFlag returns the option name that disables this kind, e.g. AUDIO_IS_DISABLED
func (k StorageKind) DisabledFlag() string {
	return string(k) + "_IS_DISABLED"
}

// Dir returns the lowercase directory/prefix used by path-based backends
func (k StorageKind) Dir() string {
	return strings.ToLower(string(k))
}

// CacheKey addresses one logical artifact.
// Name is "<base>.<extension>", where base is a track id or a content hash.
type CacheKey struct {
	Name string      `json:"name"`
	Kind StorageKind `json:"kind"`
}

// NewCacheKey joins a base name and extension into a key
func NewCacheKey(base, ext string, kind StorageKind) CacheKey {
	return CacheKey{Name: base + "." + ext, Kind: kind}
}

func (k CacheKey) String() string {
	return fmt.Sprintf("%s/%s", k.Kind, k.Name)
}
