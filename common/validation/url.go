package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/lyzr/jukebox/common/models"
)

// UploadPrefix marks external URLs that point at previously uploaded audio
const UploadPrefix = "upl:"

var (
	hexHash = regexp.MustCompile(`^[0-9a-fA-F]{32,128}$`)
	trackID = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
)

// URLValidator checks external audio URLs before anything is fetched
type URLValidator struct {
	protocolValidator *ProtocolValidator
}

// NewURLValidator creates a validator accepting http and https
func NewURLValidator() *URLValidator {
	return &URLValidator{protocolValidator: NewProtocolValidator()}
}

// Normalize returns the absolute URL to probe. A bare host gets https://.
func (v *URLValidator) Normalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: no URL provided", models.ErrValidation)
	}

	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: invalid URL format: %v", models.ErrValidation, err)
	}
	if err := v.protocolValidator.Validate(parsed.Scheme); err != nil {
		return "", err
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("%w: URL has no host", models.ErrValidation)
	}
	return parsed.String(), nil
}

// UploadHash extracts and checks the hash from an upl:<hash> reference
func UploadHash(raw string) (string, bool) {
	if !strings.HasPrefix(raw, UploadPrefix) {
		return "", false
	}
	hash := strings.TrimPrefix(raw, UploadPrefix)
	return hash, hexHash.MatchString(hash)
}

// ValidateTrackID rejects ids that cannot be used as a cache key
func ValidateTrackID(id string) error {
	if !trackID.MatchString(id) {
		return fmt.Errorf("%w: invalid track id %q", models.ErrValidation, id)
	}
	return nil
}
