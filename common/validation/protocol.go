package validation

import (
	"fmt"
	"strings"

	"github.com/lyzr/jukebox/common/models"
)

// ProtocolValidator validates URL protocols
type ProtocolValidator struct {
	allowedProtocols map[string]bool
}

// NewProtocolValidator allows http and https
func NewProtocolValidator() *ProtocolValidator {
	return &ProtocolValidator{
		allowedProtocols: map[string]bool{
			"http":  true,
			"https": true,
		},
	}
}

// Validate checks if the protocol is allowed
func (v *ProtocolValidator) Validate(scheme string) error {
	normalized := strings.ToLower(strings.TrimSpace(scheme))

	if normalized == "" {
		return fmt.Errorf("%w: protocol scheme is required", models.ErrValidation)
	}
	if !v.allowedProtocols[normalized] {
		return fmt.Errorf("%w: protocol '%s' is not allowed (only http/https permitted)", models.ErrValidation, scheme)
	}
	return nil
}
