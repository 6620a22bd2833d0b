package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/jukebox/common/models"
)

func TestNormalize(t *testing.T) {
	v := NewURLValidator()

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"https://example.com/a.mp3", "https://example.com/a.mp3", false},
		{"  http://example.com/x ", "http://example.com/x", false},
		{"example.com/song", "https://example.com/song", false},
		{"HTTPS://example.com", "https://example.com", false},
		{"ftp://example.com/a.mp3", "", true},
		{"file:///etc/passwd", "", true},
		{"", "", true},
		{"https://", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := v.Normalize(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, models.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUploadHash(t *testing.T) {
	hash := strings.Repeat("ab", 64)

	got, ok := UploadHash("upl:" + hash)
	assert.True(t, ok)
	assert.Equal(t, hash, got)

	_, ok = UploadHash("upl:../../etc")
	assert.False(t, ok)

	_, ok = UploadHash("https://example.com")
	assert.False(t, ok)
}

func TestValidateTrackID(t *testing.T) {
	assert.NoError(t, ValidateTrackID("7GhIk7Il098yCjg4BQjzvb"))
	assert.Error(t, ValidateTrackID(""))
	assert.Error(t, ValidateTrackID("../x"))
	assert.Error(t, ValidateTrackID("a.b"))
}
