// Package tags writes track metadata into cached audio files.
package tags

import (
	"fmt"
	"strings"

	"github.com/bogem/id3v2"

	"github.com/lyzr/jukebox/common/models"
)

// Supported reports whether files of format carry ID3 tags
func Supported(format string) bool {
	return strings.EqualFold(format, "mp3")
}

// WriteID3 sets the title and artist frames of an MP3 file in place.
// Files without a tag get a fresh one.
func WriteID3(path string, track *models.Track) error {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("failed to open tags of %s: %w", path, err)
	}
	defer tag.Close()

	tag.SetDefaultEncoding(id3v2.EncodingUTF8)
	tag.SetTitle(track.Title)
	if len(track.Artists) > 0 {
		tag.SetArtist(strings.Join(track.Artists, ", "))
	}
	// keep the catalog id so a cached file can be traced back
	tag.AddUserDefinedTextFrame(id3v2.UserDefinedTextFrame{
		Encoding:    id3v2.EncodingUTF8,
		Description: "jukebox_id",
		Value:       track.ID,
	})

	if err := tag.Save(); err != nil {
		return fmt.Errorf("failed to save tags of %s: %w", path, err)
	}
	return nil
}
