package tags

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bogem/id3v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/jukebox/common/models"
)

func TestSupported(t *testing.T) {
	assert.True(t, Supported("mp3"))
	assert.True(t, Supported("MP3"))
	assert.False(t, Supported("m4a"))
	assert.False(t, Supported(""))
}

func TestWriteID3(t *testing.T) {
	path := filepath.Join(t.TempDir(), "track.mp3")
	frames := "\xff\xfb\x90\x64 not a tag, just audio frames"
	require.NoError(t, os.WriteFile(path, []byte(frames), 0o644))

	track := &models.Track{ID: "abc", Title: "Song", Artists: []string{"A", "B"}}
	require.NoError(t, WriteID3(path, track))

	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	require.NoError(t, err)
	defer tag.Close()

	assert.Equal(t, "Song", tag.Title())
	assert.Equal(t, "A, B", tag.Artist())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ID3", string(data[:3]))
	assert.Equal(t, frames, string(data[len(data)-len(frames):]))
}

func TestWriteID3RejectsShortFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.mp3")
	require.NoError(t, os.WriteFile(path, []byte("tiny"), 0o644))

	err := WriteID3(path, &models.Track{Title: "x"})
	require.Error(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "tiny", string(data))
}

func TestWriteID3MissingFile(t *testing.T) {
	err := WriteID3(filepath.Join(t.TempDir(), "missing.mp3"), &models.Track{Title: "x"})
	assert.Error(t, err)
}
