//go:build libav

package libav

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/avpump/internal/engine"
	"github.com/jmylchreest/avpump/internal/media"
)

func writeTestWAV(t *testing.T, path string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	enc := wav.NewEncoder(f, 16000, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: 16000},
		Data:           make([]int, 1600),
		SourceBitDepth: 16,
	}
	require.NoError(t, enc.Write(buf))
	require.NoError(t, enc.Close())
}

// TestContainerBestStream tests that the best stream lookup finds the audio
// stream of a WAV file and maps a missing kind to ErrStreamNotFound.
func TestContainerBestStream(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	writeTestWAV(t, path)

	c, err := New(Config{}).OpenInput(context.Background(), path)
	require.NoError(t, err)

	idx, err := c.BestStream(media.MediaTypeAudio)
	require.NoError(t, err)
	assert.Equal(t, 0, idx)

	idx, err = c.BestStream(media.MediaTypeVideo)
	assert.ErrorIs(t, err, engine.ErrStreamNotFound)
	assert.Equal(t, media.NoStream, idx)

	require.NoError(t, c.Close())
	_, err = c.BestStream(media.MediaTypeAudio)
	assert.ErrorIs(t, err, engine.ErrClosed)
}
