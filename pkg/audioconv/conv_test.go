package audioconv

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeWAV(t *testing.T, path string, rate, channels int, data []int) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	enc := wav.NewEncoder(f, rate, 16, channels, 1)
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
}

func TestDecodeFile_WAVStereoResampled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.wav")

	// one second of stereo at 32 kHz, left loud and right silent
	data := make([]int, 0, 32000*2)
	for i := 0; i < 32000; i++ {
		data = append(data, 16384, 0)
	}
	writeWAV(t, path, 32000, 2, data)

	pcm, err := DecodeFile(context.Background(), path, Options{})
	require.NoError(t, err)

	assert.Equal(t, 16000, pcm.SampleRate)
	assert.Len(t, pcm.Samples, 16000)
	assert.InDelta(t, 0.25, pcm.Samples[100], 1e-3)
	assert.InDelta(t, 1.0, pcm.Seconds(), 1e-3)
}

func TestDecodeFile_SniffsWithoutExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip")
	writeWAV(t, path, 16000, 1, make([]int, 1600))

	pcm, err := DecodeFile(context.Background(), path, Options{MaxSamples: 100})
	require.NoError(t, err)
	assert.Len(t, pcm.Samples, 100)
}

func TestDecodeFile_Unsupported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	_, err := DecodeFile(context.Background(), path, Options{})
	assert.Error(t, err)
}

func TestResampleLinear(t *testing.T) {
	in := []float32{0, 1, 0, 1}
	assert.Equal(t, in, resampleLinear(in, 16000, 16000))
	assert.Len(t, resampleLinear(in, 16000, 32000), 8)
	assert.Empty(t, resampleLinear(nil, 8000, 16000))
}

func TestDownmix(t *testing.T) {
	assert.Equal(t, []float32{0.5, 0}, downmix([]float32{1, 0, 0.5, -0.5}, 2))
}
