package tts

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBinary writes a shell script standing in for an external tool.
func fakeBinary(t *testing.T, script string) string {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	path := filepath.Join(t.TempDir(), "tool")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755))
	return path
}

func TestESpeak_Synthesize(t *testing.T) {
	// -w <out> are the first two arguments
	bin := fakeBinary(t, `printf 'RIFF' > "$2"`)
	out := filepath.Join(t.TempDir(), "out.wav")

	err := NewESpeak(bin).Synthesize(context.Background(), "hello", "", out, "en")
	require.NoError(t, err)
	assert.FileExists(t, out)
}

func TestESpeak_Failure(t *testing.T) {
	bin := fakeBinary(t, `echo "no voice" >&2; exit 1`)
	out := filepath.Join(t.TempDir(), "out.wav")

	err := NewESpeak(bin).Synthesize(context.Background(), "hello", "venti", out, "en")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no voice")
}

func TestESpeak_EmptyOutput(t *testing.T) {
	bin := fakeBinary(t, `: > "$2"`)
	out := filepath.Join(t.TempDir(), "out.wav")

	err := NewESpeak(bin).Synthesize(context.Background(), "hello", "", out, "en")
	assert.Error(t, err)
}

func TestESpeak_RejectsEmptyText(t *testing.T) {
	err := NewESpeak("unused").Synthesize(context.Background(), "  ", "", "x.wav", "en")
	assert.Error(t, err)
}

func TestFlac_Compress(t *testing.T) {
	// arguments: --silent --force --best --delete-input-file -o <out> <in>
	bin := fakeBinary(t, `cp "$7" "$6" && rm "$7"`)
	in := filepath.Join(t.TempDir(), "reply.wav")
	require.NoError(t, os.WriteFile(in, []byte("RIFF"), 0o644))

	out, err := NewFlac(bin).Compress(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(filepath.Dir(in), "reply.flac"), out)
	assert.FileExists(t, out)
	assert.NoFileExists(t, in)
}
