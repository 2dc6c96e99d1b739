package tts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ESpeak synthesizes speech with the espeak-ng command line.
type ESpeak struct {
	Binary string
}

func NewESpeak(binary string) *ESpeak {
	if binary == "" {
		binary = "espeak-ng"
	}
	return &ESpeak{Binary: binary}
}

// Synthesize writes text as a wav file to out. voice selects an espeak-ng voice;
// when empty the language is used as the voice name.
func (e *ESpeak) Synthesize(ctx context.Context, text, voice, out, language string) error {
	if strings.TrimSpace(text) == "" {
		return errors.New("empty text")
	}

	if voice == "" {
		voice = language
	}

	args := []string{"-w", out}
	if voice != "" {
		args = append(args, "-v", voice)
	}
	args = append(args, "--", text)

	cmd := exec.CommandContext(ctx, e.Binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w: %s", e.Binary, err, strings.TrimSpace(stderr.String()))
	}

	st, err := os.Stat(out)
	if err != nil {
		return fmt.Errorf("%s produced no output: %w", e.Binary, err)
	}
	if st.Size() == 0 {
		return fmt.Errorf("%s produced an empty file", e.Binary)
	}

	return nil
}

// Flac compresses wav files with the reference flac encoder.
type Flac struct {
	Binary string
}

func NewFlac(binary string) *Flac {
	if binary == "" {
		binary = "flac"
	}
	return &Flac{Binary: binary}
}

// Compress encodes path at the best level and deletes the source file.
func (f *Flac) Compress(ctx context.Context, path string) (string, error) {
	out := strings.TrimSuffix(path, filepath.Ext(path)) + ".flac"

	cmd := exec.CommandContext(ctx, f.Binary, "--silent", "--force", "--best", "--delete-input-file", "-o", out, path)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s %s: %w: %s", f.Binary, path, err, strings.TrimSpace(stderr.String()))
	}

	return out, nil
}
