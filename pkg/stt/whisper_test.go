package stt

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestModelPath(t *testing.T) {
	assert.Equal(t, filepath.Join("models", "ggml-small.en.bin"), ModelPath("models", "", "en"))
	assert.Equal(t, filepath.Join("models", "ggml-small.bin"), ModelPath("models", "small", "fr"))
	assert.Equal(t, filepath.Join("m", "ggml-medium.bin"), ModelPath("m", "medium", "auto"))
}

func TestNewTranscriber_EmptyPath(t *testing.T) {
	_, err := NewTranscriber("", Options{})
	assert.Error(t, err)
}

func TestTranscribe_NoModel(t *testing.T) {
	var tr Transcriber
	_, err := tr.Transcribe(context.Background(), []float32{0})
	assert.Error(t, err)
}
