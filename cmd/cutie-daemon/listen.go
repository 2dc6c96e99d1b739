package main

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"strings"
	"sync"
	"time"

	"cutie/internal/assistant"
	"cutie/internal/audio"
	"cutie/internal/notify"
	"cutie/pkg/audioconv"
	"cutie/pkg/stt"
)

const transcribeTimeout = 60 * time.Second

// listener records from the microphone and transcribes with whisper.
// The transcriber is shared with file transcription, hence the lock.
type listener struct {
	rec *audio.Recorder
	tr  *stt.Transcriber

	mu sync.Mutex
}

func (l *listener) Listen(ctx context.Context) (string, error) {
	notify.Desktop(ctx, "Listening...")

	pcm, err := l.rec.Record(ctx)
	switch {
	case errors.Is(err, audio.ErrNoSpeech):
		return "", fmt.Errorf("%w: %w", assistant.ErrNoSpeech, err)
	case errors.Is(err, audio.ErrNoDevice):
		return "", fmt.Errorf("%w: %w", assistant.ErrNoDevice, err)
	case err != nil:
		return "", err
	}

	log.Debug("Recorded", "samples", len(pcm))
	return l.transcribe(ctx, pcm)
}

// TranscribeFile decodes an audio file and transcribes it.
func (l *listener) TranscribeFile(ctx context.Context, path string) (string, error) {
	pcm, err := audioconv.DecodeFile(ctx, path, audioconv.Options{SampleRate: audio.SampleRate})
	if err != nil {
		return "", err
	}

	log.Debug("Decoded", "file", path, "seconds", pcm.Seconds())
	return l.transcribe(ctx, pcm.Samples)
}

func (l *listener) transcribe(ctx context.Context, pcm []float32) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, transcribeTimeout)
	defer cancel()

	res, err := l.tr.Transcribe(ctx, pcm)
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}

	text := strings.TrimSpace(res.Text)
	if text == "" {
		return "", assistant.ErrNoSpeech
	}

	log.Info("Transcribed", "text", text, "lang", res.Language)
	return text, nil
}
