package audio

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/flac"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"
)

// ErrNoOutput means the audio output device could not be opened.
var ErrNoOutput = errors.New("audio output unavailable")

const outputRate = beep.SampleRate(48000)

type PlayerOptions struct {
	Ducker     *Ducker // nil disables ducking
	DuckFactor float64
	Fade       time.Duration
}

// Player plays audio files synchronously through the default output.
type Player struct {
	opt PlayerOptions

	initOnce sync.Once
	initErr  error
	mu       sync.Mutex // one playback at a time
}

func NewPlayer(opt PlayerOptions) *Player {
	return &Player{opt: opt}
}

func (p *Player) init() error {
	p.initOnce.Do(func() {
		if err := speaker.Init(outputRate, outputRate.N(time.Second/10)); err != nil {
			p.initErr = fmt.Errorf("%w: %v", ErrNoOutput, err)
		}
	})
	return p.initErr
}

// Decode opens a wav, flac or mp3 file.
func Decode(path string) (beep.StreamSeekCloser, beep.Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, beep.Format{}, err
	}

	var (
		s      beep.StreamSeekCloser
		format beep.Format
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".wav":
		s, format, err = wav.Decode(f)
	case ".flac":
		s, format, err = flac.Decode(f)
	case ".mp3":
		s, format, err = mp3.Decode(f)
	default:
		err = fmt.Errorf("unsupported audio format %q", ext)
	}
	if err != nil {
		f.Close()
		return nil, beep.Format{}, fmt.Errorf("decode %s: %w", path, err)
	}

	return s, format, nil
}

// Play blocks until path has played to completion or ctx is done, and
// returns the playable duration of the file.
func (p *Player) Play(ctx context.Context, path string) (time.Duration, error) {
	s, format, err := Decode(path)
	if err != nil {
		return 0, err
	}
	defer s.Close()

	length := format.SampleRate.D(s.Len())

	if err := p.init(); err != nil {
		return length, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.opt.Ducker != nil {
		if err := p.opt.Ducker.Duck(ctx, p.opt.DuckFactor, p.opt.Fade); err != nil {
			log.Warn("Failed to duck other streams", "err", err)
		}
		defer func() {
			if err := p.opt.Ducker.Restore(context.WithoutCancel(ctx), p.opt.Fade); err != nil {
				log.Warn("Failed to restore other streams", "err", err)
			}
		}()
	}

	var stream beep.Streamer = s
	if format.SampleRate != outputRate {
		stream = beep.Resample(4, format.SampleRate, outputRate, s)
	}

	done := make(chan struct{})
	speaker.Play(beep.Seq(stream, beep.Callback(func() {
		close(done)
	})))

	select {
	case <-done:
		return length, nil
	case <-ctx.Done():
		speaker.Clear()
		return length, ctx.Err()
	}
}
