package audio

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/gordonklaus/portaudio"
)

var (
	// ErrNoSpeech means nothing was said before the listen timeout.
	ErrNoSpeech = errors.New("no speech before timeout")
	// ErrNoDevice means the configured microphone could not be opened.
	ErrNoDevice = errors.New("microphone unavailable")
)

const (
	SampleRate = 16000
	frameSize  = 320 // 20ms
)

// Device is an input device as listed by portaudio.
type Device struct {
	Index int
	Name  string
}

type RecorderOptions struct {
	DeviceIndex    int           // index into ListInputDevices order, -1 for the default
	Timeout        time.Duration // how long to wait for speech to start
	PhraseLimit    time.Duration // longest phrase recorded
	PauseThreshold time.Duration // silence that ends a phrase
	SilenceRMS     float64
}

type Recorder struct {
	opt RecorderOptions
}

func NewRecorder(opt RecorderOptions) *Recorder {
	if opt.Timeout <= 0 {
		opt.Timeout = 2 * time.Second
	}
	if opt.PhraseLimit <= 0 {
		opt.PhraseLimit = 5 * time.Second
	}
	if opt.PauseThreshold <= 0 {
		opt.PauseThreshold = time.Second
	}
	if opt.SilenceRMS <= 0 {
		opt.SilenceRMS = 0.015
	}
	return &Recorder{opt: opt}
}

func (r *Recorder) Init() error {
	return portaudio.Initialize()
}

func (r *Recorder) Close() {
	portaudio.Terminate()
}

// ListInputDevices enumerates devices that can capture audio.
func ListInputDevices() ([]Device, error) {
	devs, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}

	var out []Device
	for i, d := range devs {
		if d.MaxInputChannels < 1 {
			continue
		}
		out = append(out, Device{Index: i, Name: d.Name})
	}
	return out, nil
}

func (r *Recorder) device() (*portaudio.DeviceInfo, error) {
	if r.opt.DeviceIndex < 0 {
		d, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoDevice, err)
		}
		return d, nil
	}

	devs, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoDevice, err)
	}
	if r.opt.DeviceIndex >= len(devs) || devs[r.opt.DeviceIndex].MaxInputChannels < 1 {
		return nil, fmt.Errorf("%w: no input device at index %d", ErrNoDevice, r.opt.DeviceIndex)
	}
	return devs[r.opt.DeviceIndex], nil
}

// Record captures one phrase as mono 16 kHz PCM. It waits up to Timeout for
// speech to start and stops after PauseThreshold of silence or PhraseLimit.
func (r *Recorder) Record(ctx context.Context) ([]float32, error) {
	dev, err := r.device()
	if err != nil {
		return nil, err
	}

	buf := make([]float32, frameSize)

	params := portaudio.LowLatencyParameters(dev, nil)
	params.Input.Channels = 1
	params.SampleRate = SampleRate
	params.FramesPerBuffer = len(buf)

	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoDevice, err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoDevice, err)
	}
	defer stream.Stop()

	frame := time.Second * frameSize / SampleRate
	waitFrames := int(r.opt.Timeout / frame)
	phraseFrames := int(r.opt.PhraseLimit / frame)
	pauseFrames := int(r.opt.PauseThreshold / frame)

	out := make([]float32, 0, SampleRate*3)

	var (
		speaking      bool
		spoken        int
		silenceFrames int
	)

	for i := 0; ; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !speaking && i >= waitFrames {
			return nil, ErrNoSpeech
		}
		if speaking && spoken >= phraseFrames {
			break
		}

		if err := stream.Read(); err != nil {
			return nil, fmt.Errorf("read stream: %w", err)
		}

		loud := frameRMS(buf) > r.opt.SilenceRMS
		if loud {
			speaking = true
			silenceFrames = 0
		} else if speaking {
			silenceFrames++
			if silenceFrames >= pauseFrames {
				break
			}
		}

		if speaking {
			spoken++
			out = append(out, buf...)
		}
	}

	return out, nil
}

func frameRMS(f []float32) float64 {
	var s float64
	for _, x := range f {
		s += float64(x * x)
	}
	return math.Sqrt(s / float64(len(f)))
}
