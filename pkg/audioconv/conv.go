// Package audioconv decodes recorded audio files into mono float32 PCM.
package audioconv

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	popus "github.com/pekim/opus"
)

type Options struct {
	SampleRate int // target rate, 16000 when zero
	MaxSamples int // 0 = no limit
}

// PCM is decoded mono audio.
type PCM struct {
	Samples    []float32
	SampleRate int
}

func (p PCM) Seconds() float64 {
	if p.SampleRate == 0 {
		return 0
	}
	return float64(len(p.Samples)) / float64(p.SampleRate)
}

type decoder func(r io.ReadSeeker) (PCM, error)

var byExt = map[string]decoder{
	".wav": decodeWAV,
	".mp3": decodeMP3,
	".ogg": decodeOgg,
	".oga": decodeOgg,
}

var byMagic = map[string]decoder{
	"RIFF":    decodeWAV,
	"OggS":    decodeOgg,
	"ID3\x03": decodeMP3,
	"ID3\x04": decodeMP3,
}

// DecodeFile reads path, downmixes to mono and resamples to opt.SampleRate.
// The format is chosen by extension, falling back to sniffing magic bytes.
func DecodeFile(ctx context.Context, path string, opt Options) (PCM, error) {
	if opt.SampleRate <= 0 {
		opt.SampleRate = 16000
	}

	f, err := os.Open(path)
	if err != nil {
		return PCM{}, err
	}
	defer f.Close()

	dec, ok := byExt[strings.ToLower(filepath.Ext(path))]
	if !ok {
		magic, _ := bufio.NewReader(f).Peek(4)
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return PCM{}, err
		}
		if dec, ok = byMagic[string(magic)]; !ok {
			return PCM{}, fmt.Errorf("unsupported format: %s (supported: wav/mp3/ogg-vorbis/ogg-opus)", path)
		}
	}

	pcm, err := dec(f)
	if err != nil {
		return PCM{}, fmt.Errorf("decode %s: %w", path, err)
	}
	if err := ctx.Err(); err != nil {
		return PCM{}, err
	}

	pcm.Samples = resampleLinear(pcm.Samples, pcm.SampleRate, opt.SampleRate)
	pcm.SampleRate = opt.SampleRate

	if opt.MaxSamples > 0 && len(pcm.Samples) > opt.MaxSamples {
		pcm.Samples = pcm.Samples[:opt.MaxSamples]
	}

	return pcm, nil
}

func decodeWAV(r io.ReadSeeker) (PCM, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return PCM{}, errors.New("invalid wav")
	}
	pb, err := dec.FullPCMBuffer()
	if err != nil {
		return PCM{}, err
	}
	if pb == nil || len(pb.Data) == 0 {
		return PCM{}, errors.New("empty wav")
	}

	bd := int(dec.BitDepth)
	if bd == 0 {
		bd = 16
	}

	ch, sr := 1, 44100
	if pb.Format != nil {
		if pb.Format.NumChannels > 0 {
			ch = pb.Format.NumChannels
		}
		if pb.Format.SampleRate > 0 {
			sr = pb.Format.SampleRate
		}
	}

	return PCM{
		Samples:    downmix(intsToFloat32(pb.Data, bd), ch),
		SampleRate: sr,
	}, nil
}

func decodeMP3(r io.ReadSeeker) (PCM, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return PCM{}, err
	}

	var raw bytes.Buffer
	if _, err := io.Copy(&raw, dec); err != nil {
		return PCM{}, err
	}
	ints := make([]int16, raw.Len()/2)
	if err := binary.Read(bytes.NewReader(raw.Bytes()), binary.LittleEndian, &ints); err != nil {
		return PCM{}, err
	}

	sr := dec.SampleRate()
	if sr <= 0 {
		sr = 44100
	}

	// go-mp3 always yields 16-bit stereo
	return PCM{Samples: downmix(int16sToFloat32(ints), 2), SampleRate: sr}, nil
}

// decodeOgg tries Vorbis first and Opus second.
func decodeOgg(r io.ReadSeeker) (PCM, error) {
	pcm, verr := decodeVorbis(r)
	if verr == nil {
		return pcm, nil
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return PCM{}, err
	}
	pcm, oerr := decodeOpus(r)
	if oerr != nil {
		return PCM{}, fmt.Errorf("not vorbis (%v) nor opus: %w", verr, oerr)
	}
	return pcm, nil
}

func decodeVorbis(r io.Reader) (PCM, error) {
	samples, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return PCM{}, err
	}
	if format == nil || format.Channels <= 0 || format.SampleRate <= 0 {
		return PCM{}, errors.New("invalid ogg/vorbis stream")
	}
	return PCM{Samples: downmix(samples, format.Channels), SampleRate: format.SampleRate}, nil
}

func decodeOpus(r io.ReadSeeker) (PCM, error) {
	dec, err := popus.NewDecoder(r)
	if err != nil {
		return PCM{}, err
	}
	defer dec.Destroy()

	ch := dec.ChannelCount()
	if ch <= 0 {
		ch = 1
	}

	// opus decodes to int16 at 48 kHz, read in ~0.5s chunks
	var (
		out []float32
		buf = make([]int16, 48_000*ch/2)
	)
	for {
		n, err := dec.Read(buf)
		if n > 0 {
			out = append(out, int16sToFloat32(buf[:n*ch])...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return PCM{}, err
		}
	}

	return PCM{Samples: downmix(out, ch), SampleRate: 48000}, nil
}

func intsToFloat32(data []int, bitDepth int) []float32 {
	out := make([]float32, len(data))
	scale := 1.0 / float64(int64(1)<<(bitDepth-1))
	for i, v := range data {
		out[i] = float32(clamp(float64(v)*scale, -1.0, 1.0))
	}
	return out
}

func int16sToFloat32(data []int16) []float32 {
	out := make([]float32, len(data))
	const scale = 1.0 / 32768.0
	for i, v := range data {
		out[i] = float32(float64(v) * scale)
	}
	return out
}

func downmix(in []float32, channels int) []float32 {
	if channels <= 1 {
		return in
	}
	frames := len(in) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		sum := 0.0
		for c := 0; c < channels; c++ {
			sum += float64(in[i*channels+c])
		}
		out[i] = float32(sum / float64(channels))
	}
	return out
}

func resampleLinear(in []float32, inSR, outSR int) []float32 {
	if inSR == outSR || len(in) == 0 {
		return in
	}
	ratio := float64(outSR) / float64(inSR)
	n := int(math.Ceil(float64(len(in)) * ratio))
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		src := float64(i) / ratio
		i0 := int(math.Floor(src))
		i1 := i0 + 1
		switch {
		case i0 >= len(in):
			out[i] = in[len(in)-1]
		case i1 >= len(in):
			out[i] = in[i0]
		default:
			a := float32(src - float64(i0))
			out[i] = in[i0]*(1-a) + in[i1]*a
		}
	}
	return out
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
