package sfontplayer

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	intaudio "github.com/sevonj/sfontplayer-sub000/internal/audio"
	intseq "github.com/sevonj/sfontplayer-sub000/internal/sequencer"
	"github.com/sevonj/sfontplayer-sub000/internal/timeline"
)

// RenderSamples plays tl through engine as fast as possible and returns the
// interleaved stereo output, ending when the last event has been dispatched.
func RenderSamples(tl *timeline.Timeline, engine Engine) []float32 {
	seq := intseq.New()
	seq.Load(tl)
	src := intaudio.NewSource(seq, engine)
	out := make([]float32, 0, src.CurrentFrameLen())
	buf := make([]float32, 4096)
	for {
		n := src.Read(buf)
		out = append(out, buf[:n]...)
		if n < len(buf) {
			return out
		}
	}
}

// WriteWAV encodes interleaved stereo samples as 16-bit PCM.
func WriteWAV(w io.WriteSeeker, samples []float32, sampleRate int) error {
	if sampleRate <= 0 {
		return errors.New("sampleRate must be positive")
	}
	enc := wav.NewEncoder(w, sampleRate, 16, 2, 1)
	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: 2,
			SampleRate:  sampleRate,
		},
		Data:           make([]int, len(samples)),
		SourceBitDepth: 16,
	}
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		buf.Data[i] = int(s * 32767)
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("failed to write wav: %w", err)
	}
	return enc.Close()
}

// RenderWAVFile renders tl through engine into a WAV file at path.
func RenderWAVFile(path string, tl *timeline.Timeline, engine Engine) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	samples := RenderSamples(tl, engine)
	if err := WriteWAV(f, samples, int(engine.SampleRate())); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// NewEngine builds the engine a Player with opts would use, for offline
// rendering.
func NewEngine(sampleRate int, opts ...PlayerOption) (Engine, error) {
	p, err := NewPlayer(sampleRate, opts...)
	if err != nil {
		return nil, err
	}
	engine, _, err := p.newEngine()
	return engine, err
}
