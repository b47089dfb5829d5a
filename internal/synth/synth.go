// Package synth drives a SoundFont synthesizer with raw channel messages.
package synth

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sinshu/go-meltysynth/meltysynth"
)

var ErrNoSoundFont = errors.New("no soundfont loaded")

// SoundFont is a parsed SF2 bank that can back any number of synths.
type SoundFont struct {
	path string
	sf   *meltysynth.SoundFont
}

// LoadSoundFont reads and parses an SF2 file.
func LoadSoundFont(path string) (*SoundFont, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read soundfont: %w", err)
	}
	sf, err := ReadSoundFont(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	sf.path = path
	return sf, nil
}

func ReadSoundFont(r io.Reader) (*SoundFont, error) {
	sf, err := meltysynth.NewSoundFont(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse soundfont: %w", err)
	}
	return &SoundFont{sf: sf}, nil
}

// Path is the file the bank was loaded from, if any.
func (s *SoundFont) Path() string { return s.path }

// Name is the bank name from the SF2 info chunk.
func (s *SoundFont) Name() string {
	if s.sf == nil || s.sf.Info == nil {
		return ""
	}
	return s.sf.Info.BankName
}

// Presets lists "bank:program name" for every preset in the bank.
func (s *SoundFont) Presets() []string {
	if s.sf == nil {
		return nil
	}
	out := make([]string, 0, len(s.sf.Presets))
	for _, p := range s.sf.Presets {
		out = append(out, fmt.Sprintf("%03d:%03d %s", p.BankNumber, p.PatchNumber, p.Name))
	}
	return out
}

type Options struct {
	ReverbAndChorus bool
	// Volume replaces the library's master volume when positive.
	Volume float32
}

// Synth renders one stereo frame at a time from a meltysynth synthesizer.
type Synth struct {
	synth *meltysynth.Synthesizer
	rate  uint32
	left  []float32
	right []float32
}

func New(sf *SoundFont, sampleRate uint32, opts Options) (*Synth, error) {
	if sf == nil || sf.sf == nil {
		return nil, ErrNoSoundFont
	}
	if sampleRate == 0 {
		return nil, errors.New("sampleRate must be positive")
	}
	settings := meltysynth.NewSynthesizerSettings(int32(sampleRate))
	settings.EnableReverbAndChorus = opts.ReverbAndChorus
	s, err := meltysynth.NewSynthesizer(sf.sf, settings)
	if err != nil {
		return nil, fmt.Errorf("failed to create synthesizer: %w", err)
	}
	if opts.Volume > 0 {
		s.MasterVolume = opts.Volume
	}
	return &Synth{
		synth: s,
		rate:  sampleRate,
		left:  make([]float32, 1),
		right: make([]float32, 1),
	}, nil
}

func (s *Synth) ReceiveRaw(channel, command, data1, data2 uint8) {
	s.synth.ProcessMidiMessage(int32(channel), int32(command), int32(data1), int32(data2))
}

func (s *Synth) RenderFrame() (float32, float32) {
	s.synth.Render(s.left, s.right)
	return s.left[0], s.right[0]
}

// Reset silences all voices and restores controllers to defaults.
func (s *Synth) Reset() { s.synth.Reset() }

func (s *Synth) SampleRate() uint32 { return s.rate }

func (s *Synth) SetVolume(v float32) {
	if v < 0 {
		v = 0
	}
	s.synth.MasterVolume = v
}

func (s *Synth) Volume() float32 { return s.synth.MasterVolume }
