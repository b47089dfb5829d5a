package timeline

import (
	"fmt"
	"io"
	"os"

	"gitlab.com/gomidi/midi/v2/smf"
)

// ReadFile parses a standard MIDI file from disk.
func ReadFile(path string) (*Timeline, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open MIDI file: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Read parses a standard MIDI file.
func Read(r io.Reader) (*Timeline, error) {
	s, err := smf.ReadFrom(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse MIDI: %w", err)
	}
	return FromSMF(s)
}

// FromSMF converts delta-timed smf tracks into absolute-tick tracks.
func FromSMF(s *smf.SMF) (*Timeline, error) {
	tl := &Timeline{Format: s.Format()}
	switch tf := s.TimeFormat.(type) {
	case smf.MetricTicks:
		tl.Division = TicksPerQuarterNote(tf.Resolution())
	case smf.TimeCode:
		tl.Division = TimeCode(FrameRate(tf.FramesPerSecond), tf.SubFrames)
	default:
		return nil, fmt.Errorf("unsupported MIDI time format %v", s.TimeFormat)
	}
	tl.Tracks = make([]Track, 0, len(s.Tracks))
	for _, src := range s.Tracks {
		track := make(Track, 0, len(src))
		var tick uint64
		for _, ev := range src {
			tick += uint64(ev.Delta)
			track = append(track, TrackEvent{Tick: tick, Message: decodeSMF(ev.Message)})
		}
		tl.Tracks = append(tl.Tracks, track)
	}
	return tl, nil
}

func decodeSMF(msg smf.Message) Message {
	if len(msg) > 1 && msg[0] == 0xFF {
		var bpm float64
		var text string
		switch {
		case msg.GetMetaTempo(&bpm):
			return TempoBPM(bpm)
		case msg.GetMetaTrackName(&text):
			return TrackName(text)
		case msg.Is(smf.MetaEndOfTrackMsg):
			return EndOfTrack()
		}
		return Message{Kind: KindMeta, Meta: MetaOther, Raw: append([]byte(nil), msg...)}
	}
	return Decode(msg)
}

// Decode converts raw channel message bytes (no running status) into a
// Message. Anything that is not a channel message is wrapped with Raw.
func Decode(b []byte) Message {
	if len(b) == 0 || b[0] < 0x80 || b[0] >= 0xF0 {
		return Raw(b)
	}
	ch := b[0] & 0x0f
	data := func(i int) uint8 {
		if i < len(b) {
			return b[i] & 0x7f
		}
		return 0
	}
	switch b[0] & 0xf0 {
	case 0x80:
		return NoteOff(ch, data(1), data(2))
	case 0x90:
		return NoteOn(ch, data(1), data(2))
	case 0xA0:
		return PolyPressure(ch, data(1), data(2))
	case 0xB0:
		if data(1) >= ModeAllSoundOff {
			return ChannelMode(ch, data(1), data(2))
		}
		return ControlChange(ch, data(1), data(2))
	case 0xC0:
		return ProgramChange(ch, data(1))
	case 0xD0:
		return ChannelPressure(ch, data(1))
	default: // 0xE0
		return PitchBend(ch, uint16(data(1))|uint16(data(2))<<7)
	}
}
