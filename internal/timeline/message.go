package timeline

import "fmt"

// Kind tags the message union.
type Kind uint8

const (
	KindOther Kind = iota
	KindChannelVoice
	KindChannelMode
	KindMeta
)

func (k Kind) String() string {
	switch k {
	case KindChannelVoice:
		return "channel-voice"
	case KindChannelMode:
		return "channel-mode"
	case KindMeta:
		return "meta"
	}
	return "other"
}

// VoiceType identifies a channel voice message.
type VoiceType uint8

const (
	VoiceNoteOff VoiceType = iota + 1
	VoiceNoteOn
	VoicePolyPressure
	VoiceControlChange
	// VoiceHighResControlChange carries a 14-bit value for a coarse controller
	// (0-31) and its fine partner (controller+32).
	VoiceHighResControlChange
	// VoiceRegisteredParameter selects a 14-bit RPN (controllers 0x65/0x64).
	VoiceRegisteredParameter
	// VoiceNonRegisteredParameter selects a 14-bit NRPN (controllers 0x63/0x62).
	VoiceNonRegisteredParameter
	VoiceProgramChange
	VoiceChannelPressure
	VoicePitchBend
)

// Channel mode controller numbers.
const (
	ModeAllSoundOff         uint8 = 120
	ModeResetAllControllers uint8 = 121
	ModeLocalControl        uint8 = 122
	ModeAllNotesOff         uint8 = 123
	ModeOmniOff             uint8 = 124
	ModeOmniOn              uint8 = 125
	ModeMonoOn              uint8 = 126
	ModePolyOn              uint8 = 127
)

// MetaType identifies a meta message.
type MetaType uint8

const (
	MetaOther MetaType = iota
	MetaTempo
	MetaTrackName
	MetaEndOfTrack
)

// PitchBendCenter is the 14-bit pitch wheel rest position.
const PitchBendCenter uint16 = 0x2000

// Message is a structured MIDI message. Which fields are meaningful depends on
// Kind (and Voice or Meta):
//
//	NoteOn/NoteOff/PolyPressure: Data1 key, Data2 velocity/pressure
//	ControlChange: Data1 controller, Data2 value
//	HighResControlChange: Data1 coarse controller, Value 14-bit
//	Registered/NonRegisteredParameter: Value 14-bit parameter number
//	ProgramChange: Data1 program; ChannelPressure: Data1 pressure
//	PitchBend: Value 14-bit, PitchBendCenter at rest
//	ChannelMode: Data1 mode controller (120-127), Data2 value
//	Meta tempo: Tempo in microseconds per quarter note; track name: Text
//	Other and unknown meta: Raw
type Message struct {
	Kind    Kind
	Channel uint8
	Voice   VoiceType
	Data1   uint8
	Data2   uint8
	Value   uint16
	Meta    MetaType
	Tempo   uint32
	Text    string
	Raw     []byte
}

func NoteOn(channel, key, velocity uint8) Message {
	return voice(channel, VoiceNoteOn, key, velocity)
}

func NoteOff(channel, key, velocity uint8) Message {
	return voice(channel, VoiceNoteOff, key, velocity)
}

func PolyPressure(channel, key, pressure uint8) Message {
	return voice(channel, VoicePolyPressure, key, pressure)
}

func ControlChange(channel, controller, value uint8) Message {
	return voice(channel, VoiceControlChange, controller, value)
}

func HighResControlChange(channel, controller uint8, value uint16) Message {
	m := voice(channel, VoiceHighResControlChange, controller, 0)
	m.Value = value & 0x3fff
	return m
}

func RegisteredParameter(channel uint8, param uint16) Message {
	m := voice(channel, VoiceRegisteredParameter, 0, 0)
	m.Value = param & 0x3fff
	return m
}

func NonRegisteredParameter(channel uint8, param uint16) Message {
	m := voice(channel, VoiceNonRegisteredParameter, 0, 0)
	m.Value = param & 0x3fff
	return m
}

func ProgramChange(channel, program uint8) Message {
	return voice(channel, VoiceProgramChange, program, 0)
}

func ChannelPressure(channel, pressure uint8) Message {
	return voice(channel, VoiceChannelPressure, pressure, 0)
}

func PitchBend(channel uint8, value uint16) Message {
	m := voice(channel, VoicePitchBend, 0, 0)
	m.Value = value & 0x3fff
	return m
}

func ChannelMode(channel, mode, value uint8) Message {
	return Message{Kind: KindChannelMode, Channel: channel & 0x0f, Data1: mode, Data2: value & 0x7f}
}

// Tempo builds a set-tempo meta message from microseconds per quarter note.
func Tempo(microsPerQuarter uint32) Message {
	return Message{Kind: KindMeta, Meta: MetaTempo, Tempo: microsPerQuarter}
}

// TempoBPM builds a set-tempo meta message from beats per minute.
func TempoBPM(bpm float64) Message {
	return Tempo(uint32(60_000_000/bpm + 0.5))
}

func TrackName(name string) Message {
	return Message{Kind: KindMeta, Meta: MetaTrackName, Text: name}
}

func EndOfTrack() Message {
	return Message{Kind: KindMeta, Meta: MetaEndOfTrack}
}

// Raw wraps bytes that are neither channel nor meta messages (SysEx, system
// common). They are never forwarded to an engine.
func Raw(b []byte) Message {
	return Message{Kind: KindOther, Raw: append([]byte(nil), b...)}
}

func voice(channel uint8, t VoiceType, d1, d2 uint8) Message {
	return Message{Kind: KindChannelVoice, Channel: channel & 0x0f, Voice: t, Data1: d1 & 0x7f, Data2: d2 & 0x7f}
}

// BPM converts a tempo message into beats per minute.
func (m Message) BPM() float64 {
	if m.Tempo == 0 {
		return 0
	}
	return 60_000_000 / float64(m.Tempo)
}

// IsNoteStart reports whether the message would start a note. A NoteOn with
// zero velocity is a release and does not count.
func (m Message) IsNoteStart() bool {
	return m.Kind == KindChannelVoice && m.Voice == VoiceNoteOn && m.Data2 > 0
}

func (m Message) String() string {
	switch m.Kind {
	case KindChannelVoice:
		return fmt.Sprintf("voice{ch:%d type:%d d1:%d d2:%d v:%d}", m.Channel, m.Voice, m.Data1, m.Data2, m.Value)
	case KindChannelMode:
		return fmt.Sprintf("mode{ch:%d mode:%d v:%d}", m.Channel, m.Data1, m.Data2)
	case KindMeta:
		switch m.Meta {
		case MetaTempo:
			return fmt.Sprintf("meta{tempo:%dus}", m.Tempo)
		case MetaTrackName:
			return fmt.Sprintf("meta{name:%q}", m.Text)
		case MetaEndOfTrack:
			return "meta{end}"
		}
		return fmt.Sprintf("meta{raw:% X}", m.Raw)
	}
	return fmt.Sprintf("other{raw:% X}", m.Raw)
}
