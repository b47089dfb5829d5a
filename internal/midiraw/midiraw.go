// Package midiraw converts structured timeline messages into the raw
// (channel, command, data1, data2) calls a synthesis engine accepts.
package midiraw

import (
	"errors"
	"fmt"

	"gitlab.com/gomidi/midi/v2"

	"github.com/sevonj/sfontplayer-sub000/internal/timeline"
)

// ErrUnhandled is returned for messages that have no raw engine form.
var ErrUnhandled = errors.New("unhandled midi message")

// Receiver accepts one raw channel message. command is the status high
// nibble (0x80..0xE0).
type Receiver interface {
	ReceiveRaw(channel, command, data1, data2 uint8)
}

const (
	ctlNRPNLSB = 0x62
	ctlNRPNMSB = 0x63
	ctlRPNLSB  = 0x64
	ctlRPNMSB  = 0x65
)

// Encode renders msg as MIDI wire bytes. 14-bit controller kinds use the
// running-status pair form [status, coarse, msb, fine, lsb].
func Encode(msg timeline.Message) (midi.Message, error) {
	ch := msg.Channel
	switch msg.Kind {
	case timeline.KindChannelMode:
		return midi.ControlChange(ch, msg.Data1, msg.Data2), nil
	case timeline.KindChannelVoice:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnhandled, msg)
	}
	switch msg.Voice {
	case timeline.VoiceNoteOff:
		return midi.NoteOffVelocity(ch, msg.Data1, msg.Data2), nil
	case timeline.VoiceNoteOn:
		return midi.NoteOn(ch, msg.Data1, msg.Data2), nil
	case timeline.VoicePolyPressure:
		return midi.PolyAfterTouch(ch, msg.Data1, msg.Data2), nil
	case timeline.VoiceControlChange:
		return midi.ControlChange(ch, msg.Data1, msg.Data2), nil
	case timeline.VoiceHighResControlChange:
		if msg.Data1 > 31 {
			return nil, fmt.Errorf("%w: coarse controller %d out of range", ErrUnhandled, msg.Data1)
		}
		return pair(ch, msg.Data1, msg.Data1+32, msg.Value), nil
	case timeline.VoiceRegisteredParameter:
		return pair(ch, ctlRPNMSB, ctlRPNLSB, msg.Value), nil
	case timeline.VoiceNonRegisteredParameter:
		return pair(ch, ctlNRPNMSB, ctlNRPNLSB, msg.Value), nil
	case timeline.VoiceProgramChange:
		return midi.ProgramChange(ch, msg.Data1), nil
	case timeline.VoiceChannelPressure:
		return midi.AfterTouch(ch, msg.Data1), nil
	case timeline.VoicePitchBend:
		return midi.Pitchbend(ch, int16(int(msg.Value&0x3fff)-int(timeline.PitchBendCenter))), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnhandled, msg)
}

func pair(ch, coarse, fine uint8, value uint16) midi.Message {
	return midi.Message{
		0xB0 | ch&0x0f,
		coarse, uint8(value>>7) & 0x7f,
		fine, uint8(value) & 0x7f,
	}
}

// Forward encodes msg and delivers it to r. A two-byte message becomes
// (ch, cmd, d1, 0), a three-byte one (ch, cmd, d1, d2). A five-byte
// controller pair is split in two sends with the fine (LSB) controller
// delivered before the coarse (MSB) one. Any other shape yields ErrUnhandled
// and nothing is sent.
func Forward(r Receiver, msg timeline.Message) error {
	raw, err := Encode(msg)
	if err != nil {
		return err
	}
	return ForwardRaw(r, raw)
}

// ForwardRaw is Forward for bytes that are already encoded.
func ForwardRaw(r Receiver, raw []byte) error {
	if len(raw) == 0 || raw[0] < 0x80 || raw[0] >= 0xF0 {
		return fmt.Errorf("%w: % X", ErrUnhandled, raw)
	}
	ch, cmd := raw[0]&0x0f, raw[0]&0xf0
	switch len(raw) {
	case 2:
		r.ReceiveRaw(ch, cmd, raw[1], 0)
	case 3:
		r.ReceiveRaw(ch, cmd, raw[1], raw[2])
	case 5:
		if cmd != 0xB0 {
			return fmt.Errorf("%w: % X", ErrUnhandled, raw)
		}
		first, second := [2]uint8{raw[1], raw[2]}, [2]uint8{raw[3], raw[4]}
		if isFine(second[0]) && !isFine(first[0]) {
			first, second = second, first
		}
		r.ReceiveRaw(ch, cmd, first[0], first[1])
		r.ReceiveRaw(ch, cmd, second[0], second[1])
	default:
		return fmt.Errorf("%w: % X", ErrUnhandled, raw)
	}
	return nil
}

func isFine(controller uint8) bool {
	return (controller >= 0x20 && controller <= 0x3f) || controller == ctlNRPNLSB || controller == ctlRPNLSB
}

// IsNoteStart reports whether forwarding msg would start a note. Quiet
// replay skips these; a zero-velocity NoteOn ends a note and is kept.
func IsNoteStart(msg timeline.Message) bool {
	return msg.IsNoteStart()
}
