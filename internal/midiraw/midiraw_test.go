package midiraw

import (
	"errors"
	"testing"

	"github.com/sevonj/sfontplayer-sub000/internal/timeline"
)

type call struct{ ch, cmd, d1, d2 uint8 }

type recorder struct{ calls []call }

func (r *recorder) ReceiveRaw(ch, cmd, d1, d2 uint8) {
	r.calls = append(r.calls, call{ch, cmd, d1, d2})
}

func TestForwardShortMessages(t *testing.T) {
	tests := []struct {
		name string
		msg  timeline.Message
		want call
	}{
		{"note on", timeline.NoteOn(2, 60, 100), call{2, 0x90, 60, 100}},
		{"note off velocity", timeline.NoteOff(2, 60, 12), call{2, 0x80, 60, 12}},
		{"poly pressure", timeline.PolyPressure(1, 61, 20), call{1, 0xA0, 61, 20}},
		{"control", timeline.ControlChange(0, 7, 100), call{0, 0xB0, 7, 100}},
		{"mode", timeline.ChannelMode(5, timeline.ModeAllSoundOff, 0), call{5, 0xB0, 120, 0}},
		{"program pads second byte", timeline.ProgramChange(9, 42), call{9, 0xC0, 42, 0}},
		{"pressure pads second byte", timeline.ChannelPressure(3, 77), call{3, 0xD0, 77, 0}},
		{"bend center", timeline.PitchBend(0, timeline.PitchBendCenter), call{0, 0xE0, 0x00, 0x40}},
		{"bend max", timeline.PitchBend(15, 0x3fff), call{15, 0xE0, 0x7f, 0x7f}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var r recorder
			if err := Forward(&r, tt.msg); err != nil {
				t.Fatalf("Forward: %v", err)
			}
			if len(r.calls) != 1 || r.calls[0] != tt.want {
				t.Fatalf("calls = %+v, want [%+v]", r.calls, tt.want)
			}
		})
	}
}

func TestForwardPairsSendFineControllerFirst(t *testing.T) {
	tests := []struct {
		name string
		msg  timeline.Message
		want []call
	}{
		{"high res volume", timeline.HighResControlChange(1, 7, 0x1234),
			[]call{{1, 0xB0, 39, 0x34}, {1, 0xB0, 7, 0x24}}},
		{"rpn", timeline.RegisteredParameter(0, 0x0002),
			[]call{{0, 0xB0, 0x64, 0x02}, {0, 0xB0, 0x65, 0x00}}},
		{"nrpn", timeline.NonRegisteredParameter(4, 0x3fff),
			[]call{{4, 0xB0, 0x62, 0x7f}, {4, 0xB0, 0x63, 0x7f}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var r recorder
			if err := Forward(&r, tt.msg); err != nil {
				t.Fatalf("Forward: %v", err)
			}
			if len(r.calls) != len(tt.want) {
				t.Fatalf("calls = %+v, want %+v", r.calls, tt.want)
			}
			for i := range tt.want {
				if r.calls[i] != tt.want[i] {
					t.Fatalf("call %d = %+v, want %+v", i, r.calls[i], tt.want[i])
				}
			}
		})
	}
}

func TestForwardRawOrdersReversedPair(t *testing.T) {
	var r recorder
	if err := ForwardRaw(&r, []byte{0xB3, 0x64, 0x01, 0x65, 0x00}); err != nil {
		t.Fatalf("ForwardRaw: %v", err)
	}
	if len(r.calls) != 2 || r.calls[0].d1 != 0x64 || r.calls[1].d1 != 0x65 {
		t.Fatalf("calls = %+v", r.calls)
	}
}

func TestForwardUnhandled(t *testing.T) {
	tests := []struct {
		name string
		msg  timeline.Message
	}{
		{"meta", timeline.TempoBPM(120)},
		{"sysex", timeline.Raw([]byte{0xF0, 0x7E, 0xF7})},
		{"coarse out of range", timeline.HighResControlChange(0, 40, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var r recorder
			err := Forward(&r, tt.msg)
			if !errors.Is(err, ErrUnhandled) {
				t.Fatalf("err = %v, want ErrUnhandled", err)
			}
			if len(r.calls) != 0 {
				t.Fatalf("unexpected sends: %+v", r.calls)
			}
		})
	}

	var r recorder
	for _, raw := range [][]byte{nil, {0x90}, {0x90, 1, 2, 3}, {0x90, 1, 2, 3, 4}} {
		if err := ForwardRaw(&r, raw); !errors.Is(err, ErrUnhandled) {
			t.Fatalf("ForwardRaw(% X) = %v", raw, err)
		}
	}
	if len(r.calls) != 0 {
		t.Fatalf("unexpected sends: %+v", r.calls)
	}
}

func TestIsNoteStart(t *testing.T) {
	if !IsNoteStart(timeline.NoteOn(0, 60, 1)) {
		t.Fatalf("note on not reported as note start")
	}
	if IsNoteStart(timeline.NoteOn(0, 60, 0)) {
		t.Fatalf("zero-velocity note on ends a note")
	}
	if IsNoteStart(timeline.NoteOff(0, 60, 0)) || IsNoteStart(timeline.ControlChange(0, 64, 127)) {
		t.Fatalf("non note-on reported as note start")
	}
}
