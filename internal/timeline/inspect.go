package timeline

import (
	"fmt"
	"sort"
)

// TrackSummary describes one track for display.
type TrackSummary struct {
	Index    int    `json:"index"`
	Name     string `json:"name,omitempty"`
	Events   int    `json:"events"`
	EndTick  uint64 `json:"endTick"`
	Programs []int  `json:"programs,omitempty"`
}

// Summary describes a timeline: its tracks and the programs they select.
type Summary struct {
	Format   uint16         `json:"format"`
	Division string         `json:"division"`
	Tracks   []TrackSummary `json:"tracks"`
	Programs []int          `json:"programs,omitempty"`
}

// Inspect collects track names and the set of program change values.
func Inspect(tl *Timeline) Summary {
	sum := Summary{Format: tl.Format, Division: describeDivision(tl.Division)}
	all := map[uint8]struct{}{}
	for i, tr := range tl.Tracks {
		ts := TrackSummary{Index: i, Name: tr.Name(), Events: len(tr), EndTick: tr.EndTick()}
		seen := map[uint8]struct{}{}
		for _, ev := range tr {
			m := ev.Message
			if m.Kind == KindChannelVoice && m.Voice == VoiceProgramChange {
				seen[m.Data1] = struct{}{}
				all[m.Data1] = struct{}{}
			}
		}
		ts.Programs = sortedKeys(seen)
		sum.Tracks = append(sum.Tracks, ts)
	}
	sum.Programs = sortedKeys(all)
	return sum
}

func sortedKeys(set map[uint8]struct{}) []int {
	if len(set) == 0 {
		return nil
	}
	out := make([]int, 0, len(set))
	for k := range set {
		out = append(out, int(k))
	}
	sort.Ints(out)
	return out
}

func describeDivision(d Division) string {
	if d.IsTimeCode() {
		fps, tpf := d.TimeCode()
		if fps == FPS2997Drop {
			return fmt.Sprintf("smpte 29.97df/%d", tpf)
		}
		return fmt.Sprintf("smpte %d/%d", fps, tpf)
	}
	return fmt.Sprintf("%d tpqn", d.TicksPerQuarter())
}

// PresetMap substitutes program change values, e.g. to swap an instrument
// that a soundfont lacks.
type PresetMap map[uint8]uint8

// Lookup returns the mapped program, or program itself when unmapped.
func (pm PresetMap) Lookup(program uint8) uint8 {
	if v, ok := pm[program]; ok {
		return v & 0x7f
	}
	return program
}

// Remap returns a copy of tl with program changes substituted.
func (pm PresetMap) Remap(tl *Timeline) *Timeline {
	out := tl.Clone()
	if len(pm) == 0 {
		return out
	}
	for _, tr := range out.Tracks {
		for i := range tr {
			m := &tr[i].Message
			if m.Kind == KindChannelVoice && m.Voice == VoiceProgramChange {
				m.Data1 = pm.Lookup(m.Data1)
			}
		}
	}
	return out
}
