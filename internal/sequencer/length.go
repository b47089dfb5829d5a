package sequencer

import (
	"time"

	"github.com/sevonj/sfontplayer-sub000/internal/timeline"
)

// computeLength replays the tempo map on scratch cursors. Only tempo events
// matter; the result is the time at which the final event becomes due.
func (s *Sequencer) computeLength() time.Duration {
	return Length(s.tl)
}

// Length returns the playing time of tl without touching any playback
// state. An invalid timeline has zero length.
func Length(tl *timeline.Timeline) time.Duration {
	if tl == nil || tl.Validate() != nil {
		return 0
	}
	cursors := make([]int, len(tl.Tracks))
	bpm := DefaultBPM
	var total time.Duration
	var tick uint64
	for {
		next, pending := uint64(0), false
		for i, track := range tl.Tracks {
			for cursors[i] < len(track) && track[cursors[i]].Tick <= tick {
				msg := track[cursors[i]].Message
				if msg.Kind == timeline.KindMeta && msg.Meta == timeline.MetaTempo && msg.Tempo > 0 {
					bpm = msg.BPM()
				}
				cursors[i]++
			}
			if cursors[i] < len(track) {
				t := track[cursors[i]].Tick
				if !pending || t < next {
					next = t
				}
				pending = true
			}
		}
		if !pending {
			return total
		}
		// Tempo is constant until the next due event, so the gap is
		// summed in one step instead of tick by tick.
		total += time.Duration(next-tick) * tl.Division.TickDuration(bpm)
		tick = next
	}
}
