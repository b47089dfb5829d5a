package sequencer

import "time"

// SeekTo moves playback to target, clamped to the song length. Seeking
// backwards rewinds and resets the sink first. The song is then replayed
// quietly up to target: tempo and controller state reach the engine, note
// starts do not. Afterwards SongPosition equals the clamped target.
func (s *Sequencer) SeekTo(target time.Duration, sink Sink) {
	if s.tl == nil {
		return
	}
	if target < 0 {
		target = 0
	}
	if target > s.length {
		target = s.length
	}
	if target < s.position {
		s.rewind()
		if sink != nil {
			sink.Reset()
		}
	}
	for s.position < target {
		step := s.TickDuration() - s.acc
		if step < 0 {
			// a tempo change shortened the current tick
			step = 0
		}
		if remaining := target - s.position; step > remaining {
			step = remaining
		}
		s.step(step, sink, true)
	}
	s.checkEnded()
}
