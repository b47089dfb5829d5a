package audio

import (
	"time"

	"github.com/sevonj/sfontplayer-sub000/internal/sequencer"
)

type channel uint8

const (
	nextIsLeft channel = iota
	nextIsRight
)

// Source adapts a stereo engine to a backend that polls one interleaved
// sample at a time. A frame is rendered on every left poll and its right
// half is cached for the following poll.
type Source struct {
	seq       *sequencer.Sequencer
	engine    sequencer.Engine
	rate      uint32
	next      channel
	right     float32
	exhausted bool
	// sub-nanosecond remainder of the per-sample step, in 1/rate units
	rem int64
}

// NewSource pairs a loaded sequencer with the engine it drives. The sample
// rate is taken from the engine.
func NewSource(seq *sequencer.Sequencer, engine sequencer.Engine) *Source {
	return &Source{seq: seq, engine: engine, rate: engine.SampleRate()}
}

// Next returns the next interleaved sample, left first. It returns false
// once the sequence has ended; after that no frame is ever rendered again.
func (s *Source) Next() (float32, bool) {
	if s.next == nextIsRight {
		s.next = nextIsLeft
		return s.right, true
	}
	if s.exhausted || s.seq.EndOfSequence() {
		s.exhausted = true
		return 0, false
	}
	s.seq.Advance(s.frameStep(), s.engine)
	l, r := s.engine.RenderFrame()
	s.right = r
	s.next = nextIsRight
	return l, true
}

// frameStep spreads the nanosecond remainder of 1/rate over successive
// frames so a second of samples adds up to exactly one second.
func (s *Source) frameStep() time.Duration {
	if s.rate == 0 {
		return 0
	}
	n := int64(time.Second) + s.rem
	s.rem = n % int64(s.rate)
	return time.Duration(n / int64(s.rate))
}

// Read fills dst with interleaved samples and returns how many were
// written. A short count means the source is exhausted.
func (s *Source) Read(dst []float32) int {
	for i := range dst {
		v, ok := s.Next()
		if !ok {
			return i
		}
		dst[i] = v
	}
	return len(dst)
}

func (s *Source) Channels() uint16 { return 2 }

func (s *Source) SampleRate() uint32 { return s.rate }

// TotalDuration is the song length. It is always known once loaded.
func (s *Source) TotalDuration() (time.Duration, bool) {
	return s.seq.SongLength(), s.seq.Timeline() != nil
}

// CurrentFrameLen estimates how many interleaved samples remain.
func (s *Source) CurrentFrameLen() int {
	if s.exhausted {
		return 0
	}
	left := s.seq.SongLength() - s.seq.SongPosition()
	if left < 0 {
		left = 0
	}
	n := int(left.Seconds()*float64(s.rate)) * 2
	if s.next == nextIsRight {
		n++
	}
	return n
}

// SeekTo moves the song to t and realigns to a left sample. An exhausted
// source stays exhausted.
func (s *Source) SeekTo(t time.Duration) {
	s.seq.SeekTo(t, s.engine)
	s.next = nextIsLeft
	s.rem = 0
}

func (s *Source) Position() time.Duration { return s.seq.SongPosition() }

// Exhausted reports whether the source has delivered its last sample.
func (s *Source) Exhausted() bool { return s.exhausted }

func (s *Source) Sequencer() *sequencer.Sequencer { return s.seq }
