// Package sequencer schedules timeline events against a wall clock and
// forwards them to a synthesis engine.
package sequencer

import (
	"time"

	"go.uber.org/zap"

	"github.com/sevonj/sfontplayer-sub000/internal/logging"
	"github.com/sevonj/sfontplayer-sub000/internal/midiraw"
	"github.com/sevonj/sfontplayer-sub000/internal/timeline"
)

// DefaultBPM is the tempo in effect until a tempo event is seen.
const DefaultBPM = 120.0

// Sink is the engine side of the scheduler: raw messages plus a full reset
// used before replaying from the start.
type Sink interface {
	midiraw.Receiver
	Reset()
}

// EventKind identifies sequencer lifecycle events.
type EventKind int

const (
	EventPlaybackEnded EventKind = iota
	EventTempoChanged
)

// DiagnosticKind classifies non-fatal problems seen while scheduling.
type DiagnosticKind int

const (
	DiagnosticLate DiagnosticKind = iota
	DiagnosticUnhandled
	DiagnosticMalformed
)

func (k DiagnosticKind) String() string {
	switch k {
	case DiagnosticLate:
		return "late"
	case DiagnosticUnhandled:
		return "unhandled"
	case DiagnosticMalformed:
		return "malformed"
	}
	return "unknown"
}

// Diagnostic describes an event that was dispatched late, could not be
// forwarded, or a timeline that could not be scheduled.
type Diagnostic struct {
	Kind      DiagnosticKind
	Track     int
	Event     int
	LateTicks uint64
	Message   timeline.Message
	Err       error
}

// Stats counts dispatch activity since the last Load.
type Stats struct {
	Dispatched int
	Tempo      int
	Late       int
	Unhandled  int
}

// Options configures a Sequencer. Every field is optional.
type Options struct {
	Logger       *zap.Logger
	OnEvent      func(EventKind)
	OnDiagnostic func(Diagnostic)
}

// Sequencer walks a timeline against a wall clock. It is not safe for
// concurrent use; the audio source serializes access.
type Sequencer struct {
	tl       *timeline.Timeline
	cursors  []int
	tick     uint64
	acc      time.Duration
	bpm      float64
	position time.Duration
	length   time.Duration
	ended    bool
	stats    Stats

	log          *zap.Logger
	onEvent      func(EventKind)
	onDiagnostic func(Diagnostic)
}

// New returns a sequencer with nothing loaded, at the default tempo.
func New() *Sequencer {
	return NewWithOptions(Options{})
}

// NewWithOptions is New with a logger and callbacks.
func NewWithOptions(opts Options) *Sequencer {
	return &Sequencer{
		bpm:          DefaultBPM,
		log:          logging.OrNop(opts.Logger),
		onEvent:      opts.OnEvent,
		onDiagnostic: opts.OnDiagnostic,
	}
}

// Load replaces the song and rewinds to the start. The engine is not
// touched. A timeline that fails validation loads as already finished.
func (s *Sequencer) Load(tl *timeline.Timeline) {
	s.tl = tl
	s.stats = Stats{}
	s.rewind()
	if tl == nil {
		s.cursors = s.cursors[:0]
		s.length = 0
		return
	}
	if err := tl.Validate(); err != nil {
		for i := range s.cursors {
			s.cursors[i] = len(tl.Tracks[i])
		}
		s.length = 0
		s.ended = true
		s.log.Warn("timeline cannot be scheduled", zap.Error(err))
		s.report(Diagnostic{Kind: DiagnosticMalformed, Track: -1, Event: -1, Err: err})
		return
	}
	s.length = s.computeLength()
	s.log.Info("timeline loaded",
		zap.Int("tracks", len(tl.Tracks)),
		zap.Int("events", tl.EventCount()),
		zap.Duration("length", s.length))
}

func (s *Sequencer) rewind() {
	s.tick = 0
	s.acc = 0
	s.bpm = DefaultBPM
	s.position = 0
	s.ended = false
	n := 0
	if s.tl != nil {
		n = len(s.tl.Tracks)
	}
	if cap(s.cursors) < n {
		s.cursors = make([]int, n)
	}
	s.cursors = s.cursors[:n]
	for i := range s.cursors {
		s.cursors[i] = 0
	}
}

// EndOfSequence reports whether every track has been fully dispatched.
func (s *Sequencer) EndOfSequence() bool {
	if s.tl == nil {
		return true
	}
	for i, c := range s.cursors {
		if c < len(s.tl.Tracks[i]) {
			return false
		}
	}
	return true
}

// Advance moves the clock forward by dt and dispatches every event that
// has become due.
func (s *Sequencer) Advance(dt time.Duration, r midiraw.Receiver) {
	if s.tl == nil {
		return
	}
	s.step(dt, r, false)
	s.checkEnded()
}

// checkEnded emits EventPlaybackEnded the first time the end is reached.
func (s *Sequencer) checkEnded() {
	if !s.ended && s.EndOfSequence() {
		s.ended = true
		s.log.Debug("end of sequence", zap.Duration("position", s.position))
		s.emit(EventPlaybackEnded)
	}
}

// step is shared by playback and quiet seeking. With quiet set, note starts
// are skipped so seeking never sounds notes.
func (s *Sequencer) step(dt time.Duration, r midiraw.Receiver, quiet bool) {
	s.position += dt
	s.acc += dt
	tickDur := s.TickDuration()
	for s.acc >= tickDur {
		s.acc -= tickDur
		s.tick++
	}
	s.dispatch(r, quiet)
}

func (s *Sequencer) dispatch(r midiraw.Receiver, quiet bool) {
	for trk, track := range s.tl.Tracks {
		for s.cursors[trk] < len(track) {
			idx := s.cursors[trk]
			ev := track[idx]
			if ev.Tick > s.tick {
				break
			}
			s.cursors[trk]++
			if ev.Tick < s.tick && !quiet {
				s.stats.Late++
				s.log.Debug("late event",
					zap.Int("track", trk),
					zap.Int("event", idx),
					zap.Uint64("ticks", s.tick-ev.Tick))
				s.report(Diagnostic{Kind: DiagnosticLate, Track: trk, Event: idx, LateTicks: s.tick - ev.Tick, Message: ev.Message})
			}
			s.apply(trk, idx, ev.Message, r, quiet)
		}
	}
}

func (s *Sequencer) apply(trk, idx int, msg timeline.Message, r midiraw.Receiver, quiet bool) {
	switch msg.Kind {
	case timeline.KindMeta:
		if msg.Meta == timeline.MetaTempo && msg.Tempo > 0 {
			s.bpm = msg.BPM()
			s.stats.Tempo++
			s.emit(EventTempoChanged)
		}
		return
	case timeline.KindChannelVoice, timeline.KindChannelMode:
	default:
		return
	}
	if quiet && midiraw.IsNoteStart(msg) {
		return
	}
	if r == nil {
		return
	}
	if err := midiraw.Forward(r, msg); err != nil {
		s.stats.Unhandled++
		s.log.Warn("message not forwarded",
			zap.Int("track", trk),
			zap.Int("event", idx),
			zap.Stringer("message", msg),
			zap.Error(err))
		s.report(Diagnostic{Kind: DiagnosticUnhandled, Track: trk, Event: idx, Message: msg, Err: err})
		return
	}
	s.stats.Dispatched++
}

func (s *Sequencer) report(d Diagnostic) {
	if s.onDiagnostic != nil {
		s.onDiagnostic(d)
	}
}

func (s *Sequencer) emit(kind EventKind) {
	if s.onEvent != nil {
		s.onEvent(kind)
	}
}

// SongLength is the wall time at which the last event becomes due.
func (s *Sequencer) SongLength() time.Duration { return s.length }

// SongPosition is the wall time played or seeked so far.
func (s *Sequencer) SongPosition() time.Duration { return s.position }

func (s *Sequencer) Tick() uint64 { return s.tick }

func (s *Sequencer) BPM() float64 { return s.bpm }

// TickDuration is the length of one tick under the current tempo.
func (s *Sequencer) TickDuration() time.Duration {
	if s.tl == nil {
		return timeline.TicksPerQuarterNote(1).TickDuration(s.bpm)
	}
	return s.tl.Division.TickDuration(s.bpm)
}

// Cursors returns a copy of the per-track dispatch indices.
func (s *Sequencer) Cursors() []int {
	return append([]int(nil), s.cursors...)
}

func (s *Sequencer) Stats() Stats { return s.stats }

// Timeline returns the loaded timeline, or nil.
func (s *Sequencer) Timeline() *timeline.Timeline { return s.tl }
