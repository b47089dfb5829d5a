// Package timeline holds a parsed multi-track MIDI song: the header division
// and per-track event lists ordered by absolute tick.
package timeline

import (
	"errors"
	"fmt"
)

var (
	ErrNoTracks        = errors.New("timeline has no tracks")
	ErrInvalidDivision = errors.New("timeline division has zero-length ticks")
	ErrNonMonotonic    = errors.New("track events are not tick ordered")
)

// TrackEvent is a message at an absolute tick position.
type TrackEvent struct {
	Tick    uint64
	Message Message
}

// Track is an ordered, read-only event list.
type Track []TrackEvent

// Name returns the first track name meta message, if any.
func (t Track) Name() string {
	for _, ev := range t {
		if ev.Message.Kind == KindMeta && ev.Message.Meta == MetaTrackName {
			return ev.Message.Text
		}
	}
	return ""
}

// EndTick returns the tick of the last event, 0 for an empty track.
func (t Track) EndTick() uint64 {
	if len(t) == 0 {
		return 0
	}
	return t[len(t)-1].Tick
}

// Timeline is a loaded song. It is treated as immutable once handed to a
// sequencer.
type Timeline struct {
	Format   uint16
	Division Division
	Tracks   []Track
}

// Validate reports why a timeline cannot be scheduled.
func (tl *Timeline) Validate() error {
	if tl == nil || len(tl.Tracks) == 0 {
		return ErrNoTracks
	}
	if !tl.Division.Valid() {
		return ErrInvalidDivision
	}
	for i, tr := range tl.Tracks {
		for j := 1; j < len(tr); j++ {
			if tr[j].Tick < tr[j-1].Tick {
				return fmt.Errorf("track %d event %d: %w", i, j, ErrNonMonotonic)
			}
		}
	}
	return nil
}

// EventCount returns the number of events over all tracks.
func (tl *Timeline) EventCount() int {
	n := 0
	for _, tr := range tl.Tracks {
		n += len(tr)
	}
	return n
}

// Clone returns a deep copy of the track lists.
func (tl *Timeline) Clone() *Timeline {
	out := &Timeline{Format: tl.Format, Division: tl.Division, Tracks: make([]Track, len(tl.Tracks))}
	for i, tr := range tl.Tracks {
		out.Tracks[i] = append(Track(nil), tr...)
	}
	return out
}
