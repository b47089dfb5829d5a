package timeline

import "time"

// FrameRate is an SMPTE frame rate as stored in a MIDI file header.
type FrameRate uint8

const (
	FPS24       FrameRate = 24
	FPS25       FrameRate = 25
	FPS2997Drop FrameRate = 29
	FPS30       FrameRate = 30
)

// PerSecond returns the frame count used for tick timing. Drop-frame 29.97
// is timed as 30 frames per second.
func (f FrameRate) PerSecond() float64 {
	switch f {
	case FPS24:
		return 24
	case FPS25:
		return 25
	case FPS2997Drop, FPS30:
		return 30
	}
	return 0
}

// Division maps ticks to time: either ticks per quarter note (tempo relative)
// or SMPTE time code (tempo independent).
type Division struct {
	timeCode      bool
	ticksPerQN    uint16
	frameRate     FrameRate
	ticksPerFrame uint8
}

func TicksPerQuarterNote(ticks uint16) Division {
	return Division{ticksPerQN: ticks}
}

func TimeCode(fps FrameRate, ticksPerFrame uint8) Division {
	return Division{timeCode: true, frameRate: fps, ticksPerFrame: ticksPerFrame}
}

func (d Division) IsTimeCode() bool { return d.timeCode }

// TicksPerQuarter returns the resolution of a metric division, 0 for time code.
func (d Division) TicksPerQuarter() uint16 {
	if d.timeCode {
		return 0
	}
	return d.ticksPerQN
}

func (d Division) TimeCode() (FrameRate, uint8) {
	return d.frameRate, d.ticksPerFrame
}

// Valid reports whether a tick has a finite, positive duration.
func (d Division) Valid() bool {
	if d.timeCode {
		return d.frameRate.PerSecond() > 0 && d.ticksPerFrame > 0
	}
	return d.ticksPerQN > 0
}

// TickDuration returns the wall time of one tick at the given tempo. Time code
// divisions ignore bpm. The result is never below one nanosecond.
func (d Division) TickDuration(bpm float64) time.Duration {
	var secs float64
	if d.timeCode {
		fps := d.frameRate.PerSecond()
		if fps <= 0 || d.ticksPerFrame == 0 {
			return time.Nanosecond
		}
		secs = 1 / fps / float64(d.ticksPerFrame)
	} else {
		if d.ticksPerQN == 0 || bpm <= 0 {
			return time.Nanosecond
		}
		secs = 60 / bpm / float64(d.ticksPerQN)
	}
	dur := time.Duration(secs * float64(time.Second))
	if dur < time.Nanosecond {
		dur = time.Nanosecond
	}
	return dur
}
