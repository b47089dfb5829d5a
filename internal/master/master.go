// Package master is the output stage between the synthesizer and the audio
// device: a five band equalizer followed by a peak limiter.
package master

import (
	"math"
	"sync/atomic"

	"github.com/sevonj/sfontplayer-sub000/internal/sequencer"
)

// Bands is the number of equalizer bands.
const Bands = 5

// Band edges in Hz. Band 0 is below the first edge, band 4 above the last.
var crossovers = [Bands - 1]float64{200, 800, 2500, 8000}

// Processor transforms one stereo frame.
type Processor interface {
	Process(l, r float32) (float32, float32)
	Reset()
}

// EQ splits the signal with cascaded one-pole lowpass filters and sums the
// bands back with per-band gain. Gains may be changed from any goroutine.
type EQ struct {
	gains  [Bands]atomic.Uint32 // float32 bits, 1 is unity
	alphas [Bands - 1]float32
	lpL    [Bands - 1]float32
	lpR    [Bands - 1]float32
}

func NewEQ(sampleRate uint32) *EQ {
	eq := &EQ{}
	dt := 1 / float64(sampleRate)
	for i, hz := range crossovers {
		rc := 1 / (2 * math.Pi * hz)
		eq.alphas[i] = float32(dt / (rc + dt))
	}
	for i := range eq.gains {
		eq.gains[i].Store(math.Float32bits(1))
	}
	return eq
}

// SetGain sets a band's linear gain. Out of range bands are ignored and
// negative gains are treated as 0.
func (eq *EQ) SetGain(band int, gain float32) {
	if band < 0 || band >= Bands {
		return
	}
	if gain < 0 {
		gain = 0
	}
	eq.gains[band].Store(math.Float32bits(gain))
}

func (eq *EQ) Gain(band int) float32 {
	if band < 0 || band >= Bands {
		return 1
	}
	return math.Float32frombits(eq.gains[band].Load())
}

// Flat reports whether every band is at unity.
func (eq *EQ) Flat() bool {
	for i := range eq.gains {
		if eq.Gain(i) != 1 {
			return false
		}
	}
	return true
}

func (eq *EQ) Process(l, r float32) (float32, float32) {
	var outL, outR float32
	remL, remR := l, r
	for i := range eq.alphas {
		eq.lpL[i] += eq.alphas[i] * (remL - eq.lpL[i])
		eq.lpR[i] += eq.alphas[i] * (remR - eq.lpR[i])
		g := eq.Gain(i)
		outL += eq.lpL[i] * g
		outR += eq.lpR[i] * g
		remL -= eq.lpL[i]
		remR -= eq.lpR[i]
	}
	g := eq.Gain(Bands - 1)
	return outL + remL*g, outR + remR*g
}

func (eq *EQ) Reset() {
	eq.lpL = [Bands - 1]float32{}
	eq.lpR = [Bands - 1]float32{}
}

// Limiter holds the linked stereo peak under a ceiling with a fast attack and
// slow release envelope.
type Limiter struct {
	ceiling float32
	attack  float32
	release float32
	env     float32
}

// NewLimiter builds a limiter. ceilingDB is the output ceiling in dBFS,
// e.g. -1.
func NewLimiter(sampleRate uint32, ceilingDB, attackMs, releaseMs float64) *Limiter {
	sr := float64(sampleRate)
	return &Limiter{
		ceiling: float32(math.Pow(10, ceilingDB/20)),
		attack:  float32(1 - math.Exp(-1/(attackMs*sr/1000))),
		release: float32(1 - math.Exp(-1/(releaseMs*sr/1000))),
	}
}

func (lm *Limiter) Process(l, r float32) (float32, float32) {
	peak := max(abs32(l), abs32(r))
	if peak > lm.env {
		lm.env += lm.attack * (peak - lm.env)
	} else {
		lm.env += lm.release * (peak - lm.env)
	}
	gain := float32(1)
	if lm.env > lm.ceiling {
		gain = lm.ceiling / lm.env
	}
	l, r = l*gain, r*gain
	// The envelope lags transients; clip what gets through.
	return clamp(l, lm.ceiling), clamp(r, lm.ceiling)
}

func (lm *Limiter) Reset() { lm.env = 0 }

// Settings configures a Bus. Start from DefaultSettings; the zero value
// mutes every band.
type Settings struct {
	// Gains are linear per-band gains, low to high. 1 is unity, 0 mutes.
	Gains   [Bands]float64
	Limiter bool
}

// DefaultSettings is a flat EQ with the limiter off.
func DefaultSettings() Settings {
	var s Settings
	for i := range s.Gains {
		s.Gains[i] = 1
	}
	return s
}

// Enabled reports whether the settings change the signal at all.
func (s Settings) Enabled() bool {
	if s.Limiter {
		return true
	}
	for _, g := range s.Gains {
		if g != 1 {
			return true
		}
	}
	return false
}

// Bus wraps an engine and runs its output through the processors.
type Bus struct {
	sequencer.Engine
	EQ    *EQ
	chain []Processor
}

// Wrap returns engine with the master stage applied.
func Wrap(engine sequencer.Engine, s Settings) *Bus {
	rate := engine.SampleRate()
	b := &Bus{Engine: engine, EQ: NewEQ(rate)}
	for i, g := range s.Gains {
		b.EQ.SetGain(i, float32(g))
	}
	b.chain = append(b.chain, b.EQ)
	if s.Limiter {
		b.chain = append(b.chain, NewLimiter(rate, -1, 1, 80))
	}
	return b
}

func (b *Bus) RenderFrame() (float32, float32) {
	l, r := b.Engine.RenderFrame()
	for _, p := range b.chain {
		l, r = p.Process(l, r)
	}
	return l, r
}

// Reset silences the engine and clears filter state.
func (b *Bus) Reset() {
	b.Engine.Reset()
	for _, p := range b.chain {
		p.Reset()
	}
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

func clamp(v, limit float32) float32 {
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return v
}
