package master

import (
	"math"
	"testing"
)

type dcEngine struct {
	l, r   float32
	resets int
	sent   int
}

func (e *dcEngine) ReceiveRaw(channel, command, data1, data2 uint8) { e.sent++ }
func (e *dcEngine) Reset()                                        { e.resets++ }
func (e *dcEngine) RenderFrame() (float32, float32)               { return e.l, e.r }
func (e *dcEngine) SampleRate() uint32                            { return 44100 }

func TestEQUnityPassesSignal(t *testing.T) {
	eq := NewEQ(44100)
	if !eq.Flat() {
		t.Fatal("new EQ should be flat")
	}
	var l, r float32
	for i := 0; i < 2000; i++ {
		l, r = eq.Process(0.5, -0.5)
	}
	if math.Abs(float64(l)-0.5) > 1e-4 || math.Abs(float64(r)+0.5) > 1e-4 {
		t.Fatalf("unity EQ changed signal: l=%f r=%f", l, r)
	}
}

func TestEQLowBandCutsDC(t *testing.T) {
	eq := NewEQ(44100)
	eq.SetGain(0, 0)
	var l float32
	for i := 0; i < 44100; i++ {
		l, _ = eq.Process(0.5, 0.5)
	}
	if math.Abs(float64(l)) > 0.01 {
		t.Fatalf("DC should land in band 0 and be removed, got %f", l)
	}
}

func TestEQGainBounds(t *testing.T) {
	eq := NewEQ(44100)
	eq.SetGain(-1, 3)
	eq.SetGain(Bands, 3)
	eq.SetGain(2, -4)
	if got := eq.Gain(2); got != 0 {
		t.Fatalf("negative gain should clamp to 0, got %f", got)
	}
	if got := eq.Gain(Bands); got != 1 {
		t.Fatalf("out of range band should read unity, got %f", got)
	}
	if eq.Flat() {
		t.Fatal("EQ with a cut band is not flat")
	}
}

func TestLimiterHoldsCeiling(t *testing.T) {
	lm := NewLimiter(44100, -6, 1, 50)
	ceiling := float32(math.Pow(10, -6.0/20))
	for i := 0; i < 4410; i++ {
		l, r := lm.Process(1.5, -1.5)
		if l > ceiling+1e-6 || r < -ceiling-1e-6 {
			t.Fatalf("frame %d exceeded ceiling: l=%f r=%f", i, l, r)
		}
	}
	l, _ := lm.Process(0.1, 0.1)
	if l <= 0 {
		t.Fatalf("quiet signal should pass, got %f", l)
	}
}

func TestBus(t *testing.T) {
	tests := []struct {
		name     string
		settings Settings
		in       float32
		enabled  bool
		maxOut   float32
	}{
		{"flat", DefaultSettings(), 0.25, false, 0.25},
		{"muted", Settings{}, 0.25, true, 0},
		{"limited", Settings{Gains: DefaultSettings().Gains, Limiter: true}, 2, true, 0.9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.settings.Enabled(); got != tt.enabled {
				t.Fatalf("Enabled() = %v, want %v", got, tt.enabled)
			}
			eng := &dcEngine{l: tt.in, r: tt.in}
			bus := Wrap(eng, tt.settings)
			var l float32
			for i := 0; i < 4410; i++ {
				l, _ = bus.RenderFrame()
			}
			if l > tt.maxOut+1e-4 {
				t.Fatalf("output %f above %f", l, tt.maxOut)
			}
			bus.ReceiveRaw(0, 0x90, 60, 100)
			bus.Reset()
			if eng.sent != 1 || eng.resets != 1 {
				t.Fatalf("bus should pass messages and resets through: sent=%d resets=%d", eng.sent, eng.resets)
			}
			if bus.SampleRate() != 44100 {
				t.Fatalf("SampleRate() = %d", bus.SampleRate())
			}
		})
	}
}
