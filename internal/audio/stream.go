package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	ebitaudio "github.com/hajimehoshi/ebiten/v2/audio"
)

// StreamReader turns a Source into float32 little-endian stereo bytes for
// the ebiten audio player. The mutex serializes the audio thread's pulls
// against control calls made through Do.
type StreamReader struct {
	mu       sync.Mutex
	source   *Source
	buf      []float32
	onFinish func()
	finished bool
}

func NewStreamReader(source *Source) *StreamReader {
	return &StreamReader{source: source}
}

// OnFinish registers fn to run once, on the audio thread, when the source
// runs out.
func (r *StreamReader) OnFinish(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onFinish = fn
}

// Do runs fn with exclusive access to the source.
func (r *StreamReader) Do(fn func(*Source)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.source)
}

// Read pulls whole frames from the source. The finish callback runs after
// the lock is released so it may call back into Do.
func (r *StreamReader) Read(p []byte) (int, error) {
	frames := len(p) / 8
	if frames == 0 {
		return 0, nil
	}
	need := frames * 2

	r.mu.Lock()
	if cap(r.buf) < need {
		r.buf = make([]float32, need)
	}
	r.buf = r.buf[:need]
	got := r.source.Read(r.buf)
	for i := 0; i < got; i++ {
		u := math.Float32bits(r.buf[i])
		binary.LittleEndian.PutUint32(p[i*4:], u)
	}
	var fire func()
	if got < need && !r.finished {
		r.finished = true
		fire = r.onFinish
	}
	r.mu.Unlock()

	n := got * 4
	if got < need {
		if fire != nil {
			fire()
		}
		return n, io.EOF
	}
	return n, nil
}

func (r *StreamReader) Close() error { return nil }

type Player struct {
	player *ebitaudio.Player
	reader *StreamReader
}

var (
	audioContextOnce sync.Once
	audioContext     *ebitaudio.Context
	audioSampleRate  int
)

func sharedAudioContext(sampleRate int) (*ebitaudio.Context, error) {
	audioContextOnce.Do(func() {
		audioSampleRate = sampleRate
		audioContext = ebitaudio.NewContext(sampleRate)
	})
	if audioSampleRate != sampleRate {
		return nil, fmt.Errorf("audio context already initialized at %d Hz (requested %d Hz)", audioSampleRate, sampleRate)
	}
	return audioContext, nil
}

func NewPlayer(reader *StreamReader) (*Player, error) {
	ctx, err := sharedAudioContext(int(reader.source.SampleRate()))
	if err != nil {
		return nil, err
	}
	pl, err := ctx.NewPlayerF32(reader)
	if err != nil {
		return nil, err
	}
	return &Player{
		player: pl,
		reader: reader,
	}, nil
}

func (p *Player) Play()  { p.player.Play() }
func (p *Player) Pause() { p.player.Pause() }
func (p *Player) IsPlaying() bool {
	return p.player.IsPlaying()
}

// Position returns the current playback position (what the listener actually hears).
func (p *Player) Position() time.Duration {
	return p.player.Position()
}

func (p *Player) Stop() error {
	p.player.Pause()
	if err := p.player.Close(); err != nil {
		return err
	}
	return p.reader.Close()
}
