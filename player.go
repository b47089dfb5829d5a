// Package sfontplayer plays standard MIDI files through a SoundFont
// synthesizer.
package sfontplayer

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	intaudio "github.com/sevonj/sfontplayer-sub000/internal/audio"
	"github.com/sevonj/sfontplayer-sub000/internal/logging"
	"github.com/sevonj/sfontplayer-sub000/internal/master"
	"github.com/sevonj/sfontplayer-sub000/internal/midiraw"
	intseq "github.com/sevonj/sfontplayer-sub000/internal/sequencer"
	"github.com/sevonj/sfontplayer-sub000/internal/synth"
	"github.com/sevonj/sfontplayer-sub000/internal/timeline"
)

var ErrNoSong = errors.New("no song loaded")

// Engine renders stereo frames from raw channel messages.
type Engine = intseq.Engine

// Diagnostic reports a late, unforwardable or unschedulable event.
type Diagnostic = intseq.Diagnostic

// drumChannel is General MIDI channel 10.
const drumChannel = 9

// PlaybackEvent carries playback events from Watch().
type PlaybackEvent struct {
	Kind int // EventPlaybackEnded, EventTempoChanged or EventDiagnostic
	// Diagnostic is set for EventDiagnostic.
	Diagnostic *Diagnostic
}

const (
	EventPlaybackEnded int = iota
	EventTempoChanged
	EventDiagnostic
)

type PlayerOption func(*playerConfig)

type playerConfig struct {
	soundFont       *synth.SoundFont
	drumSoundFont   *synth.SoundFont
	reverbAndChorus bool
	volume          float64
	logger          *zap.Logger
	onDiagnostic    func(Diagnostic)
	presets         timeline.PresetMap
	monitors        []midiraw.Receiver
	newEngine       func(sampleRate uint32) (Engine, error)
	master          master.Settings
}

func defaultPlayerConfig() playerConfig {
	return playerConfig{reverbAndChorus: true, volume: 0.5, master: master.DefaultSettings()}
}

func WithSoundFont(sf *synth.SoundFont) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.soundFont = sf
	}
}

// WithDrumSoundFont plays channel 10 through a second bank.
func WithDrumSoundFont(sf *synth.SoundFont) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.drumSoundFont = sf
	}
}

func WithReverbAndChorus(enabled bool) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.reverbAndChorus = enabled
	}
}

func WithVolume(volume float64) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.volume = volume
	}
}

func WithLogger(l *zap.Logger) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.logger = l
	}
}

// WithDiagnostics installs a callback for scheduling diagnostics.
// The callback runs on the audio thread; keep work brief and non-blocking.
func WithDiagnostics(fn func(Diagnostic)) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.onDiagnostic = fn
	}
}

// WithPresetMap substitutes program changes in every loaded song.
func WithPresetMap(m timeline.PresetMap) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.presets = m
	}
}

// WithMonitor mirrors every forwarded channel message to r.
// r is called on the audio thread.
func WithMonitor(r midiraw.Receiver) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.monitors = append(cfg.monitors, r)
	}
}

// WithMaster runs the output through an equalizer and optional limiter.
// Build s from master.DefaultSettings.
func WithMaster(s master.Settings) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.master = s
	}
}

// WithEngine replaces the SoundFont synthesizer with engines built by fn.
func WithEngine(fn func(sampleRate uint32) (Engine, error)) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.newEngine = fn
	}
}

type Player struct {
	mu         sync.Mutex
	sampleRate int
	cfg        playerConfig
	log        *zap.Logger
	volume     float64
	song       *timeline.Timeline
	synths     []*synth.Synth
	bus        *master.Bus
	stream     *intaudio.StreamReader
	audio      *intaudio.Player
	done       chan struct{}
	eventCh    chan PlaybackEvent
	eventChMu  sync.Mutex
}

func NewPlayer(sampleRate int, opts ...PlayerOption) (*Player, error) {
	if sampleRate <= 0 {
		return nil, errors.New("sampleRate must be positive")
	}
	cfg := defaultPlayerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.volume < 0 {
		cfg.volume = 0
	}
	return &Player{
		sampleRate: sampleRate,
		cfg:        cfg,
		log:        logging.OrNop(cfg.logger),
		volume:     cfg.volume,
	}, nil
}

// LoadFile parses a standard MIDI file and loads it.
func (p *Player) LoadFile(path string) error {
	tl, err := timeline.ReadFile(path)
	if err != nil {
		return err
	}
	return p.Load(tl)
}

// Load replaces the current song. Playback stops and the new song is
// positioned at its start; call Play to hear it.
func (p *Player) Load(tl *timeline.Timeline) error {
	if tl == nil {
		return ErrNoSong
	}
	if len(p.cfg.presets) > 0 {
		tl = p.cfg.presets.Remap(tl)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopAudioLocked()
	if p.done != nil {
		close(p.done)
		p.done = nil
	}
	p.song = tl
	p.stream = nil
	return p.rebuildLocked(0, false)
}

// rebuildLocked creates a fresh engine, sequencer and stream for the
// current song at position at.
func (p *Player) rebuildLocked(at time.Duration, resume bool) error {
	engine, synths, err := p.newEngine()
	if err != nil {
		return err
	}
	seq := intseq.NewWithOptions(intseq.Options{
		Logger:       p.log,
		OnEvent:      p.onSequencerEvent,
		OnDiagnostic: p.onDiagnostic,
	})
	seq.Load(p.song)
	src := intaudio.NewSource(seq, engine)
	if at > 0 {
		src.SeekTo(at)
	}
	stream := intaudio.NewStreamReader(src)
	stream.OnFinish(func() {
		p.sendEvent(PlaybackEvent{Kind: EventPlaybackEnded})
		p.signalDone(stream)
	})
	p.stream = stream
	p.synths = synths
	if resume {
		return p.startAudioLocked()
	}
	return nil
}

func (p *Player) newEngine() (Engine, []*synth.Synth, error) {
	rate := uint32(p.sampleRate)
	if p.cfg.newEngine != nil {
		e, err := p.cfg.newEngine(rate)
		if err != nil {
			return nil, nil, err
		}
		return p.withMonitors(p.withMaster(e)), nil, nil
	}
	opts := synth.Options{ReverbAndChorus: p.cfg.reverbAndChorus}
	primary, err := synth.New(p.cfg.soundFont, rate, opts)
	if err != nil {
		return nil, nil, err
	}
	synths := []*synth.Synth{primary}
	var engine Engine = primary
	if p.cfg.drumSoundFont != nil {
		drums, err := synth.New(p.cfg.drumSoundFont, rate, opts)
		if err != nil {
			return nil, nil, err
		}
		synths = append(synths, drums)
		multi := intseq.NewMultiEngine(primary)
		multi.Route(drumChannel, drums)
		engine = multi
	}
	for _, s := range synths {
		s.SetVolume(float32(p.volume))
	}
	return p.withMonitors(p.withMaster(engine)), synths, nil
}

// withMaster wraps e in the master stage when it is enabled and records the
// bus for live EQ changes.
func (p *Player) withMaster(e Engine) Engine {
	p.bus = nil
	if !p.cfg.master.Enabled() {
		return e
	}
	p.bus = master.Wrap(e, p.cfg.master)
	return p.bus
}

func (p *Player) withMonitors(e Engine) Engine {
	if len(p.cfg.monitors) == 0 {
		return e
	}
	multi, ok := e.(*intseq.MultiEngine)
	if !ok {
		multi = intseq.NewMultiEngine(e)
	}
	for _, m := range p.cfg.monitors {
		multi.Observe(m)
	}
	return multi
}

func (p *Player) onSequencerEvent(kind intseq.EventKind) {
	// EventPlaybackEnded is sent once the stream drains instead.
	if kind == intseq.EventTempoChanged {
		p.sendEvent(PlaybackEvent{Kind: EventTempoChanged})
	}
}

func (p *Player) onDiagnostic(d Diagnostic) {
	if p.cfg.onDiagnostic != nil {
		p.cfg.onDiagnostic(d)
	}
	p.sendEvent(PlaybackEvent{Kind: EventDiagnostic, Diagnostic: &d})
}

// Play starts or resumes playback of the loaded song.
func (p *Player) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stream == nil {
		return ErrNoSong
	}
	if p.audio != nil {
		p.audio.Play()
		return nil
	}
	return p.startAudioLocked()
}

func (p *Player) startAudioLocked() error {
	// Signal any existing Wait() that the previous playback was replaced
	if p.done != nil {
		close(p.done)
	}
	p.done = make(chan struct{})
	backend, err := intaudio.NewPlayer(p.stream)
	if err != nil {
		return err
	}
	p.audio = backend
	p.audio.Play()
	return nil
}

func (p *Player) stopAudioLocked() {
	if p.audio == nil {
		return
	}
	if err := p.audio.Stop(); err != nil {
		p.log.Warn("failed to close audio player", zap.Error(err))
	}
	p.audio = nil
}

func (p *Player) sendEvent(ev PlaybackEvent) {
	p.eventChMu.Lock()
	ch := p.eventCh
	p.eventChMu.Unlock()
	if ch != nil {
		select {
		case ch <- ev:
		default:
			// Channel full or closed; drop event
		}
	}
}

// signalDone releases Wait when stream, and not a replaced one, ran out.
func (p *Player) signalDone(stream *intaudio.StreamReader) {
	p.mu.Lock()
	if p.stream != stream {
		p.mu.Unlock()
		return
	}
	done := p.done
	p.done = nil
	p.mu.Unlock()
	if done != nil {
		close(done)
	}
}

func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.audio != nil {
		p.audio.Pause()
	}
}

func (p *Player) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.audio != nil {
		p.audio.Play()
	}
}

func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.audio != nil && p.audio.IsPlaying()
}

// Stop ends playback and rewinds the song to its start.
func (p *Player) Stop() error {
	p.mu.Lock()
	if p.audio == nil {
		p.mu.Unlock()
		return nil
	}
	err := p.audio.Stop()
	p.audio = nil
	done := p.done
	p.done = nil
	if p.song != nil {
		if rerr := p.rebuildLocked(0, false); rerr != nil && err == nil {
			err = rerr
		}
	}
	p.mu.Unlock()
	p.sendEvent(PlaybackEvent{Kind: EventPlaybackEnded})
	if done != nil {
		close(done)
	}
	return err
}

// SeekTo moves playback to t, clamped to the song length. A song that has
// already played out is rebuilt at t and resumes if it was playing.
func (p *Player) SeekTo(t time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stream == nil {
		return ErrNoSong
	}
	exhausted := false
	p.stream.Do(func(src *intaudio.Source) {
		exhausted = src.Exhausted()
		if !exhausted {
			src.SeekTo(t)
		}
	})
	if !exhausted {
		return nil
	}
	resume := p.audio != nil
	p.stopAudioLocked()
	return p.rebuildLocked(t, resume)
}

// SongLength is the playing time of the loaded song.
func (p *Player) SongLength() time.Duration {
	var d time.Duration
	p.withSource(func(src *intaudio.Source) { d, _ = src.TotalDuration() })
	return d
}

// SongPosition is how far the scheduler has rendered. It runs slightly
// ahead of what is audible by the backend's buffer.
func (p *Player) SongPosition() time.Duration {
	var d time.Duration
	p.withSource(func(src *intaudio.Source) { d = src.Position() })
	return d
}

// BPM is the tempo currently in effect.
func (p *Player) BPM() float64 {
	bpm := intseq.DefaultBPM
	p.withSource(func(src *intaudio.Source) { bpm = src.Sequencer().BPM() })
	return bpm
}

func (p *Player) EndOfSequence() bool {
	end := true
	p.withSource(func(src *intaudio.Source) { end = src.Sequencer().EndOfSequence() })
	return end
}

// Stats returns the dispatch counters of the current song.
func (p *Player) Stats() intseq.Stats {
	var st intseq.Stats
	p.withSource(func(src *intaudio.Source) { st = src.Sequencer().Stats() })
	return st
}

// Song returns the loaded timeline after preset remapping.
func (p *Player) Song() *timeline.Timeline {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.song
}

func (p *Player) withSource(fn func(*intaudio.Source)) {
	p.mu.Lock()
	stream := p.stream
	p.mu.Unlock()
	if stream != nil {
		stream.Do(fn)
	}
}

// Wait blocks until the current playback ends.
// Wait returns immediately if no playback is active or if it was stopped.
func (p *Player) Wait() {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Watch returns a channel that receives playback events. Events are sent when:
//   - EventPlaybackEnded: the song played out or was stopped
//   - EventTempoChanged: a tempo event was dispatched
//   - EventDiagnostic: an event was late or could not be forwarded
//
// The channel is buffered (cap 8); receive in a goroutine to avoid blocking the sequencer.
// Only the most recent Watch() channel receives events; call Watch before Play.
func (p *Player) Watch() <-chan PlaybackEvent {
	ch := make(chan PlaybackEvent, 8)
	p.eventChMu.Lock()
	p.eventCh = ch
	p.eventChMu.Unlock()
	return ch
}

// SetMasterVolume sets the synthesizer master volume. 0.5 is the default.
func (p *Player) SetMasterVolume(volume float64) {
	if volume < 0 {
		volume = 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = volume
	if p.stream == nil {
		return
	}
	synths := p.synths
	p.stream.Do(func(*intaudio.Source) {
		for _, s := range synths {
			s.SetVolume(float32(volume))
		}
	})
}

func (p *Player) MasterVolume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// SetEQGain sets one master equalizer band (0 lowest) to a linear gain;
// 0 mutes the band. The setting survives rebuilds, and the master stage is
// inserted on the next rebuild if it was off.
func (p *Player) SetEQGain(band int, gain float64) error {
	if band < 0 || band >= master.Bands {
		return errors.New("eq band out of range")
	}
	if gain < 0 {
		gain = 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg.master.Gains[band] = gain
	if p.bus != nil {
		p.bus.EQ.SetGain(band, float32(gain))
	}
	return nil
}

// SetSoundFont swaps the bank. A loaded song is rebuilt on the new bank at
// its current position and keeps playing if it was.
func (p *Player) SetSoundFont(sf *synth.SoundFont) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg.soundFont = sf
	if p.song == nil {
		return nil
	}
	var at time.Duration
	p.stream.Do(func(src *intaudio.Source) { at = src.Position() })
	resume := p.audio != nil && p.audio.IsPlaying()
	p.stopAudioLocked()
	return p.rebuildLocked(at, resume)
}

// PlaybackPosition returns the current output position of the audio driver,
// i.e. what the listener actually hears right now. Returns 0 if not playing.
func (p *Player) PlaybackPosition() time.Duration {
	p.mu.Lock()
	a := p.audio
	p.mu.Unlock()
	if a == nil {
		return 0
	}
	return a.Position()
}
