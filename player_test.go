package sfontplayer

import (
	"errors"
	"testing"
	"time"

	"github.com/sevonj/sfontplayer-sub000/internal/master"
	"github.com/sevonj/sfontplayer-sub000/internal/synth"
	"github.com/sevonj/sfontplayer-sub000/internal/timeline"
)

type fakeEngine struct {
	rate   uint32
	resets int
	calls  int
}

func (e *fakeEngine) ReceiveRaw(ch, cmd, d1, d2 uint8)  { e.calls++ }
func (e *fakeEngine) Reset()                            { e.resets++ }
func (e *fakeEngine) SampleRate() uint32                { return e.rate }
func (e *fakeEngine) RenderFrame() (float32, float32) { return 0.25, -0.25 }

type controlMonitor struct {
	controls map[[2]uint8]uint8
	noteOns  int
}

func (m *controlMonitor) ReceiveRaw(ch, cmd, d1, d2 uint8) {
	switch cmd {
	case 0x90:
		m.noteOns++
	case 0xB0:
		m.controls[[2]uint8{ch, d1}] = d2
	}
}

func fakeEngines(engines *[]*fakeEngine) PlayerOption {
	return WithEngine(func(rate uint32) (Engine, error) {
		e := &fakeEngine{rate: rate}
		*engines = append(*engines, e)
		return e, nil
	})
}

func testSong() *timeline.Timeline {
	return &timeline.Timeline{
		Format:   1,
		Division: timeline.TicksPerQuarterNote(480),
		Tracks: []timeline.Track{{
			{Tick: 0, Message: timeline.ProgramChange(0, 80)},
			{Tick: 0, Message: timeline.NoteOn(0, 60, 100)},
			{Tick: 480, Message: timeline.ControlChange(0, 7, 64)},
			{Tick: 960, Message: timeline.NoteOn(0, 64, 100)},
			{Tick: 1920, Message: timeline.EndOfTrack()},
		}},
	}
}

func TestPlayerMasterVolumeRuntimeAPI(t *testing.T) {
	pl, err := NewPlayer(48000)
	if err != nil {
		t.Fatalf("new player: %v", err)
	}
	if got := pl.MasterVolume(); got != 0.5 {
		t.Fatalf("default master volume = %v, want 0.5", got)
	}
	pl.SetMasterVolume(0.35)
	if got := pl.MasterVolume(); got != 0.35 {
		t.Fatalf("master volume = %v, want 0.35", got)
	}
	pl.SetMasterVolume(-2)
	if got := pl.MasterVolume(); got != 0 {
		t.Fatalf("master volume should clamp to 0, got %v", got)
	}
}

func TestNewPlayerRejectsBadSampleRate(t *testing.T) {
	if _, err := NewPlayer(0); err == nil {
		t.Fatalf("expected error")
	}
}

func TestPlayerWithoutSongOrSoundFont(t *testing.T) {
	pl, err := NewPlayer(48000)
	if err != nil {
		t.Fatal(err)
	}
	if err := pl.Play(); !errors.Is(err, ErrNoSong) {
		t.Fatalf("Play() = %v, want ErrNoSong", err)
	}
	if err := pl.SeekTo(time.Second); !errors.Is(err, ErrNoSong) {
		t.Fatalf("SeekTo() = %v, want ErrNoSong", err)
	}
	if err := pl.Load(testSong()); !errors.Is(err, synth.ErrNoSoundFont) {
		t.Fatalf("Load() = %v, want ErrNoSoundFont", err)
	}
	if err := pl.Play(); !errors.Is(err, ErrNoSong) {
		t.Fatalf("failed load left a playable song: %v", err)
	}
	if !pl.EndOfSequence() || pl.SongLength() != 0 {
		t.Fatalf("empty player reports a song")
	}
	if err := pl.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestPlayerLoadAndSeek(t *testing.T) {
	var engines []*fakeEngine
	pl, err := NewPlayer(48000, fakeEngines(&engines))
	if err != nil {
		t.Fatal(err)
	}
	if err := pl.Load(testSong()); err != nil {
		t.Fatalf("load: %v", err)
	}
	want := 1920 * timeline.TicksPerQuarterNote(480).TickDuration(120)
	if got := pl.SongLength(); got != want {
		t.Fatalf("length = %v, want %v", got, want)
	}
	if err := pl.SeekTo(time.Second); err != nil {
		t.Fatalf("seek: %v", err)
	}
	if got := pl.SongPosition(); got != time.Second {
		t.Fatalf("position = %v, want 1s", got)
	}
	if err := pl.SeekTo(250 * time.Millisecond); err != nil {
		t.Fatalf("seek back: %v", err)
	}
	if got := pl.SongPosition(); got != 250*time.Millisecond {
		t.Fatalf("position = %v", got)
	}
	if len(engines) != 1 || engines[0].resets != 1 {
		t.Fatalf("engines = %d, resets = %d", len(engines), engines[0].resets)
	}
	if pl.EndOfSequence() {
		t.Fatalf("song should not be finished at 250ms")
	}
	if err := pl.SeekTo(time.Hour); err != nil {
		t.Fatal(err)
	}
	if pl.SongPosition() != want || !pl.EndOfSequence() {
		t.Fatalf("seek past end: position %v end %v", pl.SongPosition(), pl.EndOfSequence())
	}
}

func TestPlayerPresetMapAndMonitor(t *testing.T) {
	var engines []*fakeEngine
	mon := &controlMonitor{controls: map[[2]uint8]uint8{}}
	pl, err := NewPlayer(48000,
		fakeEngines(&engines),
		WithPresetMap(timeline.PresetMap{80: 5}),
		WithMonitor(mon))
	if err != nil {
		t.Fatal(err)
	}
	song := testSong()
	if err := pl.Load(song); err != nil {
		t.Fatal(err)
	}
	if got := pl.Song().Tracks[0][0].Message.Data1; got != 5 {
		t.Fatalf("program = %d, want remapped 5", got)
	}
	if song.Tracks[0][0].Message.Data1 != 80 {
		t.Fatalf("caller's timeline was modified")
	}
	if err := pl.SeekTo(800 * time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if mon.noteOns != 0 {
		t.Fatalf("seek sounded %d notes", mon.noteOns)
	}
	if mon.controls[[2]uint8{0, 7}] != 64 {
		t.Fatalf("monitor missed controller: %v", mon.controls)
	}
	if engines[0].calls == 0 {
		t.Fatalf("engine received nothing")
	}
}

func TestPlayerMalformedSongLoadsFinished(t *testing.T) {
	var engines []*fakeEngine
	var diags []Diagnostic
	pl, err := NewPlayer(48000, fakeEngines(&engines), WithDiagnostics(func(d Diagnostic) { diags = append(diags, d) }))
	if err != nil {
		t.Fatal(err)
	}
	if err := pl.Load(&timeline.Timeline{Division: timeline.TicksPerQuarterNote(96)}); err != nil {
		t.Fatalf("load: %v", err)
	}
	if !pl.EndOfSequence() || pl.SongLength() != 0 {
		t.Fatalf("malformed song should be finished")
	}
	if len(diags) != 1 || !errors.Is(diags[0].Err, timeline.ErrNoTracks) {
		t.Fatalf("diagnostics = %+v", diags)
	}
}

func TestPlayerMasterStage(t *testing.T) {
	var engines []*fakeEngine
	settings := master.DefaultSettings()
	settings.Limiter = true
	pl, err := NewPlayer(48000, fakeEngines(&engines), WithMaster(settings))
	if err != nil {
		t.Fatal(err)
	}
	if err := pl.SetEQGain(master.Bands, 1); err == nil {
		t.Fatal("expected band range error")
	}
	if err := pl.Load(testSong()); err != nil {
		t.Fatal(err)
	}
	if pl.bus == nil {
		t.Fatal("limiter setting should insert the master bus")
	}
	if err := pl.SetEQGain(4, 0.5); err != nil {
		t.Fatal(err)
	}
	if got := pl.bus.EQ.Gain(4); got != 0.5 {
		t.Fatalf("live gain = %v, want 0.5", got)
	}
	if err := pl.SeekTo(100 * time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if engines[0].calls == 0 {
		t.Fatal("bus did not pass messages to the engine")
	}
}

func TestPlayerEQGainSurvivesRebuild(t *testing.T) {
	var engines []*fakeEngine
	pl, err := NewPlayer(48000, fakeEngines(&engines))
	if err != nil {
		t.Fatal(err)
	}
	if err := pl.Load(testSong()); err != nil {
		t.Fatal(err)
	}
	if pl.bus != nil {
		t.Fatal("flat settings should not insert the master bus")
	}
	if err := pl.SetEQGain(1, 0); err != nil {
		t.Fatal(err)
	}
	if err := pl.Load(testSong()); err != nil {
		t.Fatal(err)
	}
	if pl.bus == nil {
		t.Fatal("muted band should insert the master bus on rebuild")
	}
	if got := pl.bus.EQ.Gain(1); got != 0 {
		t.Fatalf("band 1 gain after reload = %v, want 0", got)
	}
	if got := pl.bus.EQ.Gain(0); got != 1 {
		t.Fatalf("band 0 gain after reload = %v, want 1", got)
	}

	if err := pl.SetEQGain(1, 0.5); err != nil {
		t.Fatal(err)
	}
	// A bank swap rebuilds the engine; the factory ignores the bank.
	if err := pl.SetSoundFont(nil); err != nil {
		t.Fatal(err)
	}
	if len(engines) != 3 {
		t.Fatalf("engines built = %d, want 3", len(engines))
	}
	if got := pl.bus.EQ.Gain(1); got != 0.5 {
		t.Fatalf("band 1 gain after rebuild = %v, want 0.5", got)
	}
}
