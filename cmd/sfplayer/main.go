// Package main is the entry point for the sfplayer CLI
package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	sfontplayer "github.com/sevonj/sfontplayer-sub000"
	"github.com/sevonj/sfontplayer-sub000/internal/api"
	"github.com/sevonj/sfontplayer-sub000/internal/config"
	"github.com/sevonj/sfontplayer-sub000/internal/logging"
	"github.com/sevonj/sfontplayer-sub000/internal/sequencer"
	"github.com/sevonj/sfontplayer-sub000/internal/synth"
	"github.com/sevonj/sfontplayer-sub000/internal/timeline"
	"github.com/sevonj/sfontplayer-sub000/internal/tui"
)

var (
	version = "dev"
)

var (
	configPath    string
	soundFontPath string
	drumsPath     string
	sampleRate    int
	volume        float64
	logLevel      string
	devLog        bool
	noReverb      bool
	limiter       bool
	useTUI        bool
	startAt       time.Duration
	outputFile    string
	listenAddr    string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "sfplayer",
	Short: "Play MIDI files through a SoundFont synthesizer",
	Long: `sfplayer plays standard MIDI files with an SF2 SoundFont, renders them
to WAV, or serves a small REST API for inspection and rendering.

Examples:
  sfplayer play song.mid -s GeneralUser.sf2
  sfplayer play song.mid -s gm.sf2 --tui --start 1m30s
  sfplayer render song.mid -s gm.sf2 -o song.wav
  sfplayer info song.mid
  sfplayer serve -s gm.sf2 --listen :8080`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var playCmd = &cobra.Command{
	Use:   "play <song.mid>",
	Short: "Play a MIDI file",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlay,
}

var renderCmd = &cobra.Command{
	Use:   "render <song.mid>",
	Short: "Render a MIDI file to WAV",
	Args:  cobra.ExactArgs(1),
	RunE:  runRender,
}

var infoCmd = &cobra.Command{
	Use:   "info <song.mid>",
	Short: "Show tracks, programs and length of a MIDI file",
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	RunE:  runServe,
}

func init() {
	// Global flags
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "Config file (default: user config dir)")
	pf.StringVarP(&soundFontPath, "soundfont", "s", "", "SF2 SoundFont")
	pf.StringVar(&drumsPath, "drums", "", "SF2 SoundFont for channel 10")
	pf.IntVarP(&sampleRate, "sample-rate", "r", 44100, "Output sample rate")
	pf.Float64VarP(&volume, "volume", "v", 0.5, "Master volume (0..1)")
	pf.StringVar(&logLevel, "log-level", "info", "Log level (debug|info|warn|error)")
	pf.BoolVar(&devLog, "dev-log", false, "Human readable log output")
	pf.BoolVar(&noReverb, "no-reverb", false, "Disable reverb and chorus")
	pf.BoolVar(&limiter, "limiter", false, "Limit output peaks to -1 dBFS")

	// play command
	playCmd.Flags().BoolVar(&useTUI, "tui", false, "Show the interactive transport")
	playCmd.Flags().DurationVar(&startAt, "start", 0, "Start position, e.g. 1m30s")

	// render command
	renderCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output .wav file path")

	// serve command
	serveCmd.Flags().StringVar(&listenAddr, "listen", ":8080", "Listen address")

	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(serveCmd)
}

// loadConfig reads the config file and applies flags the user set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("soundfont") {
		cfg.SoundFont = soundFontPath
	}
	if flags.Changed("drums") {
		cfg.DrumSoundFont = drumsPath
	}
	if flags.Changed("sample-rate") {
		cfg.SampleRate = sampleRate
	}
	if flags.Changed("volume") {
		cfg.Volume = volume
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("no-reverb") {
		cfg.ReverbAndChorus = !noReverb
	}
	if flags.Changed("limiter") {
		cfg.Limiter = limiter
	}
	if flags.Changed("listen") {
		cfg.Listen = listenAddr
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setup(cmd *cobra.Command) (*config.Config, *zap.Logger, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	log, err := logging.New(cfg.LogLevel, devLog)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

// playerOptions loads the configured banks into player options.
func playerOptions(cfg *config.Config, log *zap.Logger) ([]sfontplayer.PlayerOption, *synth.SoundFont, error) {
	if cfg.SoundFont == "" {
		return nil, nil, fmt.Errorf("%w: pass --soundfont or set soundFont in the config", synth.ErrNoSoundFont)
	}
	sf, err := synth.LoadSoundFont(cfg.SoundFont)
	if err != nil {
		return nil, nil, err
	}
	log.Info("soundfont loaded", zap.String("path", cfg.SoundFont), zap.String("name", sf.Name()))
	opts := []sfontplayer.PlayerOption{
		sfontplayer.WithSoundFont(sf),
		sfontplayer.WithVolume(cfg.Volume),
		sfontplayer.WithReverbAndChorus(cfg.ReverbAndChorus),
		sfontplayer.WithLogger(log),
		sfontplayer.WithPresetMap(timeline.PresetMap(cfg.Presets)),
		sfontplayer.WithMaster(cfg.Master()),
	}
	if cfg.DrumSoundFont != "" {
		drums, err := synth.LoadSoundFont(cfg.DrumSoundFont)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, sfontplayer.WithDrumSoundFont(drums))
	}
	return opts, sf, nil
}

func runPlay(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	opts, _, err := playerOptions(cfg, log)
	if err != nil {
		return err
	}
	meter := &tui.ChannelMeter{}
	if useTUI {
		opts = append(opts, sfontplayer.WithMonitor(meter))
	}
	pl, err := sfontplayer.NewPlayer(cfg.SampleRate, opts...)
	if err != nil {
		return err
	}
	if err := pl.LoadFile(args[0]); err != nil {
		return err
	}
	if startAt > 0 {
		if err := pl.SeekTo(startAt); err != nil {
			return err
		}
	}
	events := pl.Watch()
	if err := pl.Play(); err != nil {
		return err
	}
	defer func() { _ = pl.Stop() }()

	if useTUI {
		return tui.Run(tui.New(filepath.Base(args[0]), pl, meter, cfg.SeekStep()))
	}

	fmt.Printf("Playing %s (%s)\n", args[0], formatLength(pl.SongLength()))
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	defer signal.Stop(interrupt)
	for {
		select {
		case <-interrupt:
			return nil
		case ev := <-events:
			switch ev.Kind {
			case sfontplayer.EventPlaybackEnded:
				fmt.Println("playback completed")
				return nil
			case sfontplayer.EventTempoChanged:
				log.Debug("tempo", zap.Float64("bpm", pl.BPM()))
			case sfontplayer.EventDiagnostic:
				if d := ev.Diagnostic; d != nil && d.Kind == sequencer.DiagnosticUnhandled {
					log.Debug("unhandled message", zap.Int("track", d.Track), zap.Stringer("message", d.Message))
				}
			}
		}
	}
}

func runRender(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	input := args[0]
	output := outputFile
	if output == "" {
		output = strings.TrimSuffix(input, filepath.Ext(input)) + ".wav"
	}
	tl, err := timeline.ReadFile(input)
	if err != nil {
		return err
	}
	if len(cfg.Presets) > 0 {
		tl = timeline.PresetMap(cfg.Presets).Remap(tl)
	}
	opts, _, err := playerOptions(cfg, log)
	if err != nil {
		return err
	}
	engine, err := sfontplayer.NewEngine(cfg.SampleRate, opts...)
	if err != nil {
		return err
	}
	start := time.Now()
	if err := sfontplayer.RenderWAVFile(output, tl, engine); err != nil {
		return err
	}
	log.Info("rendered", zap.String("output", output), zap.Duration("took", time.Since(start)))
	fmt.Printf("Rendered %s -> %s\n", input, output)
	return nil
}

func runInfo(cmd *cobra.Command, args []string) error {
	tl, err := timeline.ReadFile(args[0])
	if err != nil {
		return err
	}
	if err := tl.Validate(); err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}
	sum := timeline.Inspect(tl)
	fmt.Printf("%s\n  format %d, %s, %d tracks, %s\n",
		args[0], sum.Format, sum.Division, len(sum.Tracks), formatLength(sequencer.Length(tl)))
	for _, tr := range sum.Tracks {
		name := tr.Name
		if name == "" {
			name = "-"
		}
		fmt.Printf("  %2d  %-24s %6d events  programs %v\n", tr.Index, name, tr.Events, tr.Programs)
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	opts := api.Options{
		Logger:     log,
		SampleRate: cfg.SampleRate,
		Presets:    timeline.PresetMap(cfg.Presets),
	}
	playerOpts, sf, err := playerOptions(cfg, log)
	switch {
	case err == nil:
		opts.SoundFont = sf
		opts.NewEngine = func(rate uint32) (sfontplayer.Engine, error) {
			return sfontplayer.NewEngine(int(rate), playerOpts...)
		}
	case errors.Is(err, synth.ErrNoSoundFont):
		log.Warn("no soundfont configured; rendering is disabled")
	default:
		return err
	}
	return api.New(opts).Run(cfg.Listen)
}

func formatLength(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}
