// Package config holds player settings persisted as JSON.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sevonj/sfontplayer-sub000/internal/master"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

type Config struct {
	SoundFont       string  `json:"soundFont,omitempty"`
	DrumSoundFont   string  `json:"drumSoundFont,omitempty"`
	SampleRate      int     `json:"sampleRate"`
	Volume          float64 `json:"volume"`
	LogLevel        string  `json:"logLevel"`
	Listen          string  `json:"listen"`
	ReverbAndChorus bool    `json:"reverbAndChorus"`
	SeekStepSeconds float64 `json:"seekStepSeconds"`
	// Presets substitutes program numbers before playback.
	Presets map[uint8]uint8 `json:"presets,omitempty"`
	// EQ holds linear gains for the five master bands, low to high.
	// Empty means flat; 0 mutes a band.
	EQ      []float64 `json:"eq,omitempty"`
	Limiter bool      `json:"limiter"`
}

// Default returns a config with sensible defaults
func Default() *Config {
	return &Config{
		SampleRate:      44100,
		Volume:          0.5,
		LogLevel:        "info",
		Listen:          ":8080",
		ReverbAndChorus: true,
		SeekStepSeconds: 5,
	}
}

// Master returns the output stage settings.
func (c *Config) Master() master.Settings {
	s := master.DefaultSettings()
	copy(s.Gains[:], c.EQ)
	s.Limiter = c.Limiter
	return s
}

// SeekStep is how far one seek key press moves.
func (c *Config) SeekStep() time.Duration {
	return time.Duration(c.SeekStepSeconds * float64(time.Second))
}

func (c *Config) Validate() error {
	switch {
	case c.SampleRate < 8000 || c.SampleRate > 192000:
		return fmt.Errorf("%w: sampleRate %d out of range", ErrInvalid, c.SampleRate)
	case c.Volume < 0 || c.Volume > 1:
		return fmt.Errorf("%w: volume %v out of range 0..1", ErrInvalid, c.Volume)
	case c.SeekStepSeconds <= 0:
		return fmt.Errorf("%w: seekStepSeconds must be positive", ErrInvalid)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unknown logLevel %q", ErrInvalid, c.LogLevel)
	}
	if len(c.EQ) != 0 && len(c.EQ) != master.Bands {
		return fmt.Errorf("%w: eq needs %d gains, got %d", ErrInvalid, master.Bands, len(c.EQ))
	}
	for i, g := range c.EQ {
		if g < 0 || g > 4 {
			return fmt.Errorf("%w: eq band %d gain %v out of range 0..4", ErrInvalid, i, g)
		}
	}
	for from, to := range c.Presets {
		if from > 127 || to > 127 {
			return fmt.Errorf("%w: preset mapping %d->%d out of range", ErrInvalid, from, to)
		}
	}
	return nil
}

// Dir returns the config directory path
func Dir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "sfplayer"), nil
}

// Path returns the full path to config.json
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config at path, or the default location when path is
// empty. A missing file yields defaults. Fields absent from the file keep
// their default values.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := Path()
		if err != nil {
			return Default(), nil
		}
		path = p
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to path, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
