// Package config loads the TOML configuration and derives the analysis
// parameters that depend on the input sample rate.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/0xlemi/tunekeys/internal/action"
	"github.com/0xlemi/tunekeys/internal/engine"
)

// Window size limits for auto-derivation
const (
	MinAutoWindow = 1024
	MaxAutoWindow = 8192
)

// Errors
var (
	ErrInvalidTolerance = errors.New("tolerance_cents must be positive")
	ErrInvalidRange     = errors.New("min_hz must be positive and below max_hz")
	ErrInvalidWindow    = errors.New("window_size must be greater than hop_size")
	ErrInvalidHold      = errors.New("note_hold_frames must be at least 1")
	ErrInvalidRetrigger = errors.New("retrigger_ms must not be negative")
	ErrInvalidThreshold = errors.New("corr_threshold must be within [0, 1]")
	ErrInvalidGain      = errors.New("input_gain must be positive")
)

// Config is the file configuration. Zero window and hop sizes are derived
// from the sample rate.
type Config struct {
	ToleranceCents float64 `toml:"tolerance_cents"`
	MinHz          float64 `toml:"min_hz"`
	MaxHz          float64 `toml:"max_hz"`
	WindowSize     int     `toml:"window_size"`
	HopSize        int     `toml:"hop_size"`
	NoteHoldFrames int     `toml:"note_hold_frames"`
	RetriggerMs    int     `toml:"retrigger_ms"`
	CorrThreshold  float64 `toml:"corr_threshold"`
	InputGain      float64 `toml:"input_gain"`
	AsyncDispatch  bool    `toml:"async_dispatch"`

	NoteMap map[string]action.Spec `toml:"note_map"`

	unknown []string
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		ToleranceCents: 35,
		MinHz:          90,
		MaxHz:          2000,
		NoteHoldFrames: 3,
		RetriggerMs:    600,
		CorrThreshold:  0.35,
		InputGain:      1.0,
		NoteMap:        DefaultNoteMap(),
	}
}

// DefaultNoteMap binds a few notes to common editor shortcuts
func DefaultNoteMap() map[string]action.Spec {
	return map[string]action.Spec{
		"A4": {Type: action.TypeKeys, Sequence: "Ctrl+S"},
		"E4": {Type: action.TypeKeys, Sequence: "Space"},
		"D4": {Type: action.TypeKeys, Sequence: "Ctrl+Z"},
		"G3": {Type: action.TypeKeys, Sequence: "Ctrl+Y"},
	}
}

// Load reads path on top of the defaults. A non-empty note_map table in
// the file replaces the default bindings rather than extending them; a
// missing or empty one keeps the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	cfg.NoteMap = nil

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if len(cfg.NoteMap) == 0 {
		cfg.NoteMap = DefaultNoteMap()
	}
	for _, key := range meta.Undecoded() {
		cfg.unknown = append(cfg.unknown, key.String())
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault loads path and falls back to the defaults with a warning
// when the file is missing or invalid
func LoadOrDefault(path string, logger *slog.Logger) *Config {
	cfg, err := Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn("config file not found, using defaults", "path", path)
		} else {
			logger.Warn("invalid config, using defaults", "path", path, "err", err)
		}
		return Default()
	}

	for _, key := range cfg.unknown {
		logger.Warn("unknown config key ignored", "key", key)
	}
	logger.Info("config loaded", "path", path, "bindings", len(cfg.NoteMap))
	return cfg
}

// Validate checks the sample-rate independent settings
func (c *Config) Validate() error {
	if c.ToleranceCents <= 0 {
		return ErrInvalidTolerance
	}
	if c.MinHz <= 0 || c.MinHz >= c.MaxHz {
		return fmt.Errorf("%w: %g..%g", ErrInvalidRange, c.MinHz, c.MaxHz)
	}
	if c.WindowSize < 0 || c.HopSize < 0 {
		return ErrInvalidWindow
	}
	if c.WindowSize > 0 && c.HopSize > 0 && c.WindowSize <= c.HopSize {
		return fmt.Errorf("%w: %d <= %d", ErrInvalidWindow, c.WindowSize, c.HopSize)
	}
	if c.NoteHoldFrames < 1 {
		return ErrInvalidHold
	}
	if c.RetriggerMs < 0 {
		return ErrInvalidRetrigger
	}
	if c.CorrThreshold < 0 || c.CorrThreshold > 1 {
		return ErrInvalidThreshold
	}
	if c.InputGain <= 0 {
		return ErrInvalidGain
	}
	return nil
}

// Resolve returns the window and hop sizes for sampleRate. A zero window
// is the power of two nearest to a 50 ms window, clamped to
// [MinAutoWindow, MaxAutoWindow]; a zero hop is a quarter window.
func (c *Config) Resolve(sampleRate int) (window, hop int, err error) {
	window = c.WindowSize
	if window == 0 {
		window = AutoWindow(sampleRate)
	}
	hop = c.HopSize
	if hop == 0 {
		hop = window / 4
	}
	if hop <= 0 || window <= hop {
		return 0, 0, fmt.Errorf("%w: window %d, hop %d", ErrInvalidWindow, window, hop)
	}
	return window, hop, nil
}

// AutoWindow returns the derived window size for sampleRate
func AutoWindow(sampleRate int) int {
	target := sampleRate / 20
	p := 1
	for p < target {
		p <<= 1
	}
	if p > 1 && p-target > target-p/2 {
		p >>= 1
	}
	return min(max(p, MinAutoWindow), MaxAutoWindow)
}

// Cooldown returns retrigger_ms as a duration
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.RetriggerMs) * time.Millisecond
}

// EngineConfig resolves the analysis configuration for sampleRate
func (c *Config) EngineConfig(sampleRate int) (engine.Config, error) {
	if err := c.Validate(); err != nil {
		return engine.Config{}, err
	}
	window, hop, err := c.Resolve(sampleRate)
	if err != nil {
		return engine.Config{}, err
	}

	return engine.Config{
		SampleRate:     sampleRate,
		WindowSize:     window,
		HopSize:        hop,
		MinHz:          c.MinHz,
		MaxHz:          c.MaxHz,
		CorrThreshold:  c.CorrThreshold,
		ToleranceCents: c.ToleranceCents,
		HoldFrames:     c.NoteHoldFrames,
		Cooldown:       c.Cooldown(),
	}, nil
}

// Write encodes the configuration as TOML
func (c *Config) Write(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}
