package config

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/0xlemi/tunekeys/internal/action"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.ToleranceCents != 35 || cfg.NoteHoldFrames != 3 || cfg.Cooldown() != 600*time.Millisecond {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	for _, note := range []string{"A4", "E4", "D4", "G3"} {
		if _, ok := cfg.NoteMap[note]; !ok {
			t.Errorf("default map misses %s", note)
		}
	}
}

func TestAutoWindow(t *testing.T) {
	testCases := []struct {
		rate int
		want int
	}{
		{48000, 2048},
		{44100, 2048},
		{96000, 4096},
		{192000, 8192},
		{384000, 8192},
		{16000, 1024},
		{8000, 1024},
		{0, 1024},
	}
	for _, tc := range testCases {
		if got := AutoWindow(tc.rate); got != tc.want {
			t.Errorf("AutoWindow(%d) = %d, want %d", tc.rate, got, tc.want)
		}
	}
}

func TestResolve(t *testing.T) {
	cfg := Default()
	window, hop, err := cfg.Resolve(48000)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if window&(window-1) != 0 || window < MinAutoWindow || window > MaxAutoWindow {
		t.Errorf("window %d is not a power of two in range", window)
	}
	if hop != window/4 {
		t.Errorf("hop %d, want %d", hop, window/4)
	}

	cfg.WindowSize = 4096
	if window, hop, _ = cfg.Resolve(48000); window != 4096 || hop != 1024 {
		t.Errorf("explicit window: got %d/%d", window, hop)
	}

	cfg.WindowSize = 0
	cfg.HopSize = 4096
	if _, _, err := cfg.Resolve(48000); !errors.Is(err, ErrInvalidWindow) {
		t.Errorf("expected ErrInvalidWindow, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name   string
		modify func(*Config)
		want   error
	}{
		{"tolerance", func(c *Config) { c.ToleranceCents = 0 }, ErrInvalidTolerance},
		{"range", func(c *Config) { c.MinHz = 2500 }, ErrInvalidRange},
		{"zero min", func(c *Config) { c.MinHz = 0 }, ErrInvalidRange},
		{"window", func(c *Config) { c.WindowSize, c.HopSize = 512, 512 }, ErrInvalidWindow},
		{"hold", func(c *Config) { c.NoteHoldFrames = 0 }, ErrInvalidHold},
		{"retrigger", func(c *Config) { c.RetriggerMs = -1 }, ErrInvalidRetrigger},
		{"threshold", func(c *Config) { c.CorrThreshold = 1.5 }, ErrInvalidThreshold},
		{"gain", func(c *Config) { c.InputGain = 0 }, ErrInvalidGain},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.modify(cfg)
			if err := cfg.Validate(); !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
tolerance_cents = 20
retrigger_ms = 250
async_dispatch = true
bogus = 1

[note_map.C4]
type = "command"
program = "notify-send"
args = ["C4"]

[note_map."F#3"]
type = "midi"
port = "synth"
channel = 2
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.ToleranceCents != 20 || cfg.Cooldown() != 250*time.Millisecond || !cfg.AsyncDispatch {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.MinHz != 90 || cfg.NoteHoldFrames != 3 {
		t.Errorf("defaults not kept: %+v", cfg)
	}

	if len(cfg.NoteMap) != 2 {
		t.Fatalf("expected file bindings to replace defaults, got %v", cfg.NoteMap)
	}
	if c4 := cfg.NoteMap["C4"]; c4.Program != "notify-send" || len(c4.Args) != 1 {
		t.Errorf("C4 = %+v", c4)
	}
	if fs3 := cfg.NoteMap["F#3"]; fs3.Type != "midi" || fs3.Channel != 2 {
		t.Errorf("F#3 = %+v", fs3)
	}

	if len(cfg.unknown) != 1 || cfg.unknown[0] != "bogus" {
		t.Errorf("unknown keys = %v", cfg.unknown)
	}
}

func TestLoad_KeepsDefaultMap(t *testing.T) {
	cfg, err := Load(writeConfig(t, "min_hz = 100\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(cfg.NoteMap) != len(DefaultNoteMap()) {
		t.Errorf("expected default bindings, got %v", cfg.NoteMap)
	}
}

func TestLoad_EmptyNoteMapKeepsDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "retrigger_ms = 100\n\n[note_map]\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(cfg.NoteMap) != len(DefaultNoteMap()) {
		t.Errorf("expected default bindings for an empty note_map, got %v", cfg.NoteMap)
	}
	if cfg.Cooldown() != 100*time.Millisecond {
		t.Errorf("file values not applied: %+v", cfg)
	}
}

func TestDefaultNoteMap_WithoutInjector(t *testing.T) {
	specs := DefaultNoteMap()
	specs["C5"] = action.Spec{Type: action.TypeCommand, Program: "true"}

	m, err := (&action.Builder{}).Build(specs)
	if !errors.Is(err, action.ErrNoInjector) {
		t.Fatalf("expected ErrNoInjector, got %v", err)
	}
	for note := range DefaultNoteMap() {
		if !strings.Contains(err.Error(), note) {
			t.Errorf("error does not mention %s: %v", note, err)
		}
		if _, ok := m.Resolve(note); ok {
			t.Errorf("keys binding %s should be skipped", note)
		}
	}
	if _, ok := m.Resolve("C5"); !ok {
		t.Error("expected the command binding to survive")
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected os.ErrNotExist, got %v", err)
	}
	if _, err := Load(writeConfig(t, "min_hz = [")); err == nil {
		t.Error("expected parse error")
	}
	if _, err := Load(writeConfig(t, "min_hz = 3000\n")); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("expected ErrInvalidRange, got %v", err)
	}
}

func TestLoadOrDefault(t *testing.T) {
	cfg := LoadOrDefault(writeConfig(t, "note_hold_frames = 0\n"), discardLogger())
	if cfg.NoteHoldFrames != 3 {
		t.Errorf("expected defaults after invalid config, got %+v", cfg)
	}

	cfg = LoadOrDefault(filepath.Join(t.TempDir(), "missing.toml"), discardLogger())
	if cfg.ToleranceCents != 35 {
		t.Errorf("expected defaults for missing file, got %+v", cfg)
	}
}

func TestWrite_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := Default().Write(&buf); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if !strings.Contains(buf.String(), "tolerance_cents = 35.0") {
		t.Errorf("unexpected output:\n%s", buf.String())
	}

	path := writeConfig(t, buf.String())
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load of written config failed: %v", err)
	}
	if cfg.NoteMap["A4"].Sequence != "Ctrl+S" {
		t.Errorf("A4 = %+v", cfg.NoteMap["A4"])
	}
}

func TestEngineConfig(t *testing.T) {
	ec, err := Default().EngineConfig(44100)
	if err != nil {
		t.Fatalf("EngineConfig failed: %v", err)
	}
	if ec.SampleRate != 44100 || ec.WindowSize != 2048 || ec.HopSize != 512 {
		t.Errorf("unexpected engine config %+v", ec)
	}
	if ec.HoldFrames != 3 || ec.Cooldown != 600*time.Millisecond {
		t.Errorf("unexpected trigger settings %+v", ec)
	}
}
