// Package action defines what happens when a note fires.
//
// An Action is opaque to the trigger logic: it is looked up by note name
// and executed. New kinds are added by implementing Action and teaching
// Builder how to construct them from a Spec.
package action

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/0xlemi/tunekeys/internal/pitch"
)

// Action kinds accepted in Spec.Type
const (
	TypeKeys    = "keys"
	TypeCommand = "command"
	TypeMIDI    = "midi"
	TypeSerial  = "serial"
)

// Errors
var (
	ErrUnknownType = errors.New("unknown action type")
	ErrNoInjector  = errors.New("no key injector available")
	ErrNoOpener    = errors.New("no port opener available")
)

// Action is an operation bound to a note
type Action interface {
	// Execute performs the action
	Execute(ctx context.Context) error

	// String describes the action for logs, e.g. "keys:Ctrl+S"
	String() string
}

// Spec is the configuration form of an action
type Spec struct {
	Type string `toml:"type"`

	// keys
	Sequence string `toml:"sequence,omitempty"`

	// command
	Program string   `toml:"program,omitempty"`
	Args    []string `toml:"args,omitempty"`
	Timeout string   `toml:"timeout,omitempty"`

	// midi; Key 0 means the triggering note itself
	Port     string `toml:"port,omitempty"`
	Channel  uint8  `toml:"channel,omitempty"`
	Key      uint8  `toml:"key,omitempty"`
	Velocity uint8  `toml:"velocity,omitempty"`
	Length   string `toml:"length,omitempty"`

	// serial
	Device  string `toml:"device,omitempty"`
	Baud    int    `toml:"baud,omitempty"`
	Payload string `toml:"payload,omitempty"`
}

// Map resolves note names to actions
type Map map[string]Action

// Resolve returns the action bound to note
func (m Map) Resolve(note string) (Action, bool) {
	a, ok := m[note]
	return a, ok
}

// Notes returns the bound note names in sorted order
func (m Map) Notes() []string {
	notes := make([]string, 0, len(m))
	for n := range m {
		notes = append(notes, n)
	}
	sort.Strings(notes)
	return notes
}

// Builder constructs actions from specs and owns the output ports they
// share. Ports are opened on first use and closed by Close.
type Builder struct {
	// Injector sends key chords; required for keys actions
	Injector Injector

	// OpenMIDI opens a MIDI output port by name
	OpenMIDI func(port string) (MIDISender, error)

	// OpenSerial opens a serial device at a baud rate
	OpenSerial func(device string, baud int) (io.WriteCloser, error)

	mu     sync.Mutex
	midi   map[string]MIDISender
	serial map[string]io.WriteCloser
}

// Build constructs every action in specs. Bindings that fail are skipped
// and reported together in the returned error; the map holds the rest.
// Note names are normalized, so "a4" binds to "A4".
func (b *Builder) Build(specs map[string]Spec) (Map, error) {
	out := make(Map, len(specs))
	var errs []error

	names := make([]string, 0, len(specs))
	for name := range specs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		midi, err := pitch.ParseNote(name)
		if err != nil {
			errs = append(errs, fmt.Errorf("note %q: %w", name, err))
			continue
		}
		note := pitch.NoteName(midi)

		a, err := b.build(midi, specs[name])
		if err != nil {
			errs = append(errs, fmt.Errorf("note %s: %w", note, err))
			continue
		}
		out[note] = a
	}

	return out, errors.Join(errs...)
}

func (b *Builder) build(note int, spec Spec) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(spec.Type)) {
	case TypeKeys:
		if b.Injector == nil {
			return nil, ErrNoInjector
		}
		return NewKeys(spec.Sequence, b.Injector)

	case TypeCommand:
		timeout, err := parseDuration(spec.Timeout, 0)
		if err != nil {
			return nil, fmt.Errorf("timeout: %w", err)
		}
		return NewCommand(spec.Program, spec.Args, timeout)

	case TypeMIDI:
		if b.OpenMIDI == nil {
			return nil, ErrNoOpener
		}
		length, err := parseDuration(spec.Length, 100*time.Millisecond)
		if err != nil {
			return nil, fmt.Errorf("length: %w", err)
		}
		key := spec.Key
		if key == 0 {
			if note < 0 || note > 127 {
				return nil, fmt.Errorf("note %d outside MIDI range", note)
			}
			key = uint8(note)
		}
		return NewMIDI(spec.Port, spec.Channel, key, spec.Velocity, length, b.midiPort)

	case TypeSerial:
		if b.OpenSerial == nil {
			return nil, ErrNoOpener
		}
		return NewSerial(spec.Device, spec.Baud, spec.Payload, b.serialPort)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, spec.Type)
	}
}

// midiPort returns the shared sender for port, opening it on first use
func (b *Builder) midiPort(port string) (MIDISender, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if s, ok := b.midi[port]; ok {
		return s, nil
	}
	s, err := b.OpenMIDI(port)
	if err != nil {
		return nil, err
	}
	if b.midi == nil {
		b.midi = make(map[string]MIDISender)
	}
	b.midi[port] = s
	return s, nil
}

// serialPort returns the shared writer for device, opening it on first use
func (b *Builder) serialPort(device string, baud int) (io.Writer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if w, ok := b.serial[device]; ok {
		return w, nil
	}
	w, err := b.OpenSerial(device, baud)
	if err != nil {
		return nil, err
	}
	if b.serial == nil {
		b.serial = make(map[string]io.WriteCloser)
	}
	b.serial[device] = w
	return w, nil
}

// Close closes every port opened by actions
func (b *Builder) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var errs []error
	for name, w := range b.serial {
		if err := w.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	for name, s := range b.midi {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", name, err))
			}
		}
	}
	b.serial = nil
	b.midi = nil
	return errors.Join(errs...)
}

func parseDuration(s string, def time.Duration) (time.Duration, error) {
	if strings.TrimSpace(s) == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", s)
	}
	return d, nil
}
