package action

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gitlab.com/gomidi/midi/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // registers the rtmidi driver
)

// ErrPortClosed is returned when sending to a closed MIDI output
var ErrPortClosed = errors.New("midi port closed")

// MIDISender sends messages to one MIDI output
type MIDISender interface {
	Send(msg midi.Message) error
}

// MIDI plays a note on a MIDI output: note on now, note off after length
type MIDI struct {
	port     string
	channel  uint8
	key      uint8
	velocity uint8
	length   time.Duration
	open     func(port string) (MIDISender, error)
}

// NewMIDI creates a MIDI note action. Channel is 0-15; a zero velocity
// defaults to 100.
func NewMIDI(port string, channel, key, velocity uint8, length time.Duration, open func(string) (MIDISender, error)) (*MIDI, error) {
	if port == "" {
		return nil, fmt.Errorf("midi action needs a port")
	}
	if channel > 15 {
		return nil, fmt.Errorf("midi channel %d outside 0-15", channel)
	}
	if key > 127 {
		return nil, fmt.Errorf("midi key %d outside 0-127", key)
	}
	if velocity == 0 {
		velocity = 100
	}
	if velocity > 127 {
		return nil, fmt.Errorf("midi velocity %d outside 1-127", velocity)
	}
	return &MIDI{
		port:     port,
		channel:  channel,
		key:      key,
		velocity: velocity,
		length:   length,
		open:     open,
	}, nil
}

// Execute sends note on and schedules the matching note off
func (m *MIDI) Execute(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	out, err := m.open(m.port)
	if err != nil {
		return fmt.Errorf("open midi port %q: %w", m.port, err)
	}
	if err := out.Send(midi.NoteOn(m.channel, m.key, m.velocity)); err != nil {
		return fmt.Errorf("note on: %w", err)
	}

	time.AfterFunc(m.length, func() {
		if err := out.Send(midi.NoteOff(m.channel, m.key)); err != nil {
			slog.Debug("midi note off failed", "port", m.port, "key", m.key, "err", err)
		}
	})
	return nil
}

func (m *MIDI) String() string {
	return fmt.Sprintf("midi:%s ch%d key%d", m.port, m.channel, m.key)
}

// midiOut adapts a gomidi output port to MIDISender. Sends after Close
// fail with ErrPortClosed, so a pending note off cannot reach a closed
// driver port.
type midiOut struct {
	mu     sync.Mutex
	closed bool
	send   func(msg midi.Message) error
	close  func() error
}

func (o *midiOut) Send(msg midi.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrPortClosed
	}
	return o.send(msg)
}

func (o *midiOut) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	o.closed = true
	return o.close()
}

// OpenMIDIOut opens the MIDI output port whose name contains port
func OpenMIDIOut(port string) (MIDISender, error) {
	out, err := midi.FindOutPort(port)
	if err != nil {
		return nil, fmt.Errorf("find output %q: %w", port, err)
	}
	send, err := midi.SendTo(out)
	if err != nil {
		return nil, fmt.Errorf("send to %q: %w", port, err)
	}
	return &midiOut{send: send, close: out.Close}, nil
}
