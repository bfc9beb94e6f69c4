// Package trigger turns per-frame note judgments into rate-limited note
// events.
//
// A note fires once it has been judged in tune for HoldFrames consecutive
// frames. Holding it keeps the hold condition satisfied, so it fires again
// each time the cooldown elapses.
package trigger

import (
	"errors"
	"time"

	"github.com/0xlemi/tunekeys/internal/action"
	"github.com/0xlemi/tunekeys/internal/pitch"
)

// ErrInvalidHold is returned when HoldFrames is below one
var ErrInvalidHold = errors.New("hold frames must be at least 1")

// ErrInvalidCooldown is returned for a negative cooldown
var ErrInvalidCooldown = errors.New("cooldown must not be negative")

// Config controls debounce and rate limiting
type Config struct {
	HoldFrames int
	Cooldown   time.Duration
}

// Resolver looks up the action bound to a note name such as "A4"
type Resolver interface {
	Resolve(note string) (action.Action, bool)
}

// Judgment is one frame's verdict on the detected note
type Judgment struct {
	Note   pitch.Note
	InTune bool
}

// Event is emitted when a held, in-tune note passes the cooldown
type Event struct {
	Note   pitch.Note
	Action action.Action
	Count  int
	At     time.Time
}

// Snapshot is a read-only view of the machine state
type Snapshot struct {
	Note      string
	Count     int
	LastFired time.Time
}

// Machine is the trigger state machine. It is owned by the analysis
// goroutine and is not safe for concurrent use.
type Machine struct {
	cfg      Config
	resolver Resolver

	lastNote  string
	count     int
	lastFired time.Time
}

// New creates a machine with no last note and no previous trigger
func New(cfg Config, resolver Resolver) (*Machine, error) {
	if cfg.HoldFrames < 1 {
		return nil, ErrInvalidHold
	}
	if cfg.Cooldown < 0 {
		return nil, ErrInvalidCooldown
	}
	return &Machine{cfg: cfg, resolver: resolver}, nil
}

// Step applies one frame. ok is false when the frame had no pitch.
// It returns an event when the note should fire; the caller reports a
// successful dispatch back with Fired.
func (m *Machine) Step(j Judgment, ok bool, now time.Time) (Event, bool) {
	if !ok || !j.InTune {
		m.count = 0
		m.lastNote = ""
		return Event{}, false
	}

	id := j.Note.ID()
	if id == m.lastNote {
		m.count++
	} else {
		m.lastNote = id
		m.count = 1
	}

	if m.count < m.cfg.HoldFrames || !m.cooledDown(now) {
		return Event{}, false
	}

	if m.resolver == nil {
		return Event{}, false
	}
	act, found := m.resolver.Resolve(id)
	if !found {
		return Event{}, false
	}

	return Event{Note: j.Note, Action: act, Count: m.count, At: now}, true
}

// Fired starts the cooldown at now
func (m *Machine) Fired(now time.Time) {
	m.lastFired = now
}

// State returns the current state
func (m *Machine) State() Snapshot {
	return Snapshot{Note: m.lastNote, Count: m.count, LastFired: m.lastFired}
}

// HoldFrames returns the configured hold length
func (m *Machine) HoldFrames() int {
	return m.cfg.HoldFrames
}

func (m *Machine) cooledDown(now time.Time) bool {
	// Zero means nothing has fired yet
	if m.lastFired.IsZero() {
		return true
	}
	return now.Sub(m.lastFired) >= m.cfg.Cooldown
}
