package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/0xlemi/tunekeys/internal/engine"
	"github.com/0xlemi/tunekeys/internal/trigger"
)

// Sender delivers messages to a running program, e.g. *tea.Program
type Sender interface {
	Send(msg tea.Msg)
}

// Observer forwards engine results to the UI. Frames are throttled to
// keep the program responsive; triggers are always sent.
type Observer struct {
	sender   Sender
	interval time.Duration
	last     time.Time
	clock    func() time.Time
}

// NewObserver creates an observer sending to s
func NewObserver(s Sender) *Observer {
	return &Observer{sender: s, interval: frameInterval, clock: time.Now}
}

// OnFrame sends f unless a frame was sent recently
func (o *Observer) OnFrame(f engine.Frame) {
	now := o.clock()
	if now.Sub(o.last) < o.interval {
		return
	}
	o.last = now
	o.sender.Send(FrameMsg(f))
}

// OnTrigger sends the trigger result
func (o *Observer) OnTrigger(ev trigger.Event, err error) {
	o.sender.Send(TriggerMsg{Event: ev, Err: err})
}
