package ui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/0xlemi/tunekeys/internal/engine"
	"github.com/0xlemi/tunekeys/internal/pitch"
	"github.com/0xlemi/tunekeys/internal/trigger"
)

type recordingSender struct {
	msgs []tea.Msg
}

func (r *recordingSender) Send(msg tea.Msg) { r.msgs = append(r.msgs, msg) }

func noteFrame(freq float64) engine.Frame {
	note, _ := pitch.Quantize(freq)
	return engine.Frame{
		HasPitch:   true,
		Estimate:   pitch.Estimate{Frequency: freq, Correlation: 0.95},
		Note:       note,
		InTune:     true,
		Hold:       2,
		HoldFrames: 3,
		DB:         -20,
	}
}

func TestModel_View(t *testing.T) {
	m := NewModel("microphone", 35, []Binding{{Note: "A4", Action: "keys:Ctrl+S"}})

	view := m.View()
	if !strings.Contains(view, "Listening") {
		t.Errorf("expected idle view, got:\n%s", view)
	}

	updated, _ := m.Update(FrameMsg(noteFrame(440)))
	m = updated.(Model)
	view = m.View()
	for _, want := range []string{"A4", "440.00 Hz", "keys:Ctrl+S"} {
		if !strings.Contains(view, want) {
			t.Errorf("view misses %q:\n%s", want, view)
		}
	}

	updated, _ = m.Update(FrameMsg(engine.Frame{}))
	m = updated.(Model)
	if !strings.Contains(m.View(), "Last note: A4") {
		t.Errorf("expected last note after silence:\n%s", m.View())
	}
}

func TestModel_Trigger(t *testing.T) {
	m := NewModel("simulation", 35, nil)
	note, _ := pitch.Quantize(440)
	ev := trigger.Event{Note: note, At: time.Now()}

	updated, _ := m.Update(TriggerMsg{Event: ev})
	updated, _ = updated.Update(TriggerMsg{Event: ev, Err: errors.New("refused")})
	m = updated.(Model)

	if m.triggers != 1 {
		t.Errorf("expected 1 successful trigger, got %d", m.triggers)
	}
	if !strings.Contains(m.View(), "refused") {
		t.Errorf("expected failure in view:\n%s", m.View())
	}
}

func TestModel_Quit(t *testing.T) {
	_, cmd := NewModel("x", 35, nil).Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
}

func TestCentsColor(t *testing.T) {
	if got := centsColor(0, 35).Hex(); got != inTuneColor.Hex() {
		t.Errorf("0 cents: got %s, want %s", got, inTuneColor.Hex())
	}
	if got := centsColor(-50, 35).Hex(); got != outOfTuneColor.Clamped().Hex() {
		t.Errorf("-50 cents: got %s, want %s", got, outOfTuneColor.Hex())
	}
}

func TestObserver_Throttle(t *testing.T) {
	s := &recordingSender{}
	o := NewObserver(s)
	now := time.Unix(1000, 0)
	o.clock = func() time.Time { return now }

	o.OnFrame(noteFrame(440))
	now = now.Add(10 * time.Millisecond)
	o.OnFrame(noteFrame(440))
	now = now.Add(frameInterval)
	o.OnFrame(noteFrame(440))
	o.OnTrigger(trigger.Event{}, nil)

	if len(s.msgs) != 3 {
		t.Fatalf("expected 2 frames and 1 trigger, got %d messages", len(s.msgs))
	}
	if _, ok := s.msgs[2].(TriggerMsg); !ok {
		t.Errorf("expected TriggerMsg last, got %T", s.msgs[2])
	}
}
