package ui

import (
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/0xlemi/tunekeys/internal/engine"
	"github.com/0xlemi/tunekeys/internal/pitch"
	"github.com/0xlemi/tunekeys/internal/trigger"
)

// Constants for UI behavior
const (
	// Minimum time between frame updates sent to the program
	frameInterval = 80 * time.Millisecond

	// How long a trigger stays highlighted
	triggerHighlight = 1500 * time.Millisecond

	// Width of the cents and level meters in cells
	meterWidth = 31

	// Level meter floor in dB
	levelFloorDB = -60
)

var (
	// Styles
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			PaddingLeft(2).
			PaddingRight(2).
			MarginBottom(1)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#CCCCCC"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))

	firedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#1A1A1A")).
			Background(lipgloss.Color("#00D787")).
			PaddingLeft(1).
			PaddingRight(1)

	failedStyle = firedStyle.
			Background(lipgloss.Color("#FF5F87"))

	// Note colors
	noteColors = map[string]string{
		"C": "#E8D6B0", // Beige
		"D": "#A020F0", // Purple
		"E": "#FFFF00", // Yellow
		"F": "#FFA500", // Orange
		"G": "#00FF00", // Green
		"A": "#FF0000", // Red
		"B": "#0000FF", // Blue
	}

	// Cents meter endpoints
	inTuneColor, _    = colorful.Hex("#00D787")
	outOfTuneColor, _ = colorful.Hex("#FF5F87")
)

func noteBox(color string) lipgloss.Style {
	return lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FAFAFA")).
		Background(lipgloss.Color(color)).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#333333")).
		Padding(2, 4)
}

// Get the next natural note (for sharp note colors)
func nextNatural(note string) string {
	switch note {
	case "C":
		return "D"
	case "D":
		return "E"
	case "F":
		return "G"
	case "G":
		return "A"
	case "A":
		return "B"
	default:
		return "C"
	}
}

// renderNote draws a note box; sharps are split between the colors of
// their two neighbours
func renderNote(n pitch.Note) string {
	text := n.ID()
	if !strings.HasSuffix(n.Name, "#") {
		return noteBox(noteColors[n.Name]).Render(text)
	}

	base := n.Name[:1]
	left := noteBox(noteColors[base]).
		BorderRight(false).
		PaddingRight(1)
	right := noteBox(noteColors[nextNatural(base)]).
		BorderLeft(false).
		PaddingLeft(1)

	return lipgloss.JoinHorizontal(lipgloss.Top, left.Render(base), right.Render(text[1:]))
}

// centsColor blends from the in-tune color at 0 cents to the out-of-tune
// color at the tolerance and beyond
func centsColor(cents, tolerance float64) colorful.Color {
	t := 1.0
	if tolerance > 0 {
		t = math.Min(math.Abs(cents)/tolerance, 1)
	}
	return inTuneColor.BlendLab(outOfTuneColor, t).Clamped()
}

// centsMeter renders a needle at cents on a -50..+50 scale
func centsMeter(cents, tolerance float64) string {
	mid := meterWidth / 2
	pos := mid + int(math.Round(cents/50*float64(mid)))
	pos = min(max(pos, 0), meterWidth-1)

	var b strings.Builder
	for i := 0; i < meterWidth; i++ {
		switch {
		case i == pos:
			b.WriteString("┃")
		case i == mid:
			b.WriteString("┊")
		default:
			b.WriteString("─")
		}
	}

	needle := lipgloss.NewStyle().Foreground(lipgloss.Color(centsColor(cents, tolerance).Hex()))
	return needle.Render(b.String())
}

// levelMeter renders db between levelFloorDB and 0
func levelMeter(db float32) string {
	filled := int(math.Round((float64(db) - levelFloorDB) / -levelFloorDB * meterWidth))
	filled = min(max(filled, 0), meterWidth)
	return strings.Repeat("█", filled) + dimStyle.Render(strings.Repeat("░", meterWidth-filled))
}

// holdMeter renders the debounce progress toward a trigger
func holdMeter(hold, holdFrames int) string {
	done := min(hold, holdFrames)
	return strings.Repeat("●", done) + dimStyle.Render(strings.Repeat("○", holdFrames-done))
}

// Binding is a configured note and a description of its action
type Binding struct {
	Note   string
	Action string
}

// TickMsg represents a timer tick
type TickMsg time.Time

// FrameMsg carries an analyzed frame
type FrameMsg engine.Frame

// TriggerMsg reports a fired note and the dispatch result
type TriggerMsg struct {
	Event trigger.Event
	Err   error
}

// Model represents the UI state
type Model struct {
	source    string
	tolerance float64
	bindings  []Binding

	frame     engine.Frame
	hasFrame  bool
	lastNote  *pitch.Note
	trigger   *TriggerMsg
	triggered time.Time
	triggers  int
	now       time.Time
	width     int
	height    int
}

// NewModel creates a new UI model
func NewModel(source string, tolerance float64, bindings []Binding) Model {
	return Model{
		source:    source,
		tolerance: tolerance,
		bindings:  bindings,
		now:       time.Now(),
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Millisecond*100, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// Init initializes the UI model
func (m Model) Init() tea.Cmd {
	return tick()
}

// Update updates the UI model based on messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case TickMsg:
		m.now = time.Time(msg)
		return m, tick()

	case FrameMsg:
		m.frame = engine.Frame(msg)
		m.hasFrame = true
		if m.frame.HasPitch {
			note := m.frame.Note
			m.lastNote = &note
		}

	case TriggerMsg:
		m.trigger = &msg
		m.triggered = msg.Event.At
		if msg.Err == nil {
			m.triggers++
		}
	}

	return m, nil
}

// View renders the UI
func (m Model) View() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render("TuneKeys - " + m.source))
	s.WriteString("\n")

	f := m.frame
	switch {
	case f.HasPitch:
		s.WriteString(renderNote(f.Note))
		s.WriteString("\n")
		s.WriteString(infoStyle.Render(fmt.Sprintf("Frequency: %.2f Hz | Cents: %+.1f | r: %.2f",
			f.Estimate.Frequency, f.Note.Cents, f.Estimate.Correlation)))
		s.WriteString("\n")
		s.WriteString(centsMeter(f.Note.Cents, m.tolerance))
	case m.lastNote != nil:
		s.WriteString(dimStyle.Render(fmt.Sprintf("Last note: %s", m.lastNote.ID())))
		s.WriteString("\n\n")
	default:
		s.WriteString(infoStyle.Render("Listening for audio..."))
		s.WriteString("\n\n")
	}
	s.WriteString("\n\n")

	if m.hasFrame {
		s.WriteString(infoStyle.Render("Level "))
		s.WriteString(levelMeter(f.DB))
		s.WriteString(infoStyle.Render(fmt.Sprintf(" %5.1f dB", f.DB)))
		s.WriteString("\n")
		s.WriteString(infoStyle.Render("Hold  "))
		s.WriteString(holdMeter(f.Hold, f.HoldFrames))
		s.WriteString("\n\n")
	}

	if t := m.trigger; t != nil {
		label := fmt.Sprintf("%s → %s", t.Event.Note.ID(), t.Event.Action)
		style := dimStyle
		if m.now.Sub(m.triggered) < triggerHighlight {
			style = firedStyle
			if t.Err != nil {
				style = failedStyle
			}
		}
		s.WriteString(style.Render(label))
		if t.Err != nil {
			s.WriteString(" " + infoStyle.Render(t.Err.Error()))
		}
		s.WriteString("\n")
	}
	s.WriteString(dimStyle.Render(fmt.Sprintf("%d triggers", m.triggers)))
	s.WriteString("\n\n")

	for _, b := range m.bindings {
		s.WriteString(dimStyle.Render(fmt.Sprintf("%-4s %s", b.Note, b.Action)))
		s.WriteString("\n")
	}

	s.WriteString("\n")
	s.WriteString(infoStyle.Render("Press q to quit"))

	return s.String()
}
