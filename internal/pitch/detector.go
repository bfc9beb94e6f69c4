package pitch

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Errors
var (
	ErrInvalidRange     = errors.New("min frequency must be positive and below max frequency")
	ErrInvalidThreshold = errors.New("correlation threshold must be within [0, 1]")
	ErrInvalidRate      = errors.New("sample rate must be positive")
	ErrInvalidNote      = errors.New("invalid note name")
)

// Reference pitch for A4 (MIDI note 69)
const (
	referenceHz   = 440.0
	referenceMIDI = 69
)

// Note represents a musical note quantized from a frequency
type Note struct {
	Name      string  // Pitch class, e.g. "A", "A#", "B"
	Octave    int     // e.g. 4 for middle C (C4)
	MIDI      int     // Nearest MIDI note number
	Frequency float64 // Measured frequency in Hz
	Cents     float64 // Signed deviation from the nearest note (+ sharp, - flat)
}

// ID returns the note identity used for action lookup, e.g. "A4"
func (n Note) ID() string {
	return n.Name + strconv.Itoa(n.Octave)
}

// InTune reports whether the note is within tolerance cents of its center
func (n Note) InTune(tolerance float64) bool {
	return math.Abs(n.Cents) <= tolerance
}

// Estimate is a confident fundamental frequency estimate
type Estimate struct {
	Frequency   float64 // Fundamental frequency in Hz
	Correlation float64 // Normalized correlation at the chosen lag
}

// Detector defines the interface for pitch detection
type Detector interface {
	// Estimate analyzes one window and returns the fundamental, if any
	Estimate(window []float32) (Estimate, bool)
}

// All note names in chromatic order
var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// Quantize converts a frequency to the nearest equal-tempered note.
// It returns false for frequencies that are not positive and finite.
func Quantize(frequency float64) (Note, bool) {
	if frequency <= 0 || math.IsNaN(frequency) || math.IsInf(frequency, 0) {
		return Note{}, false
	}

	// Fractional MIDI note number relative to A4
	midi := referenceMIDI + 12*math.Log2(frequency/referenceHz)

	// Round to nearest semitone
	nearest := math.Round(midi)

	// Cents deviation (difference between actual and rounded semitones)
	cents := 100 * (midi - nearest)

	m := int(nearest)
	return Note{
		Name:      pitchClass(m),
		Octave:    octaveOf(m),
		MIDI:      m,
		Frequency: frequency,
		Cents:     cents,
	}, true
}

// NoteName returns the canonical name of a MIDI note, e.g. 69 -> "A4"
func NoteName(midi int) string {
	return pitchClass(midi) + strconv.Itoa(octaveOf(midi))
}

// FrequencyOf returns the exact equal-tempered frequency of a MIDI note
func FrequencyOf(midi int) float64 {
	return referenceHz * math.Pow(2, float64(midi-referenceMIDI)/12)
}

// ParseNote parses a note name such as "A4", "C#3" or "a#-1" into a MIDI
// note number
func ParseNote(name string) (int, error) {
	s := strings.TrimSpace(name)
	if len(s) < 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidNote, name)
	}

	class := strings.ToUpper(s[:1])
	rest := s[1:]
	if strings.HasPrefix(rest, "#") {
		class += "#"
		rest = rest[1:]
	}

	idx := -1
	for i, n := range noteNames {
		if n == class {
			idx = i
			break
		}
	}
	if idx < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidNote, name)
	}

	octave, err := strconv.Atoi(rest)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidNote, name)
	}

	return (octave+1)*12 + idx, nil
}

func pitchClass(midi int) string {
	return noteNames[((midi%12)+12)%12]
}

func octaveOf(midi int) int {
	return floorDiv(midi, 12) - 1
}

// floorDiv divides rounding toward negative infinity
func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
