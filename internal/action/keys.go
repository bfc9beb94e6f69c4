package action

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"
)

// Errors
var (
	ErrEmptySequence = errors.New("empty key sequence")
	ErrNoMainKey     = errors.New("no main key in sequence")
	ErrUnknownToken  = errors.New("unknown key token")
)

// Modifier is a key held while the main key is clicked
type Modifier int

const (
	Ctrl Modifier = iota
	Shift
	Alt
	Meta
)

func (m Modifier) String() string {
	switch m {
	case Ctrl:
		return "Ctrl"
	case Shift:
		return "Shift"
	case Alt:
		return "Alt"
	case Meta:
		return "Meta"
	}
	return "?"
}

// Key is a named special key or a single character
type Key struct {
	Name string // Named key such as "space"; empty for a character
	Char rune   // Character literal when Name is empty
}

func (k Key) String() string {
	if k.Name != "" {
		return k.Name
	}
	return string(k.Char)
}

// Named special keys
var (
	KeySpace  = Key{Name: "space"}
	KeyEnter  = Key{Name: "enter"}
	KeyTab    = Key{Name: "tab"}
	KeyEscape = Key{Name: "escape"}
	KeyUp     = Key{Name: "up"}
	KeyDown   = Key{Name: "down"}
	KeyLeft   = Key{Name: "left"}
	KeyRight  = Key{Name: "right"}
)

var modifierTokens = map[string]Modifier{
	"ctrl":    Ctrl,
	"control": Ctrl,
	"shift":   Shift,
	"alt":     Alt,
	"meta":    Meta,
	"win":     Meta,
	"super":   Meta,
	"cmd":     Meta,
}

var keyTokens = map[string]Key{
	"space":      KeySpace,
	"enter":      KeyEnter,
	"return":     KeyEnter,
	"tab":        KeyTab,
	"esc":        KeyEscape,
	"escape":     KeyEscape,
	"up":         KeyUp,
	"uparrow":    KeyUp,
	"down":       KeyDown,
	"downarrow":  KeyDown,
	"left":       KeyLeft,
	"leftarrow":  KeyLeft,
	"right":      KeyRight,
	"rightarrow": KeyRight,
}

// Chord is a set of modifiers plus one main key
type Chord struct {
	Modifiers []Modifier
	Key       Key
}

func (c Chord) String() string {
	parts := make([]string, 0, len(c.Modifiers)+1)
	for _, m := range c.Modifiers {
		parts = append(parts, m.String())
	}
	return strings.Join(append(parts, c.Key.String()), "+")
}

// ParseChord parses a sequence such as "Ctrl+Shift+S", "Enter" or "a".
// Tokens are case-insensitive except single characters, which are kept as
// written. When several main keys are given the last one wins.
func ParseChord(sequence string) (Chord, error) {
	var tokens []string
	for _, t := range strings.Split(sequence, "+") {
		if t = strings.TrimSpace(t); t != "" {
			tokens = append(tokens, t)
		}
	}
	// A literal plus, as in "Shift++"
	if strings.HasSuffix(strings.TrimSpace(sequence), "++") || strings.TrimSpace(sequence) == "+" {
		tokens = append(tokens, "+")
	}
	if len(tokens) == 0 {
		return Chord{}, ErrEmptySequence
	}

	var chord Chord
	hasKey := false
	for _, t := range tokens {
		lower := strings.ToLower(t)
		if m, ok := modifierTokens[lower]; ok {
			chord.Modifiers = append(chord.Modifiers, m)
			continue
		}
		if k, ok := keyTokens[lower]; ok {
			chord.Key = k
			hasKey = true
			continue
		}
		if utf8.RuneCountInString(t) == 1 {
			r, _ := utf8.DecodeRuneInString(t)
			chord.Key = Key{Char: r}
			hasKey = true
			continue
		}
		return Chord{}, fmt.Errorf("%w: %s", ErrUnknownToken, t)
	}

	if !hasKey {
		return Chord{}, ErrNoMainKey
	}
	return chord, nil
}

// Injector presses key chords on the host
type Injector interface {
	Inject(chord Chord) error
}

// Keys sends a key chord
type Keys struct {
	sequence string
	chord    Chord
	injector Injector
}

// NewKeys parses sequence and binds it to injector
func NewKeys(sequence string, injector Injector) (*Keys, error) {
	chord, err := ParseChord(sequence)
	if err != nil {
		return nil, fmt.Errorf("sequence %q: %w", sequence, err)
	}
	return &Keys{sequence: sequence, chord: chord, injector: injector}, nil
}

// Execute injects the chord
func (k *Keys) Execute(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return k.injector.Inject(k.chord)
}

// Chord returns the parsed chord
func (k *Keys) Chord() Chord {
	return k.chord
}

func (k *Keys) String() string {
	return "keys:" + k.sequence
}

// LogInjector only logs chords. It backs dry runs.
type LogInjector struct {
	Logger *slog.Logger
}

// Inject logs the chord
func (l LogInjector) Inject(chord Chord) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("dry run: key chord", "chord", chord.String())
	return nil
}
