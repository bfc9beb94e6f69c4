package action

import (
	"fmt"
	"runtime"
	"sync"
	"time"
	"unicode"

	"github.com/micmonay/keybd_event"
)

var namedVK = map[Key]int{
	KeySpace:  keybd_event.VK_SPACE,
	KeyEnter:  keybd_event.VK_ENTER,
	KeyTab:    keybd_event.VK_TAB,
	KeyEscape: keybd_event.VK_ESC,
	KeyUp:     keybd_event.VK_UP,
	KeyDown:   keybd_event.VK_DOWN,
	KeyLeft:   keybd_event.VK_LEFT,
	KeyRight:  keybd_event.VK_RIGHT,
}

var charVK = map[rune]int{
	'a': keybd_event.VK_A, 'b': keybd_event.VK_B, 'c': keybd_event.VK_C,
	'd': keybd_event.VK_D, 'e': keybd_event.VK_E, 'f': keybd_event.VK_F,
	'g': keybd_event.VK_G, 'h': keybd_event.VK_H, 'i': keybd_event.VK_I,
	'j': keybd_event.VK_J, 'k': keybd_event.VK_K, 'l': keybd_event.VK_L,
	'm': keybd_event.VK_M, 'n': keybd_event.VK_N, 'o': keybd_event.VK_O,
	'p': keybd_event.VK_P, 'q': keybd_event.VK_Q, 'r': keybd_event.VK_R,
	's': keybd_event.VK_S, 't': keybd_event.VK_T, 'u': keybd_event.VK_U,
	'v': keybd_event.VK_V, 'w': keybd_event.VK_W, 'x': keybd_event.VK_X,
	'y': keybd_event.VK_Y, 'z': keybd_event.VK_Z,
	'0': keybd_event.VK_0, '1': keybd_event.VK_1, '2': keybd_event.VK_2,
	'3': keybd_event.VK_3, '4': keybd_event.VK_4, '5': keybd_event.VK_5,
	'6': keybd_event.VK_6, '7': keybd_event.VK_7, '8': keybd_event.VK_8,
	'9': keybd_event.VK_9,
}

// KeybdInjector presses chords through the OS input layer
type KeybdInjector struct {
	mu sync.Mutex
	kb keybd_event.KeyBonding
}

// NewKeybdInjector creates an injector. On Linux the virtual keyboard
// needs a moment to register before the first event.
func NewKeybdInjector() (*KeybdInjector, error) {
	kb, err := keybd_event.NewKeyBonding()
	if err != nil {
		return nil, fmt.Errorf("create virtual keyboard: %w", err)
	}
	if runtime.GOOS == "linux" {
		time.Sleep(2 * time.Second)
	}
	return &KeybdInjector{kb: kb}, nil
}

// Inject presses the modifiers, clicks the key and releases everything
func (k *KeybdInjector) Inject(chord Chord) error {
	vk, err := virtualKey(chord.Key)
	if err != nil {
		return err
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	k.kb.Clear()
	k.kb.SetKeys(vk)
	for _, m := range chord.Modifiers {
		switch m {
		case Ctrl:
			k.kb.HasCTRL(true)
		case Shift:
			k.kb.HasSHIFT(true)
		case Alt:
			k.kb.HasALT(true)
		case Meta:
			k.kb.HasSuper(true)
		}
	}
	defer func() {
		k.kb.HasCTRL(false)
		k.kb.HasSHIFT(false)
		k.kb.HasALT(false)
		k.kb.HasSuper(false)
	}()

	if err := k.kb.Launching(); err != nil {
		return fmt.Errorf("inject %s: %w", chord, err)
	}
	return nil
}

func virtualKey(key Key) (int, error) {
	if key.Name != "" {
		if vk, ok := namedVK[key]; ok {
			return vk, nil
		}
		return 0, fmt.Errorf("%w: %s", ErrUnknownToken, key.Name)
	}
	if vk, ok := charVK[unicode.ToLower(key.Char)]; ok {
		return vk, nil
	}
	return 0, fmt.Errorf("character %q cannot be injected on this platform", key.Char)
}
