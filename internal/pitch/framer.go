package pitch

import (
	"errors"
)

// ErrInvalidFrame is returned for window/hop sizes that cannot overlap
var ErrInvalidFrame = errors.New("window size must exceed hop size and hop size must be positive")

// Framer accumulates a sample stream into overlapping analysis windows.
//
// Samples are kept in a ring of windowSize elements; pointer is the index of
// the oldest sample, which is also the next one to be overwritten.
type Framer struct {
	values     []float32
	pointer    int
	filled     int
	sinceReady int
	hopSize    int
}

// NewFramer creates a framer producing windowSize-sample windows every
// hopSize samples
func NewFramer(windowSize, hopSize int) (*Framer, error) {
	if hopSize <= 0 || windowSize <= hopSize {
		return nil, ErrInvalidFrame
	}

	return &Framer{
		values:  make([]float32, windowSize),
		hopSize: hopSize,
	}, nil
}

// WindowSize returns the number of samples per window
func (f *Framer) WindowSize() int {
	return len(f.values)
}

// HopSize returns the number of samples between windows
func (f *Framer) HopSize() int {
	return f.hopSize
}

// Push appends a sample and reports whether a new window is ready
func (f *Framer) Push(s float32) bool {
	n := len(f.values)
	f.values[f.pointer] = s
	f.pointer++
	if f.pointer == n {
		f.pointer = 0
	}
	if f.filled < n {
		f.filled++
	}
	f.sinceReady++

	if f.filled < n || f.sinceReady < f.hopSize {
		return false
	}
	f.sinceReady = 0
	return true
}

// Window copies the most recent window, oldest sample first, into dst and
// returns it. dst is reallocated when it is too small.
func (f *Framer) Window(dst []float32) []float32 {
	n := len(f.values)
	if cap(dst) < n {
		dst = make([]float32, n)
	}
	dst = dst[:n]

	tail := n - f.pointer
	copy(dst[:tail], f.values[f.pointer:])
	copy(dst[tail:], f.values[:f.pointer])
	return dst
}

// Reset discards all buffered samples
func (f *Framer) Reset() {
	clear(f.values)
	f.pointer = 0
	f.filled = 0
	f.sinceReady = 0
}
