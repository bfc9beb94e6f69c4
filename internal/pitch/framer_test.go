package pitch

import (
	"testing"
)

func TestNewFramer_Invalid(t *testing.T) {
	testCases := []struct {
		name        string
		window, hop int
	}{
		{"zero hop", 1024, 0},
		{"negative hop", 1024, -1},
		{"hop equals window", 1024, 1024},
		{"hop above window", 512, 1024},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewFramer(tc.window, tc.hop); err != ErrInvalidFrame {
				t.Errorf("expected ErrInvalidFrame, got %v", err)
			}
		})
	}
}

func TestFramer_ReadyCadence(t *testing.T) {
	f, err := NewFramer(8, 2)
	if err != nil {
		t.Fatalf("NewFramer failed: %v", err)
	}

	var ready []int
	for i := 1; i <= 16; i++ {
		if f.Push(float32(i)) {
			ready = append(ready, i)
		}
	}

	want := []int{8, 10, 12, 14, 16}
	if len(ready) != len(want) {
		t.Fatalf("ready at %v, want %v", ready, want)
	}
	for i := range want {
		if ready[i] != want[i] {
			t.Fatalf("ready at %v, want %v", ready, want)
		}
	}
}

func TestFramer_HopNotDividingWindow(t *testing.T) {
	f, _ := NewFramer(10, 4)

	var ready []int
	for i := 1; i <= 22; i++ {
		if f.Push(0) {
			ready = append(ready, i)
		}
	}

	want := []int{10, 14, 18, 22}
	if len(ready) != len(want) {
		t.Fatalf("ready at %v, want %v", ready, want)
	}
	for i := range want {
		if ready[i] != want[i] {
			t.Fatalf("ready at %v, want %v", ready, want)
		}
	}
}

func TestFramer_WindowHoldsMostRecentSamples(t *testing.T) {
	f, _ := NewFramer(4, 1)

	var window []float32
	for i := 1; i <= 7; i++ {
		if f.Push(float32(i)) {
			window = f.Window(window)
		}
	}

	want := []float32{4, 5, 6, 7}
	if len(window) != len(want) {
		t.Fatalf("window length %d, want %d", len(window), len(want))
	}
	for i := range want {
		if window[i] != want[i] {
			t.Errorf("window = %v, want %v", window, want)
			break
		}
	}
}

func TestFramer_Reset(t *testing.T) {
	f, _ := NewFramer(4, 2)
	for i := 0; i < 3; i++ {
		f.Push(1)
	}
	f.Reset()

	for i := 1; i <= 3; i++ {
		if f.Push(2) {
			t.Fatalf("window ready after %d samples following reset", i)
		}
	}
	if !f.Push(2) {
		t.Fatal("expected window after refilling")
	}
	for _, v := range f.Window(nil) {
		if v != 2 {
			t.Fatalf("stale sample %v in window after reset", v)
		}
	}
}
