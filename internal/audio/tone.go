package audio

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/0xlemi/tunekeys/internal/pitch"
)

// Segment is one step of a tone script: a frequency (0 for a rest) held
// for a duration
type Segment struct {
	Frequency float64
	Duration  time.Duration
}

// ParseScript parses a comma separated tone script such as
// "A4:1s,rest:300ms,445.5:2s". Each step is a note name, "rest" or a
// frequency in Hz, followed by a Go duration.
func ParseScript(script string) ([]Segment, error) {
	var out []Segment
	for _, part := range strings.Split(script, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		tone, dur, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("segment %q: missing duration", part)
		}
		d, err := time.ParseDuration(strings.TrimSpace(dur))
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("segment %q: invalid duration", part)
		}

		tone = strings.TrimSpace(tone)
		var freq float64
		switch {
		case strings.EqualFold(tone, "rest"):
			freq = 0
		default:
			if f, err := strconv.ParseFloat(tone, 64); err == nil && f > 0 {
				freq = f
			} else if midi, err := pitch.ParseNote(tone); err == nil {
				freq = pitch.FrequencyOf(midi)
			} else {
				return nil, fmt.Errorf("segment %q: unknown tone %q", part, tone)
			}
		}

		out = append(out, Segment{Frequency: freq, Duration: d})
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("empty tone script")
	}
	return out, nil
}

// ToneSource synthesizes a scripted sequence of sine tones in real time.
// The queue is closed after the last segment.
type ToneSource struct {
	segments   []Segment
	sampleRate int
	amplitude  float64
	block      time.Duration

	mu   sync.Mutex
	stop chan struct{}
	wg   sync.WaitGroup
}

// NewToneSource creates a tone source for the given script
func NewToneSource(segments []Segment, sampleRate int) *ToneSource {
	return &ToneSource{
		segments:   segments,
		sampleRate: sampleRate,
		amplitude:  0.5,
		block:      10 * time.Millisecond,
	}
}

// SampleRate returns the synthesis sample rate
func (t *ToneSource) SampleRate() int {
	return t.sampleRate
}

// Start begins producing samples into q
func (t *ToneSource) Start(q *Queue) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stop != nil {
		return ErrAlreadyCapturing
	}
	t.stop = make(chan struct{})

	t.wg.Add(1)
	go t.run(q, t.stop)
	return nil
}

// Stop ends synthesis and waits for the producer to exit
func (t *ToneSource) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stop == nil {
		return ErrNotCapturing
	}
	close(t.stop)
	t.wg.Wait()
	t.stop = nil
	return nil
}

func (t *ToneSource) run(q *Queue, stop <-chan struct{}) {
	defer t.wg.Done()
	defer q.Close()

	ticker := time.NewTicker(t.block)
	defer ticker.Stop()

	perBlock := int(float64(t.sampleRate) * t.block.Seconds())
	if perBlock < 1 {
		perBlock = 1
	}
	buf := make([]float32, 0, perBlock)
	phase := 0.0

	for _, seg := range t.segments {
		remaining := int(float64(t.sampleRate) * seg.Duration.Seconds())
		step := 2 * math.Pi * seg.Frequency / float64(t.sampleRate)

		for remaining > 0 {
			n := min(perBlock, remaining)
			buf = buf[:n]
			for i := range buf {
				buf[i] = float32(t.amplitude * math.Sin(phase))
				phase += step
				if phase > 2*math.Pi {
					phase -= 2 * math.Pi
				}
			}
			remaining -= n

			select {
			case <-stop:
				return
			case <-ticker.C:
			}
			q.Offer(buf...)
		}
	}
}
