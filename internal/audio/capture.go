package audio

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
)

// Errors
var (
	ErrStreamEnded      = errors.New("audio stream ended")
	ErrAlreadyCapturing = errors.New("audio capture already started")
	ErrNotCapturing     = errors.New("audio capture not started")
)

// Source defines the interface for an audio sample producer
type Source interface {
	// Start begins delivering mono samples into q
	Start(q *Queue) error

	// Stop ends delivery
	Stop() error

	// SampleRate returns the fixed rate of the delivered samples
	SampleRate() int
}

// Queue is a bounded FIFO of samples between one producer and one consumer.
//
// The producer never blocks: samples that do not fit are dropped and
// counted. The consumer blocks in Recv until a sample arrives, the queue
// is closed and drained, or its context ends.
type Queue struct {
	samples   chan float32
	done      chan struct{}
	closeOnce sync.Once
	dropped   atomic.Uint64
}

// NewQueue creates a queue holding up to capacity samples
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		samples: make(chan float32, capacity),
		done:    make(chan struct{}),
	}
}

// Offer enqueues samples in order without blocking and returns how many
// were dropped because the queue was full or closed
func (q *Queue) Offer(samples ...float32) int {
	select {
	case <-q.done:
		q.dropped.Add(uint64(len(samples)))
		return len(samples)
	default:
	}

	for i, s := range samples {
		select {
		case q.samples <- s:
		default:
			// A full queue stays full for the rest of this batch
			n := len(samples) - i
			q.dropped.Add(uint64(n))
			return n
		}
	}
	return 0
}

// Recv returns the next sample. It returns ErrStreamEnded once the queue
// is closed and every buffered sample was consumed, or ctx.Err() when the
// context ends first.
func (q *Queue) Recv(ctx context.Context) (float32, error) {
	// Buffered samples win over close so nothing in flight is lost
	select {
	case s := <-q.samples:
		return s, nil
	default:
	}

	select {
	case s := <-q.samples:
		return s, nil
	case <-q.done:
		select {
		case s := <-q.samples:
			return s, nil
		default:
			return 0, ErrStreamEnded
		}
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Close marks the end of the stream. It is safe to call more than once.
func (q *Queue) Close() {
	q.closeOnce.Do(func() { close(q.done) })
}

// Len returns the number of buffered samples
func (q *Queue) Len() int {
	return len(q.samples)
}

// Cap returns the queue capacity in samples
func (q *Queue) Cap() int {
	return cap(q.samples)
}

// Dropped returns the total number of samples dropped so far
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}

// Level calculates RMS and dB level of a block of samples
func Level(samples []float32) (rms, db float32) {
	if len(samples) == 0 {
		return 0, -100
	}

	sumSquares := float64(0)
	for _, sample := range samples {
		sumSquares += float64(sample) * float64(sample)
	}

	rms = float32(math.Sqrt(sumSquares / float64(len(samples))))

	// Calculate dB (with protection against log(0))
	if rms > 0.0000001 {
		db = 20 * float32(math.Log10(float64(rms)))
	} else {
		db = -100
	}

	return rms, db
}
