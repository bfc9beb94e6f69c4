package audio

import (
	"context"
	"errors"
	"testing"
)

type fakeStream struct {
	startErr, stopErr, closeErr error
	closed                      bool
}

func (f *fakeStream) Start() error { return f.startErr }
func (f *fakeStream) Stop() error  { return f.stopErr }
func (f *fakeStream) Close() error {
	f.closed = true
	return f.closeErr
}

// testCapturer returns a stereo capturer over stream and a counter of
// PortAudio releases
func testCapturer(stream *fakeStream, openErr error) (*PortAudioCapturer, *int) {
	terminated := 0
	c := &PortAudioCapturer{
		framesPerBuf: 4,
		sampleRate:   8000,
		channels:     2,
		open: func(int, float64, int, func(in, out []float32)) (inputStream, error) {
			if openErr != nil {
				return nil, openErr
			}
			return stream, nil
		},
		terminate: func() error {
			terminated++
			return nil
		},
	}
	c.SetAmplification(1)
	return c, &terminated
}

func TestPortAudioCapturer_StartFailureReleases(t *testing.T) {
	c, terminated := testCapturer(nil, errors.New("device busy"))
	if err := c.Start(NewQueue(8)); err == nil {
		t.Fatal("expected open failure")
	}
	if *terminated != 1 {
		t.Errorf("expected PortAudio released once, got %d", *terminated)
	}

	stream := &fakeStream{startErr: errors.New("no input")}
	c, terminated = testCapturer(stream, nil)
	if err := c.Start(NewQueue(8)); err == nil {
		t.Fatal("expected start failure")
	}
	if !stream.closed || *terminated != 1 {
		t.Errorf("stream closed %v, released %d times", stream.closed, *terminated)
	}
	if err := c.Stop(); !errors.Is(err, ErrNotCapturing) {
		t.Errorf("expected ErrNotCapturing, got %v", err)
	}
}

func TestPortAudioCapturer_StopFailureReleases(t *testing.T) {
	stopErr := errors.New("stream stalled")
	stream := &fakeStream{stopErr: stopErr}
	c, terminated := testCapturer(stream, nil)

	q := NewQueue(8)
	if err := c.Start(q); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := c.Start(q); !errors.Is(err, ErrAlreadyCapturing) {
		t.Errorf("expected ErrAlreadyCapturing, got %v", err)
	}

	if err := c.Stop(); !errors.Is(err, stopErr) {
		t.Errorf("expected stop error, got %v", err)
	}
	if !stream.closed || *terminated != 1 {
		t.Errorf("stream closed %v, released %d times", stream.closed, *terminated)
	}
	if _, err := q.Recv(context.Background()); !errors.Is(err, ErrStreamEnded) {
		t.Errorf("expected queue closed, got %v", err)
	}
}

func TestPortAudioCapturer_MixesDown(t *testing.T) {
	c, _ := testCapturer(&fakeStream{}, nil)
	q := NewQueue(8)
	if err := c.Start(q); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	c.SetAmplification(2)

	c.processAudio([]float32{0.1, 0.3, -0.5, 0.5, 0.25, 0.25}, nil)

	for _, want := range []float32{0.4, 0, 0.5} {
		got, err := q.Recv(context.Background())
		if err != nil {
			t.Fatalf("Recv failed: %v", err)
		}
		if diff := got - want; diff > 1e-6 || diff < -1e-6 {
			t.Errorf("got %v, want %v", got, want)
		}
	}
}
