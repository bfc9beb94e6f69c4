package audio

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
)

// inputStream is the part of *portaudio.Stream the capturer drives
type inputStream interface {
	Start() error
	Stop() error
	Close() error
}

func openDefaultStream(channels int, sampleRate float64, framesPerBuffer int, callback func(in, out []float32)) (inputStream, error) {
	stream, err := portaudio.OpenDefaultStream(
		channels, // input channels
		0,        // output channels (we don't need output)
		sampleRate,
		framesPerBuffer, // frames per buffer
		callback,        // callback function
	)
	if err != nil {
		return nil, err
	}
	return stream, nil
}

// PortAudioCapturer implements audio capture from the default input device.
// PortAudio is released when capture stops or fails to start, so a
// capturer captures at most once.
type PortAudioCapturer struct {
	mu            sync.Mutex
	isCapturing   bool
	stream        inputStream
	queue         *Queue
	framesPerBuf  int
	sampleRate    int
	channels      int
	mono          []float32
	amplification atomic.Uint32 // Audio signal amplification factor (float32 bits)

	open      func(channels int, sampleRate float64, framesPerBuffer int, callback func(in, out []float32)) (inputStream, error)
	terminate func() error
}

// NewPortAudioCapturer initializes PortAudio and prepares a capturer for
// the default input device. A sampleRate of 0 uses the device default.
func NewPortAudioCapturer(framesPerBuffer, sampleRate int) (*PortAudioCapturer, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}

	dev, err := portaudio.DefaultInputDevice()
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("default input device: %w", err)
	}

	if sampleRate <= 0 {
		sampleRate = int(dev.DefaultSampleRate)
	}

	// Stereo at most; extra channels are mixed down anyway
	channels := dev.MaxInputChannels
	if channels > 2 {
		channels = 2
	}
	if channels < 1 {
		portaudio.Terminate()
		return nil, fmt.Errorf("input device %q has no input channels", dev.Name)
	}

	c := &PortAudioCapturer{
		framesPerBuf: framesPerBuffer,
		sampleRate:   sampleRate,
		channels:     channels,
		mono:         make([]float32, framesPerBuffer),
		open:         openDefaultStream,
		terminate:    portaudio.Terminate,
	}
	c.SetAmplification(1.0)
	return c, nil
}

// Start opens the input stream and begins delivering samples into q
func (c *PortAudioCapturer) Start(q *Queue) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isCapturing {
		return ErrAlreadyCapturing
	}
	c.queue = q

	stream, err := c.open(c.channels, float64(c.sampleRate), c.framesPerBuf, c.processAudio)
	if err != nil {
		c.terminate()
		return fmt.Errorf("open input stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		c.terminate()
		return fmt.Errorf("start input stream: %w", err)
	}

	c.stream = stream
	c.isCapturing = true
	return nil
}

// Stop ends audio capture, terminates PortAudio and closes the queue.
// Every step runs even when an earlier one fails.
func (c *PortAudioCapturer) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isCapturing {
		return ErrNotCapturing
	}
	c.isCapturing = false
	defer c.queue.Close()

	var errs []error
	if err := c.stream.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stop input stream: %w", err))
	}
	if err := c.stream.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close input stream: %w", err))
	}
	if err := c.terminate(); err != nil {
		errs = append(errs, fmt.Errorf("terminate portaudio: %w", err))
	}
	return errors.Join(errs...)
}

// SampleRate returns the capture sample rate
func (c *PortAudioCapturer) SampleRate() int {
	return c.sampleRate
}

// Channels returns the number of captured channels before mixdown
func (c *PortAudioCapturer) Channels() int {
	return c.channels
}

// SetAmplification sets the audio amplification factor
func (c *PortAudioCapturer) SetAmplification(factor float32) {
	// Ensure amplification is positive
	if factor < 0.1 {
		factor = 0.1
	}

	c.amplification.Store(math.Float32bits(factor))
}

// processAudio is the callback function for audio processing. It runs on
// the PortAudio thread and must not block, so it only mixes down and offers
// the block to the queue.
func (c *PortAudioCapturer) processAudio(in, _ []float32) {
	frames := len(in) / c.channels
	if cap(c.mono) < frames {
		c.mono = make([]float32, frames)
	}
	mono := c.mono[:frames]

	gain := math.Float32frombits(c.amplification.Load())
	for i := range mono {
		sum := float32(0)
		for ch := 0; ch < c.channels; ch++ {
			sum += in[i*c.channels+ch]
		}
		mono[i] = (sum / float32(c.channels)) * gain
	}

	c.queue.Offer(mono...)
}

// InputDevice describes a capture device
type InputDevice struct {
	Name              string
	HostAPI           string
	MaxInputChannels  int
	DefaultSampleRate float64
	IsDefault         bool
}

// ListInputDevices returns every device with at least one input channel
func ListInputDevices() ([]InputDevice, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}

	var defaultName string
	if def, err := portaudio.DefaultInputDevice(); err == nil {
		defaultName = def.Name
	}

	var out []InputDevice
	for _, d := range devices {
		if d.MaxInputChannels < 1 {
			continue
		}
		host := ""
		if d.HostApi != nil {
			host = d.HostApi.Name
		}
		out = append(out, InputDevice{
			Name:              d.Name,
			HostAPI:           host,
			MaxInputChannels:  d.MaxInputChannels,
			DefaultSampleRate: d.DefaultSampleRate,
			IsDefault:         d.Name == defaultName,
		})
	}
	return out, nil
}
