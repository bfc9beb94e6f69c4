// Package engine runs the analysis loop: samples are framed into windows,
// each window is pitch-estimated and quantized, and the resulting
// judgments drive the trigger state machine.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/0xlemi/tunekeys/internal/audio"
	"github.com/0xlemi/tunekeys/internal/dispatch"
	"github.com/0xlemi/tunekeys/internal/pitch"
	"github.com/0xlemi/tunekeys/internal/trigger"
)

// How often dropped samples are reported at most
const dropReportInterval = time.Second

// Config is the resolved analysis configuration
type Config struct {
	SampleRate     int
	WindowSize     int
	HopSize        int
	MinHz          float64
	MaxHz          float64
	CorrThreshold  float64
	ToleranceCents float64
	HoldFrames     int
	Cooldown       time.Duration
}

// Frame describes the analysis of one window
type Frame struct {
	Index      uint64
	At         time.Time
	RMS        float32
	DB         float32
	HasPitch   bool
	Estimate   pitch.Estimate
	Note       pitch.Note
	InTune     bool
	Hold       int
	HoldFrames int
}

// Observer receives analysis results on the engine goroutine. It must
// return quickly.
type Observer interface {
	OnFrame(f Frame)
	OnTrigger(ev trigger.Event, err error)
}

// Option configures an Engine
type Option func(*Engine)

// WithClock replaces time.Now as the source of frame timestamps
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithObserver adds an observer
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observers = append(e.observers, o) }
}

// WithDetector replaces the autocorrelation detector
func WithDetector(d pitch.Detector) Option {
	return func(e *Engine) { e.detector = d }
}

// Engine owns every piece of per-session analysis state
type Engine struct {
	cfg        Config
	framer     *pitch.Framer
	detector   pitch.Detector
	machine    *trigger.Machine
	dispatcher dispatch.Dispatcher
	logger     *slog.Logger
	observers  []Observer
	clock      func() time.Time

	window       []float32
	frames       uint64
	dropped      uint64
	lastDropWarn time.Time
}

// New creates an engine
func New(cfg Config, resolver trigger.Resolver, d dispatch.Dispatcher, logger *slog.Logger, opts ...Option) (*Engine, error) {
	framer, err := pitch.NewFramer(cfg.WindowSize, cfg.HopSize)
	if err != nil {
		return nil, fmt.Errorf("framer: %w", err)
	}

	machine, err := trigger.New(trigger.Config{HoldFrames: cfg.HoldFrames, Cooldown: cfg.Cooldown}, resolver)
	if err != nil {
		return nil, fmt.Errorf("trigger: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		cfg:        cfg,
		framer:     framer,
		machine:    machine,
		dispatcher: d,
		logger:     logger,
		clock:      time.Now,
		window:     make([]float32, cfg.WindowSize),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.detector == nil {
		det, err := pitch.NewAutocorrDetector(cfg.SampleRate, cfg.MinHz, cfg.MaxHz, cfg.CorrThreshold)
		if err != nil {
			return nil, fmt.Errorf("detector: %w", err)
		}
		e.detector = det
	}

	return e, nil
}

// Run consumes q until it ends or ctx is cancelled. It returns
// audio.ErrStreamEnded when the producer closed the queue, or ctx.Err().
// A partially filled window is discarded.
func (e *Engine) Run(ctx context.Context, q *audio.Queue) error {
	e.logger.Info("analysis started",
		"sample_rate", e.cfg.SampleRate,
		"window", e.cfg.WindowSize,
		"hop", e.cfg.HopSize,
	)

	for {
		s, err := q.Recv(ctx)
		if err != nil {
			e.logger.Info("analysis stopped", "frames", e.frames, "reason", err)
			return err
		}

		if !e.framer.Push(s) {
			continue
		}

		e.window = e.framer.Window(e.window)
		e.Process(ctx, e.window)
		e.reportDrops(q)
	}
}

// Process analyzes one complete window and advances the trigger state
func (e *Engine) Process(ctx context.Context, window []float32) Frame {
	now := e.clock()
	e.frames++

	f := Frame{
		Index:      e.frames,
		At:         now,
		HoldFrames: e.cfg.HoldFrames,
	}
	f.RMS, f.DB = audio.Level(window)

	var judgment trigger.Judgment
	if est, ok := e.detector.Estimate(window); ok {
		if note, ok := pitch.Quantize(est.Frequency); ok {
			f.HasPitch = true
			f.Estimate = est
			f.Note = note
			f.InTune = note.InTune(e.cfg.ToleranceCents)
			judgment = trigger.Judgment{Note: note, InTune: f.InTune}
		}
	}

	ev, fire := e.machine.Step(judgment, f.HasPitch, now)
	f.Hold = e.machine.State().Count

	if f.HasPitch {
		e.logger.Debug("frame",
			"hz", fmt.Sprintf("%.1f", f.Estimate.Frequency),
			"note", f.Note.ID(),
			"cents", fmt.Sprintf("%+.0f", f.Note.Cents),
			"r", fmt.Sprintf("%.2f", f.Estimate.Correlation),
			"hold", f.Hold,
		)
	}

	for _, o := range e.observers {
		o.OnFrame(f)
	}

	if fire {
		e.fire(ctx, ev)
	}
	return f
}

// fire dispatches ev. The cooldown starts only when the dispatcher
// accepted the event, so a failed action may fire again next frame.
func (e *Engine) fire(ctx context.Context, ev trigger.Event) {
	e.logger.Info("trigger", "note", ev.Note.ID(), "action", ev.Action.String())

	err := e.dispatcher.Dispatch(ctx, ev)
	if err != nil {
		e.logger.Warn("action failed", "note", ev.Note.ID(), "action", ev.Action.String(), "err", err)
	} else {
		e.machine.Fired(ev.At)
	}

	for _, o := range e.observers {
		o.OnTrigger(ev, err)
	}
}

func (e *Engine) reportDrops(q *audio.Queue) {
	dropped := q.Dropped()
	if dropped == e.dropped {
		return
	}
	now := e.clock()
	if now.Sub(e.lastDropWarn) < dropReportInterval {
		return
	}
	e.logger.Warn("analysis too slow, samples dropped", "dropped", dropped-e.dropped, "total", dropped)
	e.dropped = dropped
	e.lastDropWarn = now
}

// Frames returns the number of analyzed windows
func (e *Engine) Frames() uint64 {
	return e.frames
}
