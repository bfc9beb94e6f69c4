// Package dispatch executes trigger events, either inline on the analysis
// goroutine or on a worker so slow actions do not stall analysis.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/0xlemi/tunekeys/internal/trigger"
)

// Errors
var (
	ErrBusy   = errors.New("dispatch queue full")
	ErrClosed = errors.New("dispatcher closed")
)

// Dispatcher hands trigger events to their actions
type Dispatcher interface {
	// Dispatch executes or schedules ev. A nil error means the event was
	// accepted; the caller then starts the cooldown.
	Dispatch(ctx context.Context, ev trigger.Event) error

	// Close releases resources and waits for pending work
	Close() error
}

// Sync executes actions on the caller's goroutine
type Sync struct {
	Logger *slog.Logger
}

// Dispatch executes the action and returns its error
func (s Sync) Dispatch(ctx context.Context, ev trigger.Event) error {
	start := time.Now()
	if err := ev.Action.Execute(ctx); err != nil {
		return fmt.Errorf("%s: %w", ev.Action, err)
	}
	if s.Logger != nil {
		s.Logger.Debug("action done", "note", ev.Note.ID(), "action", ev.Action.String(), "took", time.Since(start))
	}
	return nil
}

// Close does nothing
func (s Sync) Close() error {
	return nil
}

// Async executes actions on one worker goroutine, in order. Events that do
// not fit the queue are rejected with ErrBusy.
type Async struct {
	logger *slog.Logger
	events chan trigger.Event
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewAsync starts a worker with room for size pending events. Execution
// failures are logged.
func NewAsync(size int, logger *slog.Logger) *Async {
	if size < 1 {
		size = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &Async{
		logger: logger,
		events: make(chan trigger.Event, size),
		ctx:    ctx,
		cancel: cancel,
	}

	a.wg.Add(1)
	go a.run()
	return a
}

// Dispatch queues ev without blocking
func (a *Async) Dispatch(ctx context.Context, ev trigger.Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case a.events <- ev:
		return nil
	default:
		return ErrBusy
	}
}

// Close stops accepting events, runs those already queued and waits
func (a *Async) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.events)
	a.mu.Unlock()

	a.wg.Wait()
	a.cancel()
	return nil
}

func (a *Async) run() {
	defer a.wg.Done()

	for ev := range a.events {
		start := time.Now()
		if err := ev.Action.Execute(a.ctx); err != nil {
			a.logger.Warn("action failed", "note", ev.Note.ID(), "action", ev.Action.String(), "err", err)
			continue
		}
		a.logger.Debug("action done", "note", ev.Note.ID(), "action", ev.Action.String(), "took", time.Since(start))
	}
}
