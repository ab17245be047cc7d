// Package daemon runs the polling loop that keeps the display up to date.
package daemon

import (
	"context"
	"errors"
	"sync"
	"time"

	"infodisplay/internal/clock"
	"infodisplay/internal/scheduler"

	"go.uber.org/zap"
)

// DefaultPollTick is how often the loop wakes up to check for due updates.
const DefaultPollTick = 30 * time.Second

// ErrAlreadyRunning is returned by Start unless the daemon is stopped.
var ErrAlreadyRunning = errors.New("daemon already running")

// State is the daemon lifecycle state.
type State string

const (
	StateStopped      State = "stopped"
	StateInitializing State = "initializing"
	StateRunning      State = "running"
	StateStopping     State = "stopping"
)

// Updater is the part of the scheduler the loop drives.
type Updater interface {
	UpdateDisplay(ctx context.Context) (scheduler.Result, error)
	SetDefaultInterval(d time.Duration)
}

// Options configure one run of the loop.
type Options struct {
	// PollTick is the wait between two update checks.
	PollTick time.Duration

	// DefaultInterval replaces the scheduler's baseline interval when set.
	DefaultInterval time.Duration
}

// Daemon drives the scheduler until stopped.
type Daemon struct {
	updater Updater
	clock   clock.Clock
	logger  *zap.Logger

	mu       sync.Mutex
	state    State
	stopChan chan struct{}
	done     chan struct{}
	cleanups []func()
}

// New creates a stopped daemon.
func New(updater Updater, clk clock.Clock, logger *zap.Logger) *Daemon {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Daemon{
		updater: updater,
		clock:   clk,
		logger:  logger.Named("daemon"),
		state:   StateStopped,
	}
}

// OnShutdown registers a hook that runs once every time the loop exits,
// in registration order.
func (d *Daemon) OnShutdown(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cleanups = append(d.cleanups, fn)
}

// State returns the current lifecycle state.
func (d *Daemon) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Start runs the loop and blocks until Stop is called or ctx is cancelled.
// An update is attempted immediately, then once per poll tick.
func (d *Daemon) Start(ctx context.Context, opts Options) error {
	d.mu.Lock()
	if d.state != StateStopped {
		d.mu.Unlock()
		return ErrAlreadyRunning
	}
	d.state = StateInitializing
	stop := make(chan struct{})
	done := make(chan struct{})
	d.stopChan = stop
	d.done = done
	d.mu.Unlock()

	if opts.PollTick <= 0 {
		opts.PollTick = DefaultPollTick
	}

	defer func() {
		d.shutdown()
		close(done)
	}()

	if opts.DefaultInterval > 0 {
		d.updater.SetDefaultInterval(opts.DefaultInterval)
	}

	if !d.transition(StateInitializing, StateRunning) {
		return nil
	}

	d.logger.Info("Daemon started",
		zap.Duration("poll_tick", opts.PollTick),
		zap.Duration("default_interval", opts.DefaultInterval))

	d.tick(ctx, stop)

	for {
		select {
		case <-stop:
			d.logger.Info("Daemon stopping", zap.String("reason", stopReason(ctx, stop)))
			return nil
		case <-ctx.Done():
			d.logger.Info("Daemon stopping", zap.String("reason", stopReason(ctx, stop)))
			return nil
		case <-d.clock.After(opts.PollTick):
			d.tick(ctx, stop)
		}
	}
}

// Stop asks the loop to exit and waits until it has. An update already in
// progress is allowed to finish first. Calling Stop on a stopped daemon does
// nothing.
func (d *Daemon) Stop() {
	d.mu.Lock()
	switch d.state {
	case StateStopped:
		d.mu.Unlock()
		return
	case StateInitializing, StateRunning:
		d.state = StateStopping
		close(d.stopChan)
	}
	done := d.done
	d.mu.Unlock()

	<-done
}

func (d *Daemon) transition(from, to State) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != from {
		return false
	}
	d.state = to
	return true
}

// tick runs one update. Nothing that goes wrong in it ends the loop.
func (d *Daemon) tick(ctx context.Context, stop <-chan struct{}) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Update panicked", zap.Any("panic", r))
		}
	}()

	if ctx.Err() != nil {
		return
	}
	select {
	case <-stop:
		return
	default:
	}

	res, err := d.updater.UpdateDisplay(ctx)
	switch {
	case err == nil:
		if res.Outcome == scheduler.OutcomeRendered {
			d.logger.Info("Display updated", zap.String("plugin", res.Plugin))
		}
	case errors.Is(err, scheduler.ErrNoPluginsAvailable):
		d.logger.Warn("No plugins available, waiting for the next tick")
	case errors.Is(err, scheduler.ErrRenderFailed):
		d.logger.Warn("Update failed", zap.String("plugin", res.Plugin), zap.Error(err))
	default:
		d.logger.Error("Update error", zap.Error(err))
	}
}

func (d *Daemon) shutdown() {
	d.mu.Lock()
	d.state = StateStopping
	cleanups := append([]func(){}, d.cleanups...)
	d.mu.Unlock()

	for _, fn := range cleanups {
		d.runCleanup(fn)
	}

	d.mu.Lock()
	d.state = StateStopped
	d.mu.Unlock()
	d.logger.Info("Daemon stopped")
}

func (d *Daemon) runCleanup(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Shutdown hook panicked", zap.Any("panic", r))
		}
	}()
	fn()
}

func stopReason(ctx context.Context, stop <-chan struct{}) string {
	select {
	case <-stop:
		return "stop requested"
	default:
	}
	if ctx.Err() != nil {
		return "context cancelled"
	}
	return "unknown"
}
