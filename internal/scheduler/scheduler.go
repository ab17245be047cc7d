// Package scheduler decides which plugin is shown and when it is rendered
// again. All operations serialise on one mutex, so a manual run and a daemon
// tick never render at the same time and never write the surface at once.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"infodisplay/internal/clock"
	"infodisplay/pkg/plugin"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrNotFound means the operation named a plugin that is not loaded.
	ErrNotFound = errors.New("plugin not found")

	// ErrNoPluginsAvailable means the registry is empty.
	ErrNoPluginsAvailable = errors.New("no plugins available")

	// ErrRenderFailed means the plugin painted its fallback frame, panicked
	// or ran out of time.
	ErrRenderFailed = errors.New("render failed")
)

// DefaultInterval is the baseline for plugins that report no interval.
const DefaultInterval = 300 * time.Second

// Registry is the view of the loaded plugins the scheduler needs.
type Registry interface {
	Get(name string) (plugin.Plugin, bool)
	Names() []string
	Reload() error
}

// Options configure a Scheduler.
type Options struct {
	// DefaultPlugin is preferred when nothing is current.
	DefaultPlugin string

	// DefaultInterval replaces non-positive plugin intervals.
	DefaultInterval time.Duration

	// RenderTimeout bounds a single render. Zero disables the bound.
	RenderTimeout time.Duration

	// Clock defaults to the real clock.
	Clock clock.Clock
}

// Scheduler owns the schedule state: when each plugin last rendered
// successfully and which plugin is on the surface.
type Scheduler struct {
	registry Registry
	clock    clock.Clock
	logger   *zap.Logger

	mu              sync.Mutex
	defaultPlugin   string
	defaultInterval time.Duration
	renderTimeout   time.Duration
	lastRun         map[string]time.Time
	current         string

	observersMu sync.RWMutex
	observers   []Observer
}

// New creates a scheduler with empty state.
func New(registry Registry, opts Options, logger *zap.Logger) *Scheduler {
	if opts.Clock == nil {
		opts.Clock = clock.NewRealClock()
	}
	if opts.DefaultInterval <= 0 {
		opts.DefaultInterval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		registry:        registry,
		clock:           opts.Clock,
		logger:          logger.Named("scheduler"),
		defaultPlugin:   opts.DefaultPlugin,
		defaultInterval: opts.DefaultInterval,
		renderTimeout:   opts.RenderTimeout,
		lastRun:         make(map[string]time.Time),
	}
}

// ShouldUpdate reports whether the plugin has never rendered or its
// interval has elapsed since the last successful render. Unknown plugins
// are never due.
func (s *Scheduler) ShouldUpdate(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.registry.Get(name)
	if !ok {
		return false
	}
	return s.dueLocked(name, p)
}

func (s *Scheduler) dueLocked(name string, p plugin.Plugin) bool {
	last, ok := s.lastRun[name]
	if !ok {
		return true
	}
	return s.clock.Since(last) >= s.intervalLocked(p)
}

func (s *Scheduler) intervalLocked(p plugin.Plugin) time.Duration {
	if d := p.UpdateInterval(); d > 0 {
		return d
	}
	return s.defaultInterval
}

// Run renders the named plugin if it is due or force is set.
//   - ErrNotFound if the plugin is not loaded
//   - OutcomeSkipped with a nil error if it is not due
//   - OutcomeFailed with an error wrapping ErrRenderFailed if the render
//     failed; the schedule state is left untouched
func (s *Scheduler) Run(ctx context.Context, name string, force bool) (Result, error) {
	s.mu.Lock()
	res, err := s.runLocked(ctx, name, force)
	s.mu.Unlock()

	s.notify(res)
	return res, err
}

func (s *Scheduler) runLocked(ctx context.Context, name string, force bool) (Result, error) {
	res := Result{Plugin: name, Forced: force}

	p, ok := s.registry.Get(name)
	if !ok {
		return res, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	if !force && !s.dueLocked(name, p) {
		res.Outcome = OutcomeSkipped
		s.logger.Debug("Plugin not due", zap.String("plugin", name))
		return res, nil
	}

	res.ID = uuid.New()
	res.StartedAt = s.clock.Now()
	s.logger.Info("Rendering plugin", zap.String("plugin", name), zap.Bool("forced", force))

	renderErr := s.render(ctx, p)
	res.Duration = s.clock.Since(res.StartedAt)

	if renderErr != nil {
		res.Outcome = OutcomeFailed
		res.Error = renderErr.Error()
		s.logger.Warn("Render failed",
			zap.String("plugin", name),
			zap.Duration("duration", res.Duration),
			zap.Error(renderErr))
		return res, fmt.Errorf("%w: %s: %v", ErrRenderFailed, name, renderErr)
	}

	res.Outcome = OutcomeRendered
	s.lastRun[name] = s.clock.Now()
	s.current = name
	s.logger.Info("Render succeeded",
		zap.String("plugin", name),
		zap.Duration("duration", res.Duration))
	return res, nil
}

// render calls the plugin behind a fault boundary and the optional
// wall-clock bound.
func (s *Scheduler) render(ctx context.Context, p plugin.Plugin) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if s.renderTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.renderTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("plugin panicked: %v", r)
		}
	}()

	ok := p.Render(ctx)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("render interrupted: %w", ctxErr)
	}
	if !ok {
		return errors.New("plugin painted its fallback frame")
	}
	return nil
}

// SelectDefault picks the plugin to show: the current one while it is
// loaded, then the configured default, then the first loaded plugin.
func (s *Scheduler) SelectDefault() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectLocked()
}

func (s *Scheduler) selectLocked() (string, bool) {
	if s.current != "" {
		if _, ok := s.registry.Get(s.current); ok {
			return s.current, true
		}
	}
	if s.defaultPlugin != "" {
		if _, ok := s.registry.Get(s.defaultPlugin); ok {
			return s.defaultPlugin, true
		}
	}
	names := s.registry.Names()
	if len(names) == 0 {
		return "", false
	}
	return names[0], true
}

// UpdateDisplay renders the selected plugin if it is due.
func (s *Scheduler) UpdateDisplay(ctx context.Context) (Result, error) {
	s.mu.Lock()
	name, ok := s.selectLocked()
	if !ok {
		s.mu.Unlock()
		return Result{}, ErrNoPluginsAvailable
	}
	res, err := s.runLocked(ctx, name, false)
	s.mu.Unlock()

	s.notify(res)
	return res, err
}

// Cycle force-renders the plugin after the current one in load order,
// wrapping around. With nothing current it starts at the first plugin.
func (s *Scheduler) Cycle(ctx context.Context) (Result, error) {
	s.mu.Lock()
	names := s.registry.Names()
	if len(names) == 0 {
		s.mu.Unlock()
		return Result{}, ErrNoPluginsAvailable
	}

	idx := -1
	for i, name := range names {
		if name == s.current {
			idx = i
			break
		}
	}
	next := names[(idx+1)%len(names)]
	s.logger.Info("Cycling display", zap.String("from", s.current), zap.String("to", next))

	res, err := s.runLocked(ctx, next, true)
	s.mu.Unlock()

	s.notify(res)
	return res, err
}

// ListPlugins returns the status of every loaded plugin in load order.
func (s *Scheduler) ListPlugins() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := s.registry.Names()
	out := make([]Status, 0, len(names))
	for _, name := range names {
		p, ok := s.registry.Get(name)
		if !ok {
			continue
		}
		st := Status{
			Name:           name,
			Description:    p.Description(),
			UpdateInterval: s.intervalLocked(p),
			NeedsUpdate:    s.dueLocked(name, p),
			IsCurrent:      name == s.current,
		}
		if last, ok := s.lastRun[name]; ok {
			last := last
			st.LastRun = &last
		}
		out = append(out, st)
	}
	return out
}

// Reload reloads the registry and forgets state of plugins that are gone.
// Load errors are returned after the state has been pruned.
func (s *Scheduler) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.registry.Reload()

	for name := range s.lastRun {
		if _, ok := s.registry.Get(name); !ok {
			delete(s.lastRun, name)
		}
	}
	if s.current != "" {
		if _, ok := s.registry.Get(s.current); !ok {
			s.logger.Info("Current plugin no longer loaded", zap.String("plugin", s.current))
			s.current = ""
		}
	}
	return err
}

// Exclusive runs fn while no render is in progress. Direct surface writes go
// through it so they never interleave with a plugin's paint.
func (s *Scheduler) Exclusive(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

// Current returns the plugin on the surface, or "".
func (s *Scheduler) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// LastRun returns the time of the plugin's last successful render.
func (s *Scheduler) LastRun(name string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.lastRun[name]
	return t, ok
}

// SetDefaultInterval replaces the baseline interval. Non-positive values
// are ignored.
func (s *Scheduler) SetDefaultInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaultInterval = d
}

// SetDefaultPlugin replaces the configured default.
func (s *Scheduler) SetDefaultPlugin(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaultPlugin = name
}

// SetRenderTimeout replaces the per-render bound. Zero disables it.
func (s *Scheduler) SetRenderTimeout(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.renderTimeout = d
}
