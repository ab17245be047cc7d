// Package app wires configuration, the output surface, the plugin registry,
// the scheduler, the daemon loop and the run journal into one application.
// The CLI and the admin API both drive the display through App.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"infodisplay/internal/clock"
	"infodisplay/internal/config"
	"infodisplay/internal/daemon"
	"infodisplay/internal/display"
	"infodisplay/internal/history"
	"infodisplay/internal/registry"
	"infodisplay/internal/scheduler"
	"infodisplay/pkg/plugin"
	"infodisplay/pkg/render"
	"infodisplay/pkg/surface"

	"go.uber.org/zap"
)

// Options override the collaborators App would otherwise build from the
// configuration.
type Options struct {
	// Catalog defaults to plugin.DefaultCatalog().
	Catalog *plugin.Catalog

	// Surface defaults to the one described by the display section.
	Surface surface.Surface

	// Clock defaults to the real clock.
	Clock clock.Clock
}

// App is the composition root.
type App struct {
	cfg       *config.Store
	surface   surface.Surface
	registry  *registry.Registry
	scheduler *scheduler.Scheduler
	daemon    *daemon.Daemon
	journal   *history.Journal
	clock     clock.Clock
	logger    *zap.Logger

	mu            sync.Mutex
	surfaceClosed bool
	closed        bool
}

// New builds the application and loads the enabled plugins. Plugins that
// fail to load are logged and left out.
func New(ctx context.Context, cfg *config.Store, opts Options, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Catalog == nil {
		opts.Catalog = plugin.DefaultCatalog()
	}
	if opts.Clock == nil {
		opts.Clock = clock.NewRealClock()
	}

	out := opts.Surface
	if out == nil {
		d := cfg.Display()
		var err error
		out, err = display.New(display.Options{
			Type:      d.Type,
			Width:     d.Width,
			Height:    d.Height,
			Rotation:  d.Rotation,
			OutputDir: d.OutputDir,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize display: %w", err)
		}
	}

	a := &App{
		cfg:     cfg,
		surface: out,
		clock:   opts.Clock,
		logger:  logger,
	}

	a.registry = registry.New(opts.Catalog, cfg, out, logger)
	if err := a.registry.Load(cfg.EnabledPlugins()); err != nil {
		logger.Warn("Some plugins failed to load", zap.Error(err))
	}

	daemonCfg := cfg.Daemon()
	a.scheduler = scheduler.New(a.registry, scheduler.Options{
		DefaultPlugin:   cfg.DefaultPlugin(),
		DefaultInterval: daemonCfg.UpdateInterval,
		RenderTimeout:   daemonCfg.RenderTimeout,
		Clock:           opts.Clock,
	}, logger)

	if path := cfg.HistoryPath(); path != "" {
		journal, err := history.Open(ctx, path, history.DefaultMaxEntries, logger)
		if err != nil {
			a.registry.Cleanup()
			out.Close()
			return nil, err
		}
		a.journal = journal
		a.scheduler.AddObserver(journal)
	}

	a.daemon = daemon.New(a.scheduler, opts.Clock, logger)
	a.daemon.OnShutdown(a.registry.Cleanup)
	a.daemon.OnShutdown(a.closeSurface)

	logger.Info("Application initialized",
		zap.Strings("plugins", a.registry.Names()),
		zap.String("default", cfg.DefaultPlugin()),
		zap.Bool("history", a.journal != nil))
	return a, nil
}

// Config returns the configuration store.
func (a *App) Config() *config.Store { return a.cfg }

// AddObserver subscribes o to every attempted render.
func (a *App) AddObserver(o scheduler.Observer) {
	a.scheduler.AddObserver(o)
}

// ListPlugins returns the status of every loaded plugin.
func (a *App) ListPlugins() []scheduler.Status {
	return a.scheduler.ListPlugins()
}

// CurrentPlugin returns the plugin on the surface, or "".
func (a *App) CurrentPlugin() string {
	return a.scheduler.Current()
}

// RunPlugin renders the named plugin, subject to its interval unless force
// is set.
func (a *App) RunPlugin(ctx context.Context, name string, force bool) (scheduler.Result, error) {
	return a.scheduler.Run(ctx, name, force)
}

// UpdateDisplay renders the selected plugin if it is due.
func (a *App) UpdateDisplay(ctx context.Context) (scheduler.Result, error) {
	return a.scheduler.UpdateDisplay(ctx)
}

// Cycle shows the next plugin.
func (a *App) Cycle(ctx context.Context) (scheduler.Result, error) {
	return a.scheduler.Cycle(ctx)
}

// StartDaemon runs the update loop until StopDaemon is called or ctx is
// cancelled. Plugins unloaded by a previous shutdown are loaded again.
func (a *App) StartDaemon(ctx context.Context, pollTick, defaultInterval time.Duration) error {
	if a.registry.Len() == 0 {
		if err := a.scheduler.Reload(); err != nil {
			a.logger.Warn("Some plugins failed to load", zap.Error(err))
		}
	}

	a.mu.Lock()
	a.surfaceClosed = false
	a.mu.Unlock()

	return a.daemon.Start(ctx, daemon.Options{
		PollTick:        pollTick,
		DefaultInterval: defaultInterval,
	})
}

// StopDaemon stops the loop and waits for its shutdown hooks.
func (a *App) StopDaemon() {
	a.daemon.Stop()
}

// DaemonState returns the loop's lifecycle state.
func (a *App) DaemonState() daemon.State {
	return a.daemon.State()
}

// ReloadPlugins re-reads the config file and reloads every plugin. If the
// file is invalid the running configuration and plugins are kept.
func (a *App) ReloadPlugins() error {
	if err := a.cfg.Reload(); err != nil {
		return fmt.Errorf("failed to reload config: %w", err)
	}

	a.scheduler.SetDefaultPlugin(a.cfg.DefaultPlugin())
	a.scheduler.SetRenderTimeout(a.cfg.Daemon().RenderTimeout)

	if err := a.scheduler.Reload(); err != nil {
		a.logger.Warn("Some plugins failed to reload", zap.Error(err))
		return err
	}
	a.logger.Info("Plugins reloaded", zap.Strings("plugins", a.registry.Names()))
	return nil
}

// Clear fills the surface with a palette colour.
func (a *App) Clear(color string) error {
	if _, ok := a.surface.Palette()[color]; !ok {
		return fmt.Errorf("%w: %s", surface.ErrUnknownColor, color)
	}
	a.logger.Info("Clearing display", zap.String("color", color))
	return a.scheduler.Exclusive(func() error {
		return a.surface.Clear(color)
	})
}

// TestDisplay paints the colour test pattern.
func (a *App) TestDisplay() error {
	c := render.NewCanvas(surface.NewFrame(a.surface, surface.White), a.surface.Palette(), render.SharedFonts())
	render.TestPattern(c, a.clock.Now())
	err := a.scheduler.Exclusive(func() error {
		return a.surface.Paint(c.Image())
	})
	if err != nil {
		return fmt.Errorf("failed to paint test pattern: %w", err)
	}
	a.logger.Info("Test pattern displayed")
	return nil
}

// History returns the most recent runs, newest first, optionally for one
// plugin.
func (a *App) History(ctx context.Context, plugin string, limit int) ([]scheduler.Result, error) {
	if a.journal == nil {
		return nil, history.ErrDisabled
	}
	return a.journal.Recent(ctx, plugin, limit)
}

// HistorySummaries returns per-plugin run counts.
func (a *App) HistorySummaries(ctx context.Context) ([]history.Summary, error) {
	if a.journal == nil {
		return nil, history.ErrDisabled
	}
	return a.journal.Summaries(ctx)
}

// Close stops the daemon and releases plugins, the surface and the journal.
func (a *App) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	a.daemon.Stop()
	a.registry.Cleanup()
	a.closeSurface()

	if a.journal != nil {
		return a.journal.Close()
	}
	return nil
}

func (a *App) closeSurface() {
	a.mu.Lock()
	if a.surfaceClosed {
		a.mu.Unlock()
		return
	}
	a.surfaceClosed = true
	a.mu.Unlock()

	if err := a.surface.Close(); err != nil {
		a.logger.Warn("Failed to close display", zap.Error(err))
	}
}
