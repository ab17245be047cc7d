// Package registry holds the loaded plugin instances, keyed by name and kept
// in the order they were enabled.
package registry

import (
	"errors"
	"fmt"
	"sync"

	"infodisplay/pkg/plugin"
	"infodisplay/pkg/surface"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var (
	// ErrUnknownPlugin means no factory is registered under the name.
	ErrUnknownPlugin = errors.New("no such plugin")

	// ErrDuplicate means the name is already loaded.
	ErrDuplicate = errors.New("plugin already loaded")

	// ErrNameMismatch means the instance reports a different name than the
	// one it was enabled under.
	ErrNameMismatch = errors.New("plugin name mismatch")
)

// LoadError describes one plugin that could not be loaded. Loading
// continues with the remaining names.
type LoadError struct {
	Name string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load plugin %q: %v", e.Name, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Source supplies the enabled list and per-plugin settings.
type Source interface {
	plugin.ConfigReader
	EnabledPlugins() []string
	PluginSettings(name string) plugin.Settings
}

// Registry maps plugin names to loaded instances.
type Registry struct {
	catalog *plugin.Catalog
	source  Source
	surface surface.Surface
	logger  *zap.Logger

	mu        sync.RWMutex
	order     []string
	instances map[string]plugin.Plugin
}

// New creates an empty registry.
func New(catalog *plugin.Catalog, source Source, display surface.Surface, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		catalog:   catalog,
		source:    source,
		surface:   display,
		logger:    logger.Named("registry"),
		instances: make(map[string]plugin.Plugin),
	}
}

// Load constructs each named plugin and adds it to the registry. Failures
// are logged and skipped; the returned error aggregates every LoadError.
func (r *Registry) Load(enabled []string) error {
	var errs error
	for _, name := range enabled {
		if err := r.loadOne(name); err != nil {
			r.logger.Error("Failed to load plugin", zap.String("plugin", name), zap.Error(err))
			errs = multierr.Append(errs, &LoadError{Name: name, Err: err})
		}
	}

	r.logger.Info("Plugins loaded",
		zap.Int("loaded", r.Len()),
		zap.Int("failed", len(multierr.Errors(errs))))
	return errs
}

func (r *Registry) loadOne(name string) (err error) {
	if _, exists := r.Get(name); exists {
		return ErrDuplicate
	}

	info, ok := r.catalog.Lookup(name)
	if !ok {
		return ErrUnknownPlugin
	}

	ctx := plugin.NewContext(r.source, r.surface, r.source.PluginSettings(name), r.logger.Named(name))

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("constructor panicked: %v", p)
		}
	}()

	instance, err := info.Factory(ctx)
	if err != nil {
		return err
	}
	if instance == nil {
		return fmt.Errorf("factory returned no instance")
	}
	if instance.Name() != name {
		return fmt.Errorf("%w: enabled as %q, reports %q", ErrNameMismatch, name, instance.Name())
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.instances[name]; exists {
		return ErrDuplicate
	}
	r.instances[name] = instance
	r.order = append(r.order, name)

	r.logger.Info("Loaded plugin",
		zap.String("plugin", name),
		zap.Duration("update_interval", instance.UpdateInterval()))
	return nil
}

// Get returns the instance loaded under name.
func (r *Registry) Get(name string) (plugin.Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.instances[name]
	return p, ok
}

// Names returns the loaded names in load order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]string(nil), r.order...)
}

// Len returns the number of loaded plugins.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.order)
}

// Reload unloads every plugin and loads the source's enabled list again.
func (r *Registry) Reload() error {
	r.logger.Info("Reloading plugins")
	r.Cleanup()
	return r.Load(r.source.EnabledPlugins())
}

// Cleanup releases every instance that holds resources and empties the
// registry.
func (r *Registry) Cleanup() {
	r.mu.Lock()
	order := r.order
	instances := r.instances
	r.order = nil
	r.instances = make(map[string]plugin.Plugin)
	r.mu.Unlock()

	for _, name := range order {
		cleaner, ok := instances[name].(plugin.Cleaner)
		if !ok {
			continue
		}
		r.cleanupOne(name, cleaner)
	}
}

func (r *Registry) cleanupOne(name string, cleaner plugin.Cleaner) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("Plugin cleanup panicked", zap.String("plugin", name), zap.Any("panic", p))
		}
	}()
	cleaner.Cleanup()
	r.logger.Debug("Cleaned up plugin", zap.String("plugin", name))
}
