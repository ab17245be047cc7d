// Package plugin provides the rendering contract and the factory catalog for
// display plugins. Renderers register themselves with the catalog from init()
// functions, so the set of available plugins is fixed at compile time while the
// configured "enabled" list decides which of them get loaded.
package plugin

import (
	"context"
	"time"
)

// Plugin is the rendering contract every renderer implements.
type Plugin interface {
	// Name returns the unique identifier for this plugin.
	// It must match the name the plugin was enabled under.
	Name() string

	// Description is a short human readable summary.
	Description() string

	// UpdateInterval is the minimum spacing between two successful renders.
	// A value <= 0 means "use the scheduler baseline".
	UpdateInterval() time.Duration

	// Render produces one full frame and hands it to the output surface.
	// - Returns true when real content was painted
	// - Returns false when the fallback error frame was painted instead
	// - Must not panic or leak a fault past its own boundary
	// The context carries the wall-clock bound for this render, if any.
	Render(ctx context.Context) bool
}

// Cleaner is an optional interface for plugins that hold resources.
// Cleanup is called once when the plugin is unloaded.
type Cleaner interface {
	Cleanup()
}

// ConfigReader is the read-only view of the shared configuration.
type ConfigReader interface {
	// Get walks nested sections and returns the value at the path.
	Get(keys ...string) (any, bool)

	// APIKey returns the credential for an upstream service, or "".
	APIKey(service string) string
}

// Factory creates a new plugin instance from a context.
type Factory func(ctx *Context) (Plugin, error)
