package plugin

import (
	"fmt"
	"log"
	"sort"
	"sync"
)

// PriorityDefault is the registration priority of the built-in renderers.
// A registration with a higher priority replaces one with the same name.
const PriorityDefault = 0

// PluginInfo contains metadata about a registered renderer.
type PluginInfo struct {
	// Name is the unique identifier used in the "enabled" list.
	Name string

	// Description is a human-readable description of the renderer.
	Description string

	// Priority determines which registration wins for a shared name.
	Priority int

	// Factory creates new instances of the renderer.
	Factory Factory
}

// Catalog maps renderer names to their factories.
// It is filled at startup and validated when plugins are loaded.
type Catalog struct {
	mu      sync.RWMutex
	plugins map[string]PluginInfo
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		plugins: make(map[string]PluginInfo),
	}
}

// Register adds a renderer to the catalog.
// If a renderer with the same name already exists, the one with higher
// priority wins. If priorities are equal, the later registration wins.
func (c *Catalog) Register(info PluginInfo) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if info.Name == "" {
		return fmt.Errorf("plugin name cannot be empty")
	}

	if info.Factory == nil {
		return fmt.Errorf("plugin %s: factory cannot be nil", info.Name)
	}

	if existing, exists := c.plugins[info.Name]; exists {
		if info.Priority < existing.Priority {
			log.Printf("Plugin %q registration skipped (priority %d < existing %d)",
				info.Name, info.Priority, existing.Priority)
			return nil
		}
		log.Printf("Plugin %q being overridden (priority %d -> %d)",
			info.Name, existing.Priority, info.Priority)
	}

	c.plugins[info.Name] = info
	return nil
}

// Lookup returns the info registered for name.
func (c *Catalog) Lookup(name string) (PluginInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	info, ok := c.plugins[name]
	return info, ok
}

// Names returns the registered names in alphabetical order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.plugins))
	for name := range c.plugins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Default catalog, filled by the init() functions of the renderer packages.
var defaultCatalog = NewCatalog()

// Register adds a renderer to the default catalog.
func Register(info PluginInfo) error {
	return defaultCatalog.Register(info)
}

// DefaultCatalog returns the catalog renderer packages register with.
func DefaultCatalog() *Catalog {
	return defaultCatalog
}
