package testutil

import (
	"infodisplay/internal/config"
	"infodisplay/internal/display"
	"infodisplay/pkg/plugin"

	"go.uber.org/zap"
)

// Harness bundles the collaborators a registry needs for tests.
type Harness struct {
	Catalog *plugin.Catalog
	Config  *config.Store
	Surface *display.Memory
	Logger  *zap.Logger
	Stubs   map[string]*Stub
}

// NewHarness registers the stubs in a fresh catalog and enables them in
// the given order. The first stub becomes the configured default unless
// SetDefault is called.
//
// Example usage:
//
//	h := testutil.NewHarness(testutil.NewStub("a", time.Minute), testutil.NewStub("b", time.Hour))
//	reg := registry.New(h.Catalog, h.Config, h.Surface, h.Logger)
//	err := reg.Load(h.Config.EnabledPlugins())
func NewHarness(stubs ...*Stub) *Harness {
	h := &Harness{
		Catalog: plugin.NewCatalog(),
		Surface: display.NewMemory(800, 480),
		Logger:  zap.NewNop(),
		Stubs:   make(map[string]*Stub),
	}

	enabled := make([]any, 0, len(stubs))
	for _, s := range stubs {
		h.Register(s)
		enabled = append(enabled, s.Name())
	}

	def := ""
	if len(stubs) > 0 {
		def = stubs[0].Name()
	}
	h.Config = config.NewFromMap(map[string]any{
		"display": map[string]any{"type": "memory"},
		"plugins": map[string]any{
			"enabled":  enabled,
			"default":  def,
			"settings": map[string]any{},
		},
	}, h.Logger)
	return h
}

// Register adds a stub to the catalog without enabling it.
func (h *Harness) Register(s *Stub) {
	h.Stubs[s.Name()] = s
	_ = h.Catalog.Register(plugin.PluginInfo{
		Name:        s.Name(),
		Description: s.Description(),
		Factory:     s.Factory(),
	})
}

// SetEnabled replaces plugins.enabled.
func (h *Harness) SetEnabled(names ...string) {
	list := make([]any, 0, len(names))
	for _, n := range names {
		list = append(list, n)
	}
	h.Config.Set(list, "plugins", "enabled")
}

// SetDefault replaces plugins.default.
func (h *Harness) SetDefault(name string) {
	h.Config.Set(name, "plugins", "default")
}
