package plugin

import (
	"infodisplay/pkg/surface"

	"go.uber.org/zap"
)

// Context provides dependencies to plugins during construction.
// These are the only collaborators a plugin may use: it has no access to the
// registry or the scheduler.
type Context struct {
	// Config is the read-only shared configuration (API keys and the like).
	Config ConfigReader

	// Surface is the output surface frames are painted on.
	Surface surface.Surface

	// Settings is the plugin's own settings sub-tree.
	Settings Settings

	// Logger is already named after the plugin.
	Logger *zap.Logger
}

// NewContext creates a new plugin context with all required dependencies.
// A nil logger is replaced by a no-op logger.
func NewContext(
	config ConfigReader,
	display surface.Surface,
	settings Settings,
	logger *zap.Logger,
) *Context {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Context{
		Config:   config,
		Surface:  display,
		Settings: settings.Clone(),
		Logger:   logger,
	}
}
