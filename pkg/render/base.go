package render

import (
	"context"
	"errors"
	"fmt"
	"time"

	"infodisplay/pkg/plugin"
	"infodisplay/pkg/surface"

	"go.uber.org/zap"
)

// BaselineInterval is used when neither the renderer nor its settings give an
// update interval.
const BaselineInterval = 300 * time.Second

// Fallback describes the error frame a renderer paints when it cannot produce
// real content.
type Fallback struct {
	Title string
	Lines []string
}

// Base carries the descriptor and collaborators of a renderer and implements
// the parts of plugin.Plugin every renderer shares. Embed it and add Render.
type Base struct {
	name        string
	description string
	interval    time.Duration

	Settings plugin.Settings
	Config   plugin.ConfigReader
	Surface  surface.Surface
	Logger   *zap.Logger

	fonts *Fonts
	now   func() time.Time
}

// NewBase builds a Base from the plugin context. The settings key
// "update_interval" (seconds) overrides defaultInterval.
func NewBase(ctx *plugin.Context, name, description string, defaultInterval time.Duration) Base {
	if defaultInterval <= 0 {
		defaultInterval = BaselineInterval
	}
	logger := ctx.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return Base{
		name:        name,
		description: description,
		interval:    ctx.Settings.Seconds("update_interval", defaultInterval),
		Settings:    ctx.Settings,
		Config:      ctx.Config,
		Surface:     ctx.Surface,
		Logger:      logger,
		fonts:       SharedFonts(),
		now:         time.Now,
	}
}

func (b *Base) Name() string                  { return b.name }
func (b *Base) Description() string           { return b.description }
func (b *Base) UpdateInterval() time.Duration { return b.interval }

// Cleanup is a no-op; renderers holding resources override it.
func (b *Base) Cleanup() {}

// Now returns the renderer's notion of the current time.
func (b *Base) Now() time.Time { return b.now() }

// SetNow replaces the time source. Useful for testing.
func (b *Base) SetNow(now func() time.Time) { b.now = now }

// Use24Hour reports the "format_24h" setting, true by default.
func (b *Base) Use24Hour() bool {
	return b.Settings.Bool("format_24h", true)
}

// FormatTime formats t honouring the renderer's 24-hour setting.
func (b *Base) FormatTime(t time.Time, seconds bool) string {
	return FormatTime(t, b.Use24Hour(), seconds)
}

// NewCanvas allocates a frame sized for the surface.
func (b *Base) NewCanvas(background string) *Canvas {
	frame := surface.NewFrame(b.Surface, background)
	return NewCanvas(frame, b.Surface.Palette(), b.fonts)
}

// Show hands the canvas frame to the surface.
func (b *Base) Show(c *Canvas) error {
	return b.Surface.Paint(c.Image())
}

// Guard runs fn inside the renderer's fault boundary. An error, a panic or an
// expired deadline paints the fallback frame and yields false. A cancelled
// context yields false without painting anything.
func (b *Base) Guard(ctx context.Context, fb Fallback, fn func(ctx context.Context) error) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			b.Logger.Error("Render panicked", zap.Any("panic", r))
			ok = b.RenderError(fb)
		}
	}()

	err := fn(ctx)
	if errors.Is(ctx.Err(), context.Canceled) {
		// Shutting down: leave the frame on the panel as it is.
		b.Logger.Info("Render cancelled", zap.Error(err))
		return false
	}
	if err != nil {
		b.Logger.Error("Render failed", zap.Error(err))
		return b.RenderError(fb)
	}
	if err := ctx.Err(); err != nil {
		b.Logger.Error("Render exceeded its deadline", zap.Error(err))
		return b.RenderError(fb)
	}
	return true
}

// RenderError paints the fallback error frame and always returns false.
// Failures while painting it are logged, never propagated.
func (b *Base) RenderError(fb Fallback) bool {
	defer func() {
		if r := recover(); r != nil {
			b.Logger.Error("Failed to render error frame", zap.Any("panic", r))
		}
	}()

	title := fb.Title
	if title == "" {
		title = b.name
	}
	lines := fb.Lines
	if len(lines) == 0 {
		lines = []string{"Service unavailable"}
	}

	c := b.NewCanvas(surface.White)
	c.Header(fmt.Sprintf("%s Error", title), DefaultHeaderSize)

	face := c.Font(Regular, 32)
	y := c.Height()/2 - 50
	for _, line := range lines {
		c.TextCentered(line, y, face, surface.Red)
		y += 50
	}
	c.Footer(b.errorFooter(), DefaultFooterSize)

	if err := b.Show(c); err != nil {
		b.Logger.Error("Failed to show error frame", zap.Error(err))
	}
	return false
}

func (b *Base) errorFooter() string {
	return fmt.Sprintf("Error at: %s", b.FormatTime(b.Now(), false))
}
