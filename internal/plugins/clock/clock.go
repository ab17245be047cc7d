// Package clock renders a large digital clock with the date.
package clock

import (
	"context"
	"fmt"
	"time"

	"infodisplay/internal/suntimes"
	"infodisplay/pkg/plugin"
	"infodisplay/pkg/render"
	"infodisplay/pkg/surface"

	"go.uber.org/zap"
)

const (
	Name            = "clock"
	Description     = "Digital clock with date"
	DefaultInterval = 60 * time.Second
)

// Plugin draws the time, date and weekday, plus sunrise and sunset when a
// location is configured.
type Plugin struct {
	render.Base

	showSeconds bool
	location    *time.Location
	sun         *suntimes.Calculator
}

// New creates the clock renderer. Settings:
//   - show_seconds (bool, default false)
//   - format_24h (bool, default true)
//   - timezone (IANA name, default local time)
//   - latitude / longitude (enable the sun line)
func New(ctx *plugin.Context) (*Plugin, error) {
	p := &Plugin{
		Base:        render.NewBase(ctx, Name, Description, DefaultInterval),
		showSeconds: ctx.Settings.Bool("show_seconds", false),
		location:    time.Local,
	}

	if tz := ctx.Settings.String("timezone", ""); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("invalid timezone %q: %w", tz, err)
		}
		p.location = loc
	}

	if ctx.Settings.Has("latitude") && ctx.Settings.Has("longitude") {
		p.sun = suntimes.NewCalculator(
			ctx.Settings.Float("latitude", 0),
			ctx.Settings.Float("longitude", 0),
			p.Logger)
	}

	return p, nil
}

// Render draws the clock face.
func (p *Plugin) Render(ctx context.Context) bool {
	return p.Guard(ctx, render.Fallback{Title: "Clock", Lines: []string{"Unable to render clock"}}, p.draw)
}

func (p *Plugin) draw(ctx context.Context) error {
	now := p.Now().In(p.location)

	c := p.NewCanvas(surface.White)
	y := c.Header("Clock", render.DefaultHeaderSize)

	timeStr := p.FormatTime(now, p.showSeconds)
	timeY := y + 50
	c.TextCentered(timeStr, timeY, c.Font(render.Bold, 96), surface.Black)

	dateY := timeY + 120
	c.TextCentered(render.FormatDate(now, render.DateFull), dateY, c.Font(render.Regular, 32), surface.Blue)

	dayY := dateY + 50
	c.TextCentered(render.FormatDate(now, render.DateDay), dayY, c.Font(render.Bold, 24), surface.Green)

	if line := p.sunLine(now); line != "" {
		c.TextCentered(line, dayY+40, c.Font(render.Regular, 20), surface.Orange)
	}

	c.Footer("Timezone: "+now.Format("MST -0700"), render.DefaultFooterSize)

	if err := p.Show(c); err != nil {
		return err
	}
	p.Logger.Info("Clock updated", zap.String("time", timeStr))
	return nil
}

// sunLine returns "Sunrise 05:43 · Sunset 20:37" in the clock's zone, or
// "" when no location is set or the sun does not rise.
func (p *Plugin) sunLine(now time.Time) string {
	if p.sun == nil {
		return ""
	}
	t := p.sun.Times(now)
	if !t.Valid() {
		return ""
	}
	rise := render.FormatTime(t.Sunrise.In(p.location), p.Use24Hour(), false)
	set := render.FormatTime(t.Sunset.In(p.location), p.Use24Hour(), false)
	return fmt.Sprintf("Sunrise %s · Sunset %s", rise, set)
}
