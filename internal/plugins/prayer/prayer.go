// Package prayer renders the day's five prayer times from the aladhan.com
// timings API and highlights the next one.
package prayer

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"infodisplay/internal/plugins/fetch"
	"infodisplay/pkg/plugin"
	"infodisplay/pkg/render"
	"infodisplay/pkg/surface"

	"go.uber.org/zap"
)

const (
	Name            = "prayer"
	Description     = "Islamic prayer times"
	DefaultInterval = 3600 * time.Second
	DefaultBaseURL  = "http://api.aladhan.com/v1"

	DefaultLatitude  = 38.903481
	DefaultLongitude = -77.262817
	// DefaultMethod is the Islamic Society of North America.
	DefaultMethod = 1
)

// Prayer pairs the API key of a timing with the label shown on screen.
type Prayer struct {
	Key   string
	Label string
}

// Prayers are the five daily prayers in order.
var Prayers = []Prayer{
	{"Fajr", "Dawn"},
	{"Dhuhr", "Noon"},
	{"Asr", "Afternoon"},
	{"Maghrib", "Sunset"},
	{"Isha", "Night"},
}

// Day is the "data" object of the timings response.
type Day struct {
	Timings map[string]string `json:"timings"`
	Date    struct {
		Hijri struct {
			Date string `json:"date"`
		} `json:"hijri"`
	} `json:"date"`
}

type response struct {
	Code int `json:"code"`
	Data Day `json:"data"`
}

// Next identifies the upcoming prayer.
type Next struct {
	Label string
	Time  string
	Today bool
}

// Plugin fetches fresh timings on every render.
type Plugin struct {
	render.Base

	client    *fetch.Client
	baseURL   string
	latitude  float64
	longitude float64
	method    int
}

// New creates the prayer renderer. Settings: latitude, longitude, method,
// base_url.
func New(ctx *plugin.Context) (*Plugin, error) {
	return &Plugin{
		Base:      render.NewBase(ctx, Name, Description, DefaultInterval),
		client:    fetch.New(fetch.DefaultTimeout),
		baseURL:   strings.TrimRight(ctx.Settings.String("base_url", DefaultBaseURL), "/"),
		latitude:  ctx.Settings.Float("latitude", DefaultLatitude),
		longitude: ctx.Settings.Float("longitude", DefaultLongitude),
		method:    ctx.Settings.Int("method", DefaultMethod),
	}, nil
}

// Render fetches the timings and draws them, or paints the error frame.
func (p *Plugin) Render(ctx context.Context) bool {
	return p.Guard(ctx, render.Fallback{
		Title: "Prayer Times",
		Lines: []string{"Unable to fetch prayer times", "Please check your internet connection"},
	}, p.draw)
}

func (p *Plugin) fetch(ctx context.Context) (*Day, error) {
	params := url.Values{
		"latitude":  {strconv.FormatFloat(p.latitude, 'f', -1, 64)},
		"longitude": {strconv.FormatFloat(p.longitude, 'f', -1, 64)},
		"method":    {strconv.Itoa(p.method)},
		"format":    {"json"},
	}

	var resp response
	if err := p.client.JSON(ctx, p.baseURL+"/timings", params, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data.Timings) == 0 {
		return nil, fmt.Errorf("timings missing from response")
	}
	return &resp.Data, nil
}

func (p *Plugin) draw(ctx context.Context) error {
	day, err := p.fetch(ctx)
	if err != nil {
		return err
	}
	now := p.Now()

	c := p.NewCanvas(surface.White)
	title := "Prayer Times"
	if day.Date.Hijri.Date != "" {
		title += " - " + day.Date.Hijri.Date
	}
	y := c.Header(title, render.DefaultHeaderSize)

	dateY := y + 10
	c.TextCentered(render.FormatDate(now, render.DateFull), dateY, c.Font(render.Regular, 24), surface.Blue)

	tableY := dateY + 60
	nameX, timeX := 150, 450
	head := c.Font(render.Bold, 22)
	c.Text(nameX, tableY, "Prayer", head, surface.Black)
	c.Text(timeX, tableY, "Time", head, surface.Black)

	lineY := tableY + 30
	c.HLine(100, c.Width()-100, lineY, 2, surface.Black)

	next := NextPrayer(day.Timings, now)
	const rowHeight = 35
	for i, pr := range Prayers {
		rowY := lineY + 20 + i*rowHeight
		color, style := surface.Black, render.Regular
		if pr.Label == next.Label {
			color, style = surface.Green, render.Bold
		}
		face := c.Font(style, 20)
		c.Text(nameX, rowY, pr.Label, face, color)
		c.Text(timeX, rowY, Display12h(day.Timings[pr.Key]), face, color)
	}

	if next.Label != "" && next.Time != "" {
		boxY := lineY + 20 + len(Prayers)*rowHeight + 30
		c.Rect(100, boxY, c.Width()-100, boxY+80, 3, surface.Green)
		c.TextCentered("Next Prayer:", boxY+15, c.Font(render.Bold, 24), surface.Green)

		info := fmt.Sprintf("%s at %s", next.Label, next.Time)
		if !next.Today {
			info += " (Tomorrow)"
		}
		c.TextCentered(info, boxY+45, c.Font(render.Regular, 22), surface.Black)
	}

	c.Footer(fmt.Sprintf("Location: %.2f, %.2f", p.latitude, p.longitude), render.DefaultFooterSize)

	if err := p.Show(c); err != nil {
		return err
	}
	p.Logger.Info("Prayer times updated", zap.String("next", next.Label))
	return nil
}

// NextPrayer returns the first prayer later than now's wall-clock time.
// After Isha the next prayer is tomorrow's Fajr.
func NextPrayer(timings map[string]string, now time.Time) Next {
	current := now.Format("15:04")
	for _, pr := range Prayers {
		t := clockTime(timings[pr.Key])
		if t != "" && t > current {
			return Next{Label: pr.Label, Time: t, Today: true}
		}
	}
	return Next{Label: Prayers[0].Label, Time: clockTime(timings[Prayers[0].Key]), Today: false}
}

// clockTime trims suffixes such as " (EDT)" from an API timing.
func clockTime(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 5 {
		s = s[:5]
	}
	return s
}

// Display12h turns "17:05" into "5:05 PM". Unparseable input is returned
// unchanged and an empty one becomes "N/A".
func Display12h(s string) string {
	s = clockTime(s)
	if s == "" {
		return "N/A"
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return s
	}
	return t.Format("3:04 PM")
}
