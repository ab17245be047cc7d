// Package weather renders current conditions and a short forecast from
// OpenWeatherMap.
package weather

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"infodisplay/internal/plugins/fetch"
	"infodisplay/pkg/plugin"
	"infodisplay/pkg/render"
	"infodisplay/pkg/surface"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	Name            = "weather"
	Description     = "Current weather and forecast"
	DefaultInterval = 1800 * time.Second
	DefaultBaseURL  = "https://api.openweathermap.org/data/2.5"
	DefaultCityID   = 4791160

	forecastSteps = 8
	forecastRows  = 4
)

var errNoAPIKey = errors.New("no OpenWeatherMap API key configured")

// Current is the subset of the current-weather response the frame uses.
type Current struct {
	Name string `json:"name"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  float64 `json:"humidity"`
		Pressure  float64 `json:"pressure"`
	} `json:"main"`
	Weather []Condition `json:"weather"`
	Wind    struct {
		Speed float64  `json:"speed"`
		Deg   *float64 `json:"deg"`
	} `json:"wind"`
	Visibility float64 `json:"visibility"`
}

// Condition is one entry of the "weather" array.
type Condition struct {
	Main        string `json:"main"`
	Description string `json:"description"`
}

// Forecast is the subset of the 3-hourly forecast response the frame uses.
type Forecast struct {
	List []struct {
		Dt   int64 `json:"dt"`
		Main struct {
			Temp float64 `json:"temp"`
		} `json:"main"`
		Weather []Condition `json:"weather"`
	} `json:"list"`
}

// Plugin fetches fresh data on every render.
type Plugin struct {
	render.Base

	client  *fetch.Client
	baseURL string
	cityID  string
	units   string
}

// New creates the weather renderer. Settings: city_id, units
// ("imperial" or "metric"), base_url.
func New(ctx *plugin.Context) (*Plugin, error) {
	return &Plugin{
		Base:    render.NewBase(ctx, Name, Description, DefaultInterval),
		client:  fetch.New(fetch.DefaultTimeout),
		baseURL: strings.TrimRight(ctx.Settings.String("base_url", DefaultBaseURL), "/"),
		cityID:  strconv.Itoa(ctx.Settings.Int("city_id", DefaultCityID)),
		units:   ctx.Settings.String("units", "imperial"),
	}, nil
}

// Render fetches the weather and draws it, or paints the error frame.
func (p *Plugin) Render(ctx context.Context) bool {
	return p.Guard(ctx, render.Fallback{
		Title: "Weather",
		Lines: []string{"Unable to fetch weather data", "Please check your API key and connection"},
	}, p.draw)
}

func (p *Plugin) apiKey() string {
	if p.Config == nil {
		return ""
	}
	return p.Config.APIKey("openweathermap")
}

func (p *Plugin) fetch(ctx context.Context) (*Current, *Forecast, error) {
	key := p.apiKey()
	if key == "" {
		return nil, nil, errNoAPIKey
	}
	params := url.Values{"id": {p.cityID}, "appid": {key}, "units": {p.units}}

	var cur Current
	if err := p.client.JSON(ctx, p.baseURL+"/weather", params, &cur); err != nil {
		return nil, nil, fmt.Errorf("current weather: %w", err)
	}
	if len(cur.Weather) == 0 {
		return nil, nil, errors.New("current weather: no conditions in response")
	}

	// the forecast is optional
	params.Set("cnt", strconv.Itoa(forecastSteps))
	var fc Forecast
	if err := p.client.JSON(ctx, p.baseURL+"/forecast", params, &fc); err != nil {
		p.Logger.Warn("Forecast unavailable", zap.Error(err))
		return &cur, nil, nil
	}
	return &cur, &fc, nil
}

func (p *Plugin) draw(ctx context.Context) error {
	cur, fc, err := p.fetch(ctx)
	if err != nil {
		return err
	}

	tempUnit, speedUnit := "°C", "m/s"
	if p.units == "imperial" {
		tempUnit, speedUnit = "°F", "mph"
	}

	c := p.NewCanvas(surface.White)
	name := cur.Name
	if name == "" {
		name = "Unknown"
	}
	y := c.Header("Weather - "+name, render.DefaultHeaderSize)

	currentY := y + 20
	c.TextCentered(fmt.Sprintf("%.0f%s", cur.Main.Temp, tempUnit), currentY, c.Font(render.Bold, 72), surface.Red)

	descY := currentY + 90
	desc := cases.Title(language.English).String(cur.Weather[0].Description)
	c.TextCentered(desc, descY, c.Font(render.Regular, 28), surface.Blue)

	detailsY := descY + 50
	leftX, rightX := 80, c.Width()/2+40
	detail := c.Font(render.Regular, 20)

	c.Text(leftX, detailsY, fmt.Sprintf("Feels like: %.0f%s", cur.Main.FeelsLike, tempUnit), detail, surface.Black)
	c.Text(leftX, detailsY+30, fmt.Sprintf("Humidity: %.0f%%", cur.Main.Humidity), detail, surface.Black)
	c.Text(leftX, detailsY+60, fmt.Sprintf("Pressure: %.0f hPa", cur.Main.Pressure), detail, surface.Black)

	c.Text(rightX, detailsY, fmt.Sprintf("Wind: %.0f %s", cur.Wind.Speed, speedUnit), detail, surface.Black)
	c.Text(rightX, detailsY+30, "Direction: "+Compass(cur.Wind.Deg), detail, surface.Black)
	c.Text(rightX, detailsY+60, "Visibility: "+Visibility(cur.Visibility, p.units), detail, surface.Black)

	if fc != nil && len(fc.List) > 0 {
		forecastY := detailsY + 120
		c.Text(50, forecastY, "Next 24 Hours:", c.Font(render.Bold, 24), surface.Green)

		row := c.Font(render.Regular, 18)
		loc := p.Now().Location()
		for i, item := range fc.List {
			if i >= forecastRows {
				break
			}
			main := ""
			if len(item.Weather) > 0 {
				main = item.Weather[0].Main
			}
			line := fmt.Sprintf("%s: %.0f%s, %s",
				time.Unix(item.Dt, 0).In(loc).Format("15:04"), item.Main.Temp, tempUnit, main)
			c.Text(70, forecastY+35+i*25, line, row, surface.Black)
		}
	}

	c.Footer("Updated: "+p.Now().Format("15:04"), render.DefaultFooterSize)

	if err := p.Show(c); err != nil {
		return err
	}
	p.Logger.Info("Weather updated", zap.String("city", name))
	return nil
}

var compassPoints = [16]string{
	"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE",
	"S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW",
}

// Compass converts a wind bearing in degrees to one of 16 compass points.
func Compass(deg *float64) string {
	if deg == nil {
		return "N/A"
	}
	idx := int(math.Round(*deg/22.5)) % 16
	if idx < 0 {
		idx += 16
	}
	return compassPoints[idx]
}

// Visibility formats a distance given in metres as km, or miles for
// imperial units.
func Visibility(metres float64, units string) string {
	km := metres / 1000
	if units == "imperial" {
		return fmt.Sprintf("%.1f mi", km*0.621371)
	}
	return fmt.Sprintf("%.1f km", km)
}
