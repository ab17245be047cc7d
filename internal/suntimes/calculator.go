// Package suntimes computes sunrise, sunset and the coarse phase of the day
// for a fixed location.
package suntimes

import (
	"sync"
	"time"

	"github.com/nathan-osman/go-sunrise"
	"go.uber.org/zap"
)

// Phase is the simplified position of the sun.
type Phase string

const (
	PhaseNight   Phase = "night"
	PhaseMorning Phase = "morning"
	PhaseDay     Phase = "day"
	PhaseSunset  Phase = "sunset"
	PhaseDusk    Phase = "dusk"
)

// Times holds the sun events of one day, in UTC.
type Times struct {
	Date        time.Time
	Dawn        time.Time
	Sunrise     time.Time
	SunriseEnd  time.Time
	SunsetStart time.Time
	Sunset      time.Time
	Dusk        time.Time
}

// Valid is false during polar day or night, when the sun neither rises nor
// sets.
func (t Times) Valid() bool {
	return !t.Sunrise.IsZero() && !t.Sunset.IsZero()
}

// Calculator caches the sun events of the most recent day it was asked for.
type Calculator struct {
	latitude  float64
	longitude float64
	logger    *zap.Logger

	mu     sync.Mutex
	cached Times
}

// NewCalculator creates a calculator for the given coordinates.
func NewCalculator(latitude, longitude float64, logger *zap.Logger) *Calculator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Calculator{
		latitude:  latitude,
		longitude: longitude,
		logger:    logger,
	}
}

// Times returns the sun events for the calendar day of now.
func (c *Calculator) Times(now time.Time) Times {
	y, m, d := now.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cached.Date.Equal(day) {
		return c.cached
	}

	rise, set := sunrise.SunriseSunset(c.latitude, c.longitude, y, m, d)
	t := Times{Date: day, Sunrise: rise, Sunset: set}
	if t.Valid() {
		// civil twilight and golden hour, approximately
		t.Dawn = rise.Add(-30 * time.Minute)
		t.SunriseEnd = rise.Add(30 * time.Minute)
		t.SunsetStart = set.Add(-60 * time.Minute)
		t.Dusk = set.Add(30 * time.Minute)
	}
	c.cached = t

	c.logger.Debug("Sun times updated",
		zap.Time("sunrise", t.Sunrise),
		zap.Time("sunset", t.Sunset))
	return t
}

// Phase returns the phase of the day at now.
func (c *Calculator) Phase(now time.Time) Phase {
	t := c.Times(now)
	if !t.Valid() {
		return PhaseDay
	}

	switch {
	case now.Before(t.Dawn):
		return PhaseNight
	case now.Before(t.SunriseEnd):
		return PhaseMorning
	case now.Before(t.SunsetStart):
		return PhaseDay
	case now.Before(t.Sunset):
		return PhaseSunset
	case now.Before(t.Dusk):
		return PhaseDusk
	default:
		return PhaseNight
	}
}
