// Package surface defines the output surface that rendered frames are handed
// to. The core never talks to panel hardware directly; it only paints full
// frames through this interface.
package surface

import (
	"errors"
	"image"
	"image/color"
)

// Colour names understood by every surface palette.
const (
	Black  = "black"
	White  = "white"
	Red    = "red"
	Orange = "orange"
	Yellow = "yellow"
	Green  = "green"
	Blue   = "blue"
	Clean  = "clean"
)

// ErrUnknownColor is returned for a colour name missing from the palette.
var ErrUnknownColor = errors.New("unknown colour")

// Surface is the abstraction over a slow-refresh display.
// Implementations accept full frames only.
type Surface interface {
	// Dimensions returns the frame size in pixels.
	Dimensions() (width, height int)

	// Palette returns the named colours the surface can show.
	Palette() Palette

	// Paint shows a full frame. The frame must match Dimensions().
	Paint(frame *image.RGBA) error

	// Clear fills the whole surface with the named colour.
	Clear(colorName string) error

	// Close releases the surface. Called once at shutdown.
	Close() error
}

// Palette maps colour names to their RGBA value.
type Palette map[string]color.RGBA

// SevenColor is the palette of a 7-colour ACeP panel plus the "clean" colour
// used to wipe it.
var SevenColor = Palette{
	Black:  {0, 0, 0, 255},
	White:  {255, 255, 255, 255},
	Red:    {255, 0, 0, 255},
	Orange: {255, 165, 0, 255},
	Yellow: {255, 255, 0, 255},
	Green:  {0, 255, 0, 255},
	Blue:   {0, 0, 255, 255},
	Clean:  {255, 255, 255, 255},
}

// Color resolves a colour name, falling back to black for unknown names.
func (p Palette) Color(name string) color.RGBA {
	if c, ok := p[name]; ok {
		return c
	}
	if c, ok := p[Black]; ok {
		return c
	}
	return color.RGBA{0, 0, 0, 255}
}

// Names returns the colour names of the palette.
func (p Palette) Names() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	return names
}

// NewFrame allocates a frame sized for s and filled with the named background.
func NewFrame(s Surface, background string) *image.RGBA {
	w, h := s.Dimensions()
	frame := image.NewRGBA(image.Rect(0, 0, w, h))
	bg := s.Palette().Color(background)
	pix := frame.Pix
	for i := 0; i < len(pix); i += 4 {
		pix[i] = bg.R
		pix[i+1] = bg.G
		pix[i+2] = bg.B
		pix[i+3] = bg.A
	}
	return frame
}
