// Package display provides the output surfaces the daemon can paint on: a
// PNG file surface for headless hosts and an in-memory surface for dry runs
// and tests.
package display

import (
	"fmt"
	"image"
	"image/draw"
	"sync"

	"infodisplay/pkg/surface"
)

// Memory is a surface that keeps the last frame in memory and counts calls.
type Memory struct {
	mu       sync.Mutex
	width    int
	height   int
	palette  surface.Palette
	paints   int
	clears   int
	last     *image.RGBA
	cleared  string
	closed   bool
	paintErr error
}

// NewMemory creates a memory surface with the 7-colour palette.
func NewMemory(width, height int) *Memory {
	return &Memory{
		width:   width,
		height:  height,
		palette: surface.SevenColor,
	}
}

func (m *Memory) Dimensions() (int, int) { return m.width, m.height }

func (m *Memory) Palette() surface.Palette { return m.palette }

// Paint records a copy of the frame.
func (m *Memory) Paint(frame *image.RGBA) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.paintErr != nil {
		return m.paintErr
	}
	if frame.Bounds().Dx() != m.width || frame.Bounds().Dy() != m.height {
		return fmt.Errorf("frame is %dx%d, surface is %dx%d",
			frame.Bounds().Dx(), frame.Bounds().Dy(), m.width, m.height)
	}

	cp := image.NewRGBA(frame.Bounds())
	draw.Draw(cp, cp.Bounds(), frame, frame.Bounds().Min, draw.Src)
	m.last = cp
	m.paints++
	return nil
}

// Clear records the clear and replaces the last frame with a solid one.
func (m *Memory) Clear(colorName string) error {
	frame := surface.NewFrame(m, colorName)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = frame
	m.cleared = colorName
	m.clears++
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Paints returns how many frames were painted.
func (m *Memory) Paints() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paints
}

// Clears returns how many times the surface was cleared.
func (m *Memory) Clears() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clears
}

// LastFrame returns the last painted or cleared frame, or nil.
func (m *Memory) LastFrame() *image.RGBA {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// LastClearColor returns the colour of the last Clear call.
func (m *Memory) LastClearColor() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cleared
}

// Closed reports whether Close was called.
func (m *Memory) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// FailPaints makes subsequent Paint calls return err (nil to stop failing).
func (m *Memory) FailPaints(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paintErr = err
}
