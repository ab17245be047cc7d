package render

import (
	"image"
	"image/draw"

	"infodisplay/pkg/surface"

	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

// Layout constants for the header and footer blocks.
const (
	HeaderTop       = 20
	HeaderRuleInset = 50
	HeaderRuleGap   = 10
	HeaderSpacing   = 20
	FooterMargin    = 20

	DefaultHeaderSize = 32
	DefaultFooterSize = 16
)

// Canvas is a frame being drawn plus the palette and fonts to draw it with.
type Canvas struct {
	img     *image.RGBA
	palette surface.Palette
	fonts   *Fonts
}

// NewCanvas wraps img. A nil fonts cache uses the shared one.
func NewCanvas(img *image.RGBA, palette surface.Palette, fonts *Fonts) *Canvas {
	if fonts == nil {
		fonts = SharedFonts()
	}
	return &Canvas{img: img, palette: palette, fonts: fonts}
}

// Image returns the underlying frame.
func (c *Canvas) Image() *image.RGBA { return c.img }

// Width of the frame in pixels.
func (c *Canvas) Width() int { return c.img.Bounds().Dx() }

// Height of the frame in pixels.
func (c *Canvas) Height() int { return c.img.Bounds().Dy() }

// Font returns a face from the canvas font cache.
func (c *Canvas) Font(style Style, size float64) font.Face {
	return c.fonts.Face(style, size)
}

// Fill paints the whole frame with the named colour.
func (c *Canvas) Fill(colorName string) {
	c.FillRect(0, 0, c.Width(), c.Height(), colorName)
}

// FillRect paints the rectangle [x0,x1) x [y0,y1).
func (c *Canvas) FillRect(x0, y0, x1, y1 int, colorName string) {
	col := c.palette.Color(colorName)
	draw.Draw(c.img, image.Rect(x0, y0, x1, y1), image.NewUniform(col), image.Point{}, draw.Src)
}

// HLine draws a horizontal rule of the given thickness starting at y.
func (c *Canvas) HLine(x0, x1, y, thickness int, colorName string) {
	if thickness < 1 {
		thickness = 1
	}
	c.FillRect(x0, y, x1, y+thickness, colorName)
}

// Rect draws a rectangle outline with the given border thickness.
func (c *Canvas) Rect(x0, y0, x1, y1, thickness int, colorName string) {
	if thickness < 1 {
		thickness = 1
	}
	c.FillRect(x0, y0, x1, y0+thickness, colorName)
	c.FillRect(x0, y1-thickness, x1, y1, colorName)
	c.FillRect(x0, y0, x0+thickness, y1, colorName)
	c.FillRect(x1-thickness, y0, x1, y1, colorName)
}

// TextWidth measures text in pixels.
func (c *Canvas) TextWidth(text string, face font.Face) int {
	return font.MeasureString(face, text).Ceil()
}

// Text draws text with its top-left corner at (x, y).
func (c *Canvas) Text(x, y int, text string, face font.Face, colorName string) {
	ascent := face.Metrics().Ascent.Ceil()
	d := &font.Drawer{
		Dst:  c.img,
		Src:  image.NewUniform(c.palette.Color(colorName)),
		Face: face,
		Dot:  fixed.P(x, y+ascent),
	}
	d.DrawString(text)
}

// TextCentered draws text centred horizontally on the frame and returns the
// position it was drawn at.
func (c *Canvas) TextCentered(text string, y int, face font.Face, colorName string) (int, int) {
	x := CenterX(c.Width(), c.TextWidth(text, face))
	c.Text(x, y, text, face, colorName)
	return x, y
}

// TextRightAligned draws text so that it ends at xRight.
func (c *Canvas) TextRightAligned(text string, xRight, y int, face font.Face, colorName string) (int, int) {
	x := RightX(xRight, c.TextWidth(text, face))
	c.Text(x, y, text, face, colorName)
	return x, y
}

// Header draws a bold centred title with a rule under it and returns the
// vertical offset where content may start.
func (c *Canvas) Header(title string, size float64) int {
	if size <= 0 {
		size = DefaultHeaderSize
	}
	c.TextCentered(title, HeaderTop, c.Font(Bold, size), surface.Black)

	ruleY := HeaderTop + int(size) + HeaderRuleGap
	c.HLine(HeaderRuleInset, c.Width()-HeaderRuleInset, ruleY, 2, surface.Black)
	return ruleY + HeaderSpacing
}

// Footer draws centred text anchored to the bottom margin and returns its y.
func (c *Canvas) Footer(text string, size float64) int {
	if size <= 0 {
		size = DefaultFooterSize
	}
	y := FooterY(c.Height(), size)
	c.TextCentered(text, y, c.Font(Regular, size), surface.Black)
	return y
}

// CenterX is the x that centres an item of itemWidth within width.
func CenterX(width, itemWidth int) int {
	return (width - itemWidth) / 2
}

// RightX is the x at which an item of itemWidth ends at xRight.
func RightX(xRight, itemWidth int) int {
	return xRight - itemWidth
}

// FooterY is the y of a footer line of the given font size.
func FooterY(height int, size float64) int {
	return height - int(size) - FooterMargin
}
