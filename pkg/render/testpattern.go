package render

import (
	"fmt"
	"strings"
	"time"

	"infodisplay/pkg/surface"
)

// TestPattern draws the panel self-test frame: title, resolution, timestamp
// and one labelled swatch per palette colour.
func TestPattern(c *Canvas, now time.Time) {
	c.Fill(surface.White)

	c.Text(50, 50, "eInk InfoDisplay", c.Font(Bold, 48), surface.Black)
	small := c.Font(Regular, 24)
	c.Text(50, 120, fmt.Sprintf("Resolution: %dx%d", c.Width(), c.Height()), small, surface.Blue)
	c.Text(50, 160, fmt.Sprintf("Time: %s", now.Format("2006-01-02 15:04:05")), small, surface.Green)

	swatches := []string{surface.Black, surface.Red, surface.Orange, surface.Yellow, surface.Green, surface.Blue}
	y := 240
	for i, name := range swatches {
		x := 50 + i*120
		c.FillRect(x, y, x+60, y+60, name)
		c.Rect(x, y, x+60, y+60, 1, surface.Black)
		c.Text(x, y+70, strings.ToUpper(name[:1])+name[1:], c.Font(Regular, 16), surface.Black)
	}
}
