// Package render holds the layout primitives shared by every renderer: text
// placement, header and footer blocks, time and date formatting, and the
// embeddable Base that implements the fallback error frame.
package render

import (
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

// Style selects a font family.
type Style string

const (
	Regular Style = "regular"
	Bold    Style = "bold"
	Mono    Style = "mono"
)

var styleSources = map[Style][]byte{
	Regular: goregular.TTF,
	Bold:    gobold.TTF,
	Mono:    gomono.TTF,
}

type faceKey struct {
	style Style
	size  float64
}

// Fonts caches font faces per style and size.
type Fonts struct {
	mu     sync.Mutex
	parsed map[Style]*opentype.Font
	faces  map[faceKey]font.Face
}

// NewFonts creates an empty face cache.
func NewFonts() *Fonts {
	return &Fonts{
		parsed: make(map[Style]*opentype.Font),
		faces:  make(map[faceKey]font.Face),
	}
}

// Face returns a face for style at size points (72 DPI, so points == pixels).
// Unknown styles fall back to Regular; parse failures fall back to the
// built-in 7x13 bitmap face.
func (f *Fonts) Face(style Style, size float64) font.Face {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := styleSources[style]; !ok {
		style = Regular
	}
	key := faceKey{style: style, size: size}
	if face, ok := f.faces[key]; ok {
		return face
	}

	parsed, ok := f.parsed[style]
	if !ok {
		var err error
		parsed, err = opentype.Parse(styleSources[style])
		if err != nil {
			return basicfont.Face7x13
		}
		f.parsed[style] = parsed
	}

	face, err := opentype.NewFace(parsed, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return basicfont.Face7x13
	}
	f.faces[key] = face
	return face
}

var sharedFonts = NewFonts()

// SharedFonts returns the process-wide face cache.
func SharedFonts() *Fonts {
	return sharedFonts
}
