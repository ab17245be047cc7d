package display

import (
	"errors"
	"image"
	"image/png"
	"os"
	"testing"

	"infodisplay/pkg/surface"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMemory_PaintAndClear(t *testing.T) {
	m := NewMemory(40, 20)

	frame := surface.NewFrame(m, surface.Red)
	require.NoError(t, m.Paint(frame))
	assert.Equal(t, 1, m.Paints())
	assert.Equal(t, surface.SevenColor[surface.Red], m.LastFrame().RGBAAt(3, 3))

	// The stored frame is a copy
	frame.SetRGBA(3, 3, surface.SevenColor[surface.Blue])
	assert.Equal(t, surface.SevenColor[surface.Red], m.LastFrame().RGBAAt(3, 3))

	require.NoError(t, m.Clear(surface.White))
	assert.Equal(t, 1, m.Clears())
	assert.Equal(t, surface.White, m.LastClearColor())
	assert.Equal(t, 1, m.Paints(), "clear is not a paint")

	require.NoError(t, m.Close())
	assert.True(t, m.Closed())
}

func TestMemory_RejectsWrongSize(t *testing.T) {
	m := NewMemory(40, 20)
	err := m.Paint(image.NewRGBA(image.Rect(0, 0, 10, 10)))
	assert.Error(t, err)
	assert.Equal(t, 0, m.Paints())
}

func TestMemory_FailPaints(t *testing.T) {
	m := NewMemory(4, 4)
	m.FailPaints(errors.New("panel busy"))
	assert.EqualError(t, m.Paint(surface.NewFrame(m, surface.White)), "panel busy")

	m.FailPaints(nil)
	assert.NoError(t, m.Paint(surface.NewFrame(m, surface.White)))
}

func TestFile_PaintWritesLatestPNG(t *testing.T) {
	dir := t.TempDir()
	f, err := NewFile(Options{Width: 30, Height: 10, OutputDir: dir, Rotation: 90}, zap.NewNop())
	require.NoError(t, err)

	frame := surface.NewFrame(f, surface.Green)
	require.NoError(t, f.Paint(frame))

	file, err := os.Open(f.Path())
	require.NoError(t, err)
	defer file.Close()

	img, err := png.Decode(file)
	require.NoError(t, err)
	assert.Equal(t, 10, img.Bounds().Dx(), "rotated width")
	assert.Equal(t, 30, img.Bounds().Dy(), "rotated height")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "only the latest frame is kept")
}

func TestFile_ClearAndInvalidRotation(t *testing.T) {
	dir := t.TempDir()
	f, err := NewFile(Options{Width: 8, Height: 8, OutputDir: dir}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, f.Clear(surface.White))
	assert.FileExists(t, f.Path())

	_, err = NewFile(Options{Width: 8, Height: 8, OutputDir: dir, Rotation: 45}, zap.NewNop())
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	s, err := New(Options{Type: "memory", Width: 800, Height: 480}, zap.NewNop())
	require.NoError(t, err)
	w, h := s.Dimensions()
	assert.Equal(t, 800, w)
	assert.Equal(t, 480, h)

	_, err = New(Options{Type: "inky", Width: 800, Height: 480}, zap.NewNop())
	assert.Error(t, err)

	_, err = New(Options{Type: "memory"}, zap.NewNop())
	assert.Error(t, err)
}

func TestRotate(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 3, 2))
	marker := surface.SevenColor[surface.Red]
	src.SetRGBA(0, 0, marker)

	tests := []struct {
		degrees int
		x, y    int
		w, h    int
	}{
		{0, 0, 0, 3, 2},
		{90, 1, 0, 2, 3},
		{180, 2, 1, 3, 2},
		{270, 0, 2, 2, 3},
	}

	for _, tt := range tests {
		out := Rotate(src, tt.degrees)
		assert.Equal(t, tt.w, out.Bounds().Dx(), "degrees=%d", tt.degrees)
		assert.Equal(t, tt.h, out.Bounds().Dy(), "degrees=%d", tt.degrees)
		assert.Equal(t, marker, out.RGBAAt(tt.x, tt.y), "degrees=%d", tt.degrees)
	}
}
