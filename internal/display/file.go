package display

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"time"

	"infodisplay/pkg/surface"

	"go.uber.org/zap"
)

// LatestFrameName is the file the file surface overwrites on every paint.
const LatestFrameName = "latest.png"

// Options configure a surface.
type Options struct {
	Type      string
	Width     int
	Height    int
	Rotation  int
	OutputDir string
}

// New creates the surface named by opts.Type ("file" or "memory").
func New(opts Options, logger *zap.Logger) (surface.Surface, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("invalid display size %dx%d", opts.Width, opts.Height)
	}

	switch opts.Type {
	case "", "file":
		return NewFile(opts, logger)
	case "memory":
		return NewMemory(opts.Width, opts.Height), nil
	default:
		return nil, fmt.Errorf("unknown display type %q", opts.Type)
	}
}

// File writes every painted frame to a PNG in the output directory.
// Only the latest frame is kept.
type File struct {
	dir      string
	width    int
	height   int
	rotation int
	logger   *zap.Logger
}

// NewFile creates the output directory and returns the surface.
func NewFile(opts Options, logger *zap.Logger) (*File, error) {
	switch opts.Rotation {
	case 0, 90, 180, 270:
	default:
		return nil, fmt.Errorf("unsupported rotation %d", opts.Rotation)
	}

	dir := opts.OutputDir
	if dir == "" {
		dir = "output"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	logger.Info("File display initialized",
		zap.String("dir", dir),
		zap.Int("width", opts.Width),
		zap.Int("height", opts.Height),
		zap.Int("rotation", opts.Rotation))

	return &File{
		dir:      dir,
		width:    opts.Width,
		height:   opts.Height,
		rotation: opts.Rotation,
		logger:   logger.Named("display"),
	}, nil
}

func (f *File) Dimensions() (int, int) { return f.width, f.height }

func (f *File) Palette() surface.Palette { return surface.SevenColor }

// Path returns the path of the latest frame.
func (f *File) Path() string {
	return filepath.Join(f.dir, LatestFrameName)
}

// Paint rotates the frame and writes it atomically.
func (f *File) Paint(frame *image.RGBA) error {
	if frame.Bounds().Dx() != f.width || frame.Bounds().Dy() != f.height {
		return fmt.Errorf("frame is %dx%d, surface is %dx%d",
			frame.Bounds().Dx(), frame.Bounds().Dy(), f.width, f.height)
	}

	start := time.Now()
	out := Rotate(frame, f.rotation)

	tmp, err := os.CreateTemp(f.dir, ".frame-*.png")
	if err != nil {
		return fmt.Errorf("failed to create frame file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := png.Encode(tmp, out); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.Path()); err != nil {
		return fmt.Errorf("failed to publish frame: %w", err)
	}

	f.logger.Info("Display updated",
		zap.String("path", f.Path()),
		zap.Duration("took", time.Since(start)))
	return nil
}

// Clear paints a solid frame of the named colour.
func (f *File) Clear(colorName string) error {
	f.logger.Info("Clearing display", zap.String("color", colorName))
	return f.Paint(surface.NewFrame(f, colorName))
}

func (f *File) Close() error {
	f.logger.Info("Cleaning up display")
	return nil
}

// Rotate returns frame rotated clockwise by degrees (0, 90, 180 or 270).
func Rotate(frame *image.RGBA, degrees int) *image.RGBA {
	b := frame.Bounds()
	w, h := b.Dx(), b.Dy()

	var out *image.RGBA
	switch degrees {
	case 90, 270:
		out = image.NewRGBA(image.Rect(0, 0, h, w))
	case 180:
		out = image.NewRGBA(image.Rect(0, 0, w, h))
	default:
		return frame
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := frame.RGBAAt(b.Min.X+x, b.Min.Y+y)
			switch degrees {
			case 90:
				out.SetRGBA(h-1-y, x, c)
			case 180:
				out.SetRGBA(w-1-x, h-1-y, c)
			case 270:
				out.SetRGBA(y, w-1-x, c)
			}
		}
	}
	return out
}
