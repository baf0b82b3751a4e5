// internal/frame/frame.go
package frame

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"

	"golang.org/x/image/draw"
)

// Channels is the number of color samples per pixel
const Channels = 3

// Frame is a decoded RGB video frame with samples in [0,255].
// Pix is interleaved R,G,B in row-major order. Frames are treated as
// immutable: every operation in this module returns a new Frame.
type Frame struct {
	Width  int
	Height int
	Pix    []uint8
}

// New allocates a black frame of the given size
func New(width, height int) Frame {
	return Frame{
		Width:  width,
		Height: height,
		Pix:    make([]uint8, width*height*Channels),
	}
}

// Empty reports whether the frame carries no pixels
func (f Frame) Empty() bool {
	return f.Width <= 0 || f.Height <= 0 || len(f.Pix) == 0
}

// Validate checks that the pixel buffer matches the declared size
func (f Frame) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("invalid frame size %dx%d", f.Width, f.Height)
	}
	if len(f.Pix) != f.Width*f.Height*Channels {
		return fmt.Errorf("frame buffer has %d samples, want %d", len(f.Pix), f.Width*f.Height*Channels)
	}
	return nil
}

// SameSize reports whether two frames share width and height
func (f Frame) SameSize(o Frame) bool {
	return f.Width == o.Width && f.Height == o.Height
}

// At returns the RGB sample at (x, y)
func (f Frame) At(x, y int) (r, g, b uint8) {
	i := (y*f.Width + x) * Channels
	return f.Pix[i], f.Pix[i+1], f.Pix[i+2]
}

// Clone returns a deep copy
func (f Frame) Clone() Frame {
	pix := make([]uint8, len(f.Pix))
	copy(pix, f.Pix)
	return Frame{Width: f.Width, Height: f.Height, Pix: pix}
}

// Equal reports whether two frames are pixel-identical
func (f Frame) Equal(o Frame) bool {
	if !f.SameSize(o) || len(f.Pix) != len(o.Pix) {
		return false
	}
	for i := range f.Pix {
		if f.Pix[i] != o.Pix[i] {
			return false
		}
	}
	return true
}

// FromImage converts any image into an RGB frame, dropping alpha
func FromImage(img image.Image) Frame {
	b := img.Bounds()
	f := New(b.Dx(), b.Dy())

	if rgba, ok := img.(*image.RGBA); ok {
		for y := 0; y < f.Height; y++ {
			src := rgba.Pix[y*rgba.Stride:]
			dst := f.Pix[y*f.Width*Channels:]
			for x := 0; x < f.Width; x++ {
				dst[x*3] = src[x*4]
				dst[x*3+1] = src[x*4+1]
				dst[x*3+2] = src[x*4+2]
			}
		}
		return f
	}

	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			c := color.RGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.RGBA)
			i := (y*f.Width + x) * Channels
			f.Pix[i] = c.R
			f.Pix[i+1] = c.G
			f.Pix[i+2] = c.B
		}
	}
	return f
}

// ToImage converts the frame into an opaque RGBA image
func (f Frame) ToImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		src := f.Pix[y*f.Width*Channels:]
		dst := img.Pix[y*img.Stride:]
		for x := 0; x < f.Width; x++ {
			dst[x*4] = src[x*3]
			dst[x*4+1] = src[x*3+1]
			dst[x*4+2] = src[x*3+2]
			dst[x*4+3] = 0xff
		}
	}
	return img
}

// Resize resamples the frame to width x height with bilinear interpolation
func (f Frame) Resize(width, height int) Frame {
	if f.Width == width && f.Height == height {
		return f.Clone()
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), f.ToImage(), image.Rect(0, 0, f.Width, f.Height), draw.Src, nil)
	return FromImage(dst)
}

// ReadPNG decodes a PNG file into a frame
func ReadPNG(path string) (Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return Frame{}, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	img, err := png.Decode(file)
	if err != nil {
		return Frame{}, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return FromImage(img), nil
}

// WritePNG encodes the frame to path
func (f Frame) WritePNG(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create image: %w", err)
	}
	if err := png.Encode(file, f.ToImage()); err != nil {
		file.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return file.Close()
}
