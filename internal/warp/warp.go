// internal/warp/warp.go
package warp

import (
	"fmt"
	"math"

	"prismflow/internal/flow"
	"prismflow/internal/frame"
)

// Sampling selects the interpolation used when reading the source image
type Sampling int

const (
	Nearest Sampling = iota
	Bilinear
)

func (s Sampling) String() string {
	switch s {
	case Nearest:
		return "nearest"
	case Bilinear:
		return "bilinear"
	default:
		return fmt.Sprintf("Sampling(%d)", int(s))
	}
}

// Boundary selects how coordinates outside the source image are handled
type Boundary int

const (
	Reflect Boundary = iota
	Border
	Zeros
)

func (b Boundary) String() string {
	switch b {
	case Reflect:
		return "reflect"
	case Border:
		return "border"
	case Zeros:
		return "zeros"
	default:
		return fmt.Sprintf("Boundary(%d)", int(b))
	}
}

// Grid holds per-pixel sampling positions normalized to [-1, 1], where -1
// and 1 are the centres of the first and last pixel on each axis.
type Grid struct {
	Width  int
	Height int
	Data   []float64
}

// NewGrid builds identity + flow and normalizes it with 2*c/(dim-1) - 1
func NewGrid(f flow.Field) Grid {
	g := Grid{Width: f.Width, Height: f.Height, Data: make([]float64, f.Width*f.Height*2)}
	sx := normScale(f.Width)
	sy := normScale(f.Height)
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			dx, dy := f.At(x, y)
			i := (y*f.Width + x) * 2
			g.Data[i] = (float64(x)+float64(dx))*sx - 1
			g.Data[i+1] = (float64(y)+float64(dy))*sy - 1
		}
	}
	return g
}

func normScale(dim int) float64 {
	if dim <= 1 {
		return 0
	}
	return 2 / float64(dim-1)
}

// unnormalize maps a [-1, 1] coordinate back to pixel space
func unnormalize(g float64, dim int) float64 {
	return (g + 1) / 2 * float64(dim-1)
}

// Warp backward-warps img by f: out(p) = img(p + f(p))
func Warp(img frame.Frame, f flow.Field, sampling Sampling, boundary Boundary) (frame.Frame, error) {
	if img.Width != f.Width || img.Height != f.Height {
		return frame.Frame{}, fmt.Errorf("warp size mismatch: image %dx%d, flow %dx%d",
			img.Width, img.Height, f.Width, f.Height)
	}
	return Sample(img, NewGrid(f), sampling, boundary)
}

// Sample reads img at every grid position
func Sample(img frame.Frame, grid Grid, sampling Sampling, boundary Boundary) (frame.Frame, error) {
	if err := img.Validate(); err != nil {
		return frame.Frame{}, err
	}
	if len(grid.Data) != grid.Width*grid.Height*2 {
		return frame.Frame{}, fmt.Errorf("grid buffer has %d values, want %d", len(grid.Data), grid.Width*grid.Height*2)
	}

	out := frame.New(grid.Width, grid.Height)
	for i := 0; i < grid.Width*grid.Height; i++ {
		ix := resolve(unnormalize(grid.Data[i*2], img.Width), img.Width, boundary)
		iy := resolve(unnormalize(grid.Data[i*2+1], img.Height), img.Height, boundary)
		dst := out.Pix[i*frame.Channels : (i+1)*frame.Channels]

		switch sampling {
		case Nearest:
			sampleNearest(img, ix, iy, dst)
		case Bilinear:
			sampleBilinear(img, ix, iy, dst)
		default:
			return frame.Frame{}, fmt.Errorf("unsupported sampling mode %v", sampling)
		}
	}
	return out, nil
}

// resolve applies the boundary policy. For Zeros the coordinate is left
// untouched and out-of-range taps contribute nothing.
func resolve(c float64, dim int, boundary Boundary) float64 {
	switch boundary {
	case Reflect:
		return clampFloat(reflect(c, dim), 0, float64(dim-1))
	case Border:
		return clampFloat(c, 0, float64(dim-1))
	default:
		return c
	}
}

// reflect mirrors c about the centres of the edge pixels
func reflect(c float64, dim int) float64 {
	span := float64(dim - 1)
	if span <= 0 {
		return 0
	}
	c = math.Abs(c)
	flips := math.Floor(c / span)
	extra := math.Mod(c, span)
	if int64(flips)%2 == 0 {
		return extra
	}
	return span - extra
}

func sampleNearest(img frame.Frame, ix, iy float64, dst []uint8) {
	x := int(math.RoundToEven(ix))
	y := int(math.RoundToEven(iy))
	if x < 0 || y < 0 || x >= img.Width || y >= img.Height {
		dst[0], dst[1], dst[2] = 0, 0, 0
		return
	}
	copy(dst, img.Pix[(y*img.Width+x)*frame.Channels:])
}

func sampleBilinear(img frame.Frame, ix, iy float64, dst []uint8) {
	x0 := int(math.Floor(ix))
	y0 := int(math.Floor(iy))
	wx := ix - float64(x0)
	wy := iy - float64(y0)

	var acc [frame.Channels]float64
	taps := [4]struct {
		x, y int
		w    float64
	}{
		{x0, y0, (1 - wx) * (1 - wy)},
		{x0 + 1, y0, wx * (1 - wy)},
		{x0, y0 + 1, (1 - wx) * wy},
		{x0 + 1, y0 + 1, wx * wy},
	}
	for _, tap := range taps {
		if tap.w == 0 || tap.x < 0 || tap.y < 0 || tap.x >= img.Width || tap.y >= img.Height {
			continue
		}
		p := img.Pix[(tap.y*img.Width+tap.x)*frame.Channels:]
		for c := 0; c < frame.Channels; c++ {
			acc[c] += tap.w * float64(p[c])
		}
	}
	for c := 0; c < frame.Channels; c++ {
		dst[c] = uint8(clampFloat(math.Round(acc[c]), 0, 255))
	}
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
